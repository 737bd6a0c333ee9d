package transport

import (
	core "FlowSpaceFirewall/internal/core/model"
	"FlowSpaceFirewall/internal/model"
	"sort"
	"sync"
	"time"
)

// FlowModPublisher delivers a flow_mod to a switch agent.
type FlowModPublisher interface {
	PublishFlowMod(dpid core.SwitchID, flow *core.FlowMod) error
}

// SwitchSet is the set of switches whose agents reported within the window.
type SwitchSet struct {
	mu       sync.Mutex
	pub      FlowModPublisher
	window   time.Duration
	now      func() time.Time
	lastSeen map[core.SwitchID]time.Time
}

// NewSwitchSet creates an empty switch set publishing through pub.
func NewSwitchSet(pub FlowModPublisher, window time.Duration) *SwitchSet {
	return &SwitchSet{
		pub:      pub,
		window:   window,
		now:      time.Now,
		lastSeen: make(map[core.SwitchID]time.Time),
	}
}

// Seen marks dpid as connected now.
func (s *SwitchSet) Seen(dpid core.SwitchID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen[dpid] = s.now()
}

// Forget removes dpid from the set.
func (s *SwitchSet) Forget(dpid core.SwitchID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lastSeen, dpid)
}

// Switches returns the live switches ordered by datapath id.
func (s *SwitchSet) Switches() []model.Switch {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.window)
	ids := make([]core.SwitchID, 0, len(s.lastSeen))
	for id, seen := range s.lastSeen {
		if seen.Before(cutoff) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]model.Switch, len(ids))
	for i, id := range ids {
		out[i] = &agentSwitch{id: id, pub: s.pub}
	}
	return out
}

type agentSwitch struct {
	id  core.SwitchID
	pub FlowModPublisher
}

func (a *agentSwitch) ID() core.SwitchID { return a.id }

func (a *agentSwitch) Send(flow *core.FlowMod) error {
	return a.pub.PublishFlowMod(a.id, flow)
}
