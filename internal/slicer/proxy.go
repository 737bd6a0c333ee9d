package slicer

import (
	core "FlowSpaceFirewall/internal/core/model"
	"FlowSpaceFirewall/internal/model"
	"FlowSpaceFirewall/internal/pkg/logging"
	"fmt"
	"sync"
	"time"
)

// Proxy is a slice's view of one switch. It carries the flow count pushed
// by the cache and the timeouts of flows the slice installed.
type Proxy struct {
	mu sync.Mutex

	slicer    *Slicer
	switches  model.SwitchSet
	flowCount int
	timeouts  []core.FlowTimeout
	now       func() time.Time
}

// NewProxy creates a proxy for slicer that sends deletes over switches.
func NewProxy(slicer *Slicer, switches model.SwitchSet) *Proxy {
	return &Proxy{slicer: slicer, switches: switches, now: time.Now}
}

// Slicer returns the slice's policy for this switch.
func (p *Proxy) Slicer() model.Slicer {
	return p.slicer
}

// SetFlowCount records the number of the slice's flows seen on the switch.
func (p *Proxy) SetFlowCount(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flowCount = n
}

// FlowCount returns the last pushed flow count.
func (p *Proxy) FlowCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flowCount
}

// Track starts tracking the timeouts of a flow the slice installed. Flows
// with neither an idle nor a hard timeout are ignored.
func (p *Proxy) Track(flow core.FlowMod) {
	if flow.IdleTimeout == 0 && flow.HardTimeout == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	p.timeouts = append(p.timeouts, core.FlowTimeout{
		SwitchID:    p.slicer.SwitchID(),
		SliceName:   p.slicer.Name(),
		Flow:        flow.Clone(),
		Installed:   now,
		LastActive:  now,
		IdleTimeout: time.Duration(flow.IdleTimeout) * time.Second,
		HardTimeout: time.Duration(flow.HardTimeout) * time.Second,
	})
}

// Untrack stops tracking every timeout of a flow with the given match.
func (p *Proxy) Untrack(match core.Match) {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.timeouts[:0]
	for _, t := range p.timeouts {
		if t.Flow.Match != match {
			kept = append(kept, t)
		}
	}
	p.timeouts = kept
}

// Touch marks the flow with the given match as active now, resetting its
// idle timeout.
func (p *Proxy) Touch(match core.Match) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	for i := range p.timeouts {
		if p.timeouts[i].Flow.Match == match {
			p.timeouts[i].LastActive = now
		}
	}
}

// Timeouts returns a copy of the tracked timeouts.
func (p *Proxy) Timeouts() []core.FlowTimeout {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]core.FlowTimeout(nil), p.timeouts...)
}

// CheckExpiredFlows removes every expired timeout and sends a strict delete
// for its flow. Send failures are logged.
func (p *Proxy) CheckExpiredFlows() {
	p.mu.Lock()
	now := p.now()
	var expired []core.FlowTimeout
	kept := p.timeouts[:0]
	for _, t := range p.timeouts {
		if t.Expired(now) {
			expired = append(expired, t)
			continue
		}
		kept = append(kept, t)
	}
	p.timeouts = kept
	p.mu.Unlock()

	logger := logging.WithSwitch(p.slicer.SwitchID()).WithField("slice", p.slicer.Name())
	for _, t := range expired {
		if err := p.send(t.Flow.DeleteStrict()); err != nil {
			logger.Errorf("Failed to remove expired flow %s: %v", t.Flow.Match, err)
			continue
		}
		logger.Debugf("Removed expired flow %s", t.Flow.Match)
	}
}

func (p *Proxy) send(flow *core.FlowMod) error {
	if p.switches == nil {
		return ErrSwitchNotConnected
	}
	for _, sw := range p.switches.Switches() {
		if sw.ID() == p.slicer.SwitchID() {
			return sw.Send(flow)
		}
	}
	return fmt.Errorf("%w: %s", ErrSwitchNotConnected, p.slicer.SwitchID())
}

// Send writes flow to the proxy's switch.
func (p *Proxy) Send(flow *core.FlowMod) error {
	return p.send(flow)
}
