package statcache

import (
	core "FlowSpaceFirewall/internal/core/model"
	"FlowSpaceFirewall/internal/model"
	"FlowSpaceFirewall/internal/pkg/logging"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultStalenessWindow is how long a record may go unreported before it is evicted.
const DefaultStalenessWindow = 60 * time.Second

// ErrUnknownSwitch is returned when no live switch carries the requested id.
var ErrUnknownSwitch = errors.New("switch not connected")

var log = logging.WithComponent("statcache")

// FlowStatCache is the controller-side model of the flows installed on every
// switch. A single mutex guards all indices; collaborator calls and switch
// writes are made with it released.
type FlowStatCache struct {
	mu sync.Mutex

	switches model.SwitchSet
	registry model.SliceRegistry
	window   time.Duration
	now      func() time.Time

	nextID  core.RecordID
	records map[core.RecordID]*core.FlowRecord

	flowStats map[core.SwitchID][]core.FlowStats
	portStats map[core.SwitchID]map[uint16]core.PortStats
	// sliced holds the parent records per switch and slice, in admission order.
	sliced map[core.SwitchID]map[string][]*core.FlowRecord
	// mapped holds one child record per physical flow expected on the switch.
	mapped map[core.SwitchID]map[core.Match]*core.FlowRecord
}

// NewFlowStatCache creates an empty cache. A non-positive window selects
// DefaultStalenessWindow.
func NewFlowStatCache(switches model.SwitchSet, registry model.SliceRegistry, window time.Duration) *FlowStatCache {
	if window <= 0 {
		window = DefaultStalenessWindow
	}
	return &FlowStatCache{
		switches:  switches,
		registry:  registry,
		window:    window,
		now:       time.Now,
		nextID:    1,
		records:   make(map[core.RecordID]*core.FlowRecord),
		flowStats: make(map[core.SwitchID][]core.FlowStats),
		portStats: make(map[core.SwitchID]map[uint16]core.PortStats),
		sliced:    make(map[core.SwitchID]map[string][]*core.FlowRecord),
		mapped:    make(map[core.SwitchID]map[core.Match]*core.FlowRecord),
	}
}

// StalenessWindow returns the configured eviction window.
func (c *FlowStatCache) StalenessWindow() time.Duration {
	return c.window
}

// AddFlowMod records a flow a slice was allowed to install: flow becomes the
// parent record of the slice and every entry of flows a child indexed by its
// match. A child replaces any record already indexed under the same match.
func (c *FlowStatCache) AddFlowMod(sw core.SwitchID, sliceName string, flow core.FlowMod, flows []core.FlowMod) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addFlowMod(sw, sliceName, flow, flows, c.now())
}

func (c *FlowStatCache) addFlowMod(sw core.SwitchID, sliceName string, flow core.FlowMod, flows []core.FlowMod, now time.Time) *core.FlowRecord {
	parent := c.newRecord(flow, sliceName, now)
	slices, ok := c.sliced[sw]
	if !ok {
		slices = make(map[string][]*core.FlowRecord)
		c.sliced[sw] = slices
	}
	slices[sliceName] = append(slices[sliceName], parent)

	index := c.matchIndex(sw)
	for _, f := range flows {
		child := c.newRecord(f, sliceName, now)
		child.ParentID = parent.ID
		if old, ok := index[child.Match]; ok {
			delete(c.records, old.ID)
		}
		index[child.Match] = child
	}
	logging.WithSwitch(sw).WithField("slice", sliceName).Debugf("Added %s with %d physical flows", flow, len(flows))
	return parent
}

func (c *FlowStatCache) newRecord(flow core.FlowMod, sliceName string, now time.Time) *core.FlowRecord {
	r := core.NewFlowRecord(flow)
	r.ID = c.nextID
	c.nextID++
	r.SliceName = sliceName
	r.LastSeen = now
	c.records[r.ID] = r
	return r
}

func (c *FlowStatCache) matchIndex(sw core.SwitchID) map[core.Match]*core.FlowRecord {
	index, ok := c.mapped[sw]
	if !ok {
		index = make(map[core.Match]*core.FlowRecord)
		c.mapped[sw] = index
	}
	return index
}

// DelFlowMod marks the children matching flows, their parents, and the
// slice's records matching flow as pending deletion. They are removed by the
// next aging sweep. Flows that are not cached are ignored.
func (c *FlowStatCache) DelFlowMod(sw core.SwitchID, sliceName string, flow core.FlowMod, flows []core.FlowMod) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delFlowMod(sw, sliceName, flow, flows)
}

func (c *FlowStatCache) delFlowMod(sw core.SwitchID, sliceName string, flow core.FlowMod, flows []core.FlowMod) {
	index := c.mapped[sw]
	for _, f := range flows {
		child, ok := index[f.Match]
		if !ok {
			continue
		}
		child.PendingDeletion = true
		if parent := c.parentOf(child); parent != nil {
			parent.PendingDeletion = true
		}
	}
	for _, r := range c.sliced[sw][sliceName] {
		if r.Match == flow.Match {
			r.PendingDeletion = true
		}
	}
}

func (c *FlowStatCache) parentOf(r *core.FlowRecord) *core.FlowRecord {
	if !r.HasParent() {
		return nil
	}
	return c.records[r.ParentID]
}

// Reconcile applies one reported flow to the cache and dispatches any
// corrective delete it requires. counts accumulates flow counts per slice.
func (c *FlowStatCache) Reconcile(sw core.SwitchID, stat core.FlowStats, counts map[string]int) {
	c.mu.Lock()
	deletes := c.reconcile(sw, stat, counts, c.now())
	c.mu.Unlock()
	c.dispatch(sw, deletes)
}

// reconcile returns the flows that must be removed from the switch.
func (c *FlowStatCache) reconcile(sw core.SwitchID, stat core.FlowStats, counts map[string]int, now time.Time) []core.FlowMod {
	index := c.matchIndex(sw)
	logger := logging.WithSwitch(sw)

	if cached, ok := index[stat.Match]; ok {
		if cached.Actions.Equal(stat.Actions) {
			if !c.update(cached, stat, counts, now) {
				logger.Errorf("Received stats for a flow pending deletion: %s", cached)
			}
			return nil
		}

		logger.Errorf("Flow actions differ from cache: cached %s, reported %s", cached, stat)
		owner := c.parentOf(cached)
		if owner == nil {
			owner = cached
		}
		flow := owner.FlowMod()
		slicer := c.slicerFor(sw, owner.SliceName)
		if slicer == nil {
			return []core.FlowMod{flow}
		}
		c.delFlowMod(sw, slicer.Name(), flow, slicer.DeriveFlows(flow, slicer.TagManagement()))
		return nil
	}

	flow := stat.FlowMod()
	if flow.IsDefaultDrop() {
		return nil
	}
	slicer := c.classify(sw, flow)
	if slicer == nil {
		logger.Infof("Flow is not part of any slice, removing it: %s", stat)
		return []core.FlowMod{flow}
	}

	c.addFlowMod(sw, slicer.Name(), logicalFlow(slicer, flow), []core.FlowMod{flow}, now)
	if !c.update(index[stat.Match], stat, counts, now) {
		logger.Warnf("Failed to update newly cached flow: %s", stat)
	}
	return nil
}

// update adds the reported counters to r and, transitively, to its parents.
// It returns false when r is pending deletion.
func (c *FlowStatCache) update(r *core.FlowRecord, stat core.FlowStats, counts map[string]int, now time.Time) bool {
	if r == nil || r.PendingDeletion {
		return false
	}
	r.ByteCount += stat.ByteCount
	r.PacketCount += stat.PacketCount
	r.DurationSeconds = stat.DurationSeconds
	r.DurationNanoseconds = stat.DurationNanoseconds
	r.LastSeen = now
	r.Verified = true

	if r.HasParent() {
		counts[r.SliceName]++
		if parent := c.records[r.ParentID]; parent != nil {
			c.update(parent, stat, counts, now)
		}
	}
	return true
}

// classify returns the first slice on sw that accepts flow.
func (c *FlowStatCache) classify(sw core.SwitchID, flow core.FlowMod) model.Slicer {
	for _, s := range c.registry.SlicesForSwitch(sw) {
		if len(s.Classify(flow)) > 0 {
			return s
		}
	}
	return nil
}

func (c *FlowStatCache) slicerFor(sw core.SwitchID, sliceName string) model.Slicer {
	p := c.registry.Proxy(sw, sliceName)
	if p == nil {
		return nil
	}
	return p.Slicer()
}

// logicalFlow returns the aggregation parent for a physical flow claimed by s.
func logicalFlow(s model.Slicer, physical core.FlowMod) core.FlowMod {
	if d, ok := s.(model.LogicalFlowDeriver); ok {
		return d.LogicalFlow(physical)
	}
	if s.TagManagement() {
		return physical.WithoutVLAN()
	}
	return physical.Clone()
}

// AgeAndEvict removes the records of sw that are pending deletion or were
// last seen more than the staleness window before now.
func (c *FlowStatCache) AgeAndEvict(sw core.SwitchID, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ageAndEvict(sw, now)
}

func (c *FlowStatCache) ageAndEvict(sw core.SwitchID, now time.Time) {
	cutoff := now.Add(-c.window)
	logger := logging.WithSwitch(sw)

	for name, records := range c.sliced[sw] {
		kept := records[:0]
		for _, r := range records {
			if r.LastSeen.Before(cutoff) || r.PendingDeletion {
				logger.Debugf("Removing %s", r)
				c.removeRecord(sw, r)
				continue
			}
			kept = append(kept, r)
		}
		for i := len(kept); i < len(records); i++ {
			records[i] = nil
		}
		c.sliced[sw][name] = kept
	}

	for match, r := range c.mapped[sw] {
		if r.LastSeen.Before(cutoff) || r.PendingDeletion {
			logger.Debugf("Removing mapping %s", r)
			delete(c.mapped[sw], match)
			c.removeRecord(sw, r)
		}
	}
}

// removeRecord drops r from the arena and removes every child of r from the
// match index.
func (c *FlowStatCache) removeRecord(sw core.SwitchID, r *core.FlowRecord) {
	delete(c.records, r.ID)
	for match, child := range c.mapped[sw] {
		if child.ParentID == r.ID {
			delete(c.mapped[sw], match)
			delete(c.records, child.ID)
		}
	}
}

// SetFlowCache runs one reconciliation cycle for sw: it stores the raw batch,
// rebuilds the counters of every cached record from the report, ages the
// switch's records, then dispatches corrective deletes and pushes the flow
// counts to the slices' proxies.
func (c *FlowStatCache) SetFlowCache(sw core.SwitchID, stats []core.FlowStats) {
	counts := make(map[string]int)
	var deletes []core.FlowMod

	c.mu.Lock()
	now := c.now()
	c.flowStats[sw] = append([]core.FlowStats(nil), stats...)
	logging.WithSwitch(sw).Debugf("Setting flow cache with %d stats", len(stats))

	// Switches report cumulative counters.
	for _, records := range c.sliced[sw] {
		for _, r := range records {
			r.ByteCount, r.PacketCount = 0, 0
		}
	}
	for _, r := range c.mapped[sw] {
		r.ByteCount, r.PacketCount = 0, 0
	}

	for _, stat := range stats {
		deletes = append(deletes, c.reconcile(sw, stat, counts, now)...)
	}
	c.ageAndEvict(sw, now)
	c.mu.Unlock()

	c.dispatch(sw, deletes)
	c.pushFlowCounts(sw, counts)
}

func (c *FlowStatCache) pushFlowCounts(sw core.SwitchID, counts map[string]int) {
	for _, s := range c.registry.SlicesForSwitch(sw) {
		p := c.registry.Proxy(sw, s.Name())
		if p == nil {
			continue
		}
		n, ok := counts[s.Name()]
		if !ok {
			logging.WithSwitch(sw).WithField("slice", s.Name()).Error("Problem updating flow count: no flows counted for slice")
			continue
		}
		p.SetFlowCount(n)
	}
}

func (c *FlowStatCache) dispatch(sw core.SwitchID, flows []core.FlowMod) {
	for _, f := range flows {
		if err := c.deleteFromSwitch(sw, f); err != nil {
			logging.WithSwitch(sw).Errorf("Failed to send flow delete: %v", err)
		}
	}
}

// deleteFromSwitch sends a strict delete for flow to sw. It must be called
// without holding the cache lock.
func (c *FlowStatCache) deleteFromSwitch(sw core.SwitchID, flow core.FlowMod) error {
	if c.switches == nil {
		return ErrUnknownSwitch
	}
	for _, s := range c.switches.Switches() {
		if s.ID() != sw {
			continue
		}
		if err := s.Send(flow.DeleteStrict()); err != nil {
			return fmt.Errorf("failed to delete %s: %w", flow.Match, err)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownSwitch, sw)
}

// ClearFlowCache drops the raw stats of sw and marks its records unverified.
// Records are kept, stamped fresh, so a reconnecting switch can re-verify them.
func (c *FlowStatCache) ClearFlowCache(sw core.SwitchID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	delete(c.flowStats, sw)
	for _, records := range c.sliced[sw] {
		for _, r := range records {
			r.Verified = false
			r.LastSeen = now
		}
	}
	for _, r := range c.mapped[sw] {
		r.Verified = false
		r.LastSeen = now
	}
}

// GetSwitchFlowStats returns the last raw flow stats batch of sw.
func (c *FlowStatCache) GetSwitchFlowStats(sw core.SwitchID) ([]core.FlowStats, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats, ok := c.flowStats[sw]
	if !ok {
		return nil, false
	}
	return append([]core.FlowStats(nil), stats...), true
}

// GetSlicedFlowStats returns copies of the verified records of a slice on sw
// that are not pending deletion. ok is false when sw has never reported.
func (c *FlowStatCache) GetSlicedFlowStats(sw core.SwitchID, sliceName string) ([]core.FlowRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.flowStats[sw]; !ok {
		return nil, false
	}
	out := []core.FlowRecord{}
	for _, r := range c.sliced[sw][sliceName] {
		if r.PendingDeletion || !r.Verified {
			continue
		}
		out = append(out, r.Clone())
	}
	return out, true
}

// SetPortCache replaces the port statistics of sw.
func (c *FlowStatCache) SetPortCache(sw core.SwitchID, ports []core.PortStats) {
	m := make(map[uint16]core.PortStats, len(ports))
	for _, p := range ports {
		m[p.PortNo] = p
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.portStats[sw] = m
}

// GetPortStats returns the port statistics of sw keyed by port number.
func (c *FlowStatCache) GetPortStats(sw core.SwitchID) (map[uint16]core.PortStats, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ports, ok := c.portStats[sw]
	if !ok {
		return nil, false
	}
	out := make(map[uint16]core.PortStats, len(ports))
	for k, v := range ports {
		out[k] = v
	}
	return out, true
}

// GetPortStat returns the statistics of one port of sw.
func (c *FlowStatCache) GetPortStat(sw core.SwitchID, port uint16) (core.PortStats, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.portStats[sw][port]
	return p, ok
}

// GetPossibleExpiredFlows returns the timeouts tracked by every slice proxy on sw.
func (c *FlowStatCache) GetPossibleExpiredFlows(sw core.SwitchID) []core.FlowTimeout {
	var out []core.FlowTimeout
	for _, s := range c.registry.SlicesForSwitch(sw) {
		if p := c.registry.Proxy(sw, s.Name()); p != nil {
			out = append(out, p.Timeouts()...)
		}
	}
	return out
}

// CheckExpireFlows asks every slice proxy on sw to remove its expired flows.
func (c *FlowStatCache) CheckExpireFlows(sw core.SwitchID) {
	for _, s := range c.registry.SlicesForSwitch(sw) {
		if p := c.registry.Proxy(sw, s.Name()); p != nil {
			p.CheckExpiredFlows()
		}
	}
}

// Switches returns every switch with cached records or reported stats.
func (c *FlowStatCache) Switches() []core.SwitchID {
	c.mu.Lock()
	defer c.mu.Unlock()
	seen := make(map[core.SwitchID]bool)
	var out []core.SwitchID
	add := func(sw core.SwitchID) {
		if !seen[sw] {
			seen[sw] = true
			out = append(out, sw)
		}
	}
	for sw := range c.flowStats {
		add(sw)
	}
	for sw := range c.sliced {
		add(sw)
	}
	for sw := range c.mapped {
		add(sw)
	}
	return out
}
