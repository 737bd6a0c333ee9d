package statcache

import (
	core "FlowSpaceFirewall/internal/core/model"
	"FlowSpaceFirewall/internal/model"
	"sort"
	"time"
)

// Snapshot returns a deep copy of the sliced view and the match index.
// LastSeen is cleared; it is re-stamped on restore.
func (c *FlowStatCache) Snapshot() *core.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := core.NewSnapshot()
	snap.Taken = c.now()
	snap.NextID = c.nextID
	for sw, slices := range c.sliced {
		out := make(map[string][]core.FlowRecord, len(slices))
		for name, records := range slices {
			copies := make([]core.FlowRecord, 0, len(records))
			for _, r := range records {
				copies = append(copies, snapshotRecord(r))
			}
			out[name] = copies
		}
		snap.Sliced[sw] = out
	}
	for sw, index := range c.mapped {
		copies := make([]core.FlowRecord, 0, len(index))
		for _, r := range index {
			copies = append(copies, snapshotRecord(r))
		}
		sort.Slice(copies, func(i, j int) bool { return copies[i].ID < copies[j].ID })
		snap.Mapped[sw] = copies
	}
	return snap
}

func snapshotRecord(r *core.FlowRecord) core.FlowRecord {
	out := r.Clone()
	out.LastSeen = time.Time{}
	return out
}

// Restore replaces the sliced view and match index with the snapshot's
// content. Every record is stamped as seen now. Raw and port stats are kept.
func (c *FlowStatCache) Restore(snap *core.Snapshot) {
	if snap == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	records := make(map[core.RecordID]*core.FlowRecord)
	sliced := make(map[core.SwitchID]map[string][]*core.FlowRecord, len(snap.Sliced))
	mapped := make(map[core.SwitchID]map[core.Match]*core.FlowRecord, len(snap.Mapped))
	nextID := snap.NextID

	restore := func(fr core.FlowRecord) *core.FlowRecord {
		r := fr.Clone()
		r.LastSeen = now
		if r.ID >= nextID {
			nextID = r.ID + 1
		}
		records[r.ID] = &r
		return &r
	}

	for sw, slices := range snap.Sliced {
		out := make(map[string][]*core.FlowRecord, len(slices))
		for name, list := range slices {
			restored := make([]*core.FlowRecord, 0, len(list))
			for _, fr := range list {
				restored = append(restored, restore(fr))
			}
			out[name] = restored
		}
		sliced[sw] = out
	}
	for sw, list := range snap.Mapped {
		index := make(map[core.Match]*core.FlowRecord, len(list))
		for _, fr := range list {
			r := restore(fr)
			index[r.Match] = r
		}
		mapped[sw] = index
	}
	if nextID == 0 {
		nextID = 1
	}

	c.records = records
	c.sliced = sliced
	c.mapped = mapped
	c.nextID = nextID

	parents, children := snap.Counts()
	log.Infof("Restored %d slice records and %d flow mappings", parents, children)
}

// RestoreFrom loads a snapshot with loader and restores it. A load failure
// is logged and leaves the cache untouched.
func (c *FlowStatCache) RestoreFrom(loader model.Loader) bool {
	snap, err := loader.Load()
	if err != nil {
		log.Errorf("Failed to load flow cache snapshot: %v", err)
		return false
	}
	c.Restore(snap)
	return true
}
