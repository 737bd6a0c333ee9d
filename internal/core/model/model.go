package model

import (
	"fmt"
	"time"
)

// RecordID identifies a FlowRecord inside one cache. Zero means "none".
type RecordID uint64

// FlowRecord is the cached state of one flow. Records built from a slice's
// request are parents; records for the flows actually installed on the
// switch are children and point at their parent through ParentID.
type FlowRecord struct {
	ID RecordID

	TableID             uint8
	Match               Match
	Actions             ActionList
	Priority            uint16
	Cookie              uint64
	IdleTimeout         uint16
	HardTimeout         uint16
	DurationSeconds     uint32
	DurationNanoseconds uint32
	PacketCount         uint64
	ByteCount           uint64
	Length              int

	SliceName       string
	LastSeen        time.Time
	Verified        bool
	PendingDeletion bool

	// ParentID is a weak reference to the logical record this one
	// aggregates into.
	ParentID RecordID
}

// NewFlowRecord builds a record with zeroed counters from a flow request.
func NewFlowRecord(flow FlowMod) *FlowRecord {
	return &FlowRecord{
		Match:       flow.Match,
		Actions:     flow.Actions.Clone(),
		Priority:    flow.Priority,
		Cookie:      flow.Cookie,
		IdleTimeout: flow.IdleTimeout,
		HardTimeout: flow.HardTimeout,
		Length:      FlowStatsMinLength + flow.Actions.Length(),
	}
}

// HasParent reports whether the record aggregates into a parent.
func (r *FlowRecord) HasParent() bool {
	return r.ParentID != 0
}

// FlowMod rebuilds the flow request the record was created from.
func (r *FlowRecord) FlowMod() FlowMod {
	return FlowMod{
		Command:     FlowAdd,
		Match:       r.Match,
		Actions:     r.Actions.Clone(),
		Priority:    r.Priority,
		Cookie:      r.Cookie,
		IdleTimeout: r.IdleTimeout,
		HardTimeout: r.HardTimeout,
		OutPort:     PortNone,
	}
}

// Clone returns an independent copy of the record.
func (r *FlowRecord) Clone() FlowRecord {
	out := *r
	out.Actions = r.Actions.Clone()
	return out
}

func (r *FlowRecord) String() string {
	return fmt.Sprintf("record{id=%d parent=%d slice=%q packets=%d bytes=%d verified=%t pending=%t %s %s}",
		r.ID, r.ParentID, r.SliceName, r.PacketCount, r.ByteCount, r.Verified, r.PendingDeletion, r.Match, r.Actions)
}

// FlowTimeout is a flow a slice installed with an idle or hard timeout.
type FlowTimeout struct {
	SwitchID    SwitchID
	SliceName   string
	Flow        FlowMod
	Installed   time.Time
	LastActive  time.Time
	IdleTimeout time.Duration
	HardTimeout time.Duration
}

// Expired reports whether the timeout has passed at now.
func (t FlowTimeout) Expired(now time.Time) bool {
	if t.HardTimeout > 0 && !now.Before(t.Installed.Add(t.HardTimeout)) {
		return true
	}
	if t.IdleTimeout > 0 && !now.Before(t.LastActive.Add(t.IdleTimeout)) {
		return true
	}
	return false
}

// Snapshot is a point-in-time copy of the cache's slice view and match
// index. LastSeen is not meaningful in a snapshot; it is re-stamped on
// restore.
type Snapshot struct {
	Taken  time.Time
	NextID RecordID
	// Sliced holds parent records per switch and slice, in insertion order.
	Sliced map[SwitchID]map[string][]FlowRecord
	// Mapped holds the child records per switch.
	Mapped map[SwitchID][]FlowRecord
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Sliced: make(map[SwitchID]map[string][]FlowRecord),
		Mapped: make(map[SwitchID][]FlowRecord),
	}
}

// Switches returns every switch that appears in the snapshot.
func (s *Snapshot) Switches() []SwitchID {
	seen := make(map[SwitchID]bool)
	var out []SwitchID
	for sw := range s.Sliced {
		if !seen[sw] {
			seen[sw] = true
			out = append(out, sw)
		}
	}
	for sw := range s.Mapped {
		if !seen[sw] {
			seen[sw] = true
			out = append(out, sw)
		}
	}
	return out
}

// Counts returns the number of parent and child records in the snapshot.
func (s *Snapshot) Counts() (parents, children int) {
	for _, slices := range s.Sliced {
		for _, records := range slices {
			parents += len(records)
		}
	}
	for _, records := range s.Mapped {
		children += len(records)
	}
	return parents, children
}
