package snapshot

import (
	core "FlowSpaceFirewall/internal/core/model"
	"sort"
)

const (
	kindSliced = "sliced"
	kindMapped = "mapped"
)

// row is one flow record of a snapshot in a flat store.
type row struct {
	SwitchID core.SwitchID
	Kind     string
	Slice    string
	Position int
	Record   core.FlowRecord
}

// flatten lists every record of snap, slice records in admission order.
func flatten(snap *core.Snapshot) []row {
	var rows []row
	for sw, slices := range snap.Sliced {
		for name, records := range slices {
			for i, r := range records {
				rows = append(rows, row{SwitchID: sw, Kind: kindSliced, Slice: name, Position: i, Record: r})
			}
		}
	}
	for sw, records := range snap.Mapped {
		for i, r := range records {
			rows = append(rows, row{SwitchID: sw, Kind: kindMapped, Position: i, Record: r})
		}
	}
	return rows
}

// assemble rebuilds a snapshot from rows in any order.
func assemble(rows []row) *core.Snapshot {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Position < rows[j].Position })
	snap := core.NewSnapshot()
	for _, r := range rows {
		switch r.Kind {
		case kindSliced:
			slices, ok := snap.Sliced[r.SwitchID]
			if !ok {
				slices = make(map[string][]core.FlowRecord)
				snap.Sliced[r.SwitchID] = slices
			}
			slices[r.Slice] = append(slices[r.Slice], r.Record)
		case kindMapped:
			snap.Mapped[r.SwitchID] = append(snap.Mapped[r.SwitchID], r.Record)
		}
	}
	return snap
}
