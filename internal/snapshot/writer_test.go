package snapshot

import (
	core "FlowSpaceFirewall/internal/core/model"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vlanMatch(port, vlan uint16) core.Match {
	m := core.UniversalMatch()
	m.Wildcards &^= core.WildcardInPort | core.WildcardDLVlan
	m.InPort = port
	m.DLVlan = vlan
	return m
}

// sampleSnapshot returns a snapshot with two switches, one parent with two
// children on switch 1 and a lone parent on switch 2.
func sampleSnapshot() *core.Snapshot {
	snap := core.NewSnapshot()
	snap.Taken = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	snap.NextID = 5

	parent := core.FlowRecord{
		ID:          1,
		Match:       vlanMatch(1, 0).WithWildcard(core.WildcardDLVlan),
		Actions:     core.ActionList{core.Output(2)},
		Priority:    100,
		Cookie:      42,
		Length:      96,
		PacketCount: 30,
		ByteCount:   3000,
		SliceName:   "campus",
		Verified:    true,
	}
	snap.Sliced[1] = map[string][]core.FlowRecord{"campus": {parent}}
	snap.Mapped[1] = []core.FlowRecord{
		{ID: 2, ParentID: 1, Match: vlanMatch(1, 100), Actions: core.ActionList{core.SetVlanVID(100), core.Output(2)}, Priority: 100, PacketCount: 10, ByteCount: 1000, SliceName: "campus", Verified: true},
		{ID: 3, ParentID: 1, Match: vlanMatch(1, 101), Actions: core.ActionList{core.SetVlanVID(101), core.Output(2)}, Priority: 100, PacketCount: 20, ByteCount: 2000, SliceName: "campus", Verified: true},
	}
	snap.Sliced[2] = map[string][]core.FlowRecord{
		"research": {{ID: 4, Match: vlanMatch(3, 10), Actions: core.ActionList{core.Output(4)}, Priority: 10, PacketCount: 1, ByteCount: 64, SliceName: "research"}},
	}
	return snap
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleSnapshot())
	assert.Equal(t, 2, s.Switches)
	assert.Equal(t, 2, s.SliceRecords)
	assert.Equal(t, 2, s.FlowMappings)
	// Children are folded into their parents and not counted twice.
	assert.Equal(t, uint64(3064), s.TotalBytes)
	assert.Equal(t, uint64(31), s.TotalPackets)
	assert.Equal(t, uint64(5), s.NextID)
	assert.Equal(t, "2025-03-01T12:00:00Z", s.SnapshotTaken)
}

func TestGobWriter_WriteAndLoad(t *testing.T) {
	// 1. Write a snapshot into a temporary root
	root := t.TempDir()
	w := NewGobWriter(root, 30*time.Second)
	assert.Equal(t, 30*time.Second, w.GetInterval())

	snap := sampleSnapshot()
	require.NoError(t, w.Write(snap, "2025-03-01_12-00-00"))

	// 2. Verify directory and files
	dir := filepath.Join(root, "2025-03-01_12-00-00")
	_, err := os.Stat(filepath.Join(dir, cacheFileName))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, cacheFileName+".tmp"))
	assert.True(t, os.IsNotExist(err), "temporary file must be renamed")

	// 3. Verify summary content
	summary, err := ReadSummary(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.SliceRecords)
	assert.Equal(t, 2, summary.FlowMappings)
	assert.NotEmpty(t, summary.Timestamp)

	// 4. Load it back
	loaded, err := w.Load()
	require.NoError(t, err)
	assert.Equal(t, snap, loaded)
}

func TestGobWriter_LoadPicksNewest(t *testing.T) {
	root := t.TempDir()
	w := NewGobWriter(root, time.Minute)

	older := sampleSnapshot()
	older.NextID = 5
	newer := sampleSnapshot()
	newer.NextID = 9

	require.NoError(t, w.Write(newer, "2025-03-01_12-00-10"))
	require.NoError(t, w.Write(older, "2025-03-01_12-00-00"))
	// A newer directory without a cache file is skipped.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "2025-03-01_12-00-20"), 0755))

	loaded, err := w.Load()
	require.NoError(t, err)
	assert.Equal(t, core.RecordID(9), loaded.NextID)
}

func TestGobWriter_NoSnapshot(t *testing.T) {
	_, err := NewGobWriter(filepath.Join(t.TempDir(), "missing"), time.Minute).Load()
	assert.ErrorIs(t, err, ErrNoSnapshot)

	_, err = NewGobWriter(t.TempDir(), time.Minute).Load()
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestGobWriter_EmptySnapshot(t *testing.T) {
	w := NewGobWriter(t.TempDir(), time.Minute)
	empty := core.NewSnapshot()
	empty.NextID = 1
	require.NoError(t, w.Write(empty, "2025-03-01_12-00-00"))

	loaded, err := w.Load()
	require.NoError(t, err)
	assert.NotNil(t, loaded.Sliced)
	assert.NotNil(t, loaded.Mapped)
	assert.Equal(t, core.RecordID(1), loaded.NextID)
}

func TestFlattenAssemble(t *testing.T) {
	snap := sampleSnapshot()
	rows := flatten(snap)
	assert.Len(t, rows, 4)

	// Reverse the rows; assemble restores the original order.
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	out := assemble(rows)
	assert.Equal(t, snap.Sliced, out.Sliced)
	assert.Equal(t, snap.Mapped, out.Mapped)
}

func TestDPIDKey(t *testing.T) {
	key := dpidKey(core.SwitchID(0xfedcba9876543210))
	assert.Equal(t, "fedcba9876543210", key)

	sw, err := parseDPIDKey(key)
	require.NoError(t, err)
	assert.Equal(t, core.SwitchID(0xfedcba9876543210), sw)

	_, err = parseDPIDKey("not-hex")
	assert.Error(t, err)
}
