package exporter

import (
	core "FlowSpaceFirewall/internal/core/model"
	"FlowSpaceFirewall/internal/factory"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRows(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m := core.UniversalMatch()
	m.Wildcards &^= core.WildcardInPort
	m.InPort = 1

	snap := core.NewSnapshot()
	snap.Sliced[2] = map[string][]core.FlowRecord{
		"research": {{ID: 7, Match: m, Priority: 10, Cookie: 3, ByteCount: 500, PacketCount: 5, Verified: true}},
	}
	snap.Sliced[1] = map[string][]core.FlowRecord{
		"research": {{ID: 3, Match: m, ByteCount: 100, PacketCount: 1, Verified: true}},
		"campus": {
			{ID: 1, Match: m, ByteCount: 200, PacketCount: 2, Verified: true},
			{ID: 2, Match: m, Verified: false},
			{ID: 4, Match: m, Verified: true, PendingDeletion: true},
		},
	}
	// Children are never exported.
	snap.Mapped[1] = []core.FlowRecord{{ID: 5, ParentID: 1, Verified: true}}

	rows := Rows(snap, at)
	require.Len(t, rows, 3)

	assert.Equal(t, "00:00:00:00:00:00:00:01", rows[0].DPID)
	assert.Equal(t, "campus", rows[0].SliceName)
	assert.Equal(t, uint64(1), rows[0].RecordID)
	assert.Equal(t, "match[in_port=1]", rows[0].Match)
	assert.Equal(t, at, rows[0].Timestamp)

	assert.Equal(t, "research", rows[1].SliceName)
	assert.Equal(t, uint64(3), rows[1].RecordID)

	assert.Equal(t, "00:00:00:00:00:00:00:02", rows[2].DPID)
	assert.Equal(t, uint64(500), rows[2].ByteCount)
	assert.Equal(t, uint16(10), rows[2].Priority)
	assert.Equal(t, uint64(3), rows[2].Cookie)
}

func TestRowsEmpty(t *testing.T) {
	assert.Empty(t, Rows(core.NewSnapshot(), time.Now()))
}

func TestRegistered(t *testing.T) {
	assert.Contains(t, factory.Types(), "clickhouse")
}
