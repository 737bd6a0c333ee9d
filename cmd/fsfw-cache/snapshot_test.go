package main

import (
	core "FlowSpaceFirewall/internal/core/model"
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintSnapshot(t *testing.T) {
	snap := core.NewSnapshot()
	snap.Taken = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	snap.NextID = 4
	snap.Sliced[2] = map[string][]core.FlowRecord{
		"research": {{ID: 3, PacketCount: 1, ByteCount: 64, Verified: true}},
	}
	snap.Sliced[1] = map[string][]core.FlowRecord{
		"campus": {{ID: 1, PacketCount: 10, ByteCount: 1000, Verified: true}, {ID: 2}},
	}
	snap.Mapped[1] = []core.FlowRecord{{ID: 5, ParentID: 1}}

	var out bytes.Buffer
	require.NoError(t, printSnapshot(&out, snap))
	text := out.String()

	assert.Contains(t, text, "Snapshot taken 2025-03-01 12:00:00: 3 slice records, 1 flow mappings, next id 4")
	assert.Regexp(t, `00:00:00:00:00:00:00:01\s+campus\s+2\s+1\s+10\s+1000`, text)
	assert.Regexp(t, `00:00:00:00:00:00:00:02\s+research\s+1\s+1\s+1\s+64`, text)
	assert.Regexp(t, `00:00:00:00:00:00:00:01\s+\(mapped\)\s+1`, text)
	assert.Less(t, bytes.Index(out.Bytes(), []byte("campus")), bytes.Index(out.Bytes(), []byte("research")))
}

func TestRootCommands(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "snapshot", "inject"})
}
