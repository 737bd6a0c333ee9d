package snapshot

import (
	core "FlowSpaceFirewall/internal/core/model"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisHashes_RoundTrip(t *testing.T) {
	snap := sampleSnapshot()
	hashes, err := encodeRedisHashes(snap)
	require.NoError(t, err)

	assert.Len(t, hashes, 2)
	sw1 := hashes[redisKeyPrefix+"0000000000000001"]
	assert.Contains(t, sw1, "sliced|campus|0")
	assert.Contains(t, sw1, "mapped|0")
	assert.Contains(t, sw1, "mapped|1")

	meta := map[string]string{"taken": "2025-03-01T12:00:00Z", "next_id": "5"}
	out, err := decodeRedisHashes(meta, hashes)
	require.NoError(t, err)
	assert.Equal(t, snap.Sliced, out.Sliced)
	assert.Equal(t, snap.Mapped, out.Mapped)
	assert.Equal(t, core.RecordID(5), out.NextID)
	assert.True(t, snap.Taken.Equal(out.Taken))
}

func TestRedisHashes_SliceNameWithSeparator(t *testing.T) {
	snap := core.NewSnapshot()
	snap.Sliced[3] = map[string][]core.FlowRecord{
		"lab|east": {{ID: 1, Match: vlanMatch(1, 1), Actions: core.ActionList{core.Output(2)}}},
	}
	hashes, err := encodeRedisHashes(snap)
	require.NoError(t, err)

	out, err := decodeRedisHashes(map[string]string{"taken": "2025-03-01T12:00:00Z", "next_id": "2"}, hashes)
	require.NoError(t, err)
	assert.Equal(t, snap.Sliced, out.Sliced)
}

func TestRedisHashes_Invalid(t *testing.T) {
	meta := map[string]string{"taken": "2025-03-01T12:00:00Z", "next_id": "2"}
	tests := []struct {
		name   string
		meta   map[string]string
		hashes map[string]map[string]string
	}{
		{"bad key", meta, map[string]map[string]string{redisKeyPrefix + "xyz": {}}},
		{"bad field", meta, map[string]map[string]string{redisKeyPrefix + "01": {"mapped": "{}"}}},
		{"sliced without position", meta, map[string]map[string]string{redisKeyPrefix + "01": {"sliced|0": "{}"}}},
		{"bad position", meta, map[string]map[string]string{redisKeyPrefix + "01": {"mapped|x": "{}"}}},
		{"bad record", meta, map[string]map[string]string{redisKeyPrefix + "01": {"mapped|0": "{"}}},
		{"bad next_id", map[string]string{"taken": "2025-03-01T12:00:00Z", "next_id": "-1"}, nil},
		{"bad taken", map[string]string{"taken": "yesterday", "next_id": "1"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeRedisHashes(tt.meta, tt.hashes)
			assert.Error(t, err)
		})
	}
}
