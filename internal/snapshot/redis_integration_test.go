//go:build integration

package snapshot

import (
	"FlowSpaceFirewall/internal/config"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run with: FSFW_REDIS_ADDR=127.0.0.1:6379 go test -tags integration ./internal/snapshot/
func TestRedisStore_WriteAndLoad(t *testing.T) {
	addr := os.Getenv("FSFW_REDIS_ADDR")
	if addr == "" {
		t.Skip("FSFW_REDIS_ADDR not set")
	}
	s, err := NewRedisStore(config.RedisConfig{Addr: addr, DB: 15}, time.Minute)
	require.NoError(t, err)
	defer s.Close()

	snap := sampleSnapshot()
	require.NoError(t, s.Write(snap, "2025-03-01_12-00-00"))

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, snap.Sliced, loaded.Sliced)
	assert.Equal(t, snap.Mapped, loaded.Mapped)
	assert.Equal(t, snap.NextID, loaded.NextID)
}
