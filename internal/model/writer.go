package model

import (
	core "FlowSpaceFirewall/internal/core/model"
	"time"
)

// Writer defines a generic interface for persisting or exporting cache snapshots.
type Writer interface {
	// Write takes a snapshot and persists it under the given timestamp.
	Write(snapshot *core.Snapshot, timestamp string) error

	// GetInterval returns the configured snapshot interval for this writer.
	GetInterval() time.Duration
}

// Loader is implemented by writers that can read back the most recent
// snapshot they persisted.
type Loader interface {
	Load() (*core.Snapshot, error)
}
