package snapshot

import (
	"FlowSpaceFirewall/internal/config"
	core "FlowSpaceFirewall/internal/core/model"
	"FlowSpaceFirewall/internal/factory"
	"FlowSpaceFirewall/internal/model"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

func init() {
	factory.RegisterWriter("sqlite", func(def config.WriterDef, interval time.Duration) (model.Writer, error) {
		if def.SQLite.Path == "" {
			return nil, errors.New("sqlite writer requires path")
		}
		return NewSQLiteStore(def.SQLite.Path, interval)
	})
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS flow_records (
	dpid TEXT NOT NULL,
	kind TEXT NOT NULL,
	slice TEXT NOT NULL,
	position INTEGER NOT NULL,
	record_id INTEGER NOT NULL,
	record TEXT NOT NULL,
	PRIMARY KEY (dpid, kind, record_id)
);

CREATE TABLE IF NOT EXISTS snapshot_meta (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	taken TEXT NOT NULL,
	next_id INTEGER NOT NULL,
	written_at TEXT NOT NULL
);
`

// SQLiteStore keeps the latest snapshot in a SQLite database.
type SQLiteStore struct {
	db       *sql.DB
	interval time.Duration
}

// NewSQLiteStore opens (and creates) the database at path.
func NewSQLiteStore(path string, interval time.Duration) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return newSQLiteStore(db, interval)
}

// NewInMemorySQLiteStore creates a store backed by an in-memory database.
func NewInMemorySQLiteStore(interval time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	// Every connection would get its own empty database.
	db.SetMaxOpenConns(1)
	return newSQLiteStore(db, interval)
}

func newSQLiteStore(db *sql.DB, interval time.Duration) (*SQLiteStore, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &SQLiteStore{db: db, interval: interval}, nil
}

// GetInterval returns the configured snapshot interval for this writer.
func (s *SQLiteStore) GetInterval() time.Duration {
	return s.interval
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Write replaces the stored snapshot in one transaction.
func (s *SQLiteStore) Write(snap *core.Snapshot, timestamp string) error {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM flow_records"); err != nil {
		return fmt.Errorf("failed to clear records: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO flow_records (dpid, kind, slice, position, record_id, record) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range flatten(snap) {
		body, err := json.Marshal(r.Record)
		if err != nil {
			return fmt.Errorf("failed to marshal record %d: %w", r.Record.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, dpidKey(r.SwitchID), r.Kind, r.Slice, r.Position, int64(r.Record.ID), string(body)); err != nil {
			return fmt.Errorf("failed to insert record %d: %w", r.Record.ID, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshot_meta (id, taken, next_id, written_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET taken = excluded.taken, next_id = excluded.next_id, written_at = excluded.written_at`,
		snap.Taken.UTC().Format(time.RFC3339Nano), int64(snap.NextID), timestamp)
	if err != nil {
		return fmt.Errorf("failed to write snapshot metadata: %w", err)
	}
	return tx.Commit()
}

// Load reads the stored snapshot.
func (s *SQLiteStore) Load() (*core.Snapshot, error) {
	ctx := context.Background()

	var taken string
	var nextID int64
	err := s.db.QueryRowContext(ctx, "SELECT taken, next_id FROM snapshot_meta WHERE id = 1").Scan(&taken, &nextID)
	if err == sql.ErrNoRows {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot metadata: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT dpid, kind, slice, position, record FROM flow_records ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var flat []row
	for rows.Next() {
		var r row
		var dpid, body string
		if err := rows.Scan(&dpid, &r.Kind, &r.Slice, &r.Position, &body); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if r.SwitchID, err = parseDPIDKey(dpid); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(body), &r.Record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record: %w", err)
		}
		flat = append(flat, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	snap := assemble(flat)
	snap.NextID = core.RecordID(nextID)
	if snap.Taken, err = time.Parse(time.RFC3339Nano, taken); err != nil {
		return nil, fmt.Errorf("invalid snapshot time %q: %w", taken, err)
	}
	return snap, nil
}

func dpidKey(sw core.SwitchID) string {
	return fmt.Sprintf("%016x", uint64(sw))
}

func parseDPIDKey(s string) (core.SwitchID, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid dpid key %q: %w", s, err)
	}
	return core.SwitchID(v), nil
}
