package exporter

import (
	"FlowSpaceFirewall/internal/config"
	core "FlowSpaceFirewall/internal/core/model"
	"FlowSpaceFirewall/internal/factory"
	"FlowSpaceFirewall/internal/model"
	"FlowSpaceFirewall/internal/pkg/logging"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

var log = logging.WithComponent("exporter")

func init() {
	factory.RegisterWriter("clickhouse", func(def config.WriterDef, interval time.Duration) (model.Writer, error) {
		return NewClickHouseWriter(def.ClickHouse, interval)
	})
}

const createTableStatement = `
CREATE TABLE IF NOT EXISTS flow_stats (
    Timestamp   DateTime,
    DPID        String,
    SliceName   String,
    RecordID    UInt64,
    Match       String,
    Priority    UInt16,
    Cookie      UInt64,
    ByteCount   UInt64,
    PacketCount UInt64
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (SliceName, DPID, Timestamp);
`

// Row is one exported slice record.
type Row struct {
	Timestamp   time.Time
	DPID        string
	SliceName   string
	RecordID    uint64
	Match       string
	Priority    uint16
	Cookie      uint64
	ByteCount   uint64
	PacketCount uint64
}

// ClickHouseWriter exports the verified slice records of each snapshot to
// ClickHouse. It implements model.Writer.
type ClickHouseWriter struct {
	conn     driver.Conn
	interval time.Duration
}

// NewClickHouseWriter creates a new ClickHouse writer.
func NewClickHouseWriter(cfg config.ClickHouseConfig, interval time.Duration) (*ClickHouseWriter, error) {
	conn, err := Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), createTableStatement); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	log.Info("Successfully connected to ClickHouse and ensured table exists.")

	return &ClickHouseWriter{conn: conn, interval: interval}, nil
}

// GetInterval returns the configured snapshot interval for this writer.
func (w *ClickHouseWriter) GetInterval() time.Duration {
	return w.interval
}

// Close closes the ClickHouse connection.
func (w *ClickHouseWriter) Close() error {
	return w.conn.Close()
}

// Connect opens and pings a ClickHouse connection.
func Connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: false,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

// Rows flattens the verified, non-pending slice records of a snapshot into
// export rows, ordered by switch, slice and admission order.
func Rows(snap *core.Snapshot, at time.Time) []Row {
	switches := make([]core.SwitchID, 0, len(snap.Sliced))
	for sw := range snap.Sliced {
		switches = append(switches, sw)
	}
	sort.Slice(switches, func(i, j int) bool { return switches[i] < switches[j] })

	var rows []Row
	for _, sw := range switches {
		slices := snap.Sliced[sw]
		names := make([]string, 0, len(slices))
		for name := range slices {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			for _, r := range slices[name] {
				if !r.Verified || r.PendingDeletion {
					continue
				}
				rows = append(rows, Row{
					Timestamp:   at,
					DPID:        sw.String(),
					SliceName:   name,
					RecordID:    uint64(r.ID),
					Match:       r.Match.String(),
					Priority:    r.Priority,
					Cookie:      r.Cookie,
					ByteCount:   r.ByteCount,
					PacketCount: r.PacketCount,
				})
			}
		}
	}
	return rows
}

// Write inserts the snapshot's slice records into the flow_stats table.
func (w *ClickHouseWriter) Write(snap *core.Snapshot, timestamp string) error {
	snapshotTime, err := time.Parse("2006-01-02_15-04-05", timestamp)
	if err != nil {
		snapshotTime = snap.Taken
	}
	rows := Rows(snap, snapshotTime)
	if len(rows) == 0 {
		return nil // Nothing to write
	}

	batch, err := w.conn.PrepareBatch(context.Background(), "INSERT INTO flow_stats")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, r := range rows {
		err = batch.Append(
			r.Timestamp,
			r.DPID,
			r.SliceName,
			r.RecordID,
			r.Match,
			r.Priority,
			r.Cookie,
			r.ByteCount,
			r.PacketCount,
		)
		if err != nil {
			return fmt.Errorf("failed to append record to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	log.Infof("Wrote %d slice records to ClickHouse", len(rows))
	return nil
}
