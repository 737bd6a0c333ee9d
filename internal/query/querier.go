package query

import (
	"FlowSpaceFirewall/internal/config"
	"FlowSpaceFirewall/internal/exporter"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// HistoryRequest selects the exported slice records to summarize.
type HistoryRequest struct {
	SliceName string
	DPID      string
	EndTime   *time.Time
}

// SliceSummary is the latest byte and packet totals of a slice on a switch.
type SliceSummary struct {
	SliceName    string `json:"slice"`
	DPID         string `json:"dpid"`
	TotalBytes   uint64 `json:"total_bytes"`
	TotalPackets uint64 `json:"total_packets"`
	FlowCount    uint64 `json:"flow_count"`
}

// Querier defines the interface for querying exported slice history.
type Querier interface {
	SliceHistory(ctx context.Context, req HistoryRequest) ([]SliceSummary, error)
}

// clickhouseQuerier implements the Querier interface for ClickHouse.
type clickhouseQuerier struct {
	conn driver.Conn
}

// NewClickHouseQuerier creates a new querier for ClickHouse.
func NewClickHouseQuerier(cfg config.ClickHouseConfig) (Querier, error) {
	conn, err := exporter.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	return &clickhouseQuerier{conn: conn}, nil
}

// Close closes the ClickHouse connection.
func (q *clickhouseQuerier) Close() error {
	return q.conn.Close()
}

// buildHistoryQuery takes the latest counters of every exported record and
// sums them per slice and switch.
func buildHistoryQuery(req HistoryRequest) (string, []interface{}) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
		SELECT
			SliceName,
			DPID,
			SUM(LatestByteCount) AS TotalBytes,
			SUM(LatestPacketCount) AS TotalPackets,
			COUNT(*) AS FlowCount
		FROM (
			SELECT
				SliceName,
				DPID,
				argMax(ByteCount, Timestamp) AS LatestByteCount,
				argMax(PacketCount, Timestamp) AS LatestPacketCount
			FROM flow_stats
	`)

	var whereClauses []string
	args := []interface{}{}

	if req.SliceName != "" {
		whereClauses = append(whereClauses, "SliceName = ?")
		args = append(args, req.SliceName)
	}
	if req.DPID != "" {
		whereClauses = append(whereClauses, "DPID = ?")
		args = append(args, req.DPID)
	}
	if req.EndTime != nil {
		whereClauses = append(whereClauses, "Timestamp <= ?")
		args = append(args, *req.EndTime)
	}

	if len(whereClauses) > 0 {
		queryBuilder.WriteString(" WHERE " + strings.Join(whereClauses, " AND "))
	}

	queryBuilder.WriteString(`
			GROUP BY SliceName, DPID, RecordID
		)
		GROUP BY SliceName, DPID
		ORDER BY SliceName, DPID
	`)
	return queryBuilder.String(), args
}

// SliceHistory returns the per-switch totals of the requested slice.
func (q *clickhouseQuerier) SliceHistory(ctx context.Context, req HistoryRequest) ([]SliceSummary, error) {
	query, args := buildHistoryQuery(req)
	rows, err := q.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	summaries := []SliceSummary{}
	for rows.Next() {
		var s SliceSummary
		if err := rows.Scan(&s.SliceName, &s.DPID, &s.TotalBytes, &s.TotalPackets, &s.FlowCount); err != nil {
			return nil, fmt.Errorf("failed to scan history result: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history result: %w", err)
	}
	return summaries, nil
}
