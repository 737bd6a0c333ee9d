package snapshot

import (
	"FlowSpaceFirewall/internal/config"
	core "FlowSpaceFirewall/internal/core/model"
	"FlowSpaceFirewall/internal/factory"
	"FlowSpaceFirewall/internal/model"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// ErrNoSnapshot is returned by loaders when no snapshot has been written.
var ErrNoSnapshot = errors.New("no snapshot found")

// TimestampFormat names snapshot directories; it sorts chronologically.
const TimestampFormat = "2006-01-02_15-04-05"

const (
	cacheFileName   = "cache.dat"
	summaryFileName = "summary.json"
)

func init() {
	factory.RegisterWriter("gob", func(def config.WriterDef, interval time.Duration) (model.Writer, error) {
		if def.Gob.RootPath == "" {
			return nil, errors.New("gob writer requires root_path")
		}
		return NewGobWriter(def.Gob.RootPath, interval), nil
	})
}

// SummaryData holds the metadata for a snapshot.
type SummaryData struct {
	Switches      int    `json:"switches"`
	SliceRecords  int    `json:"slice_records"`
	FlowMappings  int    `json:"flow_mappings"`
	TotalBytes    uint64 `json:"total_bytes"`
	TotalPackets  uint64 `json:"total_packets"`
	NextID        uint64 `json:"next_id"`
	SnapshotTaken string `json:"snapshot_taken"`
	Timestamp     string `json:"timestamp"`
}

// Summarize computes the summary of a snapshot. Byte and packet totals
// cover the slice records only, since children are already folded into them.
func Summarize(snap *core.Snapshot) SummaryData {
	parents, children := snap.Counts()
	s := SummaryData{
		Switches:      len(snap.Switches()),
		SliceRecords:  parents,
		FlowMappings:  children,
		NextID:        uint64(snap.NextID),
		SnapshotTaken: snap.Taken.UTC().Format(time.RFC3339),
	}
	for _, slices := range snap.Sliced {
		for _, records := range slices {
			for _, r := range records {
				s.TotalBytes += r.ByteCount
				s.TotalPackets += r.PacketCount
			}
		}
	}
	return s
}

// GobWriter writes cache snapshots to disk in gob format, one timestamped
// directory per snapshot. It implements model.Writer and model.Loader.
type GobWriter struct {
	rootPath string
	interval time.Duration
}

// NewGobWriter creates a new gob snapshot writer.
func NewGobWriter(rootPath string, interval time.Duration) *GobWriter {
	return &GobWriter{rootPath: rootPath, interval: interval}
}

// GetInterval returns the configured snapshot interval for this writer.
func (w *GobWriter) GetInterval() time.Duration {
	return w.interval
}

// Write serializes the snapshot into <root>/<timestamp>/cache.dat and writes
// a summary.json next to it.
func (w *GobWriter) Write(snap *core.Snapshot, timestamp string) error {
	// 1. Create timestamped directory
	snapshotDir := filepath.Join(w.rootPath, timestamp)
	if err := os.MkdirAll(snapshotDir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	// 2. Write the cache state through a temporary file
	filePath := filepath.Join(snapshotDir, cacheFileName)
	tmpPath := filePath + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file '%s': %w", tmpPath, err)
	}
	if err := gob.NewEncoder(file).Encode(snap); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode snapshot to gob for file '%s': %w", tmpPath, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot file '%s': %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		return fmt.Errorf("failed to move snapshot into place: %w", err)
	}

	// 3. Write summary file
	summary := Summarize(snap)
	summary.Timestamp = time.Now().UTC().Format(time.RFC3339)
	summaryFile, err := os.Create(filepath.Join(snapshotDir, summaryFileName))
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer summaryFile.Close()

	jsonEncoder := json.NewEncoder(summaryFile)
	jsonEncoder.SetIndent("", "  ")
	if err := jsonEncoder.Encode(summary); err != nil {
		return fmt.Errorf("failed to encode summary to json: %w", err)
	}
	return nil
}

// Load reads the most recent snapshot under the root path.
func (w *GobWriter) Load() (*core.Snapshot, error) {
	entries, err := os.ReadDir(w.rootPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot directory: %w", err)
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))

	for _, dir := range dirs {
		filePath := filepath.Join(w.rootPath, dir, cacheFileName)
		file, err := os.Open(filePath)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to open snapshot file '%s': %w", filePath, err)
		}
		defer file.Close()

		var snap core.Snapshot
		if err := gob.NewDecoder(file).Decode(&snap); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot '%s': %w", filePath, err)
		}
		normalize(&snap)
		return &snap, nil
	}
	return nil, ErrNoSnapshot
}

// normalize replaces maps dropped by the encoding with empty ones.
func normalize(snap *core.Snapshot) {
	if snap.Sliced == nil {
		snap.Sliced = make(map[core.SwitchID]map[string][]core.FlowRecord)
	}
	if snap.Mapped == nil {
		snap.Mapped = make(map[core.SwitchID][]core.FlowRecord)
	}
}

// ReadSummary reads the summary.json of one snapshot directory.
func ReadSummary(dir string) (SummaryData, error) {
	var s SummaryData
	data, err := os.ReadFile(filepath.Join(dir, summaryFileName))
	if err != nil {
		return s, fmt.Errorf("failed to read summary: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to decode summary: %w", err)
	}
	return s, nil
}
