package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agridata-my/mygap-scraper-server/internal/logger"
	"github.com/agridata-my/mygap-scraper-server/internal/scrape"
)

const (
	// filePrefix is the common prefix of all snapshot files
	filePrefix = "mygap_data_"

	// timestampLayout is the filename timestamp suffix layout
	timestampLayout = "20060102_150405"
)

// snapshotFile is the on-disk snapshot shape: records under a "data" key
// with extraction metadata alongside. The loader also accepts a bare
// record array (see scrape.DecodeRecords).
type snapshotFile struct {
	Metadata snapshotMetadata `json:"metadata"`
	Data     []scrape.Record  `json:"data"`
}

type snapshotMetadata struct {
	ExtractedAt  string   `json:"extracted_at"`
	Timestamp    string   `json:"timestamp"`
	TotalRecords int      `json:"total_records"`
	Fields       []string `json:"fields"`
}

// Store is a file-based snapshot store. One file is written per snapshot;
// the latest snapshot for a source is the matching file with the most
// recent modification time. No cross-process locking is performed, so
// concurrent writers for the same source race and the last writer wins.
type Store struct {
	dir string

	now func() time.Time
}

// New creates a snapshot store rooted at dir, creating it if needed
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

// prefixFor returns the filename prefix for a source
func prefixFor(src scrape.Source) string {
	return filePrefix + strings.ToLower(string(src)) + "_"
}

// Latest locates the most recent snapshot for a source by file
// modification time. A missing, unreadable, or corrupt snapshot is
// reported as a miss (ok == false), never as an error: corrupt cache
// degrades to a refetch.
func (s *Store) Latest(src scrape.Source) (*Snapshot, bool) {
	path, mtime, ok := s.latestFile(src)
	if !ok {
		return nil, false
	}

	snap, err := s.load(src, path, mtime)
	if err != nil {
		logger.Warnf("Discarding unreadable snapshot %s: %v", filepath.Base(path), err)
		return nil, false
	}
	return snap, true
}

// LatestRaw returns the raw bytes and filename of the most recent snapshot
// file for a source, for download-style access
func (s *Store) LatestRaw(src scrape.Source) ([]byte, string, bool) {
	path, _, ok := s.latestFile(src)
	if !ok {
		return nil, "", false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warnf("Failed to read snapshot %s: %v", filepath.Base(path), err)
		return nil, "", false
	}
	return data, filepath.Base(path), true
}

// latestFile scans for the source's snapshot files and picks the one with
// the most recent modification time
func (s *Store) latestFile(src scrape.Source) (string, time.Time, bool) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf("Failed to scan snapshot directory %s: %v", s.dir, err)
		}
		return "", time.Time{}, false
	}

	prefix := prefixFor(src)
	var (
		latestPath  string
		latestMtime time.Time
	)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if latestPath == "" || info.ModTime().After(latestMtime) {
			latestPath = filepath.Join(s.dir, name)
			latestMtime = info.ModTime()
		}
	}
	if latestPath == "" {
		return "", time.Time{}, false
	}
	return latestPath, latestMtime, true
}

// load reads and parses one snapshot file. The capture time is taken from
// the embedded metadata when present, falling back to the file mtime.
func (*Store) load(src scrape.Source, path string, mtime time.Time) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	capturedAt := mtime
	var file snapshotFile
	if err := json.Unmarshal(data, &file); err == nil && file.Data != nil {
		if t, perr := time.Parse(time.RFC3339, file.Metadata.ExtractedAt); perr == nil {
			capturedAt = t
		}
		return &Snapshot{Source: src, CapturedAt: capturedAt, Records: file.Data}, nil
	}

	// Fall back to the bare record array shape
	records, err := scrape.DecodeRecords(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return &Snapshot{Source: src, CapturedAt: capturedAt, Records: records}, nil
}

// Write persists a new snapshot for a source, stamped with the current
// time. The write is atomic: content goes to a temp file first and is
// renamed into place, so readers never observe a partial snapshot.
func (s *Store) Write(_ context.Context, src scrape.Source, records []scrape.Record) (*Snapshot, error) {
	capturedAt := s.now()
	filename := prefixFor(src) + capturedAt.Format(timestampLayout) + ".json"
	filePath := filepath.Join(s.dir, filename)

	file := snapshotFile{
		Metadata: snapshotMetadata{
			ExtractedAt:  capturedAt.Format(time.RFC3339),
			Timestamp:    capturedAt.Format(timestampLayout),
			TotalRecords: len(records),
			Fields:       src.Fields(),
		},
		Data: records,
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot data: %w", err)
	}

	// Write to temporary file first for atomic operation
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to write temporary snapshot file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tempPath, filePath); err != nil {
		_ = os.Remove(tempPath)
		return nil, fmt.Errorf("failed to rename snapshot file: %w", err)
	}

	return &Snapshot{Source: src, CapturedAt: capturedAt, Records: records}, nil
}

// WriteSnapshot implements scrape.SnapshotWriter for the fetch-persist path
func (s *Store) WriteSnapshot(ctx context.Context, src scrape.Source, records []scrape.Record) error {
	_, err := s.Write(ctx, src, records)
	return err
}
