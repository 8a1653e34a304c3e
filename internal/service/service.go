// Package service implements the cache-or-fetch read path for source data.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/agridata-my/mygap-scraper-server/internal/logger"
	"github.com/agridata-my/mygap-scraper-server/internal/scrape"
	"github.com/agridata-my/mygap-scraper-server/internal/store"
)

// ErrSourceUnavailable is returned when no fresh cache exists and the
// source fetch failed
var ErrSourceUnavailable = errors.New("source unavailable")

// SnapshotStore is the cache lookup surface the service needs
type SnapshotStore interface {
	Latest(src scrape.Source) (*store.Snapshot, bool)
}

// DataService serves source reads from cache while fresh, refreshing
// through the source's fetch capability otherwise
type DataService struct {
	registry  *scrape.Registry
	snapshots SnapshotStore
	threshold time.Duration

	group singleflight.Group
	now   func() time.Time
}

// New creates a DataService with the given staleness threshold
func New(registry *scrape.Registry, snapshots SnapshotStore, threshold time.Duration) *DataService {
	return &DataService{
		registry:  registry,
		snapshots: snapshots,
		threshold: threshold,
		now:       time.Now,
	}
}

// GetOrRefresh returns the current snapshot for a source. A cached
// snapshot younger than the threshold is returned without any network
// access; otherwise the source is fetched with persistence and the newly
// written snapshot returned. When the fetch fails, ErrSourceUnavailable is
// returned even if a stale snapshot exists: staleness is never tolerated
// past the threshold.
//
// Concurrent callers for the same source share a single in-flight fetch.
func (s *DataService) GetOrRefresh(ctx context.Context, src scrape.Source) (*store.Snapshot, error) {
	if snap, ok := s.snapshots.Latest(src); ok && snap.Fresh(s.threshold, s.now()) {
		logger.Debugf("Serving %s from cache (age %s)", src, snap.Age(s.now()).Round(time.Second))
		return snap, nil
	}

	result, err, _ := s.group.Do(string(src), func() (any, error) {
		return s.refresh(ctx, src)
	})
	if err != nil {
		return nil, err
	}
	return result.(*store.Snapshot), nil
}

// refresh fetches the source with persistence and returns the written
// snapshot. Runs at most once per source at a time via the single-flight
// group.
func (s *DataService) refresh(ctx context.Context, src scrape.Source) (*store.Snapshot, error) {
	// Re-check the cache: a concurrent refresh may have completed while
	// this call waited its turn.
	if snap, ok := s.snapshots.Latest(src); ok && snap.Fresh(s.threshold, s.now()) {
		return snap, nil
	}

	fetcher, err := s.registry.Fetcher(src)
	if err != nil {
		return nil, err
	}

	logger.Infof("Cache for %s is stale or missing, fetching fresh data", src)
	records, err := fetcher.Fetch(ctx, true)
	if err != nil {
		logger.Errorf("Fetch for %s failed: %v", src, err)
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, src, err)
	}

	// The fetch path wrote the snapshot; read it back so the caller sees
	// exactly what was persisted.
	if snap, ok := s.snapshots.Latest(src); ok {
		return snap, nil
	}

	// The store could not return what was just written; serve the fetched
	// records directly rather than failing the read.
	logger.Warnf("Snapshot for %s not readable after fetch, serving fetched records", src)
	return &store.Snapshot{Source: src, CapturedAt: s.now(), Records: records}, nil
}

// FieldStat describes completion of a single field across all records
type FieldStat struct {
	FieldName            string  `json:"field_name"`
	CompletedCount       int     `json:"completed_count"`
	TotalCount           int     `json:"total_count"`
	CompletionPercentage float64 `json:"completion_percentage"`
}

// SourceStats holds field completion statistics for one source
type SourceStats struct {
	Source       scrape.Source `json:"source"`
	TotalRecords int           `json:"total_records"`
	Fields       []FieldStat   `json:"field_statistics"`
}

// FieldStats fetches the source without persistence and computes per-field
// completion rates over the result
func (s *DataService) FieldStats(ctx context.Context, src scrape.Source) (*SourceStats, error) {
	fetcher, err := s.registry.Fetcher(src)
	if err != nil {
		return nil, err
	}

	records, err := fetcher.Fetch(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, src, err)
	}

	return computeFieldStats(src, records), nil
}

// computeFieldStats counts non-empty values per schema field
func computeFieldStats(src scrape.Source, records []scrape.Record) *SourceStats {
	total := len(records)
	fields := src.Fields()
	stats := make([]FieldStat, 0, len(fields))
	for _, field := range fields {
		completed := 0
		for _, rec := range records {
			if strings.TrimSpace(rec[field]) != "" {
				completed++
			}
		}
		pct := 0.0
		if total > 0 {
			pct = math.Round(float64(completed)/float64(total)*1000) / 10
		}
		stats = append(stats, FieldStat{
			FieldName:            field,
			CompletedCount:       completed,
			TotalCount:           total,
			CompletionPercentage: pct,
		})
	}
	return &SourceStats{Source: src, TotalRecords: total, Fields: stats}
}
