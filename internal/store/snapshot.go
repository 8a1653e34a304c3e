// Package store provides persistent snapshot storage for scraped source data.
package store

import (
	"time"

	"github.com/agridata-my/mygap-scraper-server/internal/scrape"
)

// Snapshot is one persisted set of records for a source, stamped with the
// time it was captured. The most recently written snapshot is the current
// one for its source.
type Snapshot struct {
	// Source identifies the owning data source
	Source scrape.Source `json:"source"`

	// CapturedAt is when the records were extracted
	CapturedAt time.Time `json:"captured_at"`

	// Records is the ordered record sequence
	Records []scrape.Record `json:"records"`
}

// Age returns how old the snapshot is at the given instant
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.CapturedAt)
}

// Fresh reports whether the snapshot is younger than the threshold
func (s *Snapshot) Fresh(threshold time.Duration, now time.Time) bool {
	return s.Age(now) < threshold
}
