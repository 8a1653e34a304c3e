package scheduler

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agridata-my/mygap-scraper-server/internal/scrape"
)

// JobResult records the outcome of one per-source scraping job within a
// batch. Immutable once created.
type JobResult struct {
	// Source is the source the job ran for
	Source scrape.Source `json:"source"`

	// Success reports whether the fetch completed
	Success bool `json:"success"`

	// RecordCount is the number of records fetched (0 on failure)
	RecordCount int `json:"record_count"`

	// Duration is how long the job took
	Duration time.Duration `json:"duration"`

	// Timestamp is when the job started
	Timestamp time.Time `json:"timestamp"`

	// Error holds the failure detail, empty on success
	Error string `json:"error,omitempty"`
}

// BatchSummary aggregates the results of one full pass over all sources
type BatchSummary struct {
	// RunID identifies this batch run
	RunID uuid.UUID `json:"run_id"`

	// StartedAt and FinishedAt bound the batch
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Results holds exactly one entry per registered source, in batch order
	Results []JobResult `json:"results"`

	// Successful and Failed list the source identifiers by outcome
	Successful []scrape.Source `json:"successful"`
	Failed     []scrape.Source `json:"failed"`

	// TotalDuration is the wall-clock duration of the whole batch
	TotalDuration time.Duration `json:"total_duration"`
}

// JobLog retains the summary of the most recent batch. Older batches are
// not kept; their outcomes live only in the log lines they produced.
type JobLog struct {
	mu        sync.Mutex
	lastBatch *BatchSummary
}

// NewJobLog creates an empty job log
func NewJobLog() *JobLog {
	return &JobLog{}
}

// Record replaces the retained batch summary
func (l *JobLog) Record(summary *BatchSummary) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastBatch = summary
}

// LastBatch returns the most recent batch summary, or nil if no batch has
// run yet
func (l *JobLog) LastBatch() *BatchSummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastBatch
}
