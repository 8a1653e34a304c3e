// Package scheduler owns the background refresh lifecycle: the recurring
// daily full refresh, manual triggers, and status reporting.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/agridata-my/mygap-scraper-server/internal/config"
	"github.com/agridata-my/mygap-scraper-server/internal/logger"
	"github.com/agridata-my/mygap-scraper-server/internal/scrape"
)

// Status is the scheduler state exposed through the status query
type Status struct {
	// Running reports whether the background loop is active
	Running bool `json:"running"`

	// NextRun is the due time of the next scheduled full refresh, absent
	// when the scheduler is stopped
	NextRun *time.Time `json:"next_run,omitempty"`

	// AvailableSources lists the registered source identifiers in batch order
	AvailableSources []string `json:"available_sources"`
}

// Scheduler runs the recurring daily refresh through a poll loop and
// dispatches manual triggers into a bounded job pool. Construct one per
// process and share it by reference; there is no package-level instance.
type Scheduler struct {
	registry     *scrape.Registry
	dailyAt      config.TimeOfDay
	sourceDelay  time.Duration
	pollInterval time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	nextRun time.Time

	jobLog    *JobLog
	manualSem *semaphore.Weighted
	now       func() time.Time
}

// New creates a scheduler for the registry using the given settings
func New(registry *scrape.Registry, cfg *config.Config) (*Scheduler, error) {
	dailyAt, err := config.ParseTimeOfDay(cfg.Scheduler.DailyRunAt)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		registry:     registry,
		dailyAt:      dailyAt,
		sourceDelay:  cfg.GetSourceDelay(),
		pollInterval: cfg.GetPollInterval(),
		jobLog:       NewJobLog(),
		manualSem:    semaphore.NewWeighted(int64(cfg.Scheduler.MaxManualJobs)),
		now:          time.Now,
	}, nil
}

// Start registers the recurring daily refresh and launches the background
// poll loop. Starting an already running scheduler logs a warning and
// leaves it unchanged.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		logger.Warn("Scheduler is already running")
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	s.nextRun = s.dailyAt.Next(s.now())

	logger.Infof("Scheduler started, daily refresh at %s (next run %s)",
		s.dailyAt, s.nextRun.Format(time.RFC3339))

	go s.runLoop(loopCtx)
}

// Stop cancels the poll loop, waits for it to exit, and clears the
// pending schedule. A batch already in progress runs to completion and
// in-flight fetches are not cancelled; only future polls stop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	logger.Info("Stopping scheduler...")
	cancel()
	<-done

	s.mu.Lock()
	s.running = false
	s.nextRun = time.Time{}
	s.mu.Unlock()
	logger.Info("Scheduler stopped")
}

// runLoop polls for due jobs until the context is cancelled. A failure in
// one iteration is logged and followed by an extended backoff wait; the
// loop itself never terminates on error.
func (s *Scheduler) runLoop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	retryWait := backoff.NewExponentialBackOff()
	retryWait.InitialInterval = time.Minute
	retryWait.MaxInterval = 10 * time.Minute

	for {
		select {
		case <-ticker.C:
			if err := s.runPending(); err != nil {
				logger.Errorf("Error in scheduler loop: %v", err)
				select {
				case <-time.After(retryWait.NextBackOff()):
				case <-ctx.Done():
					return
				}
			} else {
				retryWait.Reset()
			}
		case <-ctx.Done():
			return
		}
	}
}

// runPending executes the daily batch when it is due. Panics from a
// misbehaving fetcher are converted to an error so the loop survives them.
func (s *Scheduler) runPending() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in scheduled batch: %v", r)
		}
	}()

	s.mu.Lock()
	due := !s.nextRun.IsZero() && !s.now().Before(s.nextRun)
	if due {
		s.nextRun = s.dailyAt.Next(s.now())
	}
	s.mu.Unlock()

	if !due {
		return nil
	}

	// Batches use their own context so that stopping the scheduler never
	// cancels a run already in progress.
	s.RunAllSources(context.Background())
	return nil
}

// RunAllSources performs one full pass over the fixed source set in batch
// order. A failure in one source is recorded and never aborts the batch;
// every run yields exactly one JobResult per source. A fixed delay is
// inserted between sources to bound the request rate.
func (s *Scheduler) RunAllSources(ctx context.Context) *BatchSummary {
	logger.Info("Starting scraping of all data sources")

	summary := &BatchSummary{
		RunID:     uuid.New(),
		StartedAt: s.now(),
	}

	for i, src := range s.registry.Sources() {
		if i > 0 && s.sourceDelay > 0 {
			time.Sleep(s.sourceDelay)
		}

		result := s.runScrapingJob(ctx, src)
		summary.Results = append(summary.Results, result)
		if result.Success {
			summary.Successful = append(summary.Successful, src)
		} else {
			summary.Failed = append(summary.Failed, src)
		}
	}

	summary.FinishedAt = s.now()
	summary.TotalDuration = summary.FinishedAt.Sub(summary.StartedAt)
	s.jobLog.Record(summary)

	logger.Infof("Scraping batch %s completed in %s: %d succeeded, %d failed",
		summary.RunID, summary.TotalDuration.Round(time.Millisecond),
		len(summary.Successful), len(summary.Failed))
	if len(summary.Failed) > 0 {
		logger.Warnf("Failed sources: %v", summary.Failed)
	}

	return summary
}

// runScrapingJob runs the fetch-and-persist job for one source and
// records its outcome
func (s *Scheduler) runScrapingJob(ctx context.Context, src scrape.Source) JobResult {
	logger.Infof("Starting scraping job for %s", src)
	start := s.now()

	result := JobResult{
		Source:    src,
		Timestamp: start,
	}

	fetcher, err := s.registry.Fetcher(src)
	if err != nil {
		result.Duration = s.now().Sub(start)
		result.Error = err.Error()
		logger.Errorf("Scraping job for %s failed: %v", src, err)
		return result
	}

	records, err := fetcher.Fetch(ctx, true)
	result.Duration = s.now().Sub(start)
	if err != nil {
		result.Error = err.Error()
		logger.Errorf("Scraping job for %s failed after %s: %v",
			src, result.Duration.Round(time.Millisecond), err)
		return result
	}

	result.Success = true
	result.RecordCount = len(records)
	logger.Infof("Completed %s scraping: %d records in %s",
		src, result.RecordCount, result.Duration.Round(time.Millisecond))
	return result
}

// TriggerFullRefresh dispatches a full batch into the bounded manual job
// pool and returns immediately. The outcome is observable through the job
// log and the process logs, not through this call.
func (s *Scheduler) TriggerFullRefresh() {
	logger.Info("Manual full refresh requested")
	go func() {
		if err := s.manualSem.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer s.manualSem.Release(1)
		s.RunAllSources(context.Background())
	}()
}

// TriggerSingleSource validates the source name and dispatches its
// scraping job into the bounded manual job pool. Unknown names fail
// immediately with scrape.ErrUnknownSource and nothing is dispatched.
func (s *Scheduler) TriggerSingleSource(name string) (scrape.Source, error) {
	src, err := scrape.ParseSource(name)
	if err != nil {
		return "", err
	}

	logger.Infof("Manual refresh requested for %s", src)
	go func() {
		if err := s.manualSem.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer s.manualSem.Release(1)
		s.runScrapingJob(context.Background(), src)
	}()
	return src, nil
}

// NextRunTime returns the due time of the next scheduled full refresh.
// ok is false when nothing is scheduled (the scheduler is stopped).
func (s *Scheduler) NextRunTime() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nextRun.IsZero() {
		return time.Time{}, false
	}
	return s.nextRun, true
}

// Running reports whether the background loop is active
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Status returns the scheduler state for the status query
func (s *Scheduler) Status() Status {
	status := Status{
		Running:          s.Running(),
		AvailableSources: s.registry.SourceStrings(),
	}
	if next, ok := s.NextRunTime(); ok {
		status.NextRun = &next
	}
	return status
}

// LastBatch returns the most recent batch summary, or nil if no batch has
// run yet
func (s *Scheduler) LastBatch() *BatchSummary {
	return s.jobLog.LastBatch()
}
