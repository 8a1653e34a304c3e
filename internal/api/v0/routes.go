// Package v0 provides the REST API handlers for MyGAP data access.
package v0

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agridata-my/mygap-scraper-server/internal/logger"
	"github.com/agridata-my/mygap-scraper-server/internal/scheduler"
	"github.com/agridata-my/mygap-scraper-server/internal/scrape"
	"github.com/agridata-my/mygap-scraper-server/internal/service"
	"github.com/agridata-my/mygap-scraper-server/internal/store"
	"github.com/agridata-my/mygap-scraper-server/internal/versions"
)

// DataService is the read-path surface the data routes need
type DataService interface {
	// GetOrRefresh returns the current snapshot for a source
	GetOrRefresh(ctx context.Context, src scrape.Source) (*store.Snapshot, error)

	// FieldStats computes field completion statistics for a source
	FieldStats(ctx context.Context, src scrape.Source) (*service.SourceStats, error)
}

// SchedulerService is the scheduler surface the trigger and status routes need
type SchedulerService interface {
	// Status returns the scheduler state
	Status() scheduler.Status

	// TriggerFullRefresh dispatches a full refresh in the background
	TriggerFullRefresh()

	// TriggerSingleSource validates and dispatches a single-source refresh
	TriggerSingleSource(name string) (scrape.Source, error)
}

// SnapshotStore is the raw snapshot access the download route needs
type SnapshotStore interface {
	// LatestRaw returns the raw bytes and filename of the latest snapshot
	LatestRaw(src scrape.Source) ([]byte, string, bool)
}

// DataResponse is the standard payload for data reads
type DataResponse struct {
	Success      bool            `json:"success"`
	Message      string          `json:"message"`
	TotalRecords int             `json:"total_records"`
	Timestamp    string          `json:"timestamp"`
	Data         []scrape.Record `json:"data"`
}

// StatsResponse is the payload for field completion statistics
type StatsResponse struct {
	Success         bool                `json:"success"`
	Message         string              `json:"message"`
	TotalRecords    int                 `json:"total_records"`
	Timestamp       string              `json:"timestamp"`
	FieldStatistics []service.FieldStat `json:"field_statistics"`
}

// SchedulerStatusResponse is the payload for the scheduler status query
type SchedulerStatusResponse struct {
	Success           bool     `json:"success"`
	Message           string   `json:"message"`
	Timestamp         string   `json:"timestamp"`
	SchedulerRunning  bool     `json:"scheduler_running"`
	NextRunTime       *string  `json:"next_run_time,omitempty"`
	AvailableScrapers []string `json:"available_scrapers"`
}

// ManualScrapingResponse acknowledges a manual trigger dispatch
type ManualScrapingResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	StartedAt string `json:"started_at"`
	Scraper   string `json:"scraper,omitempty"`
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// dataRoutes serves the data read endpoints
type dataRoutes struct {
	data      DataService
	snapshots SnapshotStore
}

// DataRouter creates the router for the data endpoints
func DataRouter(data DataService, snapshots SnapshotStore) http.Handler {
	routes := &dataRoutes{data: data, snapshots: snapshots}

	r := chi.NewRouter()
	r.Get("/data/{source}", routes.getData)
	r.Get("/download/{source}", routes.downloadSnapshot)
	r.Get("/stats/{source}", routes.getStats)
	return r
}

// getData handles GET /mygap/data/{source}: fresh cache or live fetch
func (dr *dataRoutes) getData(w http.ResponseWriter, r *http.Request) {
	src, ok := parseSourceParam(w, r)
	if !ok {
		return
	}

	snap, err := dr.data.GetOrRefresh(r.Context(), src)
	if err != nil {
		if errors.Is(err, service.ErrSourceUnavailable) {
			writeErrorResponse(w, fmt.Sprintf("Source %s unavailable and no fresh cache exists", src),
				http.StatusServiceUnavailable)
			return
		}
		logger.Errorf("Failed to get data for %s: %v", src, err)
		writeErrorResponse(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSONResponse(w, DataResponse{
		Success:      true,
		Message:      fmt.Sprintf("Successfully retrieved %d MyGAP %s certification records", len(snap.Records), src),
		TotalRecords: len(snap.Records),
		Timestamp:    snap.CapturedAt.Format(time.RFC3339),
		Data:         snap.Records,
	})
}

// downloadSnapshot handles GET /mygap/download/{source}: the raw latest
// snapshot file as an attachment
func (dr *dataRoutes) downloadSnapshot(w http.ResponseWriter, r *http.Request) {
	src, ok := parseSourceParam(w, r)
	if !ok {
		return
	}

	data, filename, ok := dr.snapshots.LatestRaw(src)
	if !ok {
		writeErrorResponse(w, fmt.Sprintf("No snapshot available for source %s", src), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// getStats handles GET /mygap/stats/{source}: field completion statistics
// computed over a non-persisting fetch
func (dr *dataRoutes) getStats(w http.ResponseWriter, r *http.Request) {
	src, ok := parseSourceParam(w, r)
	if !ok {
		return
	}

	stats, err := dr.data.FieldStats(r.Context(), src)
	if err != nil {
		if errors.Is(err, service.ErrSourceUnavailable) {
			writeErrorResponse(w, fmt.Sprintf("Source %s unavailable", src), http.StatusServiceUnavailable)
			return
		}
		logger.Errorf("Failed to compute stats for %s: %v", src, err)
		writeErrorResponse(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSONResponse(w, StatsResponse{
		Success:         true,
		Message:         fmt.Sprintf("Statistics for %d MyGAP %s certification records", stats.TotalRecords, src),
		TotalRecords:    stats.TotalRecords,
		Timestamp:       time.Now().Format(time.RFC3339),
		FieldStatistics: stats.Fields,
	})
}

// schedulerRoutes serves the scheduler status and trigger endpoints
type schedulerRoutes struct {
	sched SchedulerService
}

// SchedulerRouter creates the router for the scheduler endpoints
func SchedulerRouter(sched SchedulerService) http.Handler {
	routes := &schedulerRoutes{sched: sched}

	r := chi.NewRouter()
	r.Get("/status", routes.getStatus)
	r.Post("/run-now", routes.runNow)
	r.Post("/run-single/{source}", routes.runSingle)
	return r
}

// getStatus handles GET /scheduler/status
func (sr *schedulerRoutes) getStatus(w http.ResponseWriter, _ *http.Request) {
	status := sr.sched.Status()

	resp := SchedulerStatusResponse{
		Success:           true,
		Message:           "Scheduler status retrieved successfully",
		Timestamp:         time.Now().Format(time.RFC3339),
		SchedulerRunning:  status.Running,
		AvailableScrapers: status.AvailableSources,
	}
	if status.NextRun != nil {
		next := status.NextRun.Format(time.RFC3339)
		resp.NextRunTime = &next
	}

	writeJSONResponse(w, resp)
}

// runNow handles POST /scheduler/run-now: dispatches a full refresh and
// acknowledges immediately
func (sr *schedulerRoutes) runNow(w http.ResponseWriter, _ *http.Request) {
	sr.sched.TriggerFullRefresh()

	now := time.Now().Format(time.RFC3339)
	writeJSONStatus(w, http.StatusAccepted, ManualScrapingResponse{
		Success:   true,
		Message:   "Manual scraping of all data sources has been started in background",
		Timestamp: now,
		StartedAt: now,
	})
}

// runSingle handles POST /scheduler/run-single/{source}: validates the
// source synchronously, then dispatches its job
func (sr *schedulerRoutes) runSingle(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "source")

	src, err := sr.sched.TriggerSingleSource(name)
	if err != nil {
		writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	now := time.Now().Format(time.RFC3339)
	writeJSONStatus(w, http.StatusAccepted, ManualScrapingResponse{
		Success:   true,
		Message:   fmt.Sprintf("Manual scraping of %s data source has been started in background", src),
		Timestamp: now,
		StartedAt: now,
		Scraper:   string(src),
	})
}

// HealthRouter creates a router for the health and version endpoints
func HealthRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler)
	return r
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// versionHandler handles version information requests
func versionHandler(w http.ResponseWriter, _ *http.Request) {
	info := versions.GetVersionInfo()

	response := map[string]string{
		"version":    info.Version,
		"commit":     info.Commit,
		"build_date": info.BuildDate,
		"go_version": info.GoVersion,
		"platform":   info.Platform,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Errorf("Failed to encode version info: %v", err)
	}
}

// parseSourceParam resolves the {source} URL parameter, writing a 404 for
// unknown sources
func parseSourceParam(w http.ResponseWriter, r *http.Request) (scrape.Source, bool) {
	name := chi.URLParam(r, "source")
	src, err := scrape.ParseSource(name)
	if err != nil {
		writeErrorResponse(w, err.Error(), http.StatusNotFound)
		return "", false
	}
	return src, true
}

// writeJSONResponse writes a 200 JSON response with the given data
func writeJSONResponse(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

// writeJSONStatus writes a JSON response with the given status code
func writeJSONStatus(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("Failed to encode JSON response: %v", err)
	}
}

// writeErrorResponse writes a standardized error response
func writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	errorResp := ErrorResponse{
		Error: message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(errorResp); err != nil {
		logger.Errorf("Failed to encode error response: %v", err)
	}
}
