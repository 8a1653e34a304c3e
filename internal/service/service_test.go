package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agridata-my/mygap-scraper-server/internal/scrape"
	"github.com/agridata-my/mygap-scraper-server/internal/store"
)

// memStore is an in-memory SnapshotStore
type memStore struct {
	mu        sync.Mutex
	snapshots map[scrape.Source]*store.Snapshot
}

func newMemStore() *memStore {
	return &memStore{snapshots: make(map[scrape.Source]*store.Snapshot)}
}

func (m *memStore) Latest(src scrape.Source) (*store.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snapshots[src]
	return snap, ok
}

func (m *memStore) put(src scrape.Source, capturedAt time.Time, records []scrape.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[src] = &store.Snapshot{Source: src, CapturedAt: capturedAt, Records: records}
}

// countingFetcher serves canned records and counts invocations. When
// persisting it writes through to the memStore like the real fetch path.
type countingFetcher struct {
	mu      sync.Mutex
	calls   int
	records []scrape.Record
	err     error
	store   *memStore
	source  scrape.Source
	now     func() time.Time
	block   chan struct{}
}

func (f *countingFetcher) Fetch(_ context.Context, persist bool) ([]scrape.Record, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	if persist && f.store != nil {
		f.store.put(f.source, f.now(), f.records)
	}
	return f.records, nil
}

func (f *countingFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type testHarness struct {
	svc      *DataService
	store    *memStore
	fetchers map[scrape.Source]*countingFetcher
	now      time.Time
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ms := newMemStore()
	fetchers := make(map[scrape.Source]*countingFetcher)
	binding := make(map[scrape.Source]scrape.Fetcher)
	for _, src := range scrape.AllSources() {
		f := &countingFetcher{
			records: []scrape.Record{{"nama": "rec-" + string(src)}},
			store:   ms,
			source:  src,
			now:     func() time.Time { return now },
		}
		fetchers[src] = f
		binding[src] = f
	}

	registry, err := scrape.NewRegistry(binding)
	require.NoError(t, err)

	svc := New(registry, ms, 24*time.Hour)
	svc.now = func() time.Time { return now }

	return &testHarness{svc: svc, store: ms, fetchers: fetchers, now: now}
}

func TestGetOrRefreshServesFreshCacheWithoutFetch(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	cached := []scrape.Record{{"nama": "cached"}}
	h.store.put(scrape.SourceTBM, h.now.Add(-time.Hour), cached)

	snap, err := h.svc.GetOrRefresh(context.Background(), scrape.SourceTBM)
	require.NoError(t, err)
	assert.Equal(t, cached, snap.Records)
	assert.Zero(t, h.fetchers[scrape.SourceTBM].callCount())
}

func TestGetOrRefreshFetchesOnCacheMiss(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	snap, err := h.svc.GetOrRefresh(context.Background(), scrape.SourcePF)
	require.NoError(t, err)
	assert.Equal(t, []scrape.Record{{"nama": "rec-PF"}}, snap.Records)
	assert.Equal(t, 1, h.fetchers[scrape.SourcePF].callCount())

	// The fetch persisted a snapshot
	persisted, ok := h.store.Latest(scrape.SourcePF)
	require.True(t, ok)
	assert.Equal(t, snap.Records, persisted.Records)
}

func TestGetOrRefreshFetchesWhenStale(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.store.put(scrape.SourceAM, h.now.Add(-25*time.Hour), []scrape.Record{{"nama": "stale"}})

	snap, err := h.svc.GetOrRefresh(context.Background(), scrape.SourceAM)
	require.NoError(t, err)
	assert.Equal(t, []scrape.Record{{"nama": "rec-AM"}}, snap.Records)
	assert.Equal(t, 1, h.fetchers[scrape.SourceAM].callCount())
}

func TestGetOrRefreshFailsHardWhenStaleAndFetchFails(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.store.put(scrape.SourceTBM, h.now.Add(-48*time.Hour), []scrape.Record{{"nama": "stale"}})
	h.fetchers[scrape.SourceTBM].err = errors.New("extractor down")

	// A stale snapshot exists but is never served past the threshold
	_, err := h.svc.GetOrRefresh(context.Background(), scrape.SourceTBM)
	require.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Contains(t, err.Error(), "extractor down")
}

func TestGetOrRefreshFailsWhenMissAndFetchFails(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.fetchers[scrape.SourceOrganic].err = errors.New("timeout")

	_, err := h.svc.GetOrRefresh(context.Background(), scrape.SourceOrganic)
	require.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestGetOrRefreshCoalescesConcurrentFetches(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	block := make(chan struct{})
	h.fetchers[scrape.SourceTanaman].block = block

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*store.Snapshot, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.svc.GetOrRefresh(context.Background(), scrape.SourceTanaman)
		}(i)
	}

	// Let the callers pile up behind the single in-flight fetch
	require.Eventually(t, func() bool {
		return h.fetchers[scrape.SourceTanaman].callCount() >= 1
	}, time.Second, time.Millisecond)
	close(block)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].Records, results[i].Records)
	}
	assert.Equal(t, 1, h.fetchers[scrape.SourceTanaman].callCount())
}

func TestGetOrRefreshUnknownSource(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := h.svc.GetOrRefresh(context.Background(), scrape.Source("durian"))
	require.ErrorIs(t, err, scrape.ErrUnknownSource)
}

func TestFieldStats(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.fetchers[scrape.SourceTBM].records = []scrape.Record{
		{scrape.FieldCertificationNo: "MyGAP-1", scrape.FieldName: "Ahmad", scrape.FieldState: "Johor"},
		{scrape.FieldCertificationNo: "MyGAP-2", scrape.FieldName: "", scrape.FieldState: "Perak"},
		{scrape.FieldCertificationNo: "MyGAP-3", scrape.FieldName: "Siti", scrape.FieldState: "  "},
	}

	stats, err := h.svc.FieldStats(context.Background(), scrape.SourceTBM)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalRecords)
	require.Len(t, stats.Fields, len(scrape.SourceTBM.Fields()))

	byName := make(map[string]FieldStat)
	for _, fs := range stats.Fields {
		byName[fs.FieldName] = fs
	}

	assert.Equal(t, 3, byName[scrape.FieldCertificationNo].CompletedCount)
	assert.InDelta(t, 100.0, byName[scrape.FieldCertificationNo].CompletionPercentage, 0.01)

	assert.Equal(t, 2, byName[scrape.FieldName].CompletedCount)
	assert.InDelta(t, 66.7, byName[scrape.FieldName].CompletionPercentage, 0.01)

	// Whitespace-only values count as empty
	assert.Equal(t, 2, byName[scrape.FieldState].CompletedCount)

	assert.Equal(t, 0, byName[scrape.FieldFarmArea].CompletedCount)
	assert.InDelta(t, 0.0, byName[scrape.FieldFarmArea].CompletionPercentage, 0.01)

	// Stats fetches never persist
	_, ok := h.store.Latest(scrape.SourceTBM)
	assert.False(t, ok)
}

func TestFieldStatsEmptySource(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.fetchers[scrape.SourcePF].records = nil

	stats, err := h.svc.FieldStats(context.Background(), scrape.SourcePF)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalRecords)
	for _, fs := range stats.Fields {
		assert.Zero(t, fs.CompletedCount)
		assert.Zero(t, fs.CompletionPercentage)
	}
}

func TestFieldStatsFetchFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.fetchers[scrape.SourceAM].err = errors.New("extractor down")

	_, err := h.svc.FieldStats(context.Background(), scrape.SourceAM)
	require.ErrorIs(t, err, ErrSourceUnavailable)
}
