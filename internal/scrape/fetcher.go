package scrape

import (
	"context"
	"fmt"
	"strings"

	"github.com/agridata-my/mygap-scraper-server/internal/httpclient"
	"github.com/agridata-my/mygap-scraper-server/internal/logger"
)

// httpFetcher fetches records for one source from its listing endpoint
type httpFetcher struct {
	source   Source
	endpoint string
	client   httpclient.Client
	writer   SnapshotWriter
}

// NewHTTPFetcher creates a fetcher that retrieves records from the given
// endpoint and persists them through the writer when asked to.
func NewHTTPFetcher(source Source, endpoint string, client httpclient.Client, writer SnapshotWriter) Fetcher {
	return &httpFetcher{
		source:   source,
		endpoint: endpoint,
		client:   client,
		writer:   writer,
	}
}

// Fetch retrieves the source's records. When persist is true the records
// are written to the snapshot store before returning.
func (f *httpFetcher) Fetch(ctx context.Context, persist bool) ([]Record, error) {
	body, err := f.client.Get(ctx, f.endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", f.source, err)
	}

	records, err := DecodeRecords(body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", f.source, err)
	}

	// Drop rows that carry no data at all, matching the extraction behavior
	records = dropEmptyRecords(records)

	if persist {
		if err := f.writer.WriteSnapshot(ctx, f.source, records); err != nil {
			return nil, fmt.Errorf("persist %s snapshot: %w", f.source, err)
		}
		logger.Infof("Persisted %d records for source %s", len(records), f.source)
	}

	return records, nil
}

// dropEmptyRecords removes records whose fields are all empty
func dropEmptyRecords(records []Record) []Record {
	out := records[:0]
	for _, rec := range records {
		hasData := false
		for _, v := range rec {
			if v != "" {
				hasData = true
				break
			}
		}
		if hasData {
			out = append(out, rec)
		}
	}
	return out
}

// EndpointFor returns the extractor endpoint for a source under the given
// base URL. The extractor service owns the actual MyGAP page scraping and
// exposes the results as JSON record arrays.
func EndpointFor(baseURL string, src Source) string {
	return fmt.Sprintf("%s/mygap/%s", strings.TrimRight(baseURL, "/"), strings.ToLower(string(src)))
}

// NewHTTPRegistry binds every source to an HTTP fetcher against the
// extractor service at baseURL
func NewHTTPRegistry(baseURL string, client httpclient.Client, writer SnapshotWriter) (*Registry, error) {
	fetchers := make(map[Source]Fetcher, len(allSources))
	for _, src := range allSources {
		fetchers[src] = NewHTTPFetcher(src, EndpointFor(baseURL, src), client, writer)
	}
	return NewRegistry(fetchers)
}
