// Package scrape defines the fixed set of MyGAP data sources and the fetch
// capability bound to each of them.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownSource is returned when a source name does not match any of the
// fixed enumerated sources.
var ErrUnknownSource = errors.New("unknown source")

// Source identifies one of the five fixed MyGAP data sources
type Source string

// The fixed source set. The declaration order is the batch execution order.
const (
	// SourceTBM is the TBM (young rubber plantation) certification source
	SourceTBM Source = "TBM"

	// SourcePF is the PF (plantation farm) certification source
	SourcePF Source = "PF"

	// SourceAM is the AM (apiary) certification source
	SourceAM Source = "AM"

	// SourceOrganic is the myOrganic certification source
	SourceOrganic Source = "Organic"

	// SourceTanaman is the Tanaman (crops) certification source
	SourceTanaman Source = "Tanaman"
)

// allSources is the canonical ordered source list
var allSources = []Source{SourceTBM, SourcePF, SourceAM, SourceOrganic, SourceTanaman}

// AllSources returns the fixed source set in its stable batch order
func AllSources() []Source {
	out := make([]Source, len(allSources))
	copy(out, allSources)
	return out
}

// ParseSource resolves a source name to a Source. Matching is
// case-insensitive; unknown names return ErrUnknownSource.
func ParseSource(name string) (Source, error) {
	for _, src := range allSources {
		if strings.EqualFold(name, string(src)) {
			return src, nil
		}
	}
	return "", fmt.Errorf("%w: %q (valid sources: %s)", ErrUnknownSource, name, sourceNames())
}

func sourceNames() string {
	names := make([]string, len(allSources))
	for i, src := range allSources {
		names[i] = string(src)
	}
	return strings.Join(names, ", ")
}

// Record is a single extracted row: a mapping from field name to text value.
// All values are opaque text; an absent key and an empty value are equivalent.
type Record map[string]string

// Fetcher is the fetch capability bound to a source. When persist is true
// the implementation writes the fetched records to the snapshot store before
// returning; when false the records are returned without persistence.
type Fetcher interface {
	Fetch(ctx context.Context, persist bool) ([]Record, error)
}

// SnapshotWriter persists fetched records as a new snapshot. Implemented by
// the snapshot store; declared here so fetchers do not depend on it directly.
type SnapshotWriter interface {
	WriteSnapshot(ctx context.Context, source Source, records []Record) error
}

// Registry binds every source in the fixed set to its fetcher. Immutable
// after construction.
type Registry struct {
	fetchers map[Source]Fetcher
}

// NewRegistry creates a registry from a complete source-to-fetcher binding.
// Every source in the fixed set must be bound; unknown keys are rejected.
func NewRegistry(fetchers map[Source]Fetcher) (*Registry, error) {
	bound := make(map[Source]Fetcher, len(allSources))
	for src, f := range fetchers {
		if _, err := ParseSource(string(src)); err != nil {
			return nil, err
		}
		if f == nil {
			return nil, fmt.Errorf("source %s: fetcher must not be nil", src)
		}
		bound[src] = f
	}
	for _, src := range allSources {
		if _, ok := bound[src]; !ok {
			return nil, fmt.Errorf("source %s: no fetcher bound", src)
		}
	}
	return &Registry{fetchers: bound}, nil
}

// Fetcher returns the fetch capability for a source
func (r *Registry) Fetcher(src Source) (Fetcher, error) {
	f, ok := r.fetchers[src]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, src)
	}
	return f, nil
}

// Sources returns the registered sources in batch order
func (*Registry) Sources() []Source {
	return AllSources()
}

// SourceStrings returns the registered source names in batch order
func (r *Registry) SourceStrings() []string {
	sources := r.Sources()
	names := make([]string, len(sources))
	for i, src := range sources {
		names[i] = string(src)
	}
	return names
}
