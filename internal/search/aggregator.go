// Package search runs a query against one source or fans it out to every
// registered source, isolating per-source failures.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/notaspider/comick-source-api/internal/metrics"
	"github.com/notaspider/comick-source-api/internal/scraper"
)

// ErrEmptyQuery is returned for blank queries.
var ErrEmptyQuery = errors.New("search query is required")

// Registry is the subset of scraper.Registry the aggregator needs.
type Registry interface {
	All() []scraper.Adapter
	ResolveByName(name string) (scraper.Adapter, error)
	Names() []string
}

// SingleResult is the outcome of a single-source search.
type SingleResult struct {
	Source  string                 `json:"source"`
	Results []scraper.SearchResult `json:"results"`
}

// SourceResults is one block of a fan-out search. Error is set, and Results
// empty, when that source failed.
type SourceResults struct {
	Source  string                 `json:"source"`
	Results []scraper.SearchResult `json:"results"`
	Error   string                 `json:"error,omitempty"`
}

// UnknownSourceError lists the valid source names.
type UnknownSourceError struct {
	Name      string
	Available []string
}

func (e *UnknownSourceError) Error() string {
	return "Unsupported source. Available sources: " + strings.Join(e.Available, ", ")
}

func (e *UnknownSourceError) Unwrap() error {
	return scraper.ErrNotFound
}

// Aggregator dispatches searches to adapters.
type Aggregator struct {
	registry Registry
	logger   *zap.Logger
}

// New builds an Aggregator.
func New(registry Registry, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{registry: registry, logger: logger}
}

// IsAll reports whether source selects the fan-out mode.
func IsAll(source string) bool {
	s := strings.TrimSpace(source)
	return s == "" || strings.EqualFold(s, "all")
}

// SearchOne resolves source by name and propagates the adapter error unchanged.
func (a *Aggregator) SearchOne(ctx context.Context, source, query string) (SingleResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return SingleResult{}, ErrEmptyQuery
	}
	adapter, err := a.registry.ResolveByName(source)
	if err != nil {
		return SingleResult{}, &UnknownSourceError{Name: source, Available: a.registry.Names()}
	}
	results, err := adapter.Search(ctx, query)
	if err != nil {
		metrics.ObserveSearch(adapter.Descriptor().SourceID, "error")
		return SingleResult{}, err
	}
	metrics.ObserveSearch(adapter.Descriptor().SourceID, "success")
	return SingleResult{Source: adapter.Name(), Results: nonNil(results)}, nil
}

// SearchAll queries every adapter concurrently. The result holds one entry
// per adapter in registration order, whatever their individual outcomes.
func (a *Aggregator) SearchAll(ctx context.Context, query string) ([]SourceResults, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	adapters := a.registry.All()
	out := make([]SourceResults, len(adapters))

	var wg sync.WaitGroup
	for i, adapter := range adapters {
		wg.Add(1)
		go func(i int, adapter scraper.Adapter) {
			defer wg.Done()
			out[i] = a.searchIsolated(ctx, adapter, query)
		}(i, adapter)
	}
	wg.Wait()
	return out, nil
}

func (a *Aggregator) searchIsolated(ctx context.Context, adapter scraper.Adapter, query string) (res SourceResults) {
	name := adapter.Name()
	sourceID := adapter.Descriptor().SourceID
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("search panicked", zap.String("source", name), zap.Any("panic", r))
			metrics.ObserveSearch(sourceID, "panic")
			res = SourceResults{Source: name, Results: []scraper.SearchResult{}, Error: fmt.Sprintf("search panicked: %v", r)}
		}
	}()

	results, err := adapter.Search(ctx, query)
	if err != nil {
		a.logger.Warn("search failed", zap.String("source", name), zap.Error(err))
		metrics.ObserveSearch(sourceID, "error")
		return SourceResults{Source: name, Results: []scraper.SearchResult{}, Error: errorMessage(err)}
	}
	metrics.ObserveSearch(sourceID, "success")
	return SourceResults{Source: name, Results: nonNil(results)}
}

func errorMessage(err error) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "Search failed"
}

func nonNil(results []scraper.SearchResult) []scraper.SearchResult {
	if results == nil {
		return []scraper.SearchResult{}
	}
	return results
}
