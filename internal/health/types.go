// Package health probes every registered source concurrently, classifies
// each outcome and keeps the latest full cycle as a TTL-bounded snapshot.
package health

import (
	"context"
	"time"
)

// Status classifies a probe outcome.
type Status string

// Probe outcomes.
const (
	StatusHealthy    Status = "healthy"
	StatusCloudflare Status = "cloudflare"
	StatusTimeout    Status = "timeout"
	StatusError      Status = "error"
)

// Result is the outcome of probing one source. ResponseTime is in
// milliseconds and absent for timeouts.
type Result struct {
	Status       Status    `json:"status"`
	Message      string    `json:"message"`
	ResponseTime *int64    `json:"responseTime,omitempty"`
	LastChecked  time.Time `json:"lastChecked"`
}

// Snapshot is one complete probe cycle keyed by source id. Snapshots are
// replaced wholesale, never mutated after capture.
type Snapshot struct {
	Results   map[string]Result `json:"sources"`
	Timestamp time.Time         `json:"timestamp"`
}

// Age returns how old the snapshot is at now.
func (s Snapshot) Age(now time.Time) time.Duration {
	if age := now.Sub(s.Timestamp); age > 0 {
		return age
	}
	return 0
}

// Report is what callers of the health service receive. CacheAge is in whole
// seconds and only set for cached reads.
type Report struct {
	Sources  map[string]Result `json:"sources"`
	Cached   bool              `json:"cached"`
	CacheAge *int              `json:"cacheAge,omitempty"`
}

// Cache stores the most recent snapshot.
type Cache interface {
	Get(ctx context.Context) (Snapshot, bool, error)
	Set(ctx context.Context, snapshot Snapshot) error
	Invalidate(ctx context.Context) error
	IsStale(snapshot Snapshot, now time.Time) bool
}

// HistoryStore persists completed probe cycles.
type HistoryStore interface {
	RecordCycle(ctx context.Context, snapshot Snapshot) error
}

// HistoryEntry is one persisted probe result.
type HistoryEntry struct {
	CycleID  string `json:"cycleId"`
	SourceID string `json:"source"`
	Result
}

// HistoryReader lists persisted results for a source, newest first.
type HistoryReader interface {
	History(ctx context.Context, sourceID string, limit int) ([]HistoryEntry, error)
}
