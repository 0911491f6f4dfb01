package health

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultTTL is how long a snapshot is served before a new cycle runs.
const DefaultTTL = 5 * time.Minute

// MemoryCache keeps the snapshot in process. Set swaps a pointer so readers
// never observe a partially written snapshot.
type MemoryCache struct {
	ttl  time.Duration
	snap atomic.Pointer[Snapshot]
}

// NewMemoryCache returns an empty cache with the given TTL (DefaultTTL if zero).
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{ttl: ttl}
}

// Get returns the current snapshot, if any.
func (c *MemoryCache) Get(context.Context) (Snapshot, bool, error) {
	s := c.snap.Load()
	if s == nil {
		return Snapshot{}, false, nil
	}
	return *s, true, nil
}

// Set replaces the snapshot.
func (c *MemoryCache) Set(_ context.Context, snapshot Snapshot) error {
	c.snap.Store(&snapshot)
	return nil
}

// Invalidate drops the snapshot.
func (c *MemoryCache) Invalidate(context.Context) error {
	c.snap.Store(nil)
	return nil
}

// IsStale reports whether snapshot is at least one TTL old.
func (c *MemoryCache) IsStale(snapshot Snapshot, now time.Time) bool {
	return IsStale(snapshot, now, c.ttl)
}

// IsStale reports whether a snapshot captured at snapshot.Timestamp has
// expired at now for ttl.
func IsStale(snapshot Snapshot, now time.Time, ttl time.Duration) bool {
	if snapshot.Timestamp.IsZero() {
		return true
	}
	return now.Sub(snapshot.Timestamp) >= ttl
}
