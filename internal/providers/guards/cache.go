// Package guards holds the account-snapshot cache the engine's HTTP
// surface reads from instead of calling the adapter on every request.
// The guard evaluators themselves live in internal/domain/guards.
package guards

import (
	"context"
	"sync"
	"time"

	"github.com/sawpanic/orbstream/internal/execution"
)

// AccountSnapshotCache is a small TTL cache in front of
// execution.Adapter.GetAccountSnapshot: the `/streams` and `/healthz`
// HTTP surfaces (spec §2's health/status endpoints) poll account state
// far more often than the adapter needs to be asked, so repeated reads
// within ttl are served from memory.
type AccountSnapshotCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	cached  execution.AccountSnapshot
	fetched time.Time
	valid   bool
}

// NewAccountSnapshotCache builds a cache with the given TTL. A
// non-positive ttl defaults to 5 seconds.
func NewAccountSnapshotCache(ttl time.Duration) *AccountSnapshotCache {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &AccountSnapshotCache{ttl: ttl}
}

// Get returns the cached snapshot if still fresh as of now, the way
// Get/Set worked against a TTL'd entry map before this cache was
// narrowed to a single adapter-backed value.
func (c *AccountSnapshotCache) Get(now time.Time) (execution.AccountSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.valid || now.Sub(c.fetched) > c.ttl {
		return execution.AccountSnapshot{}, false
	}
	return c.cached, true
}

// Set stores a freshly fetched snapshot.
func (c *AccountSnapshotCache) Set(snap execution.AccountSnapshot, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached = snap
	c.fetched = now
	c.valid = true
}

// FetchCached returns the cached snapshot if fresh, otherwise calls the
// adapter, caches, and returns the result.
func (c *AccountSnapshotCache) FetchCached(ctx context.Context, adapter execution.Adapter, now time.Time) (execution.AccountSnapshot, error) {
	if snap, ok := c.Get(now); ok {
		return snap, nil
	}
	snap, err := adapter.GetAccountSnapshot(ctx, now)
	if err != nil {
		return execution.AccountSnapshot{}, err
	}
	c.Set(snap, now)
	return snap, nil
}

// Invalidate forces the next FetchCached call to hit the adapter.
func (c *AccountSnapshotCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.valid = false
}
