package daemon

import (
	"sync"
	"time"

	"github.com/ramonehamilton/matchup-companion/internal/aggregate"
	"github.com/ramonehamilton/matchup-companion/internal/bucket"
)

// GlobalCache holds the last published global aggregate. Readers never see a
// half-built aggregate: a merge publishes a complete value in one swap.
type GlobalCache struct {
	mu     sync.RWMutex
	global aggregate.Global
	// own is this client's snapshot as it went into global.
	own aggregate.ClientSnapshot
}

// NewGlobalCache creates an empty cache.
func NewGlobalCache() *GlobalCache {
	return &GlobalCache{}
}

// Load returns the cached aggregate.
func (c *GlobalCache) Load() aggregate.Global {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.global
}

// Store publishes g with no own contribution recorded.
func (c *GlobalCache) Store(g aggregate.Global) {
	c.Publish(g, aggregate.ClientSnapshot{})
}

// Publish stores g together with the snapshot of this client that was merged
// into it.
func (c *GlobalCache) Publish(g aggregate.Global, own aggregate.ClientSnapshot) {
	c.mu.Lock()
	c.global = g
	c.own = own
	c.mu.Unlock()
}

// Lookup returns the cached global aggregate for key.
func (c *GlobalCache) Lookup(key bucket.Key) (aggregate.BucketAggregate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.global.Lookup(key)
}

// Community returns the cached aggregate for key without this client's own
// outcomes, so that local history is not counted a second time as crowd data.
// ok is false when nothing from other clients remains.
func (c *GlobalCache) Community(key bucket.Key) (aggregate.BucketAggregate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	agg, ok := c.global.Lookup(key)
	if !ok {
		return aggregate.BucketAggregate{}, false
	}
	if own, ok := c.own.Buckets[key]; ok {
		agg = agg.Without(own)
	}
	return agg, agg.Count > 0
}

// AsOf returns when the cached aggregate was merged. Zero when nothing has been
// published yet.
func (c *GlobalCache) AsOf() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.global.AsOf
}

// Stale reports whether the cache is empty or older than maxAge at now.
func (c *GlobalCache) Stale(now time.Time, maxAge time.Duration) bool {
	asOf := c.AsOf()
	return asOf.IsZero() || now.Sub(asOf) >= maxAge
}
