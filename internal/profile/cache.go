package profile

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const (
	// DefaultCacheTTL matches the ten minute lifetime used by Nightscout
	DefaultCacheTTL      = 10 * time.Minute
	defaultCacheCapacity = 100_000
)

// CacheKey identifies one memoized answer. Fingerprint folds in every
// content hash the answer depends on, so changed data never hits an old entry.
type CacheKey struct {
	Minute      int64 // unix ms of the minute bucket
	Parameter   string
	Profile     string // explicit profile selector, "" for the active one
	Fingerprint uint64
}

// MinuteBucket floors instant to the start of its minute
func MinuteBucket(instant time.Time) time.Time {
	return instant.Truncate(time.Minute)
}

// TemporalCache memoizes resolution results for a fixed TTL. It is never
// authoritative: a miss is answered by recomputation.
type TemporalCache[V any] struct {
	items *ttlcache.Cache[CacheKey, V]
}

// NewTemporalCache creates a cache whose entries expire ttl after being set,
// regardless of reads.
func NewTemporalCache[V any](ttl time.Duration, capacity uint64) *TemporalCache[V] {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if capacity == 0 {
		capacity = defaultCacheCapacity
	}
	return &TemporalCache[V]{
		items: ttlcache.New(
			ttlcache.WithTTL[CacheKey, V](ttl),
			ttlcache.WithDisableTouchOnHit[CacheKey, V](),
			ttlcache.WithCapacity[CacheKey, V](capacity),
		),
	}
}

// Start runs expired-entry eviction until Stop. It blocks.
func (c *TemporalCache[V]) Start() {
	c.items.Start()
}

// Stop halts eviction
func (c *TemporalCache[V]) Stop() {
	c.items.Stop()
}

// Get returns the cached value for key
func (c *TemporalCache[V]) Get(key CacheKey) (V, bool) {
	item := c.items.Get(key)
	if item == nil {
		var zero V
		return zero, false
	}
	return item.Value(), true
}

// Set stores v under key, overwriting any previous value
func (c *TemporalCache[V]) Set(key CacheKey, v V) {
	c.items.Set(key, v, ttlcache.DefaultTTL)
}

// GetOrCompute returns the cached value or computes and stores it
func (c *TemporalCache[V]) GetOrCompute(key CacheKey, compute func() V) V {
	if v, ok := c.Get(key); ok {
		return v
	}
	v := compute()
	c.Set(key, v)
	return v
}

// Len returns the number of entries, including expired ones not yet evicted
func (c *TemporalCache[V]) Len() int {
	return c.items.Len()
}

// DeleteAll drops every entry
func (c *TemporalCache[V]) DeleteAll() {
	c.items.DeleteAll()
}
