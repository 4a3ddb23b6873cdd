// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"strings"
	"sync"
	"time"

	"github.com/pbxgate/pbxgate/internal/domain/cache"
)

// DefaultMaxEntries bounds a TTLCache unless WithMaxEntries overrides it.
const DefaultMaxEntries = 1000

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// CacheStats counts cache outcomes since creation.
type CacheStats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// TTLCache is a key/value store with per-entry expiration and a bound on the
// number of entries. Entries are visible only while now < expiresAt and are
// removed lazily on read or by Sweep. Safe for concurrent use.
type TTLCache[V any] struct {
	mu         sync.Mutex
	entries    map[string]entry[V]
	now        func() time.Time
	maxEntries int
	stats      CacheStats
}

// CacheOption configures a TTLCache.
type CacheOption func(*cacheOptions)

type cacheOptions struct {
	now        func() time.Time
	maxEntries int
}

// WithClock sets the time source. Defaults to time.Now.
func WithClock(now func() time.Time) CacheOption {
	return func(o *cacheOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMaxEntries bounds the cache. A value <= 0 disables the bound.
func WithMaxEntries(n int) CacheOption {
	return func(o *cacheOptions) {
		o.maxEntries = n
	}
}

// NewTTLCache creates an empty cache.
func NewTTLCache[V any](opts ...CacheOption) *TTLCache[V] {
	o := cacheOptions{now: time.Now, maxEntries: DefaultMaxEntries}
	for _, opt := range opts {
		opt(&o)
	}
	return &TTLCache[V]{
		entries:    make(map[string]entry[V]),
		now:        o.now,
		maxEntries: o.maxEntries,
	}
}

// Set stores value under key for ttl, replacing any previous entry. When the
// cache is full and key is new, expired entries are swept first and then the
// entry closest to expiry is evicted.
func (c *TTLCache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.sweepLocked(now)
		if len(c.entries) >= c.maxEntries {
			c.evictSoonestLocked()
		}
	}
	c.entries[key] = entry[V]{value: value, expiresAt: now.Add(ttl)}
}

// Get returns the value for key if present and unexpired. A stale entry is
// deleted and reported as a miss.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return zero, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		c.stats.Misses++
		return zero, false
	}
	c.stats.Hits++
	return e.value, true
}

// Delete removes key and reports whether an entry existed.
func (c *TTLCache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok
}

// DeleteMatching removes every key containing substr and returns the count.
// An empty substr matches nothing.
func (c *TTLCache[V]) DeleteMatching(substr string) int {
	if substr == "" {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if strings.Contains(key, substr) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Clear removes every entry and returns how many were dropped.
func (c *TTLCache[V]) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	c.entries = make(map[string]entry[V])
	return n
}

// Sweep removes every entry with expiresAt <= now and returns the count.
func (c *TTLCache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(c.now())
}

// Len returns the number of stored entries, expired ones included.
func (c *TTLCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns the hit, miss and eviction counters.
func (c *TTLCache[V]) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Status summarizes the cache without mutating it. TotalSessions is left for
// the caller to fill in.
func (c *TTLCache[V]) Status() cache.Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	st := cache.Status{
		TotalEntries: len(c.entries),
		MaxEntries:   c.maxEntries,
		Hits:         c.stats.Hits,
		Misses:       c.stats.Misses,
		Evictions:    c.stats.Evictions,
		Timestamp:    now,
	}
	for _, e := range c.entries {
		if now.Before(e.expiresAt) {
			st.ActiveEntries++
		} else {
			st.ExpiredEntries++
		}
	}
	return st
}

func (c *TTLCache[V]) sweepLocked(now time.Time) int {
	removed := 0
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *TTLCache[V]) evictSoonestLocked() {
	var (
		victim  string
		soonest time.Time
		found   bool
	)
	for key, e := range c.entries {
		if !found || e.expiresAt.Before(soonest) {
			victim, soonest, found = key, e.expiresAt, true
		}
	}
	if found {
		delete(c.entries, victim)
		c.stats.Evictions++
	}
}
