// Package cache provides the LRU+TTL result cache shared by the MCP
// connection manager's capability cache and the context
// aggregator's result cache. Both need identical semantics:
// a get/set refreshes recency, entries older than a TTL are treated as
// misses, and capacity overflow evicts the oldest entry — exactly what
// hashicorp/golang-lru's recency-ordered eviction gives us for free.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// TTLCache is an entry-bounded, least-recently-used-evicting cache whose
// entries additionally expire after a fixed TTL.
type TTLCache[K comparable, V any] struct {
	mu sync.Mutex
	backing *lru.Cache[K, entry[V]]
	ttl time.Duration
	now func() time.Time
}

type entry[V any] struct {
	value V
	storedAt time.Time
}

// New builds a cache bounded to maxEntries with the given TTL. A zero TTL
// disables expiry (entries only evict on capacity pressure).
func New[K comparable, V any](maxEntries int, ttl time.Duration) *TTLCache[K, V] {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	backing, _ := lru.New[K, entry[V]](maxEntries)
	return &TTLCache[K, V]{backing: backing, ttl: ttl, now: time.Now}
}

// Get returns a result only when its timestamp falls within the TTL; on a
// hit the entry's timestamp is refreshed.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.backing.Get(key)
	if !ok {
		return zero, false
	}
	if c.ttl > 0 && c.now().Sub(e.storedAt) > c.ttl {
		c.backing.Remove(key)
		return zero, false
	}
	e.storedAt = c.now()
	c.backing.Add(key, e)
	return e.value, true
}

// Set inserts or refreshes a value. Insertion past maxEntries evicts the
// least-recently-touched entry.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backing.Add(key, entry[V]{value: value, storedAt: c.now()})
}

// Remove drops a key if present.
func (c *TTLCache[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backing.Remove(key)
}

// Len reports the current entry count.
func (c *TTLCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backing.Len()
}

// WithClock overrides the time source; used by tests to exercise TTL
// expiry deterministically.
func (c *TTLCache[K, V]) WithClock(now func() time.Time) *TTLCache[K, V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	return c
}
