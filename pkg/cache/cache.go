// Package cache provides a generic in-memory store with TTL expiry and
// insertion-order eviction. It is safe for concurrent use.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hausgeist-ai/hausgeist/pkg/models"
)

// Cache holds up to maxSize values, each valid for ttl after insertion.
// Expiry is lazy: an expired entry is dropped on the read that finds it.
// When full, Set evicts the oldest-inserted entry first.
type Cache[V any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	index   map[string]entry[V]
	order   []string

	hits   atomic.Int64
	misses atomic.Int64
}

type entry[V any] struct {
	value      V
	insertedAt time.Time
}

// New returns an empty Cache bounded by maxSize entries and ttl per entry.
func New[V any](maxSize int, ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		maxSize: maxSize,
		ttl:     ttl,
		index:   make(map[string]entry[V]),
	}
}

// Get returns the value for key if present and within its TTL.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.index[key]
	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	if time.Since(e.insertedAt) > c.ttl {
		c.removeLocked(key)
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	c.hits.Add(1)
	return e.value, true
}

// Set stores value under key, evicting the oldest-inserted entry if at
// capacity. Re-setting an existing key refreshes its insertion time.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.index[key]; ok {
		c.removeLocked(key)
	}
	if len(c.index) >= c.maxSize && len(c.order) > 0 {
		c.removeLocked(c.order[0])
	}
	c.index[key] = entry[V]{value: value, insertedAt: time.Now()}
	c.order = append(c.order, key)
}

func (c *Cache[V]) removeLocked(key string) {
	delete(c.index, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of stored entries, including any not yet
// lazily expired.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

// Clear removes all entries.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = make(map[string]entry[V])
	c.order = nil
}

// Stats returns cache performance metrics.
func (c *Cache[V]) Stats() models.CacheStats {
	return models.CacheStats{
		Entries: int64(c.Len()),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}
