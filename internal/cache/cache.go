// Package cache provides a bounded in-memory cache with per-entry TTL and
// least-recently-used eviction.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Config holds cache configuration.
type Config struct {
	MaxSize    int
	DefaultTTL time.Duration
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		MaxSize:    1000,
		DefaultTTL: 300 * time.Second,
	}
}

// Stats holds cache metrics.
type Stats struct {
	Size        int
	Hits        int64
	Misses      int64
	Evictions   int64
	Expirations int64
}

// HitRatio returns hits over total lookups, 0 when nothing was looked up.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// Cache is a TTL + LRU cache safe for concurrent use.
//
// A single mutex guards the map and the recency list. Exported methods take
// the lock once and call unlocked helpers, so no method re-enters the lock.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	config  Config
	items   map[K]*list.Element
	order   *list.List // front = most recently used
	now     func() time.Time
	hits    int64
	misses  int64
	evicted int64
	expired int64
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// New creates a cache. A non-positive MaxSize falls back to the default.
func New[K comparable, V any](config Config, opts ...Option) *Cache[K, V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	def := DefaultConfig()
	if config.MaxSize <= 0 {
		config.MaxSize = def.MaxSize
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = def.DefaultTTL
	}
	return &Cache[K, V]{
		config: config,
		items:  make(map[K]*list.Element),
		order:  list.New(),
		now:    o.now,
	}
}

// Get returns the value for key. Expired entries are removed and count as a miss.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false
	}
	e := el.Value.(*entry[K, V])
	if !c.now().Before(e.expiresAt) {
		c.removeElement(el)
		c.expired++
		c.misses++
		return zero, false
	}
	c.order.MoveToFront(el)
	c.hits++
	return e.value, true
}

// Set stores value under key. A non-positive ttl uses the default TTL.
func (c *Cache[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}
	expiresAt := c.now().Add(ttl)

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[K, V])
		e.value = value
		e.expiresAt = expiresAt
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&entry[K, V]{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = el

	if c.order.Len() > c.config.MaxSize {
		if oldest := c.order.Back(); oldest != nil {
			c.removeElement(oldest)
			c.evicted++
		}
	}
}

// Delete removes key and reports whether it was present.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(el)
	return true
}

// Clear drops every entry. Metrics are kept.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[K]*list.Element)
	c.order.Init()
}

// ExpireEntries removes all expired entries and returns how many were removed.
func (c *Cache[K, V]) ExpireEntries() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if e := el.Value.(*entry[K, V]); !now.Before(e.expiresAt) {
			c.removeElement(el)
			removed++
		}
		el = prev
	}
	c.expired += int64(removed)
	return removed
}

// Len returns the number of stored entries, including any not yet expired lazily.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Keys returns keys from most to least recently used.
func (c *Cache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]K, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry[K, V]).key)
	}
	return keys
}

// Stats returns a snapshot of the cache metrics.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Size:        c.order.Len(),
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evicted,
		Expirations: c.expired,
	}
}

func (c *Cache[K, V]) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*entry[K, V]).key)
}
