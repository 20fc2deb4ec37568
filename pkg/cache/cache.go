// Package cache provides a generic, thread-safe LRU cache with hit/miss
// statistics. It backs the compiled-regex cache in the rule matchers.
package cache

import (
	"container/list"
	"fmt"
	"sync"
)

// Cache is a generic key-value cache. Implementations are thread-safe.
type Cache[V any] interface {
	// Get retrieves a value by key
	Get(key string) (V, bool)

	// Set stores a value, evicting the least recently used entry when full
	Set(key string, value V)

	// Delete removes an entry by key, reporting whether it existed
	Delete(key string) bool

	// Clear removes all entries
	Clear()

	// Size returns the current number of entries
	Size() int

	// Stats returns accumulated hit/miss statistics
	Stats() Statistics
}

// Statistics holds cache access counters
type Statistics struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

// EvictCallback is called with the key and value of each evicted entry
type EvictCallback[V any] func(key string, value V)

// Option configures an LRU cache
type Option[V any] func(*lruCache[V])

// WithEvictionCallback registers a callback invoked on every eviction
func WithEvictionCallback[V any](cb EvictCallback[V]) Option[V] {
	return func(c *lruCache[V]) {
		c.onEvict = cb
	}
}

type lruEntry[V any] struct {
	key   string
	value V
}

type lruCache[V any] struct {
	mu      sync.Mutex
	maxSize int
	entries map[string]*list.Element
	order   *list.List // front = most recently used
	stats   Statistics
	onEvict EvictCallback[V]
}

// NewLRU creates an LRU cache holding at most maxSize entries.
func NewLRU[V any](maxSize int, opts ...Option[V]) (Cache[V], error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", maxSize)
	}
	c := &lruCache[V]{
		maxSize: maxSize,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *lruCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		var zero V
		return zero, false
	}
	c.order.MoveToFront(elem)
	c.stats.Hits++
	return elem.Value.(*lruEntry[V]).value, true
}

func (c *lruCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		elem.Value.(*lruEntry[V]).value = value
		c.order.MoveToFront(elem)
		return
	}

	c.entries[key] = c.order.PushFront(&lruEntry[V]{key: key, value: value})

	if c.order.Len() > c.maxSize {
		c.evictOldest()
	}
}

func (c *lruCache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return false
	}
	c.order.Remove(elem)
	delete(c.entries, key)
	return true
}

func (c *lruCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

func (c *lruCache[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *lruCache[V]) Stats() Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *lruCache[V]) evictOldest() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	entry := oldest.Value.(*lruEntry[V])
	c.order.Remove(oldest)
	delete(c.entries, entry.key)
	c.stats.Evictions++

	if c.onEvict != nil {
		c.onEvict(entry.key, entry.value)
	}
}
