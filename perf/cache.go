// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package perf provides the caching and deduplication layer for the routing
// core: bounded LRU+TTL caches keyed by stable hashes, singleflight request
// deduplication, and latency instrumentation with percentile reporting.
package perf

import (
	"container/list"
	"sync"
	"time"
)

// entry is one cached value with its insertion time and hit counter.
type entry[V any] struct {
	key        string
	value      V
	insertedAt time.Time
	hits       int64
	element    *list.Element
}

// Cache is a bounded LRU cache with per-entry TTL expiry.
// Expiry is checked lazily on read; there is no background sweep.
// All operations are safe for concurrent use and never return errors:
// a missing or expired key is simply a miss.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]*entry[V]
	lruList *list.List
	maxSize int
	ttl     time.Duration

	hits      int64
	misses    int64
	evictions int64

	// now is replaceable in tests to exercise TTL expiry.
	now func() time.Time
}

// NewCache creates a cache holding at most maxSize entries, each expiring
// ttl after insertion. Non-positive sizes default to 100; a non-positive
// ttl defaults to 5 minutes.
func NewCache[V any](maxSize int, ttl time.Duration) *Cache[V] {
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache[V]{
		entries: make(map[string]*entry[V]),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached value for key. The second return is false on a
// miss or when the entry has expired; expired entries are removed on read.
// A hit refreshes the entry's recency.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return zero, false
	}

	if c.now().Sub(e.insertedAt) >= c.ttl {
		c.removeLocked(e)
		c.misses++
		return zero, false
	}

	e.hits++
	c.lruList.MoveToFront(e.element)
	c.hits++
	return e.value, true
}

// Set stores value under key. Inserting a new key at capacity evicts the
// least-recently-used entry first. Setting an existing key replaces its
// value, resets its TTL, and refreshes its recency.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.insertedAt = c.now()
		c.lruList.MoveToFront(e.element)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictLRULocked()
	}

	e := &entry[V]{key: key, value: value, insertedAt: c.now()}
	e.element = c.lruList.PushFront(e)
	c.entries[key] = e
}

// Delete removes key from the cache if present.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.removeLocked(e)
	}
}

// Clear removes all entries.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry[V])
	c.lruList = list.New()
}

// Len returns the current number of entries, including any not yet
// observed as expired.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// CacheStats is a point-in-time view of cache performance.
type CacheStats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Size      int   `json:"size"`
}

// Stats returns current hit/miss/eviction counters.
func (c *Cache[V]) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      len(c.entries),
	}
}

// evictLRULocked removes the least-recently-used entry.
// Must be called with the lock held.
func (c *Cache[V]) evictLRULocked() {
	oldest := c.lruList.Back()
	if oldest == nil {
		return
	}
	e := oldest.Value.(*entry[V])
	delete(c.entries, e.key)
	c.lruList.Remove(oldest)
	c.evictions++
}

// removeLocked removes one entry. Must be called with the lock held.
func (c *Cache[V]) removeLocked(e *entry[V]) {
	delete(c.entries, e.key)
	c.lruList.Remove(e.element)
}
