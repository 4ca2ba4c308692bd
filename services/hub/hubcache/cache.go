// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package hubcache provides the hub's caching layer: bounded in-memory
// TTL/LRU caches for detection and decision results, plus an optional
// BadgerDB-backed store that persists planner decisions across restarts.
//
// The tiered model is local-first:
//
//	Hot (RAM, Cache) → Warm (BadgerDB, DecisionStore)
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package hubcache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultCapacity is used when a cache is created with no capacity.
const DefaultCapacity = 256

// Cache is a thread-safe LRU cache with per-entry TTL expiry.
//
// Description:
//
//	Implements a fixed-size cache that evicts the least recently used
//	entries when capacity is reached and drops entries lazily once
//	their TTL elapses. Uses container/list for O(1) access and
//	eviction. A TTL of zero disables expiry.
//
// Thread Safety: All methods are safe for concurrent use.
//
// Performance:
//
//	| Operation | Complexity |
//	|-----------|------------|
//	| Get       | O(1)       |
//	| Set       | O(1)       |
//	| Delete    | O(1)       |
//	| Purge     | O(n)       |
type Cache[K comparable, V any] struct {
	mu       sync.RWMutex
	name     string
	capacity int
	ttl      time.Duration
	items    map[K]*list.Element
	order    *list.List // Front = most recent, Back = least recent

	// now is swappable so expiry is testable without sleeping.
	now func() time.Time

	// Stats (atomic for lock-free reads)
	hits        atomic.Int64
	misses      atomic.Int64
	evictions   atomic.Int64
	expirations atomic.Int64
}

// cacheEntry holds the key-value pair in the list.
type cacheEntry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time // zero means no expiry
}

// New creates a TTL/LRU cache.
//
// Description:
//
//	Creates a fixed-size cache. When the cache is full, the least
//	recently accessed entry is evicted to make room. Entries older
//	than ttl are treated as absent and removed on access.
//
// Inputs:
//   - name: Cache name for metrics (e.g. "detection", "decision").
//   - capacity: Maximum number of entries. <= 0 uses DefaultCapacity.
//   - ttl: Entry lifetime. <= 0 disables expiry.
//
// Outputs:
//   - *Cache[K, V]: The cache. Never nil.
//
// Example:
//
//	cache := hubcache.New[string, *planner.LoadDecision]("decision", 1024, time.Hour)
//	cache.Set(key, decision)
//	if d, ok := cache.Get(key); ok {
//	    // use d
//	}
//
// Thread Safety: The returned cache is safe for concurrent use.
func New[K comparable, V any](name string, capacity int, ttl time.Duration) *Cache[K, V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache[K, V]{
		name:     name,
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[K]*list.Element, capacity),
		order:    list.New(),
		now:      time.Now,
	}
}

// Get retrieves a value from the cache.
//
// Description:
//
//	Returns the value associated with the key and moves it to the
//	front of the LRU list. An entry past its TTL is removed and
//	reported as a miss.
//
// Inputs:
//   - key: The key to look up.
//
// Outputs:
//   - V: The value (zero value if not found or expired).
//   - bool: True if the key was found and fresh.
//
// Thread Safety: Safe for concurrent use.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		recordCacheMiss(c.name)
		return zero, false
	}

	entry := elem.Value.(*cacheEntry[K, V])
	if c.expired(entry) {
		c.removeElement(elem)
		c.expirations.Add(1)
		c.misses.Add(1)
		recordCacheMiss(c.name)
		return zero, false
	}

	c.order.MoveToFront(elem)
	c.hits.Add(1)
	recordCacheHit(c.name)
	return entry.value, true
}

// Set adds or updates a value in the cache.
//
// Description:
//
//	Adds the key-value pair with a fresh TTL. If the key exists, the
//	value and deadline are replaced and the entry moves to the front.
//	If the cache is full, the least recently used entry is evicted.
//
// Inputs:
//   - key: The key to store.
//   - value: The value to associate with the key.
//
// Thread Safety: Safe for concurrent use.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := c.deadline()

	// Update existing entry
	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry[K, V])
		entry.value = value
		entry.expiresAt = deadline
		return
	}

	// Evict if at capacity
	if c.order.Len() >= c.capacity {
		c.evictOldest()
	}

	entry := &cacheEntry[K, V]{key: key, value: value, expiresAt: deadline}
	elem := c.order.PushFront(entry)
	c.items[key] = elem
}

// Delete removes a key from the cache.
//
// Inputs:
//   - key: The key to remove.
//
// Outputs:
//   - bool: True if the key was found and removed.
//
// Thread Safety: Safe for concurrent use.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
		return true
	}
	return false
}

// Purge clears all entries from the cache.
//
// Description:
//
//	Removes all entries and resets hit/miss/eviction/expiry counters.
//
// Thread Safety: Safe for concurrent use.
func (c *Cache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[K]*list.Element, c.capacity)
	c.order.Init()
	c.hits.Store(0)
	c.misses.Store(0)
	c.evictions.Store(0)
	c.expirations.Store(0)
}

// Len returns the number of entries in the cache, expired ones included
// until their next access.
//
// Thread Safety: Safe for concurrent use.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}

// Stats returns cache hit/miss statistics.
//
// Outputs:
//   - hits: Number of cache hits since creation or last purge.
//   - misses: Number of cache misses since creation or last purge.
//
// Thread Safety: Safe for concurrent use (lock-free).
func (c *Cache[K, V]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Evictions returns the number of capacity evictions since creation or
// last purge.
//
// Thread Safety: Safe for concurrent use (lock-free).
func (c *Cache[K, V]) Evictions() int64 {
	return c.evictions.Load()
}

// Expirations returns the number of TTL expirations observed on access
// since creation or last purge.
//
// Thread Safety: Safe for concurrent use (lock-free).
func (c *Cache[K, V]) Expirations() int64 {
	return c.expirations.Load()
}

// deadline computes the expiry deadline for a new or updated entry.
// Caller must hold the lock.
func (c *Cache[K, V]) deadline() time.Time {
	if c.ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(c.ttl)
}

// expired reports whether an entry is past its deadline.
// Caller must hold the lock.
func (c *Cache[K, V]) expired(entry *cacheEntry[K, V]) bool {
	return !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt)
}

// evictOldest removes the least recently used entry.
// Caller must hold the write lock.
func (c *Cache[K, V]) evictOldest() {
	if elem := c.order.Back(); elem != nil {
		c.removeElement(elem)
		c.evictions.Add(1)
		recordCacheEviction(c.name)
	}
}

// removeElement removes an element from both the list and map.
// Caller must hold the write lock.
func (c *Cache[K, V]) removeElement(elem *list.Element) {
	c.order.Remove(elem)
	entry := elem.Value.(*cacheEntry[K, V])
	delete(c.items, entry.key)
}
