// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

package cache

import (
	"container/list"
	"context"
	"math"
	"sync"
	"time"

	"github.com/trendscout-dev/trendscout/internal/metrics"
)

// MemoryCache is an in-memory TTL cache with LRU eviction.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently used
	policy  Policy

	hits      int64
	misses    int64
	evictions int64

	nowFunc func() time.Time
}

type cacheEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache creates an in-memory cache with the given policy.
func NewMemoryCache(policy Policy) *MemoryCache {
	if policy.Name == "" {
		policy.Name = "search"
	}
	return &MemoryCache{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		policy:  policy,
		nowFunc: time.Now,
	}
}

// SetNowFunc replaces the clock, letting tests control expiry.
func (c *MemoryCache) SetNowFunc(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nowFunc = now
}

// Get retrieves a value and marks it most recently used. Expired entries
// are cleaned up lazily and count as misses.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	if !c.enabled() {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		metrics.CacheMisses.WithLabelValues(c.policy.Name).Inc()
		return nil, false
	}

	entry := elem.Value.(*cacheEntry)
	if c.nowFunc().After(entry.expiresAt) {
		c.removeLocked(elem)
		c.misses++
		metrics.CacheMisses.WithLabelValues(c.policy.Name).Inc()
		return nil, false
	}

	c.order.MoveToFront(elem)
	c.hits++
	metrics.CacheHits.WithLabelValues(c.policy.Name).Inc()
	return entry.value, true
}

// Set stores a value under the policy TTL, evicting the least recently
// used entry when the cache is full.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte) error {
	if !c.enabled() {
		return nil
	}
	if err := ValidateKey(key); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.nowFunc().Add(c.policy.TTL)
	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		c.order.MoveToFront(elem)
		return nil
	}

	elem := c.order.PushFront(&cacheEntry{key: key, value: value, expiresAt: expiresAt})
	c.entries[key] = elem

	if c.policy.MaxEntries > 0 && len(c.entries) > c.policy.MaxEntries {
		if oldest := c.order.Back(); oldest != nil {
			c.removeLocked(oldest)
			c.evictions++
			metrics.CacheEvictions.WithLabelValues(c.policy.Name).Inc()
		}
	}
	return nil
}

// Delete removes a value. Idempotent, no error on miss.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.removeLocked(elem)
	}
	return nil
}

// Clear drops every entry. Hit and miss counters survive so the status
// surface keeps its history.
func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.order.Init()
	return nil
}

// Stats reports the cache counters.
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = math.Round(float64(c.hits)/float64(total)*100*100) / 100
	}

	return Stats{
		Enabled:        c.policy.Enabled && c.policy.TTL > 0,
		Entries:        len(c.entries),
		MaxEntries:     c.policy.MaxEntries,
		TTLSeconds:     c.policy.TTL.Seconds(),
		Hits:           c.hits,
		Misses:         c.misses,
		Evictions:      c.evictions,
		HitRatePercent: hitRate,
	}
}

func (c *MemoryCache) enabled() bool {
	return c.policy.Enabled && c.policy.TTL > 0
}

func (c *MemoryCache) removeLocked(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	c.order.Remove(elem)
	delete(c.entries, entry.key)
}
