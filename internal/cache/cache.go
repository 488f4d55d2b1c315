// Resonance - Audience Trait Analytics for the Harmonia Platform
// Copyright 2026 Harmonia Live
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-live/resonance

// Package cache provides a thread-safe in-memory TTL cache. Used to keep
// recently built DNA vectors hot during batch matching, where the same
// base entity is compared against hundreds of candidates.
package cache

import (
	"sync"
	"time"
)

// entry is a cached value with its expiration.
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Stats tracks cache effectiveness.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Keys      int
}

// Cache is a thread-safe TTL cache. Expired entries are dropped lazily on
// read and swept periodically by a background janitor.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]
	ttl     time.Duration

	hits      int64
	misses    int64
	evictions int64

	stop chan struct{}
	once sync.Once
}

// New creates a cache whose entries live for ttl. The janitor sweeps at
// the same cadence, so memory is bounded by one TTL's worth of writes.
func New[V any](ttl time.Duration) *Cache[V] {
	if ttl <= 0 {
		ttl = time.Minute
	}
	c := &Cache[V]{
		entries: make(map[string]entry[V]),
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
	go c.janitor()
	return c
}

// Get returns the cached value for key if present and unexpired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && time.Now().Before(e.expiresAt) {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return e.value, true
	}

	c.mu.Lock()
	c.misses++
	if ok {
		// Expired; drop it now rather than waiting for the janitor.
		delete(c.entries, key)
		c.evictions++
	}
	c.mu.Unlock()

	var zero V
	return zero, false
}

// Set stores the value under key for one TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// Invalidate removes one key.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Stats returns a snapshot of cache counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Keys:      len(c.entries),
	}
}

// Stop terminates the janitor goroutine. Safe to call more than once.
func (c *Cache[V]) Stop() {
	c.once.Do(func() { close(c.stop) })
}

func (c *Cache[V]) janitor() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, e := range c.entries {
				if now.After(e.expiresAt) {
					delete(c.entries, key)
					c.evictions++
				}
			}
			c.mu.Unlock()
		}
	}
}
