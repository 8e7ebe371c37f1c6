// Package cache provides the expiring key-value capability used by the
// invitation broker. Implementations are a verification shortcut only —
// never the source of truth for token consumption.
package cache

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// TTLCache 通用的带过期时间的键值缓存能力
type TTLCache interface {
	// Set stores payload under key for ttl. A non-positive ttl is ignored
	// (the entry would already be expired).
	Set(key string, payload []byte, ttl time.Duration)
	// Get returns the payload and whether a live entry exists.
	Get(key string) ([]byte, bool)
	// Delete removes the entry. Deleting a missing key is a no-op.
	Delete(key string)
}

type entry struct {
	payload   []byte
	expiresAt time.Time
}

// MemoryTTLCache is an in-process TTLCache backed by an expirable LRU.
// Entries are evicted by the LRU's own TTL reaper; Get double-checks the
// deadline so a per-entry TTL shorter than the cache-wide one is honored.
type MemoryTTLCache struct {
	lru *expirable.LRU[string, entry]
	mu  sync.Mutex
	now func() time.Time
}

// NewMemoryTTLCache creates a cache holding up to size entries, each living
// at most maxTTL. Individual Set calls may use any shorter ttl.
func NewMemoryTTLCache(size int, maxTTL time.Duration) *MemoryTTLCache {
	if size <= 0 {
		size = 4096
	}
	return &MemoryTTLCache{
		lru: expirable.NewLRU[string, entry](size, nil, maxTTL),
		now: time.Now,
	}
}

// Set stores payload under key for ttl.
func (c *MemoryTTLCache) Set(key string, payload []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, entry{payload: payload, expiresAt: c.now().Add(ttl)})
}

// Get returns the payload if the entry is still live.
func (c *MemoryTTLCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		c.lru.Remove(key)
		return nil, false
	}
	return e.payload, true
}

// Delete removes the entry.
func (c *MemoryTTLCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}
