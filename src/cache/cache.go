package cache

import (
	"sync"
	"time"
)

// Cache is the read-through cache contract used by the document layer.
// Implementations may be remote; callers treat failures as a miss and fall
// back to the store.
type Cache interface {
	// Get returns the cached value for key, or ok=false on a miss.
	Get(key string) (value any, ok bool, err error)
	// SetWithTTL stores value under key for at most ttl.
	SetWithTTL(key string, value any, ttl time.Duration) error
	// Invalidate drops the entry for key, if present.
	Invalidate(key string) error
}

type entry struct {
	value     any
	expiresAt time.Time
}

// MemoryCache is an in-process TTL cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]entry),
	}
}

// Get returns the cached value for key. Expired entries count as a miss and
// are dropped lazily.
func (c *MemoryCache) Get(key string) (any, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if time.Now().After(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock: the entry may have been replaced.
		if current, still := c.entries[key]; still && time.Now().After(current.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false, nil
	}
	return e.value, true, nil
}

// SetWithTTL stores value under key for ttl.
func (c *MemoryCache) SetWithTTL(key string, value any, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Invalidate drops the entry for key.
func (c *MemoryCache) Invalidate(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}
