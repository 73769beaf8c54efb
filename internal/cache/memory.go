package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	count     int
	expiresAt time.Time
}

// MemoryCache implements an in-process count cache
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	config  Config
}

// NewMemoryCache creates a new in-memory cache with default configuration
func NewMemoryCache() *MemoryCache {
	return NewMemoryCacheWithConfig(DefaultConfig())
}

// NewMemoryCacheWithConfig creates a new in-memory cache with custom configuration
func NewMemoryCacheWithConfig(config Config) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		config:  config,
	}
}

// Get retrieves a cached count
func (c *MemoryCache) Get(ctx context.Context, key string) (int, error) {
	c.mu.RLock()
	entry, ok := c.entries[c.config.Prefix+key]
	c.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return 0, ErrCacheMiss{Key: key}
	}
	return entry.count, nil
}

// Set stores a count with a TTL
func (c *MemoryCache) Set(ctx context.Context, key string, count int, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}
	c.mu.Lock()
	c.entries[c.config.Prefix+key] = memoryEntry{
		count:     count,
		expiresAt: time.Now().Add(ttl),
	}
	c.mu.Unlock()
	return nil
}

// Delete removes a cached count
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, c.config.Prefix+key)
	c.mu.Unlock()
	return nil
}
