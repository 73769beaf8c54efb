// Package cache provides the optional read-through cache for
// collection counts, keyed by resource and filter fingerprint.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache defines the interface for count-cache backends
type Cache interface {
	// Get retrieves a cached count
	Get(ctx context.Context, key string) (int, error)

	// Set stores a count with a TTL
	Set(ctx context.Context, key string, count int, ttl time.Duration) error

	// Delete removes a cached count
	Delete(ctx context.Context, key string) error
}

// Config holds common configuration for cache backends
type Config struct {
	// DefaultTTL is the default time-to-live for cached counts
	DefaultTTL time.Duration
	// Prefix is prepended to all cache keys
	Prefix string
}

// DefaultConfig returns a default cache configuration
func DefaultConfig() Config {
	return Config{
		DefaultTTL: 30 * time.Second,
		Prefix:     "resolvent:",
	}
}

// CountKey builds the cache key for a resource's count under a filter
// fingerprint.
func CountKey(resource string, fingerprint uint64) string {
	return fmt.Sprintf("count:%s:%016x", resource, fingerprint)
}

// ErrCacheMiss is returned when a key is not found in the cache
type ErrCacheMiss struct {
	Key string
}

func (e ErrCacheMiss) Error() string {
	return "cache miss: " + e.Key
}

// IsCacheMiss checks if an error is a cache miss
func IsCacheMiss(err error) bool {
	_, ok := err.(ErrCacheMiss)
	return ok
}
