package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements a Redis-backed count cache
type RedisCache struct {
	client *redis.Client
	config Config
}

// RedisConfig holds Redis-specific configuration
type RedisConfig struct {
	// Addr is the Redis server address (host:port)
	Addr string
	// Password is the Redis password (optional)
	Password string
	// DB is the Redis database number
	DB int
	// Config holds common cache configuration
	Config Config
}

// NewRedisCache creates a new Redis cache, verifying connectivity.
func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisCache{client: client, config: cfg.Config}, nil
}

// NewRedisCacheWithClient creates a new Redis cache with an existing client
func NewRedisCacheWithClient(client *redis.Client, config Config) *RedisCache {
	return &RedisCache{client: client, config: config}
}

// Get retrieves a cached count
func (c *RedisCache) Get(ctx context.Context, key string) (int, error) {
	val, err := c.client.Get(ctx, c.config.Prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrCacheMiss{Key: key}
		}
		return 0, err
	}
	count, err := strconv.Atoi(val)
	if err != nil {
		return 0, ErrCacheMiss{Key: key}
	}
	return count, nil
}

// Set stores a count with a TTL
func (c *RedisCache) Set(ctx context.Context, key string, count int, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}
	return c.client.Set(ctx, c.config.Prefix+key, strconv.Itoa(count), ttl).Err()
}

// Delete removes a cached count
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.config.Prefix+key).Err()
}

// Close closes the underlying Redis client
func (c *RedisCache) Close() error {
	return c.client.Close()
}
