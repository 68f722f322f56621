package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stratoslab/multidim/common/logger"
)

// RedisCache implements Cache on top of a shared redis backend. The
// backend owns expiry: entries disappear server-side when their TTL
// passes, so there is no client-side freshness check.
type RedisCache struct {
	redis *redis.Client
	log   *logger.Logger
}

// NewRedisCache creates a redis-backed cache client
func NewRedisCache(addr string, db int, log *logger.Logger) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	return &RedisCache{
		redis: client,
		log:   log,
	}
}

// NewRedisCacheFromClient wraps an existing redis client
func NewRedisCacheFromClient(client *redis.Client, log *logger.Logger) *RedisCache {
	return &RedisCache{
		redis: client,
		log:   log,
	}
}

// Ping verifies the cache backend is reachable
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache backend unreachable: %w", err)
	}
	return nil
}

// Get retrieves a value by key. A missing key is not an error.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		c.log.Debug("redis GET key not found", "key", key)
		return nil, false, nil
	}
	if err != nil {
		c.log.Error("redis GET failed", "key", key, "error", err)
		return nil, false, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	c.log.Debug("redis GET", "key", key, "bytes", len(val))
	return val, true, nil
}

// Set stores a value with expiration
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := c.redis.Set(ctx, key, value, ttl).Err()
	if err != nil {
		c.log.Error("redis SET failed", "key", key, "error", err)
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	c.log.Debug("redis SET", "key", key, "bytes", len(value), "ttl", ttl)
	return nil
}

// Close releases the underlying connection pool
func (c *RedisCache) Close() error {
	return c.redis.Close()
}
