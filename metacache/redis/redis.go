// Package redis provides a Redis-backed metacache.Cache so discovery
// documents survive process restarts and are shared across instances.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/saslkit/sasl-oidc-go/metacache"
)

// Config contains configuration options for the Redis cache.
type Config struct {
	// Client is the Redis client instance.
	Client *redis.Client

	// KeyPrefix is the prefix for all Redis keys.
	// Default: "saslauth:disc:".
	KeyPrefix string
}

// Cache implements metacache.Cache on Redis with native key TTLs.
type Cache struct {
	client    *redis.Client
	keyPrefix string
}

var _ metacache.Cache = (*Cache)(nil)

// New creates a Redis-backed cache.
func New(config Config) (*Cache, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "saslauth:disc:"
	}
	return &Cache{client: config.Client, keyPrefix: config.KeyPrefix}, nil
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	doc, err := c.client.Get(ctx, c.keyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return doc, true, nil
}

func (c *Cache) Set(ctx context.Context, key string, doc []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = metacache.DefaultTTL
	}
	if err := c.client.Set(ctx, c.keyPrefix+key, doc, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}
