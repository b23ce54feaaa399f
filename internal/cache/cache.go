package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/linkpulse/collector/internal/logger"
)

// DefaultTTL bounds how stale a cached summary may get. The ingestion side
// recomputes summaries at most a few times a day, so minutes of staleness
// are invisible to the operator.
const DefaultTTL = 15 * time.Minute

const keyPrefix = "collector:cache:"

// Cache is a small read-through cache over the shared Redis connection.
// Misses and errors both report as a miss; the caller falls back to the
// origin either way.
type Cache struct {
	client *redis.Client
	log    *logger.Logger
}

func New(client *redis.Client) *Cache {
	return &Cache{
		client: client,
		log:    logger.Default().WithComponent("cache"),
	}
}

func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.client.Get(ctx, keyPrefix+key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		c.log.Warn(ctx, "cache read failed", map[string]interface{}{
			"key": key, "error": err.Error(),
		})
		return "", false
	}
	return val, true
}

func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := c.client.Set(ctx, keyPrefix+key, value, ttl).Err(); err != nil {
		c.log.Warn(ctx, "cache write failed", map[string]interface{}{
			"key": key, "error": err.Error(),
		})
	}
}

func (c *Cache) Invalidate(ctx context.Context, key string) {
	if err := c.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		c.log.Warn(ctx, "cache invalidation failed", map[string]interface{}{
			"key": key, "error": err.Error(),
		})
	}
}
