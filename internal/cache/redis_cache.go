package cache

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStringCache shares string values across replicas under a key prefix.
type RedisStringCache struct {
	client redis.Cmdable
	prefix string
	log    *zap.Logger
}

func NewRedisStringCache(client redis.Cmdable, prefix string, log *zap.Logger) *RedisStringCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisStringCache{client: client, prefix: prefix, log: log}
}

func (c *RedisStringCache) Get(ctx context.Context, key string) (string, bool) {
	value, err := c.client.Get(ctx, c.prefix+key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("redis cache get failed", zap.String("key", key), zap.Error(err))
		}
		return "", false
	}
	return value, true
}

func (c *RedisStringCache) Set(ctx context.Context, key string, value string, ttl time.Duration) {
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		c.log.Warn("redis cache set failed", zap.String("key", key), zap.Error(err))
	}
}

var _ Cache[string, string] = (*RedisStringCache)(nil)
