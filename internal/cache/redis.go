// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/creatorshield-backend/internal/config"
)

const keyPrefix = "creatorshield:"

// RedisCache stores JSON values with a TTL. A nil *RedisCache is valid and
// never hits.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache returns nil when redis is disabled.
func NewRedisCache(cfg config.RedisConfig) (*RedisCache, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.AnalyticsTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisCache{rdb: rdb, ttl: ttl}, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

// Get decodes the cached value into dest. It reports false on miss or error.
func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) bool {
	if c == nil {
		return false
	}
	raw, err := c.rdb.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logrus.WithError(err).WithField("key", key).Warn("Cache read failed")
		}
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		logrus.WithError(err).WithField("key", key).Warn("Cache entry undecodable")
		return false
	}
	return true
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		logrus.WithError(err).WithField("key", key).Warn("Cache value unencodable")
		return
	}
	if err := c.rdb.Set(ctx, keyPrefix+key, raw, c.ttl).Err(); err != nil {
		logrus.WithError(err).WithField("key", key).Warn("Cache write failed")
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, keys ...string) {
	if c == nil || len(keys) == 0 {
		return
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = keyPrefix + k
	}
	if err := c.rdb.Del(ctx, prefixed...).Err(); err != nil {
		logrus.WithError(err).Warn("Cache invalidation failed")
	}
}

func (c *RedisCache) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}
