package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"snipr.local/internal/platform/metrics"
)

// KeyPrefix namespaces token entries in redis: "sl:" + token -> long URL.
const KeyPrefix = "sl:"

// ShortlinkCache 两级缓存：L1 本地 ristretto，L2 Redis。
// 两级都可以为空；都为空时每次都是 miss。
// 只缓存正向结果，不做负缓存（穿透由布隆过滤器挡）。
type ShortlinkCache struct {
	client *redis.Client
	local  *LocalCache // L1 本地缓存
}

func NewShortlinkCache(client *redis.Client, local *LocalCache) *ShortlinkCache {
	return &ShortlinkCache{
		client: client,
		local:  local,
	}
}

func (c *ShortlinkCache) Get(ctx context.Context, token string) (string, bool, error) {
	// L1: 本地缓存
	if c.local != nil {
		if url, ok := c.local.Get(token); ok {
			metrics.CacheOperations.WithLabelValues("local", "get", "hit").Inc()
			return url, true, nil
		}
		metrics.CacheOperations.WithLabelValues("local", "get", "miss").Inc()
	}
	if c.client == nil {
		return "", false, nil
	}

	// L2: Redis
	res, err := c.client.Get(ctx, KeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		metrics.CacheOperations.WithLabelValues("redis", "get", "miss").Inc()
		return "", false, nil
	}
	if err != nil {
		metrics.CacheOperations.WithLabelValues("redis", "get", "error").Inc()
		return "", false, err
	}
	metrics.CacheOperations.WithLabelValues("redis", "get", "hit").Inc()

	// 回填本地缓存，TTL 用 redis 剩余时间和本地 TTL 中较小的那个
	if c.local != nil {
		ttl := c.local.ttl
		if left, err := c.client.TTL(ctx, KeyPrefix+token).Result(); err == nil && left > 0 && left < ttl {
			ttl = left
		}
		c.local.Set(token, res, ttl)
	}
	return res, true, nil
}

func (c *ShortlinkCache) Set(ctx context.Context, token, url string, ttl time.Duration) error {
	// 同时写入本地缓存
	if c.local != nil {
		c.local.Set(token, url, ttl)
	}
	if c.client == nil {
		return nil
	}
	if err := c.client.Set(ctx, KeyPrefix+token, url, ttl).Err(); err != nil {
		metrics.CacheOperations.WithLabelValues("redis", "set", "error").Inc()
		return err
	}
	metrics.CacheOperations.WithLabelValues("redis", "set", "ok").Inc()
	return nil
}

// Close 关闭本地缓存；redis client 由调用方负责。
func (c *ShortlinkCache) Close() {
	if c.local != nil {
		c.local.Close()
		slog.Info("本地缓存已关闭")
	}
}
