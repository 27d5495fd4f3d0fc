package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"

	"snipr.local/internal/platform/metrics"
)

// LocalCache 基于 ristretto 的本地内存缓存
type LocalCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewLocalCache 创建本地缓存
// maxItems: 最大缓存条目数（建议 10000-100000）
// maxCost: 最大条目数上限，每个条目 cost=1
// ttl: 本地 TTL 上限，短一些，保证多实例一致性
func NewLocalCache(maxItems int64, maxCost int64, ttl time.Duration) (*LocalCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10, // 计数器数量，建议为 maxItems 的 10 倍
		MaxCost:     maxCost,
		BufferItems: 64, // 每个 Get 缓冲区大小
		// cost 只按条目算，不叠加 ristretto 内部的元数据开销
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &LocalCache{
		cache: cache,
		ttl:   ttl,
	}, nil
}

func (l *LocalCache) Get(token string) (string, bool) {
	if v, ok := l.cache.Get(token); ok {
		return v.(string), true
	}
	return "", false
}

// Set 写入，ttl 超过本地上限时截断。
func (l *LocalCache) Set(token, url string, ttl time.Duration) {
	if ttl <= 0 || ttl > l.ttl {
		ttl = l.ttl
	}
	// cost=1 表示按条目数限制
	if !l.cache.SetWithTTL(token, url, 1, ttl) {
		metrics.CacheOperations.WithLabelValues("local", "set", "dropped").Inc()
		return
	}
	// ristretto 的写入先进缓冲区异步生效；等它落地，紧接着的 Get 才能命中
	l.cache.Wait()
}

func (l *LocalCache) Close() {
	l.cache.Close()
}
