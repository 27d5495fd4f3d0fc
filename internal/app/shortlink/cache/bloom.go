package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"

	"snipr.local/internal/platform/metrics"
)

// BloomFilter 拦截一定不存在的 token。
//
// 过滤器是进程内的：别的副本或库外写入的 token 只有在下一次 Rebuild 之后才会被认出来，
// 所以多副本共享一个库时必须配合 RunRefresh 使用，或者干脆关掉。
type BloomFilter struct {
	mu       sync.RWMutex
	filter   *bloom.BloomFilter
	next     *bloom.BloomFilter // Rebuild 期间的新过滤器，Add 双写
	expected uint
	fpRate   float64
}

// NewBloomFilter 创建布隆过滤器
// expectedItems: 预期存储的元素数量
// falsePositiveRate: 误判率（建议 0.01 即 1%）
func NewBloomFilter(expectedItems uint, falsePositiveRate float64) *BloomFilter {
	return &BloomFilter{
		filter:   bloom.NewWithEstimates(expectedItems, falsePositiveRate),
		expected: expectedItems,
		fpRate:   falsePositiveRate,
	}
}

// 添加元素到布隆过滤器
func (b *BloomFilter) Add(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filter.AddString(token)
	if b.next != nil {
		b.next.AddString(token)
	}
}

// MightExist 检查元素是否可能存在
// 返回 false 表示一定不存在
// 返回 true 表示可能存在（有误判率）
func (b *BloomFilter) MightExist(token string) bool {
	b.mu.RLock()
	ok := b.filter.TestString(token)
	b.mu.RUnlock()
	if !ok {
		metrics.CacheOperations.WithLabelValues("bloom", "check", "reject").Inc()
	}
	return ok
}

// Count 返回已添加的元素数量（估算）
func (b *BloomFilter) Count() uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.filter.ApproximatedSize()
}

// TokenSource 是 Warm 的数据来源，shortlink.Store 满足它。
type TokenSource interface {
	ForEachToken(ctx context.Context, fn func(token string)) error
}

// Warm 启动时把库里已有的 token 全部灌进过滤器。
// 灌完之前不能把过滤器挂到 Resolver 上，否则会误判不存在。
func (b *BloomFilter) Warm(ctx context.Context, src TokenSource) (int, error) {
	n := 0
	err := src.ForEachToken(ctx, func(token string) {
		b.Add(token)
		n++
	})
	return n, err
}

// Rebuild 从 src 重新灌一个新过滤器再整体替换，期间旧过滤器照常服务。
// 失败时保留旧过滤器。
func (b *BloomFilter) Rebuild(ctx context.Context, src TokenSource) (int, error) {
	fresh := bloom.NewWithEstimates(b.expected, b.fpRate)
	b.mu.Lock()
	b.next = fresh
	b.mu.Unlock()

	n := 0
	err := src.ForEachToken(ctx, func(token string) {
		b.mu.Lock()
		fresh.AddString(token)
		b.mu.Unlock()
		n++
	})

	b.mu.Lock()
	b.next = nil
	if err == nil {
		b.filter = fresh
	}
	b.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// RunRefresh 每隔 interval 重建一次，直到 ctx 结束。
func (b *BloomFilter) RunRefresh(ctx context.Context, src TokenSource, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := b.Rebuild(ctx, src)
			if err != nil {
				if ctx.Err() == nil {
					slog.WarnContext(ctx, "bloom rebuild failed, keeping old filter", "err", err)
				}
				continue
			}
			slog.DebugContext(ctx, "bloom filter rebuilt", "tokens", n)
		}
	}
}
