package shortlink

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"snipr.local/internal/platform/metrics"
	"snipr.local/internal/platform/trace"
)

// DefaultCacheTTL 解析结果在缓存里的存活时间
const DefaultCacheTTL = time.Hour

const (
	storeReadTimeout  = 3 * time.Second
	cacheWriteTimeout = 200 * time.Millisecond
)

// Resolver 把对外 token 解析成长链接。
//
// 读路径：缓存 -> 存储（先 shortId 再别名）-> 回填缓存。
// 每次成功解析都往 ClickSink 发一个 click，命中缓存也一样。
//
// 设计原因：
// - 读路径是高 QPS 热点，缓存/布隆/singleflight 都挂在这里，接口不变
type Resolver struct {
	store  Store
	cache  Cache
	sink   ClickSink
	filter TokenFilter
	ttl    time.Duration
	now    func() time.Time

	group singleflight.Group
}

type ResolverOption func(*Resolver)

// WithCache 在存储前面加一层缓存；不设置时每次都读库。
func WithCache(c Cache, ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.cache = c
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func WithClickSink(s ClickSink) ResolverOption {
	return func(r *Resolver) { r.sink = s }
}

// WithTokenFilter 过滤器没见过的 token 直接 404，不打库。
// 挂上去之前过滤器必须已经包含库里所有 token。
func WithTokenFilter(f TokenFilter) ResolverOption {
	return func(r *Resolver) { r.filter = f }
}

func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

func NewResolver(store Store, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store: store,
		ttl:   DefaultCacheTTL,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve 返回 token 对应的长链接。
//
// 错误：token 格式不对返回 *ValidationError；找不到返回 ErrNotFound；读库失败返回 *DependencyError。
// 缓存和点击统计的失败只记日志，不返回。
func (r *Resolver) Resolve(ctx context.Context, token string, visit Visit) (Resolution, error) {
	if !ValidToken(token) {
		return Resolution{}, &ValidationError{Field: "token", Reason: "malformed"}
	}

	if r.cache != nil {
		longURL, ok, err := r.cache.Get(ctx, token)
		switch {
		case err != nil:
			slog.WarnContext(ctx, "cache get failed", "token", token, "err", err)
		case ok:
			metrics.Resolutions.WithLabelValues("cache", "found").Inc()
			r.emit(ctx, token, visit)
			return Resolution{LongURL: longURL, Cached: true}, nil
		}
	}

	if r.filter != nil && !r.filter.MightExist(token) {
		metrics.Resolutions.WithLabelValues("bloom", "not_found").Inc()
		return Resolution{}, ErrNotFound
	}

	// 同一个 token 的并发 miss 只打一次库。
	// 共享调用不跟随任一请求的取消，自己带超时。
	v, err, _ := r.group.Do(token, func() (any, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeReadTimeout)
		defer cancel()

		rec, err := r.lookup(sctx, token)
		if err != nil {
			return "", err
		}
		r.populate(sctx, token, rec.LongURL)
		return rec.LongURL, nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			metrics.Resolutions.WithLabelValues("store", "not_found").Inc()
			return Resolution{}, ErrNotFound
		}
		metrics.Resolutions.WithLabelValues("store", "error").Inc()
		return Resolution{}, err
	}

	metrics.Resolutions.WithLabelValues("store", "found").Inc()
	r.emit(ctx, token, visit)
	return Resolution{LongURL: v.(string), Cached: false}, nil
}

// lookup 同一个 token 既是某条记录的 shortId 又是另一条的别名时，归 shortId 那条。
func (r *Resolver) lookup(ctx context.Context, token string) (rec Record, err error) {
	ctx, span := trace.Start(ctx, "shortlink.store.lookup", attribute.String(trace.AttrToken, token))
	defer func() {
		if errors.Is(err, ErrNotFound) {
			trace.End(span, nil)
			return
		}
		trace.End(span, err)
	}()

	rec, err = r.store.FindByShortID(ctx, token)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Record{}, dependency("find by short id", err)
	}

	rec, err = r.store.FindByAlias(ctx, token)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Record{}, dependency("find by alias", err)
	}
	return Record{}, ErrNotFound
}

func (r *Resolver) populate(ctx context.Context, token, longURL string) {
	if r.cache == nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, cacheWriteTimeout)
	defer cancel()
	if err := r.cache.Set(cctx, token, longURL, r.ttl); err != nil {
		slog.WarnContext(ctx, "cache set failed", "token", token, "err", err)
	}
}

func (r *Resolver) emit(ctx context.Context, token string, visit Visit) {
	if r.sink == nil {
		return
	}
	r.sink.Collect(Click{
		Token:     token,
		ClickedAt: r.now().UTC(),
		UserAgent: visit.UserAgent,
		IP:        visit.IP,
		Referer:   visit.Referer,
	})
	slog.DebugContext(ctx, "click collected", "token", token)
}
