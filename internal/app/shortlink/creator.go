package shortlink

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"snipr.local/internal/platform/metrics"
)

// shortId 撞车后最多重试几次
const maxShortIDAttempts = 3

// Creator 校验并落库新短链。
type Creator struct {
	store   Store
	cache   Cache
	filter  TokenFilter
	baseURL string
	ttl     time.Duration

	requireDottedHost bool
	newShortID        func() (string, error)
	now               func() time.Time
}

type CreatorOption func(*Creator)

// WithPriming 落库后立刻把新 token 写进缓存。
func WithPriming(c Cache, ttl time.Duration) CreatorOption {
	return func(cr *Creator) {
		cr.cache = c
		if ttl > 0 {
			cr.ttl = ttl
		}
	}
}

func WithFilter(f TokenFilter) CreatorOption {
	return func(cr *Creator) { cr.filter = f }
}

// RequireDottedHost 额外拒绝不带点的主机名，比如 "http://localhost"。
func RequireDottedHost(on bool) CreatorOption {
	return func(cr *Creator) { cr.requireDottedHost = on }
}

// WithShortIDGenerator 替换 NewShortID，测试里用来制造撞车。
func WithShortIDGenerator(gen func() (string, error)) CreatorOption {
	return func(cr *Creator) { cr.newShortID = gen }
}

func NewCreator(store Store, baseURL string, opts ...CreatorOption) *Creator {
	c := &Creator{
		store:      store,
		baseURL:    strings.TrimRight(baseURL, "/"),
		ttl:        DefaultCacheTTL,
		newShortID: NewShortID,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create 用新生成的 shortId（以及可选的别名）保存 longURL。
//
// 错误：
// - *ValidationError：URL 或别名不合法
// - *ConflictError：别名被占用，或者 shortId 连续撞车
// - *DependencyError：存储故障
func (c *Creator) Create(ctx context.Context, longURL, customAlias string) (Created, error) {
	longURL = strings.TrimSpace(longURL)
	if !IsAbsoluteHTTPURL(longURL) {
		metrics.Creations.WithLabelValues("invalid").Inc()
		return Created{}, &ValidationError{Field: "longUrl", Reason: "must be an absolute http or https URL"}
	}
	if c.requireDottedHost && !HasDottedHostname(longURL) {
		metrics.Creations.WithLabelValues("invalid").Inc()
		return Created{}, &ValidationError{Field: "longUrl", Reason: "host must be a domain name"}
	}

	alias := strings.TrimSpace(customAlias)
	if alias != "" {
		if err := ValidateAlias(alias); err != nil {
			metrics.Creations.WithLabelValues("invalid").Inc()
			return Created{}, err
		}
	}

	rec, err := c.insert(ctx, longURL, alias)
	if err != nil {
		switch {
		case errors.Is(err, ErrConflict):
			metrics.Creations.WithLabelValues("conflict").Inc()
		default:
			metrics.Creations.WithLabelValues("error").Inc()
		}
		return Created{}, err
	}
	metrics.Creations.WithLabelValues("ok").Inc()

	c.prime(ctx, rec)

	token := rec.Token()
	return Created{
		ShortURL: c.baseURL + "/" + token,
		LongURL:  rec.LongURL,
		ShortID:  token,
		Record:   rec,
	}, nil
}

func (c *Creator) insert(ctx context.Context, longURL, alias string) (Record, error) {
	var lastErr error
	for attempt := 1; attempt <= maxShortIDAttempts; attempt++ {
		shortID, err := c.newShortID()
		if err != nil {
			return Record{}, dependency("generate short id", err)
		}

		rec, err := c.store.Insert(ctx, Record{
			LongURL:     longURL,
			ShortID:     shortID,
			CustomAlias: alias,
			CreatedAt:   c.now().UTC(),
		})
		if err == nil {
			return rec, nil
		}

		var ce *ConflictError
		if !errors.As(err, &ce) {
			return Record{}, dependency("insert", err)
		}
		if ce.Field != FieldShortID {
			return Record{}, err
		}
		slog.WarnContext(ctx, "short id collision, regenerating", "attempt", attempt)
		lastErr = err
	}
	return Record{}, lastErr
}

// prime 尽力而为，失败了顶多之后多读一次库
func (c *Creator) prime(ctx context.Context, rec Record) {
	if c.filter != nil {
		c.filter.Add(rec.ShortID)
		if rec.CustomAlias != "" {
			c.filter.Add(rec.CustomAlias)
		}
	}
	if c.cache == nil {
		return
	}

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheWriteTimeout)
	defer cancel()

	tokens := []string{rec.ShortID}
	// 别名如果等于别的记录的 shortId，解析会落到那条记录上，这时不能预热别名
	if rec.CustomAlias != "" {
		if _, err := c.store.FindByShortID(cctx, rec.CustomAlias); errors.Is(err, ErrNotFound) {
			tokens = append(tokens, rec.CustomAlias)
		}
	}
	for _, t := range tokens {
		if err := c.cache.Set(cctx, t, rec.LongURL, c.ttl); err != nil {
			slog.WarnContext(ctx, "cache prime failed", "token", t, "err", err)
		}
	}
}
