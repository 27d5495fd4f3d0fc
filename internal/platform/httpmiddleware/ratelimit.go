package httpmiddleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"snipr.local/internal/platform/ratelimit"
)

// Allower 由 ratelimit.Limiter 实现。
type Allower interface {
	Allow(ctx context.Context, rule ratelimit.Rule, client string) (ratelimit.Decision, error)
}

// RateLimit 按客户端 IP 限流；limiter 为 nil 或 Redis 故障时放行。
func RateLimit(limiter Allower, rule ratelimit.Rule) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		rlCtx, cancel := context.WithTimeout(c.Request.Context(), 50*time.Millisecond)
		defer cancel()
		d, err := limiter.Allow(rlCtx, rule, c.ClientIP())
		if err != nil {
			slog.WarnContext(c.Request.Context(), "rate limit check failed", "route", rule.Route, "err", err)
			c.Next() // Redis 故障时放行
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			if d.RetryAfter > 0 {
				// 标准语义：Retry-After 单位是秒。
				secs := int64((d.RetryAfter + time.Second - 1) / time.Second) // ceil
				c.Header("Retry-After", strconv.FormatInt(secs, 10))
			}
			AbortWithError(c, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded")
			return
		}
		c.Next()
	}
}
