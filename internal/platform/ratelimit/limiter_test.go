package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.Unix(1_700_000_000, 0)
	l := NewLimiter(client)
	l.now = func() time.Time { return now }
	return l, mr, &now
}

func TestLimiterSlidingWindow(t *testing.T) {
	limiter, _, now := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Route: "create", Limit: 3, Window: 2 * time.Second}

	// 前 limit 次应放行，remaining 递减
	for i := 0; i < rule.Limit; i++ {
		d, err := limiter.Allow(ctx, rule, "1.2.3.4")
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("expected allowed at attempt %d", i+1)
		}
		if want := rule.Limit - i - 1; d.Remaining != want {
			t.Fatalf("attempt %d: remaining=%d, want %d", i+1, d.Remaining, want)
		}
		*now = now.Add(100 * time.Millisecond)
	}

	// 第 limit+1 次应被拒绝
	d, err := limiter.Allow(ctx, rule, "1.2.3.4")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if d.Allowed {
		t.Fatalf("expected denied at attempt %d", rule.Limit+1)
	}
	if d.Remaining != 0 {
		t.Fatalf("remaining=%d after limit", d.Remaining)
	}
	if d.RetryAfter <= 0 || d.RetryAfter > rule.Window {
		t.Fatalf("unexpected retryAfter: %v (window=%v)", d.RetryAfter, rule.Window)
	}

	// 窗口滑过之后恢复
	*now = now.Add(rule.Window)
	d, err = limiter.Allow(ctx, rule, "1.2.3.4")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if !d.Allowed {
		t.Fatal("expected allowed after the window passed")
	}
}

func TestLimiterSameInstantRequestsAreDistinct(t *testing.T) {
	limiter, _, _ := newTestLimiter(t)
	rule := Rule{Route: "redirect", Limit: 2, Window: time.Minute}

	// 时钟不动，member 仍然不能重复
	for i := 0; i < 2; i++ {
		if d, _ := limiter.Allow(context.Background(), rule, "c"); !d.Allowed {
			t.Fatalf("attempt %d should pass", i+1)
		}
	}
	if d, _ := limiter.Allow(context.Background(), rule, "c"); d.Allowed {
		t.Fatal("third call at the same instant should be limited")
	}
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	limiter, mr, _ := newTestLimiter(t)
	ctx := context.Background()
	a := Rule{Route: "login", Limit: 1, Window: time.Second}
	b := Rule{Route: "create", Limit: 1, Window: time.Second}

	if d, _ := limiter.Allow(ctx, a, "ip1"); !d.Allowed {
		t.Fatal("login/ip1: first call should pass")
	}
	if d, _ := limiter.Allow(ctx, a, "ip1"); d.Allowed {
		t.Fatal("login/ip1: second call should be limited")
	}
	if d, _ := limiter.Allow(ctx, a, "ip2"); !d.Allowed {
		t.Fatal("login/ip2: other clients are unaffected")
	}
	if d, _ := limiter.Allow(ctx, b, "ip1"); !d.Allowed {
		t.Fatal("create/ip1: other routes are unaffected")
	}
	if !mr.Exists("rl:login:ip1") {
		t.Fatal("expected key rl:login:ip1")
	}
}
