package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// 滑动窗口：ZSET 里每个成员是一次请求，score 是毫秒时间戳。
// 返回 {allowed, retryAfterMs, count}
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call("ZREMRANGEBYSCORE", key, 0, now - window)
redis.call("ZADD", key, now, member)
local count = redis.call("ZCARD", key)
redis.call("PEXPIRE", key, window)

if count <= limit then
  return {1, 0, count}
end

redis.call("ZREM", key, member)
count = count - 1

local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
if oldest[2] ~= nil then
  local retryAfter = (tonumber(oldest[2]) + window) - now
  if retryAfter < 0 then retryAfter = 0 end
  return {0, retryAfter, count}
end
return {0, window, count}
`)

// KeyPrefix 限流 key：rl:<route>:<client>
const KeyPrefix = "rl:"

// Rule 一条路由的限流规则。
type Rule struct {
	Route  string
	Limit  int
	Window time.Duration
}

// Decision 一次检查的结果。RetryAfter 只在 Allowed=false 时有意义。
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type Limiter struct {
	client redis.Scripter
	now    func() time.Time
	seq    atomic.Uint64
}

func NewLimiter(client redis.Scripter) *Limiter {
	return &Limiter{
		client: client,
		now:    time.Now,
	}
}

// Allow 给 client（一般是客户端 IP）在 rule.Route 上记一次请求。
func (l *Limiter) Allow(ctx context.Context, rule Rule, client string) (Decision, error) {
	now := l.now()
	// member 必须每次请求唯一，否则 ZADD 会覆盖同一个 member
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + strconv.FormatUint(l.seq.Add(1), 10)

	res, err := slidingWindow.Run(ctx, l.client, []string{KeyPrefix + rule.Route + ":" + client},
		now.UnixMilli(), rule.Window.Milliseconds(), rule.Limit, member).Result()
	if err != nil {
		return Decision{}, err
	}

	arr, ok := res.([]any)
	if !ok || len(arr) < 3 {
		return Decision{}, fmt.Errorf("unexpected redis eval result: %T %v", res, res)
	}
	allowed, _ := arr[0].(int64)
	retryAfterMs := toInt64(arr[1])
	count := toInt64(arr[2])

	remaining := rule.Limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:    allowed == 1,
		Limit:      rule.Limit,
		Remaining:  remaining,
		RetryAfter: time.Duration(retryAfterMs) * time.Millisecond,
	}, nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	}
	return 0
}
