package shortlink

import (
	"context"
	"time"
)

// Record 是存储里的一条短链映射。
//
// 说明：
// - ShortID：系统生成的 8 位随机 id，一定有
// - CustomAlias：用户自选别名，可空
// - 两者都是对外 token，解析到同一个 LongURL
//
// 设计原因：
// - 领域层只关心“业务含义”，不带 JSON tag / SQL 字段；ID 对外只以 sqids 编码后的形式出现
type Record struct {
	ID          int64
	LongURL     string
	ShortID     string
	CustomAlias string
	ClickCount  int64
	CreatedAt   time.Time
}

// Token 对外展示的 token：有别名用别名，否则用 ShortID。
func (r Record) Token() string {
	if r.CustomAlias != "" {
		return r.CustomAlias
	}
	return r.ShortID
}

// Click 一次访问。Token 是访问者实际用的那个，存储按和 Resolver 相同的规则
// （先 shortId 后别名）找回所属记录。
type Click struct {
	ID        int64     `json:"id"`
	Token     string    `json:"token"`
	ClickedAt time.Time `json:"clicked_at"`
	UserAgent string    `json:"user_agent"`
	IP        string    `json:"ip,omitempty"`
	Referer   string    `json:"referer,omitempty"`
}

// Visit 请求侧的元数据，Resolver 把它带进 Click。
type Visit struct {
	UserAgent string
	IP        string
	Referer   string
}

// Resolution 解析成功的结果。Cached 只用于观测，不参与任何正确性判断。
type Resolution struct {
	LongURL string
	Cached  bool
}

// Created 是 Creator.Create 的返回；ShortID 填的是生效的 token（有别名时为别名）。
type Created struct {
	ShortURL string
	LongURL  string
	ShortID  string
	Record   Record
}

// Store 是唯一的数据源（source of truth）。
//
// 约定：
// - Insert 必须原子，唯一约束冲突返回 *ConflictError
// - Find* 找不到返回 ErrNotFound，其他错误都算依赖故障
// - RecordClicks 每个 click 做 click_count = click_count + 1 并追加点击日志；找不到记录的 click 跳过
//
// 设计原因：
// - 用接口隔开 postgres / sqlite / memory 三种实现，上层和测试只依赖这个接口
type Store interface {
	Insert(ctx context.Context, rec Record) (Record, error)
	FindByShortID(ctx context.Context, shortID string) (Record, error)
	FindByAlias(ctx context.Context, alias string) (Record, error)
	RecordClicks(ctx context.Context, clicks []Click) error
	ListClicks(ctx context.Context, recordID int64, limit int, cursor int64) ([]Click, error)
	ForEachToken(ctx context.Context, fn func(token string)) error
	Ping(ctx context.Context) error
	Close() error
}

// Cache 挡在 Store 前面的带过期 KV。miss 返回 ok=false；返回 error 表示缓存本身坏了。
//
// 设计原因：
// - 缓存只是加速层：任何缓存错误都降级为读库，不能影响结果
type Cache interface {
	Get(ctx context.Context, token string) (longURL string, ok bool, err error)
	Set(ctx context.Context, token, longURL string, ttl time.Duration) error
}

// ClickSink 接收点击做异步统计，Collect 不能阻塞请求。
type ClickSink interface {
	Collect(click Click)
}

// TokenFilter 对从没创建过的 token 回答“一定不存在”。
type TokenFilter interface {
	Add(token string)
	MightExist(token string) bool
}
