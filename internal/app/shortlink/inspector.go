package shortlink

import (
	"context"
	"errors"
)

const (
	DefaultClickPageSize = 50
	MaxClickPageSize     = 500
)

// Inspector 只读查询，不记点击。
type Inspector struct {
	store Store
}

func NewInspector(store Store) *Inspector {
	return &Inspector{store: store}
}

// Record 和 Resolver 一样先 shortId 后别名，但不走缓存。
func (i *Inspector) Record(ctx context.Context, token string) (Record, error) {
	if !ValidToken(token) {
		return Record{}, &ValidationError{Field: "token", Reason: "malformed"}
	}
	rec, err := i.store.FindByShortID(ctx, token)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Record{}, dependency("find by short id", err)
	}
	rec, err = i.store.FindByAlias(ctx, token)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Record{}, dependency("find by alias", err)
	}
	return rec, err
}

// Clicks 按时间倒序分页返回点击日志。
// cursor 是上一页最后一条 click 的 id，第一页传 0；没有下一页时 next 为 0。
func (i *Inspector) Clicks(ctx context.Context, token string, limit int, cursor int64) (clicks []Click, next int64, err error) {
	rec, err := i.Record(ctx, token)
	if err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = DefaultClickPageSize
	}
	if limit > MaxClickPageSize {
		limit = MaxClickPageSize
	}
	if cursor < 0 {
		return nil, 0, &ValidationError{Field: "cursor", Reason: "must not be negative"}
	}

	clicks, err = i.store.ListClicks(ctx, rec.ID, limit+1, cursor)
	if err != nil {
		return nil, 0, dependency("list clicks", err)
	}
	if len(clicks) > limit {
		clicks = clicks[:limit]
		next = clicks[len(clicks)-1].ID
	}
	return clicks, next, nil
}
