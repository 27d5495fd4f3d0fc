// Package postgres implements shortlink.Store on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"snipr.local/internal/app/shortlink"
)

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const recordColumns = "id, long_url, short_id, COALESCE(custom_alias, ''), click_count, created_at"

func scanRecord(row pgx.Row) (shortlink.Record, error) {
	var rec shortlink.Record
	err := row.Scan(&rec.ID, &rec.LongURL, &rec.ShortID, &rec.CustomAlias, &rec.ClickCount, &rec.CreatedAt)
	return rec, err
}

// Insert 依赖 urls_short_id_key / urls_custom_alias_key 两个唯一约束，
// 冲突时按约束名区分是哪个字段。
func (s *Store) Insert(ctx context.Context, rec shortlink.Record) (shortlink.Record, error) {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	var alias *string
	if rec.CustomAlias != "" {
		alias = &rec.CustomAlias
	}

	out, err := scanRecord(s.db.QueryRow(dbctx,
		"INSERT INTO urls (long_url, short_id, custom_alias, created_at) VALUES ($1, $2, $3, $4) RETURNING "+recordColumns,
		rec.LongURL, rec.ShortID, alias, rec.CreatedAt,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if strings.Contains(strings.ToLower(pgErr.ConstraintName), "custom_alias") {
				return shortlink.Record{}, &shortlink.ConflictError{Field: shortlink.FieldCustomAlias}
			}
			return shortlink.Record{}, &shortlink.ConflictError{Field: shortlink.FieldShortID}
		}
		slog.ErrorContext(ctx, "insert url failed", "err", err)
		return shortlink.Record{}, err
	}
	return out, nil
}

func (s *Store) FindByShortID(ctx context.Context, shortID string) (shortlink.Record, error) {
	return s.findOne(ctx, "SELECT "+recordColumns+" FROM urls WHERE short_id = $1", shortID)
}

func (s *Store) FindByAlias(ctx context.Context, alias string) (shortlink.Record, error) {
	return s.findOne(ctx, "SELECT "+recordColumns+" FROM urls WHERE custom_alias = $1", alias)
}

func (s *Store) findOne(ctx context.Context, query, arg string) (shortlink.Record, error) {
	dbctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	rec, err := scanRecord(s.db.QueryRow(dbctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return shortlink.Record{}, shortlink.ErrNotFound
	}
	if err != nil {
		slog.ErrorContext(ctx, "find url failed", "err", err)
		return shortlink.Record{}, err
	}
	return rec, nil
}

// RecordClicks 在一个事务里批量写入：先累加 click_count，再写明细。
// token 找不到记录（理论上不会发生）时跳过。
func (s *Store) RecordClicks(ctx context.Context, clicks []shortlink.Click) error {
	if len(clicks) == 0 {
		return nil
	}
	dbctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := s.db.Begin(dbctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(dbctx)

	batch := &pgx.Batch{}
	for _, c := range clicks {
		batch.Queue(`
WITH target AS (
  SELECT COALESCE(
    (SELECT id FROM urls WHERE short_id = $1),
    (SELECT id FROM urls WHERE custom_alias = $1)
  ) AS id
), bumped AS (
  UPDATE urls SET click_count = click_count + 1
  WHERE id = (SELECT id FROM target)
  RETURNING id
)
INSERT INTO url_clicks (url_id, clicked_at, user_agent, ip, referer)
SELECT id, $2, $3, $4, $5 FROM bumped`,
			c.Token, c.ClickedAt.UTC(), c.UserAgent, c.IP, c.Referer)
	}
	if err := tx.SendBatch(dbctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(dbctx)
}

func (s *Store) ListClicks(ctx context.Context, recordID int64, limit int, cursor int64) ([]shortlink.Click, error) {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	const cols = `SELECT c.id, COALESCE(u.custom_alias, u.short_id), c.clicked_at, c.user_agent, c.ip, c.referer
FROM url_clicks c JOIN urls u ON u.id = c.url_id`
	var (
		rows pgx.Rows
		err  error
	)
	if cursor == 0 {
		rows, err = s.db.Query(dbctx, cols+` WHERE c.url_id = $1 ORDER BY c.id DESC LIMIT $2`, recordID, limit)
	} else {
		rows, err = s.db.Query(dbctx, cols+` WHERE c.url_id = $1 AND c.id < $2 ORDER BY c.id DESC LIMIT $3`, recordID, cursor, limit)
	}
	if err != nil {
		slog.ErrorContext(ctx, "list clicks failed", "err", err)
		return nil, err
	}
	defer rows.Close()

	var out []shortlink.Click
	for rows.Next() {
		var c shortlink.Click
		if err := rows.Scan(&c.ID, &c.Token, &c.ClickedAt, &c.UserAgent, &c.IP, &c.Referer); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) ForEachToken(ctx context.Context, fn func(token string)) error {
	rows, err := s.db.Query(ctx, "SELECT short_id, COALESCE(custom_alias, '') FROM urls")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var shortID, alias string
		if err := rows.Scan(&shortID, &alias); err != nil {
			return err
		}
		fn(shortID)
		if alias != "" {
			fn(alias)
		}
	}
	return rows.Err()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Store) Close() error {
	s.db.Close()
	return nil
}
