// Package sqlite implements shortlink.Store on a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"snipr.local/internal/app/shortlink"
)

const schema = `
CREATE TABLE IF NOT EXISTS urls (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    long_url TEXT NOT NULL,
    short_id TEXT NOT NULL UNIQUE,
    custom_alias TEXT UNIQUE,
    click_count INTEGER NOT NULL DEFAULT 0 CHECK (click_count >= 0),
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS url_clicks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    url_id INTEGER NOT NULL REFERENCES urls(id),
    clicked_at DATETIME NOT NULL,
    user_agent TEXT NOT NULL DEFAULT '',
    ip TEXT NOT NULL DEFAULT '',
    referer TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_url_clicks_url_id ON url_clicks (url_id, id DESC);
`

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema exists.
// ":memory:" gives a private in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// 每个连接都是独立的 :memory: 库，只能保留一个连接。
	// 文件库也串行写，避免 SQLITE_BUSY。
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Insert(ctx context.Context, rec shortlink.Record) (shortlink.Record, error) {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(dbctx,
		"INSERT INTO urls (long_url, short_id, custom_alias, created_at) VALUES (?, ?, ?, ?)",
		rec.LongURL, rec.ShortID, nullable(rec.CustomAlias), rec.CreatedAt,
	)
	if err != nil {
		return shortlink.Record{}, mapInsertError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return shortlink.Record{}, err
	}
	rec.ID = id
	rec.ClickCount = 0
	return rec, nil
}

func mapInsertError(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
		// 形如 "UNIQUE constraint failed: urls.custom_alias"
		if strings.Contains(se.Error(), "custom_alias") {
			return &shortlink.ConflictError{Field: shortlink.FieldCustomAlias}
		}
		return &shortlink.ConflictError{Field: shortlink.FieldShortID}
	}
	return err
}

func (s *Store) FindByShortID(ctx context.Context, shortID string) (shortlink.Record, error) {
	return s.findOne(ctx, "short_id", shortID)
}

func (s *Store) FindByAlias(ctx context.Context, alias string) (shortlink.Record, error) {
	return s.findOne(ctx, "custom_alias", alias)
}

func (s *Store) findOne(ctx context.Context, column, value string) (shortlink.Record, error) {
	dbctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	var (
		rec   shortlink.Record
		alias sql.NullString
	)
	err := s.db.QueryRowContext(dbctx,
		"SELECT id, long_url, short_id, custom_alias, click_count, created_at FROM urls WHERE "+column+" = ?",
		value,
	).Scan(&rec.ID, &rec.LongURL, &rec.ShortID, &alias, &rec.ClickCount, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return shortlink.Record{}, shortlink.ErrNotFound
	}
	if err != nil {
		return shortlink.Record{}, err
	}
	rec.CustomAlias = alias.String
	return rec, nil
}

func (s *Store) RecordClicks(ctx context.Context, clicks []shortlink.Click) error {
	if len(clicks) == 0 {
		return nil
	}
	dbctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(dbctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, c := range clicks {
		var id sql.NullInt64
		if err := tx.QueryRowContext(dbctx,
			"SELECT COALESCE((SELECT id FROM urls WHERE short_id = ?), (SELECT id FROM urls WHERE custom_alias = ?))",
			c.Token, c.Token,
		).Scan(&id); err != nil {
			return err
		}
		if !id.Valid {
			continue
		}
		if _, err := tx.ExecContext(dbctx, "UPDATE urls SET click_count = click_count + 1 WHERE id = ?", id.Int64); err != nil {
			return err
		}
		if _, err := tx.ExecContext(dbctx,
			"INSERT INTO url_clicks (url_id, clicked_at, user_agent, ip, referer) VALUES (?, ?, ?, ?, ?)",
			id.Int64, c.ClickedAt.UTC(), c.UserAgent, c.IP, c.Referer,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListClicks(ctx context.Context, recordID int64, limit int, cursor int64) ([]shortlink.Click, error) {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var (
		rows *sql.Rows
		err  error
	)
	const cols = "SELECT c.id, COALESCE(u.custom_alias, u.short_id), c.clicked_at, c.user_agent, c.ip, c.referer FROM url_clicks c JOIN urls u ON u.id = c.url_id"
	if cursor == 0 {
		rows, err = s.db.QueryContext(dbctx, cols+" WHERE c.url_id = ? ORDER BY c.id DESC LIMIT ?", recordID, limit)
	} else {
		rows, err = s.db.QueryContext(dbctx, cols+" WHERE c.url_id = ? AND c.id < ? ORDER BY c.id DESC LIMIT ?", recordID, cursor, limit)
	}
	if err != nil {
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
	rows, err := s.db.QueryContext(ctx, "SELECT short_id, COALESCE(custom_alias, '') FROM urls")
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
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
