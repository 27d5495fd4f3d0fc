package migrate

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// lockKey 是 pg_advisory_xact_lock 的 key，多个副本同时启动时只有一个在跑迁移。
const lockKey int64 = 0x736e697072 // "snipr"

// DB is the subset of *pgxpool.Pool the migrator needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Result struct {
	AppliedFiles []string
	SkippedFiles []string
	Took         time.Duration
}

// Up applies every *.sql file at the root of fsys that is not yet recorded in
// schema_migrations, in lexical order.
//
// Each file runs in its own transaction holding an advisory lock; the applied
// check happens under the lock so a file is never applied twice.
func Up(ctx context.Context, db DB, fsys fs.FS) (*Result, error) {
	start := time.Now()
	if err := ensureTable(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations: %w", err)
	}

	names, err := listSQLFiles(fsys)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for _, name := range names {
		applied, err := applyFile(ctx, db, fsys, name)
		if err != nil {
			return nil, err
		}
		if !applied {
			res.SkippedFiles = append(res.SkippedFiles, name)
			continue
		}
		slog.InfoContext(ctx, "migration applied", "file", name)
		res.AppliedFiles = append(res.AppliedFiles, name)
	}
	res.Took = time.Since(start)
	return res, nil
}

func ensureTable(ctx context.Context, db DB) error {
	_, err := db.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version TEXT PRIMARY KEY,
  applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
	return err
}

func listSQLFiles(fsys fs.FS) ([]string, error) {
	dirEntries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	names := make([]string, 0, len(dirEntries))
	for _, d := range dirEntries {
		if !d.IsDir() && strings.HasSuffix(strings.ToLower(d.Name()), ".sql") {
			names = append(names, d.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// applyFile 返回 false 表示该文件已经应用过（可能是别的副本刚应用的）。
func applyFile(ctx context.Context, db DB, fsys fs.FS, name string) (bool, error) {
	sqlBytes, err := fs.ReadFile(fsys, name)
	if err != nil {
		return false, fmt.Errorf("read migration %s: %w", name, err)
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin migration %s: %w", name, err)
	}
	defer tx.Rollback(ctx)

	// 事务结束自动释放
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey); err != nil {
		return false, fmt.Errorf("lock migration %s: %w", name, err)
	}

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, name).Scan(&exists); err != nil {
		return false, fmt.Errorf("check migration %s: %w", name, err)
	}
	if exists {
		return false, nil
	}

	if _, err := tx.Exec(ctx, string(sqlBytes)); err != nil {
		return false, fmt.Errorf("apply migration %s: %w", name, err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES ($1,$2)`, name, time.Now()); err != nil {
		return false, fmt.Errorf("record migration %s: %w", name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit migration %s: %w", name, err)
	}
	return true, nil
}
