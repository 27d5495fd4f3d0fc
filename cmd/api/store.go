package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"snipr.local/internal/app/shortlink"
	"snipr.local/internal/app/shortlink/store/memory"
	"snipr.local/internal/app/shortlink/store/postgres"
	"snipr.local/internal/app/shortlink/store/sqlite"
	"snipr.local/internal/platform/config"
	"snipr.local/internal/platform/db"
	"snipr.local/internal/platform/migrate"
	"snipr.local/migrations"
)

// openStore 按 STORE_DRIVER 打开存储。postgres 会在启动时执行迁移。
func openStore(ctx context.Context, cfg config.Config) (shortlink.Store, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		dbCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		pool, err := db.New(dbCtx, cfg.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if cfg.MigrateOnStart {
			res, err := migrate.Up(dbCtx, pool, migrations.FS)
			if err != nil {
				pool.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
			slog.Info("migrations done", "applied", len(res.AppliedFiles), "skipped", len(res.SkippedFiles), "took", res.Took)
		}
		slog.Info("数据库连接成功", "driver", cfg.StoreDriver)
		return postgres.New(pool), nil
	case config.StoreSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		slog.Info("数据库连接成功", "driver", cfg.StoreDriver, "path", cfg.SQLitePath)
		return s, nil
	case config.StoreMemory:
		slog.Warn("using in-memory store, data is lost on restart")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
