package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"snipr.local/internal/platform/config"
)

// New 对外业务监听，地址取 cfg.Addr。
func New(cfg config.Config, handler http.Handler) *http.Server {
	return newServer(cfg, cfg.Addr, handler)
}

// NewAdmin 管理端口（metrics/readyz/pprof），只应监听本机或内网地址。
func NewAdmin(cfg config.Config, handler http.Handler) *http.Server {
	return newServer(cfg, cfg.AdminAddr, handler)
}

func newServer(cfg config.Config, addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		Addr:              addr,
	}
}

// Run 同时启动 servers，ctx 结束或任意一个监听失败时全部在 shutdownTimeout 内优雅关闭。
// 都是正常关闭时返回 nil，否则返回第一个错误。
func Run(ctx context.Context, shutdownTimeout time.Duration, servers ...*http.Server) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			slog.Info("http server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("shutdown %s: %w", srv.Addr, err)
			}
			slog.Info("http server stopped", "addr", srv.Addr)
			return nil
		})
	}
	return g.Wait()
}
