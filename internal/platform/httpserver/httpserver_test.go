package httpserver

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"snipr.local/internal/platform/config"
)

func TestNewUsesConfigAndHandler(t *testing.T) {
	cfg := config.Config{
		Addr:              "127.0.0.1:0",
		AdminAddr:         "127.0.0.1:6060",
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       3 * time.Second,
		WriteTimeout:      4 * time.Second,
		IdleTimeout:       5 * time.Second,
	}
	handler := http.NewServeMux()

	srv := New(cfg, handler)

	if srv.Addr != cfg.Addr {
		t.Fatalf("Addr: got %q, want %q", srv.Addr, cfg.Addr)
	}
	if srv.Handler != handler {
		t.Fatalf("Handler: got %T, want %T", srv.Handler, handler)
	}
	if srv.ReadHeaderTimeout != cfg.ReadHeaderTimeout {
		t.Fatalf("ReadHeaderTimeout: got %v, want %v", srv.ReadHeaderTimeout, cfg.ReadHeaderTimeout)
	}
	if srv.WriteTimeout != cfg.WriteTimeout {
		t.Fatalf("WriteTimeout: got %v, want %v", srv.WriteTimeout, cfg.WriteTimeout)
	}

	admin := NewAdmin(cfg, handler)
	if admin.Addr != cfg.AdminAddr {
		t.Fatalf("admin Addr: got %q, want %q", admin.Addr, cfg.AdminAddr)
	}
	if admin.IdleTimeout != cfg.IdleTimeout {
		t.Fatalf("admin IdleTimeout: got %v, want %v", admin.IdleTimeout, cfg.IdleTimeout)
	}
}

func TestRunCancelStopsAllServers(t *testing.T) {
	cfg := config.Config{
		Addr:              "127.0.0.1:0",
		AdminAddr:         "127.0.0.1:0",
		ReadHeaderTimeout: 500 * time.Millisecond,
		ReadTimeout:       500 * time.Millisecond,
		WriteTimeout:      500 * time.Millisecond,
		IdleTimeout:       500 * time.Millisecond,
	}
	public := New(cfg, http.NewServeMux())
	admin := NewAdmin(cfg, http.NewServeMux())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, 500*time.Millisecond, public, admin)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for shutdown")
	}
}

func TestRunListenErrorStopsOthers(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	busy := New(config.Config{Addr: ln.Addr().String()}, http.NewServeMux())
	healthy := NewAdmin(config.Config{AdminAddr: "127.0.0.1:0"}, http.NewServeMux())

	done := make(chan error, 1)
	go func() {
		done <- Run(context.Background(), time.Second, busy, healthy)
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected address-in-use error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("healthy server kept running after sibling failed")
	}
}
