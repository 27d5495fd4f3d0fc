package logger

import (
	"io"
	"log/slog"
	"os"
)

// New 按 format（json/text）创建日志，所有记录带上 service 字段。
func New(w io.Writer, format string, level slog.Level, service string) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if format == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	l := slog.New(h)
	if service != "" {
		l = l.With("service", service)
	}
	return l
}

// Init 创建并设置为默认 logger。
func Init(format string, level slog.Level, service string) *slog.Logger {
	l := New(os.Stdout, format, level, service)
	slog.SetDefault(l)
	return l
}
