package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "json", slog.LevelInfo, "snipr")

	l.Debug("hidden")
	l.Info("hello", "token", "demo")

	line := strings.TrimSpace(buf.String())
	require.NotEmpty(t, line)
	assert.NotContains(t, line, "hidden")

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "snipr", rec["service"])
	assert.Equal(t, "demo", rec["token"])
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "text", slog.LevelDebug, "")
	l.Debug("visible")
	assert.Contains(t, buf.String(), "msg=visible")
}
