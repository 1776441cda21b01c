// ABOUTME: Tests for logger construction and the color handler
// ABOUTME: Disables color so output can be compared as plain text

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/recgate/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.LoggingConfig{Level: "info", Format: "json"}, &buf)
	logger.Debug("hidden")
	logger.With("component", "gateway").Info("started", "port", 10151)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "started", rec["msg"])
	assert.Equal(t, "gateway", rec["component"])
	assert.EqualValues(t, 10151, rec["port"])
}

func TestTextFormat(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var buf bytes.Buffer
	logger := New(config.LoggingConfig{Level: "warn"}, &buf)
	logger.Info("hidden")
	logger.With("component", "registry").WithGroup("bind").Warn("bind failed", "backend", "127.0.0.1:10150")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WRN bind failed")
	assert.Contains(t, out, " component=registry")
	assert.Contains(t, out, " bind.backend=127.0.0.1:10150")
}
