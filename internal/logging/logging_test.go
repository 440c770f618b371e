package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("chatty"))
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "info", "json")
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("fused", "count", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "fused", rec["msg"])
	assert.Equal(t, float64(3), rec["count"])
}

func TestNewUnknownFormat(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "info", "xml")
	assert.Error(t, err)
}

func TestPrettyHandler(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "debug", "pretty")
	require.NoError(t, err)

	logger.With("component", "fusion").WithGroup("source").Warn("source failed", "name", "web", "err", "quota exceeded")

	line := buf.String()
	assert.True(t, strings.HasSuffix(line, "\n"))
	assert.Contains(t, line, "WARN  source failed")
	assert.Contains(t, line, "component=fusion")
	assert.Contains(t, line, "source.name=web")
	assert.Contains(t, line, `source.err="quota exceeded"`)
}

func TestPrettyHandlerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "warn", "pretty")
	require.NoError(t, err)

	logger.Info("quiet")
	assert.Empty(t, buf.String())
	logger.Error("loud")
	assert.Contains(t, buf.String(), "ERROR loud")
}

func TestDiscard(t *testing.T) {
	Discard().Error("nothing happens")
}
