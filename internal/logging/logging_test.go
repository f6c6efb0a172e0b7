package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFromString(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LevelFromString("DEBUG"))
	assert.Equal(t, slog.LevelInfo, LevelFromString(" info "))
	assert.Equal(t, slog.LevelWarn, LevelFromString("warning"))
	assert.Equal(t, slog.LevelError, LevelFromString("error"))
	assert.Equal(t, slog.LevelWarn, LevelFromString("chatty"))
}

func TestLevelFromVerbosity(t *testing.T) {
	assert.Equal(t, slog.LevelWarn, LevelFromVerbosity(slog.LevelWarn, 0))
	assert.Equal(t, slog.LevelInfo, LevelFromVerbosity(slog.LevelWarn, 1))
	assert.Equal(t, slog.LevelDebug, LevelFromVerbosity(slog.LevelDebug, 1))
	assert.Equal(t, slog.LevelDebug, LevelFromVerbosity(slog.LevelError, 3))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo, "json")
	logger.Debug("hidden")
	logger.Info("scan finished", "files", 3)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "scan finished", line["msg"])
	assert.EqualValues(t, 3, line["files"])

	buf.Reset()
	NewLogger(&buf, slog.LevelWarn, "text").Warn("slow query", "api", "useState")
	assert.Contains(t, buf.String(), "api=useState")

	NewDiscardLogger().Error("nothing")
}
