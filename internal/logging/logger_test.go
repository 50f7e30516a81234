package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLevelString(t *testing.T) {
	testCases := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LevelFatal, "FATAL"},
		{LogLevel(99), "UNKNOWN"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.level.String())
		})
	}
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, LevelDebug, level)

	level, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, LevelInfo, level)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestJSONLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelDebug, Format: "json", Output: &buf})

	logger.WithComponent("vfs").With("path", "/index.html").
		Warn(context.Background(), errors.New("boom"), "write failed", "size", 3)

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	assert.Equal(t, "write failed", record["msg"])
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "vfs", record["component"])
	assert.Equal(t, "boom", record["error"])
	assert.Equal(t, "/index.html", record["path"])
	assert.Equal(t, float64(3), record["size"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelWarn, Output: &buf})

	logger.Debug(context.Background(), "hidden")
	logger.Info(context.Background(), "hidden too")
	assert.Empty(t, buf.String())

	logger.Error(context.Background(), nil, "shown")
	assert.True(t, strings.Contains(buf.String(), "shown"))
}

func TestNopLogger(t *testing.T) {
	logger := NewNop()
	assert.NotPanics(t, func() {
		logger.Info(context.Background(), "nothing")
		logger.Fatal(context.Background(), errors.New("x"), "still nothing")
	})
}

func TestSanitizeForLog(t *testing.T) {
	assert.Equal(t, "short", SanitizeForLog("short"))

	long := strings.Repeat("a", 300)
	out := SanitizeForLog(long)
	assert.True(t, strings.HasSuffix(out, "...[TRUNCATED]"))
	assert.Len(t, out, 200+len("...[TRUNCATED]"))
}
