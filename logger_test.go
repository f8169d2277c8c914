package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"DEBUG":   zapcore.DebugLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"info":    zapcore.InfoLevel,
		"bogus":   zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}

	for input, want := range tests {
		assert.Equal(t, want, parseLevel(input), input)
	}
}

func TestNewLoggerWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labeler.log")

	logger, err := NewLogger(LogSettings{Level: "info", OutputPaths: []string{path}})
	require.NoError(t, err)

	logger = logger.With(String("run_id", "run-1"))
	logger.Debug("hidden")
	logger.Info("result saved", String("url", "https://a.com"), Int("decision_human", 1),
		Bool("flipped", false), Float64("confidence", 90), Duration("elapsed", time.Second), Err(errors.New("boom")))
	require.NoError(t, logger.Sync())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 1, "debug entries are filtered at info level")

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "result saved", entry["msg"])
	assert.Equal(t, "run-1", entry["run_id"])
	assert.Equal(t, "https://a.com", entry["url"])
	assert.EqualValues(t, 1, entry["decision_human"])
	assert.Equal(t, "boom", entry["error"])
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	logger.Info("ignored", String("k", "v"))
	assert.NoError(t, logger.With(String("k", "v")).Sync())
}
