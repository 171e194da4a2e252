package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/johnayoung/go-oilprice-trend/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(line, &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestComponentLogger_ContextAttributes(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.DefaultConfig().Logging
	lm := NewLoggerManagerWithWriter(cfg, &buf)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithRPCCall(ctx, "GetOilPriceTrend", 7)

	lm.GetComponentLogger("rpc").InfoWithContext(ctx, "dispatching")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "dispatching", entry["msg"])
	assert.Equal(t, "rpc", entry["component"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "GetOilPriceTrend", entry["rpc_method"])
	assert.EqualValues(t, 7, entry["rpc_id"])
	assert.Equal(t, "oilprice-trend", entry["service"])
}

func TestLoggerManager_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.DefaultConfig().Logging
	cfg.Level = "warn"
	lm := NewLoggerManagerWithWriter(cfg, &buf)

	cl := lm.GetComponentLogger("cache")
	cl.DebugWithContext(context.Background(), "hidden")
	cl.InfoWithContext(context.Background(), "hidden")
	cl.WarnWithContext(context.Background(), "shown")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "WARN", entries[0]["level"])
}

func TestComponentLogger_LogOperation(t *testing.T) {
	var buf bytes.Buffer
	lm := NewLoggerManagerWithWriter(config.DefaultConfig().Logging, &buf)
	cl := lm.GetComponentLogger("cache")

	require.NoError(t, cl.LogOperation(context.Background(), "preload", func() error { return nil }))
	err := cl.LogOperation(context.Background(), "preload", func() error { return fmt.Errorf("upstream down") })
	require.Error(t, err)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 4)
	assert.Equal(t, "operation completed", entries[1]["msg"])
	assert.Equal(t, "operation failed", entries[3]["msg"])
	assert.Equal(t, "upstream down", entries[3]["error"])
}

func TestTraceAndRequestIDs(t *testing.T) {
	lm := NewLoggerManagerWithWriter(config.DefaultConfig().Logging, &bytes.Buffer{})
	_, ctx := NewTraceLogger(lm, "cli")
	assert.Len(t, GetTraceID(ctx), 36)

	assert.NotEqual(t, NewRequestID(), NewRequestID())
	assert.Equal(t, "", GetRequestID(context.Background()))
}

func TestNewLoggerManager_FileOutput(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig().Logging
	cfg.Output = "file"
	cfg.FilePath = filepath.Join(dir, "logs", "oilprice.log")

	lm, err := NewLoggerManager(cfg)
	require.NoError(t, err)
	lm.GetLogger().Info("written to file")
	require.NoError(t, lm.Close())

	data, err := os.ReadFile(cfg.FilePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")

	cfg.FilePath = ""
	_, err = NewLoggerManager(cfg)
	assert.Error(t, err)
}
