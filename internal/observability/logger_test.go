// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"aurora/internal/config"
)

// testWriteSyncer adapts a bytes.Buffer into a zapcore.WriteSyncer.
type testWriteSyncer struct {
	buf bytes.Buffer
}

func (w *testWriteSyncer) Write(p []byte) (int, error) { return w.buf.Write(p) }
func (w *testWriteSyncer) Sync() error                 { return nil }

func TestInitializeConsoleFormat(t *testing.T) {
	ResetForTest()
	defer ResetForTest()

	sink := &testWriteSyncer{}
	Initialize(config.LoggerConfig{
		Level:       "debug",
		Format:      "console",
		ServiceName: "aurora-test",
		Colors:      config.ColorConfig{Info: "green"},
	}, sink)

	logger := GetLogger()
	require.NotNil(t, logger)
	logger.Info("hello from test")
	_ = logger.Sync()

	out := sink.buf.String()
	assert.Contains(t, out, "hello from test")
	assert.Contains(t, out, "aurora-test")
	// Console format colorizes the level string.
	assert.Contains(t, out, "\x1b[32mINFO\x1b[0m")
}

func TestInitializeJSONFileSink(t *testing.T) {
	ResetForTest()
	defer ResetForTest()

	logFile := filepath.Join(t.TempDir(), "aurora.log")
	Initialize(config.LoggerConfig{
		Level:       "info",
		Format:      "json",
		ServiceName: "aurora-test",
		LogFile:     logFile,
	}, zapcore.AddSync(&testWriteSyncer{}))

	GetLogger().Info("file sink check")
	_ = GetLogger().Sync()

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "file sink check", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
}

func TestInitializeIsIdempotent(t *testing.T) {
	ResetForTest()
	defer ResetForTest()

	first := &testWriteSyncer{}
	second := &testWriteSyncer{}
	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "a"}, first)
	Initialize(config.LoggerConfig{Level: "debug", Format: "json", ServiceName: "b"}, second)

	GetLogger().Info("only once")
	_ = GetLogger().Sync()

	assert.Contains(t, first.buf.String(), "only once")
	assert.Empty(t, second.buf.String())
}

func TestGetLoggerBeforeInitializeFallsBack(t *testing.T) {
	ResetForTest()
	defer ResetForTest()

	logger := GetLogger()
	require.NotNil(t, logger)
}

func TestInvalidLevelDefaultsToInfo(t *testing.T) {
	ResetForTest()
	defer ResetForTest()

	sink := &testWriteSyncer{}
	Initialize(config.LoggerConfig{Level: "nonsense", Format: "json", ServiceName: "x"}, sink)

	GetLogger().Debug("should be suppressed")
	GetLogger().Info("should appear")
	_ = GetLogger().Sync()

	out := sink.buf.String()
	assert.NotContains(t, out, "should be suppressed")
	assert.Contains(t, out, "should appear")
}
