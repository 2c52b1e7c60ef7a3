// File: internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mailforge/mailforge-cli/internal/config"
)

// setupTestLogger initializes the global logger to write to a buffer.
func setupTestLogger(cfg config.LoggerConfig) *bytes.Buffer {
	buf := new(bytes.Buffer)
	Initialize(cfg, zapcore.AddSync(buf))
	return buf
}

func TestInitialize(t *testing.T) {

	t.Run("console format colorizes the level", func(t *testing.T) {
		ResetForTest()

		cfg := config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "TestService",
		}
		buf := setupTestLogger(cfg)

		GetLogger().Info("This is a test message.")
		Sync()

		output := buf.String()
		assert.Contains(t, output, "INFO", "Output should contain the log level")
		assert.Contains(t, output, "This is a test message.")
		assert.Contains(t, output, colorGreen, "Info level should be colorized green")
		assert.Contains(t, output, colorReset)
	})

	t.Run("json format produces structured entries", func(t *testing.T) {
		ResetForTest()

		cfg := config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "JSONTest",
		}
		buf := setupTestLogger(cfg)

		GetLogger().Warn("This is a JSON message.", zap.String("key", "value"))
		Sync()

		var logEntry map[string]interface{}
		err := json.Unmarshal(buf.Bytes(), &logEntry)
		require.NoError(t, err, "Log output should be valid JSON")

		assert.Equal(t, "WARN", logEntry["level"])
		assert.Equal(t, "JSONTest", logEntry["logger"])
		assert.Equal(t, "This is a JSON message.", logEntry["msg"])
		assert.Equal(t, "value", logEntry["key"])
	})

	t.Run("writes to a log file when configured", func(t *testing.T) {
		ResetForTest()

		logFile := filepath.Join(t.TempDir(), "mailforge-test.log")
		cfg := config.LoggerConfig{
			Level:   "debug",
			Format:  "console",
			LogFile: logFile,
			MaxSize: 1,
		}
		// Discard console output; only the file core matters here.
		Initialize(cfg, zapcore.AddSync(io.Discard))

		GetLogger().Error("This should go to the file.")
		Sync()

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "This should go to the file.")

		// The file core is always JSON regardless of the console format.
		var logEntry map[string]interface{}
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(content), &logEntry))
		assert.Equal(t, "ERROR", logEntry["level"])
	})

	t.Run("initializes only once", func(t *testing.T) {
		ResetForTest()

		cfg1 := config.LoggerConfig{Level: "info", Format: "console", ServiceName: "First"}
		buf1 := setupTestLogger(cfg1)
		logger1 := GetLogger()

		// The second initialization is ignored by the sync.Once.
		cfg2 := config.LoggerConfig{Level: "debug", Format: "console", ServiceName: "Second"}
		buf2 := setupTestLogger(cfg2)
		logger2 := GetLogger()

		assert.Equal(t, logger1, logger2)
		logger2.Info("test message")
		Sync()

		output := buf1.String()
		assert.Contains(t, output, "First")
		assert.Contains(t, output, "test message")
		assert.NotContains(t, output, "Second")
		assert.Empty(t, buf2.String())
	})
}

func TestGetLogger(t *testing.T) {
	t.Run("returns a fallback logger before initialization", func(t *testing.T) {
		ResetForTest()

		logger := GetLogger()
		require.NotNil(t, logger)
		// The fallback must never panic on use.
		logger.Debug("fallback logger in use")
	})

	t.Run("returns the global logger after initialization", func(t *testing.T) {
		ResetForTest()

		cfg := config.LoggerConfig{Level: "info", Format: "json", ServiceName: "GlobalTest"}
		Initialize(cfg, zapcore.AddSync(io.Discard))

		logger := GetLogger()
		assert.Equal(t, globalLogger.Load(), logger)
	})
}
