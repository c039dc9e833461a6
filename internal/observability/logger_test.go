package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{
			name: "json format with debug level",
			config: Config{
				Level:     "debug",
				Format:    "json",
				AddSource: true,
			},
		},
		{
			name: "text format with info level",
			config: Config{
				Level:     "info",
				Format:    "text",
				AddSource: false,
			},
		},
		{
			name: "default values",
			config: Config{
				Level:  "info",
				Format: "text",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.config.Output = &buf

			logger := NewLogger(tt.config)
			require.NotNil(t, logger)
			assert.NotNil(t, logger.logger)
		})
	}
}

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		name      string
		logFunc   func(*Logger, string)
		logLevel  string
		message   string
		shouldLog bool
	}{
		{
			name:      "debug message at debug level",
			logFunc:   func(l *Logger, msg string) { l.Debug(msg) },
			logLevel:  "debug",
			message:   "debug message",
			shouldLog: true,
		},
		{
			name:      "debug message at info level",
			logFunc:   func(l *Logger, msg string) { l.Debug(msg) },
			logLevel:  "info",
			message:   "debug message",
			shouldLog: false,
		},
		{
			name:      "info message at info level",
			logFunc:   func(l *Logger, msg string) { l.Info(msg) },
			logLevel:  "info",
			message:   "info message",
			shouldLog: true,
		},
		{
			name:      "warn message at error level",
			logFunc:   func(l *Logger, msg string) { l.Warn(msg) },
			logLevel:  "error",
			message:   "warn message",
			shouldLog: false,
		},
		{
			name:      "error message at error level",
			logFunc:   func(l *Logger, msg string) { l.Error(msg) },
			logLevel:  "error",
			message:   "error message",
			shouldLog: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(Config{
				Level:  tt.logLevel,
				Format: "json",
				Output: &buf,
			})

			tt.logFunc(logger, tt.message)

			output := buf.String()
			if tt.shouldLog {
				assert.Contains(t, output, tt.message)
			} else {
				assert.Empty(t, output)
			}
		})
	}
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{
		Level:  "info",
		Format: "json",
		Output: &buf,
	})

	logger.Info("test message",
		"field1", "value1",
		"field2", 42,
		"field3", true,
	)

	output := buf.String()
	assert.Contains(t, output, "test message")
	assert.Contains(t, output, "field1")
	assert.Contains(t, output, "value1")
	assert.Contains(t, output, "field2")
	assert.Contains(t, output, "42")
	assert.Contains(t, output, "field3")
	assert.Contains(t, output, "true")
}

func TestLoggerWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{
		Level:  "info",
		Format: "json",
		Output: &buf,
	})

	ctx := context.Background()
	ctx = context.WithValue(ctx, CorrelationIDKey, "corr-123")
	ctx = context.WithValue(ctx, RepositoryKey, "acme-widgets")

	logger.InfoContext(ctx, "context test")

	output := buf.String()
	assert.Contains(t, output, "context test")
	assert.Contains(t, output, "corr-123")
	assert.Contains(t, output, "acme-widgets")
}

func TestLogIngestionPhase(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{
		Level:  "info",
		Format: "json",
		Output: &buf,
	})

	logger.LogIngestionPhase(context.Background(), "acme-widgets", "embedding", 62.5)

	output := buf.String()
	var logEntry map[string]interface{}
	err := json.Unmarshal([]byte(output), &logEntry)
	require.NoError(t, err)

	assert.Equal(t, "ingestion_phase", logEntry["msg"])
	assert.Equal(t, "acme-widgets", logEntry["repository"])
	assert.Equal(t, "embedding", logEntry["phase"])
	assert.Equal(t, 62.5, logEntry["percentage"])
}

func TestLogUpdateOutcome(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{
		Level:  "info",
		Format: "json",
		Output: &buf,
	})

	logger.LogUpdateOutcome(context.Background(), "acme-widgets", "success", 4200, 0)

	output := buf.String()
	var logEntry map[string]interface{}
	err := json.Unmarshal([]byte(output), &logEntry)
	require.NoError(t, err)

	assert.Equal(t, "update_outcome", logEntry["msg"])
	assert.Equal(t, "success", logEntry["status"])
	assert.Equal(t, float64(4200), logEntry["duration_ms"])
}

func TestLogRecoveryReport(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{
		Level:  "warn",
		Format: "json",
		Output: &buf,
	})

	logger.LogRecoveryReport("acme-widgets", 9000, "interrupted")

	output := buf.String()
	var logEntry map[string]interface{}
	err := json.Unmarshal([]byte(output), &logEntry)
	require.NoError(t, err)

	assert.Equal(t, "interrupted_update_detected", logEntry["msg"])
	assert.Equal(t, "acme-widgets", logEntry["repository"])
	assert.Equal(t, float64(9000), logEntry["elapsed_ms"])
}

func TestLogGraphSideEffect(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{
		Level:  "debug",
		Format: "json",
		Output: &buf,
	})

	logger.LogGraphSideEffect(context.Background(), "acme-widgets", "src/main.go", "ingest", nil)

	output := buf.String()
	var logEntry map[string]interface{}
	err := json.Unmarshal([]byte(output), &logEntry)
	require.NoError(t, err)
	assert.Equal(t, "graph_side_effect", logEntry["msg"])

	buf.Reset()
	logger.LogGraphSideEffect(context.Background(), "acme-widgets", "src/main.go", "ingest", assert.AnError)
	output = buf.String()
	err = json.Unmarshal([]byte(output), &logEntry)
	require.NoError(t, err)
	assert.Equal(t, "graph_side_effect_failed", logEntry["msg"])
	assert.NotNil(t, logEntry["error"])
}

func TestLoggerTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{
		Level:  "info",
		Format: "text",
		Output: &buf,
	})

	logger.Info("text format test", "key", "value")

	output := buf.String()
	assert.Contains(t, output, "text format test")
	assert.Contains(t, output, "key=value")
}

func TestLoggerInvalidLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{
		Level:  "invalid",
		Format: "json",
		Output: &buf,
	})

	logger.Debug("debug message")
	assert.Empty(t, buf.String())

	buf.Reset()
	logger.Info("info message")
	assert.NotEmpty(t, buf.String())
}

func TestLoggerConcurrency(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{
		Level:  "info",
		Format: "json",
		Output: &buf,
	})

	done := make(chan bool)
	iterations := 100

	for i := 0; i < 3; i++ {
		go func(id int) {
			for j := 0; j < iterations; j++ {
				logger.Info("concurrent log", "goroutine", id, "iteration", j)
			}
			done <- true
		}(i)
	}

	for i := 0; i < 3; i++ {
		<-done
	}

	output := buf.String()
	lines := strings.Split(strings.TrimSpace(output), "\n")
	assert.Equal(t, 3*iterations, len(lines))
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{
		Level:  "info",
		Format: "json",
		Output: &buf,
	})

	childLogger := logger.With("service", "repoindexer", "version", "1.0.0")
	childLogger.Info("test message")

	output := buf.String()
	assert.Contains(t, output, "repoindexer")
	assert.Contains(t, output, "1.0.0")
	assert.Contains(t, output, "test message")
}

func TestLoggerSentryBridge(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{
		Level:         "warn",
		Format:        "json",
		Output:        &buf,
		SentryEnabled: true,
	})

	// Sentry is uninitialized in this process; CaptureMessage is a no-op
	// without a configured client, so this only exercises pass-through.
	logger.Warn("disk nearly full", "repository", "acme-widgets")

	output := buf.String()
	assert.Contains(t, output, "disk nearly full")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.True(t, cfg.AddSource)
}

func TestUnderlying(t *testing.T) {
	logger := NewLogger(DefaultConfig())
	assert.NotNil(t, logger.Underlying())
}
