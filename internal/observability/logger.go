// Package observability provides the structured logger and Prometheus
// metrics surface shared by every component of the indexing service.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/getsentry/sentry-go"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

const (
	// CorrelationIDKey is the context key for the per-operation
	// correlation identifier threaded through log lines and forge/
	// pipeline calls (spec.md §4.4, "Correlation IDs").
	CorrelationIDKey ContextKey = "correlation_id"
	// RepositoryKey is the context key for the repository name an
	// operation is acting on.
	RepositoryKey ContextKey = "repository"
)

// Logger wraps slog.Logger with context-aware methods and an optional
// Sentry bridge for warnings and errors.
type Logger struct {
	logger *slog.Logger
}

// Config configures the structured logger.
type Config struct {
	Level         string // debug, info, warn, error
	Format        string // json, text
	Output        io.Writer
	AddSource     bool
	SentryEnabled bool
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Format:    "json",
		Output:    os.Stdout,
		AddSource: true,
	}
}

// sentryHandler forwards Warn+ records to Sentry alongside the wrapped
// handler's own output.
type sentryHandler struct {
	next slog.Handler
}

func (h *sentryHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *sentryHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		attrs := map[string]interface{}{}
		r.Attrs(func(a slog.Attr) bool {
			attrs[a.Key] = a.Value.Any()
			return true
		})
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetContext("log", attrs)
			scope.SetTag("logger", "slog")
			scope.SetTag("level", r.Level.String())
			sentry.CaptureMessage(r.Message)
		})
	}
	return h.next.Handle(ctx, r)
}

func (h *sentryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &sentryHandler{next: h.next.WithAttrs(attrs)}
}

func (h *sentryHandler) WithGroup(name string) slog.Handler {
	return &sentryHandler{next: h.next.WithGroup(name)}
}

// NewLogger builds a Logger from Config.
func NewLogger(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(cfg.Output, opts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}
	if cfg.SentryEnabled {
		handler = &sentryHandler{next: handler}
	}
	return &Logger{logger: slog.New(handler)}
}

// WithContext pulls the correlation ID and repository name out of ctx
// and attaches them as structured fields.
func (l *Logger) WithContext(ctx context.Context) *slog.Logger {
	logger := l.logger
	if v, ok := ctx.Value(CorrelationIDKey).(string); ok && v != "" {
		logger = logger.With("correlation_id", v)
	}
	if v, ok := ctx.Value(RepositoryKey).(string); ok && v != "" {
		logger = logger.With("repository", v)
	}
	return logger
}

func (l *Logger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).Debug(msg, args...)
}
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).Info(msg, args...)
}
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).Warn(msg, args...)
}
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).Error(msg, args...)
}

// With returns a logger with additional attributes bound.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...)}
}

// LogIngestionPhase logs an ingestion pipeline phase transition.
func (l *Logger) LogIngestionPhase(ctx context.Context, repository, phase string, percentage float64) {
	l.WithContext(ctx).Info("ingestion_phase", "repository", repository, "phase", phase, "percentage", percentage)
}

// LogUpdateOutcome logs the result of an incremental update.
func (l *Logger) LogUpdateOutcome(ctx context.Context, repository, status string, durationMs int64, errorCount int) {
	l.WithContext(ctx).Info("update_outcome",
		"repository", repository, "status", status, "duration_ms", durationMs, "error_count", errorCount)
}

// LogRecoveryReport logs an interrupted-update finding at startup.
func (l *Logger) LogRecoveryReport(repository string, elapsedMs int64, status string) {
	l.logger.Warn("interrupted_update_detected", "repository", repository, "elapsed_ms", elapsedMs, "status", status)
}

// LogGraphSideEffect logs a graph ingest/delete side effect from the
// incremental update pipeline.
func (l *Logger) LogGraphSideEffect(ctx context.Context, repository, path, op string, err error) {
	if err != nil {
		l.WithContext(ctx).Warn("graph_side_effect_failed", "repository", repository, "path", path, "op", op, "error", err.Error())
		return
	}
	l.WithContext(ctx).Debug("graph_side_effect", "repository", repository, "path", path, "op", op)
}

// Underlying returns the wrapped *slog.Logger.
func (l *Logger) Underlying() *slog.Logger { return l.logger }
