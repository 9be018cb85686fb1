// Package logging builds the slog loggers used by the binaries and carries a
// request- or run-scoped logger through context.
//
//	logger := logging.NewLogger()
//	slog.SetDefault(logger)
//	runLogger := logging.WithRunID(logger, runID)
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config selects the handler. The zero value logs JSON at info to stdout.
type Config struct {
	// Format is "json" or "text".
	Format string
	Level  slog.Level
	Output io.Writer
}

// ConfigFromEnv reads LOG_LEVEL (debug, info, warn, error) and LOG_FORMAT
// (json, text). Unknown values fall back to info and json.
func ConfigFromEnv() Config {
	cfg := Config{Format: "json", Level: slog.LevelInfo}
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		cfg.Level = slog.LevelDebug
	case "warn", "warning":
		cfg.Level = slog.LevelWarn
	case "error":
		cfg.Level = slog.LevelError
	}
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "text") {
		cfg.Format = "text"
	}
	return cfg
}

// New builds a logger from cfg. Source locations are added at debug level.
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: cfg.Level, AddSource: cfg.Level <= slog.LevelDebug}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(out, opts))
	}
	return slog.New(slog.NewJSONHandler(out, opts))
}

// NewLogger is New(ConfigFromEnv()).
func NewLogger() *slog.Logger {
	return New(ConfigFromEnv())
}

// NewTextLogger ignores LOG_FORMAT and always logs text, for CLI tools.
func NewTextLogger() *slog.Logger {
	cfg := ConfigFromEnv()
	cfg.Format = "text"
	return New(cfg)
}

// WithRunID tags every entry of one matching or sync run.
func WithRunID(logger *slog.Logger, runID string) *slog.Logger {
	return logger.With(slog.String("run_id", runID))
}

type loggerKey struct{}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored by WithLogger, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
