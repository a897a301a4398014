// Package logging provides structured logging configuration using log/slog.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds logging configuration options.
type Config struct {
	// Level is the minimum log level to output.
	Level slog.Level
	// JSON enables JSON output, for running under a log collector.
	JSON bool
	// Output is the writer to write logs to. Defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns a configuration read from LOG_LEVEL (DEBUG, INFO,
// WARN, ERROR; default INFO) and LOG_JSON (any strconv.ParseBool value).
func DefaultConfig() Config {
	return FromValues(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_JSON"))
}

// FromValues builds a Config from the raw LOG_LEVEL and LOG_JSON values.
// Unrecognized values fall back to INFO and text output.
func FromValues(level, json string) Config {
	lvl, _ := ParseLevel(level)
	asJSON, _ := strconv.ParseBool(strings.TrimSpace(json))
	return Config{
		Level:  lvl,
		JSON:   asJSON,
		Output: os.Stderr,
	}
}

// ParseLevel converts a level name to slog.Level. It returns LevelInfo and
// false for unknown names.
func ParseLevel(level string) (slog.Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO", "":
		return slog.LevelInfo, true
	case "WARN", "WARNING":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// New returns a logger for the configuration without touching the default logger.
func New(cfg Config) *slog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level: cfg.Level,
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = slog.NewTextHandler(cfg.Output, opts)
	}
	return slog.New(handler)
}

// Setup initializes the default slog logger with the given configuration.
func Setup(cfg Config) *slog.Logger {
	logger := New(cfg)
	slog.SetDefault(logger)
	return logger
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
