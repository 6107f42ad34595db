// Package logging provides structured logging using slog.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Config holds logging configuration.
type Config struct {
	Format string // "json" | "text"
	Level  string // "debug" | "info" | "warn" | "error"
}

// Setup initializes the global slog logger based on configuration.
// Every log line carries the worker instance name so that runs from
// different consumers can be told apart in aggregated output.
func Setup(cfg Config) {
	level := parseLevel(cfg.Level)

	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level: level,
	}

	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler).With("instance", InstanceName()))
}

// parseLevel converts a string level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// InstanceName returns the identity of this worker instance. It is only
// used for log-line tagging, never for behavior.
func InstanceName() string {
	if name := os.Getenv("INSTANCE_NAME"); name != "" {
		return name
	}
	return "unknown"
}

// Component returns a logger with a component name.
func Component(name string) *slog.Logger {
	return slog.With("component", name)
}

// JobLogger creates a logger with per-job context fields.
func JobLogger(requestID, fileID string) *slog.Logger {
	return slog.With(
		"request_id", requestID,
		"file_id", fileID,
	)
}
