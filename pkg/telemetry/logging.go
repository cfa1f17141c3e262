// Package telemetry configures structured logging. Display output and
// log output are strictly separate channels: the log carries full
// diagnostics, the display never does.
package telemetry

import (
	"io"
	"log/slog"
	"os"
)

// LogLevel reads the logging level from STANZA_LOG_LEVEL
// (DEBUG, INFO, WARN, ERROR; default INFO).
func LogLevel() slog.Level {
	switch os.Getenv("STANZA_LOG_LEVEL") {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger initializes the process logger and installs it as the
// slog default. Logs go to stderr — stdout belongs to the display.
//
// STANZA_LOG_FORMAT selects the handler: "text" for development,
// anything else (default) is JSON.
func SetupLogger() *slog.Logger {
	return SetupLoggerTo(os.Stderr)
}

// SetupLoggerTo is SetupLogger writing to w.
func SetupLoggerTo(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     LogLevel(),
		AddSource: LogLevel() == slog.LevelDebug,
	}

	var handler slog.Handler
	if os.Getenv("STANZA_LOG_FORMAT") == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// WithRunID returns a logger tagged with the run ID.
func WithRunID(logger *slog.Logger, runID string) *slog.Logger {
	return logger.With("run_id", runID)
}

// WithSession returns a logger tagged with the session ID.
func WithSession(logger *slog.Logger, sessionID string) *slog.Logger {
	return logger.With("session", sessionID)
}
