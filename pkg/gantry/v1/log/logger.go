// Package log defines the public logging interface used across gantry packages.
package log

import (
	"context"
	"log/slog"
)

// Logger defines the public interface for logging operations within gantry.
// It allows the pipeline core and its collaborators to share one logging
// contract regardless of the underlying implementation. It mirrors common
// structured-logging patterns found in libraries like slog.
type Logger interface {
	// Debugf logs a formatted message at the DEBUG level.
	// Arguments are handled in the manner of fmt.Sprintf.
	Debugf(format string, args ...interface{})
	// Infof logs a formatted message at the INFO level.
	Infof(format string, args ...interface{})
	// Warnf logs a formatted message at the WARN level.
	Warnf(format string, args ...interface{})
	// Errorf logs a formatted message at the ERROR level. Implementations
	// should check whether the last argument is an error and log it
	// structurally when it is.
	Errorf(format string, args ...interface{})

	// Log logs a message at the specified slog.Level with additional
	// key-value attributes. This is the primary structured logging method.
	Log(level slog.Level, msg string, args ...interface{})
	// LogCtx logs a message at the specified slog.Level, including context
	// information such as trace IDs when the implementation supports it.
	LogCtx(ctx context.Context, level slog.Level, msg string, args ...interface{})

	// With returns a new Logger instance with the specified attributes added
	// to all subsequent log entries.
	With(args ...interface{}) Logger
	// IsEnabled reports whether the logger emits entries at the given level.
	IsEnabled(level slog.Level) bool
}
