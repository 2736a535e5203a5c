// Package logger sets up the process-wide slog logger for the tcpchat
// commands.
package logger

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
)

// DebugFromEnv reports whether DEBUG=true is set.
func DebugFromEnv() bool {
	return os.Getenv("DEBUG") == "true"
}

// New returns a text logger writing to w. Debug enables debug level logging
// with source locations.
func New(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})
	return slog.New(handler)
}

// Init installs a stdout logger as the global and slog default logger.
func Init(debug bool) *slog.Logger {
	l := New(os.Stdout, debug)
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
	slog.SetDefault(l)
	return l
}

// Logger returns the global logger, initializing it from DEBUG on first use.
func Logger() *slog.Logger {
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	if l == nil {
		return Init(DebugFromEnv())
	}
	return l
}

// Debug logs at Debug level.
func Debug(msg string, args ...any) {
	Logger().Debug(msg, args...)
}

// Info logs at Info level.
func Info(msg string, args ...any) {
	Logger().Info(msg, args...)
}

// Warn logs at Warn level.
func Warn(msg string, args ...any) {
	Logger().Warn(msg, args...)
}

// Error logs at Error level.
func Error(msg string, args ...any) {
	Logger().Error(msg, args...)
}

// Fatal logs at Error level and then exits.
func Fatal(msg string, args ...any) {
	Logger().Error(msg, args...)
	os.Exit(1)
}

// With returns a new logger with the given attributes.
func With(args ...any) *slog.Logger {
	return Logger().With(args...)
}
