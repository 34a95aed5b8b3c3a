package log

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
)

// DefaultContextProvider returns the context used by the logging methods that
// do not take one.
var DefaultContextProvider = context.TODO

var defaultLog atomic.Pointer[Logger]

func init() {
	l := Make(os.Stderr)
	defaultLog.Store(&l)
}

// Default returns the package logger.
func Default() Logger { return *defaultLog.Load() }

// Config reconfigures the package logger with opts.
func Config(opts ...Option) {
	l := Default().Wrap(opts...)
	defaultLog.Store(&l)
}

// TraceContext logs at Trace level using the package logger.
func TraceContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	Default().write(ctx, LevelTrace, msg, attrs)
}

// DebugContext logs at Debug level using the package logger.
func DebugContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	Default().write(ctx, LevelDebug, msg, attrs)
}

// Debug logs at Debug level using the package logger.
func Debug(msg string, attrs ...slog.Attr) {
	Default().write(DefaultContextProvider(), LevelDebug, msg, attrs)
}

// InfoContext logs at Info level using the package logger.
func InfoContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	Default().write(ctx, LevelInfo, msg, attrs)
}

// Info logs at Info level using the package logger.
func Info(msg string, attrs ...slog.Attr) {
	Default().write(DefaultContextProvider(), LevelInfo, msg, attrs)
}

// WarnContext logs at Warn level using the package logger.
func WarnContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	Default().write(ctx, LevelWarn, msg, attrs)
}

// ErrorContext logs at Error level using the package logger.
func ErrorContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	Default().write(ctx, LevelError, msg, attrs)
}

// Error logs at Error level using the package logger.
func Error(msg string, attrs ...slog.Attr) {
	Default().write(DefaultContextProvider(), LevelError, msg, attrs)
}

// With returns the package logger with attrs added to every message.
func With(attrs ...slog.Attr) Logger {
	return Default().With(attrs...)
}
