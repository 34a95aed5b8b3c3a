package log

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"time"
)

// Logger is a structured logger. Logger values are cheap to copy and safe for
// concurrent use; the zero Logger discards all messages.
type Logger struct {
	sl  *slog.Logger
	cfg config
}

// Make creates a [Logger] writing to w configured by opts.
func Make(w io.Writer, opts ...Option) Logger {
	cfg := makeConfig(w, opts...)

	return Logger{sl: slog.New(cfg.handler()), cfg: cfg}
}

// Wrap returns a new Logger using the receiver's configuration overridden by
// opts. Attributes added with [Logger.With] are not carried over.
func (l Logger) Wrap(opts ...Option) Logger {
	if l.sl == nil {
		return Make(io.Discard, opts...)
	}

	cfg := l.cfg.apply(opts...)

	return Logger{sl: slog.New(cfg.handler()), cfg: cfg}
}

// With returns a Logger that adds attrs to every message.
func (l Logger) With(attrs ...slog.Attr) Logger {
	if l.sl == nil || len(attrs) == 0 {
		return l
	}

	return Logger{sl: slog.New(l.sl.Handler().WithAttrs(attrs)), cfg: l.cfg}
}

// Level returns the minimum level of the logger.
func (l Logger) Level() Level {
	if l.sl == nil {
		return DefaultLevel
	}

	return l.cfg.level
}

// Format returns the output format of the logger.
func (l Logger) Format() Format {
	if l.sl == nil {
		return DefaultFormat
	}

	return l.cfg.format
}

// Enabled reports whether messages at level would be written.
func (l Logger) Enabled(ctx context.Context, level Level) bool {
	return l.sl != nil && l.sl.Enabled(ctx, slog.Level(level))
}

// Slog returns the underlying slog.Logger, or a discarding one for the zero
// Logger.
func (l Logger) Slog() *slog.Logger {
	if l.sl == nil {
		return slog.New(slog.DiscardHandler)
	}

	return l.sl
}

// Log writes msg at an arbitrary level.
func (l Logger) Log(ctx context.Context, level Level, msg string, attrs ...slog.Attr) {
	l.write(ctx, level, msg, attrs)
}

// TraceContext logs at Trace level.
func (l Logger) TraceContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.write(ctx, LevelTrace, msg, attrs)
}

// Trace logs at Trace level.
func (l Logger) Trace(msg string, attrs ...slog.Attr) {
	l.write(DefaultContextProvider(), LevelTrace, msg, attrs)
}

// DebugContext logs at Debug level.
func (l Logger) DebugContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.write(ctx, LevelDebug, msg, attrs)
}

// Debug logs at Debug level.
func (l Logger) Debug(msg string, attrs ...slog.Attr) {
	l.write(DefaultContextProvider(), LevelDebug, msg, attrs)
}

// InfoContext logs at Info level.
func (l Logger) InfoContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.write(ctx, LevelInfo, msg, attrs)
}

// Info logs at Info level.
func (l Logger) Info(msg string, attrs ...slog.Attr) {
	l.write(DefaultContextProvider(), LevelInfo, msg, attrs)
}

// WarnContext logs at Warn level.
func (l Logger) WarnContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.write(ctx, LevelWarn, msg, attrs)
}

// Warn logs at Warn level.
func (l Logger) Warn(msg string, attrs ...slog.Attr) {
	l.write(DefaultContextProvider(), LevelWarn, msg, attrs)
}

// ErrorContext logs at Error level.
func (l Logger) ErrorContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.write(ctx, LevelError, msg, attrs)
}

// Error logs at Error level.
func (l Logger) Error(msg string, attrs ...slog.Attr) {
	l.write(DefaultContextProvider(), LevelError, msg, attrs)
}

// callerSkip skips runtime.Callers, write and the exported level method.
const callerSkip = 3

func (l Logger) write(
	ctx context.Context,
	level Level,
	msg string,
	attrs []slog.Attr,
) {
	if l.sl == nil {
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}

	h := l.sl.Handler()
	if !h.Enabled(ctx, slog.Level(level)) {
		return
	}

	var pcs [1]uintptr
	if l.cfg.caller {
		runtime.Callers(callerSkip, pcs[:])
	}

	r := slog.NewRecord(time.Now(), slog.Level(level), msg, pcs[0])
	r.AddAttrs(attrs...)
	_ = h.Handle(ctx, r)
}
