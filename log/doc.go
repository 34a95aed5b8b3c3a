// Package log provides the structured logger used throughout quill. It is a
// thin, concurrency-safe layer over [log/slog] that adds a Trace level below
// Debug and applies all configuration at construction time through
// functional options.
//
// # Basic Usage
//
//	logger := log.Make(os.Stderr, log.WithLevel(log.LevelDebug))
//	logger.Info("component executed", slog.String("path", path))
//
// The zero [Logger] discards everything, so library types can embed one
// without requiring callers to configure logging.
//
// # Package Logger
//
// The package-level functions ([Info], [Debug], ...) write through a default
// logger that the CLI reconfigures with [Config] once flags are parsed.
//
// # Output Formats
//
// [FormatJSON] (default) and [FormatText] are supported. With [WithPretty],
// text output is colorized with lipgloss styles and JSON output is indented.
package log
