package cli

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/ardnew/quill/log"
)

// logFormat configures the default logger as kong parses --log-format, so
// the format applies to parse errors too.
type logFormat string

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *logFormat) UnmarshalText(text []byte) error {
	*f = logFormat(text)
	log.Config(log.WithFormat(log.ParseFormat(string(*f))))

	return nil
}

// logLevel configures the default logger as kong parses --log-level.
type logLevel string

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *logLevel) UnmarshalText(text []byte) error {
	*l = logLevel(text)
	log.Config(log.WithLevel(log.ParseLevel(string(*l))))

	return nil
}

type logConfig struct {
	Level      logLevel  `default:"info"    enum:"${logLevels}" help:"Set log level."`
	Format     logFormat `default:"text"    enum:"json,text"    help:"Set log format."`
	TimeLayout string    `default:"RFC3339"                     help:"Set timestamp format."`
	Caller     bool      `default:"false"                       help:"Include caller information."       negatable:""`
	Pretty     bool      `default:"true"                        help:"Enable colorized pretty printing." negatable:""`
}

func (*logConfig) vars() kong.Vars {
	var levels []string
	for l := range log.Levels() {
		levels = append(levels, l)
	}

	return kong.Vars{"logLevels": strings.Join(levels, ",")}
}

func (*logConfig) group() kong.Group {
	return kong.Group{Key: "log", Title: "Logging options"}
}

func (f *logConfig) start(ctx context.Context) {
	log.Config(
		log.WithLevel(log.ParseLevel(string(f.Level))),
		log.WithFormat(log.ParseFormat(string(f.Format))),
		log.WithTimeLayout(f.TimeLayout),
		log.WithCaller(f.Caller),
		log.WithPretty(f.Pretty),
	)

	log.DebugContext(ctx, "logger initialized",
		slog.String("level", string(f.Level)),
		slog.String("format", string(f.Format)),
		slog.String("time", f.TimeLayout),
		slog.Bool("caller", f.Caller),
		slog.Bool("pretty", f.Pretty),
	)
}

// scan applies logger flags found anywhere in args before kong parses
// them. Boolean flags never reach an UnmarshalText method, so they are
// only applied here.
func (f *logConfig) scan(args []string) {
	for i := 0; i < len(args); i++ {
		name, val, assigned := strings.Cut(args[i], "=")

		// next consumes the following argument as the value of name.
		next := func() string {
			if !assigned && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				i++

				return args[i]
			}

			return val
		}

		// flag parses the value of a boolean flag, negated by --no-.
		flag := func(negated bool) (bool, bool) {
			if !assigned {
				return !negated, true
			}

			b, err := strconv.ParseBool(val)

			return b != negated, err == nil
		}

		switch name {
		case "--log-level":
			_ = f.Level.UnmarshalText([]byte(next()))

		case "--log-format":
			_ = f.Format.UnmarshalText([]byte(next()))

		case "--log-pretty", "--no-log-pretty":
			if b, ok := flag(strings.HasPrefix(name, "--no-")); ok {
				f.Pretty = b
				log.Config(log.WithPretty(b))
			}

		case "--log-caller", "--no-log-caller":
			if b, ok := flag(strings.HasPrefix(name, "--no-")); ok {
				f.Caller = b
				log.Config(log.WithCaller(b))
			}

		case "--":
			return
		}
	}
}
