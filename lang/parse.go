package lang

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ardnew/quill/log"
)

// DefaultPrefix marks control tags.
const DefaultPrefix = "q:"

// Option configures [Parse].
type Option func(*config)

type config struct {
	name   string
	file   string
	prefix string
	logger log.Logger
}

// WithName sets the component name. It defaults to the base name of the
// source file without extension.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// WithFile records the source path in positions and in [Component.Path].
func WithFile(path string) Option {
	return func(c *config) { c.file = path }
}

// WithPrefix changes the control tag prefix.
func WithPrefix(prefix string) Option {
	return func(c *config) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// WithLogger sets the logger used for parse diagnostics.
func WithLogger(logger log.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// Parse parses component source text.
//
// Malformed markup is reported as a *[SyntaxError] carrying the line and
// column of the fault.
func Parse(ctx context.Context, src string, opts ...Option) (*Component, error) {
	cfg := config{prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.name == "" {
		cfg.name = nameFromPath(cfg.file)
	}

	input := []byte(src)

	nodes, err := newScanner(input, cfg.file).scan()
	if err != nil {
		cfg.logger.DebugContext(ctx, "parse failed", slog.Any("error", err))

		return nil, err
	}

	b := &builder{prefix: cfg.prefix, src: input, logger: cfg.logger}

	comp, err := b.build(nodes, cfg.name, cfg.file)
	if err != nil {
		cfg.logger.DebugContext(ctx, "parse failed", slog.Any("error", err))

		return nil, err
	}

	comp.Size = len(input)

	cfg.logger.TraceContext(ctx, "parse complete",
		slog.String("component", comp.Name),
		slog.Int("nodes", Count(comp)),
		slog.Int("functions", len(comp.Functions)),
		slog.Int("imports", len(comp.Imports)))

	return comp, nil
}

// ParseReader parses component source read from r.
func ParseReader(ctx context.Context, r io.Reader, opts ...Option) (*Component, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, ErrReadInput.Wrap(err).With(slog.String("source", "reader"))
	}

	return Parse(ctx, string(data), opts...)
}

// ParseFile parses the component stored at path. The path is made absolute
// and recorded in the result. A missing file is reported as a
// *[NotFoundError].
func ParseFile(ctx context.Context, path string, opts ...Option) (*Component, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, ErrReadInput.Wrap(err).With(slog.String("path", path))
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{Path: abs, Err: err}
		}

		return nil, ErrReadInput.Wrap(err).With(slog.String("path", abs))
	}

	return Parse(ctx, string(data), append([]Option{WithFile(abs)}, opts...)...)
}

func nameFromPath(path string) string {
	if path == "" {
		return "component"
	}

	base := filepath.Base(path)

	return strings.TrimSuffix(base, filepath.Ext(base))
}
