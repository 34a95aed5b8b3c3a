package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ardnew/quill/transpile"
)

// Compile transpiles component files to Go source.
type Compile struct {
	Paths []string `arg:"" help:"Component files or directories" name:"path" type:"path"`

	Target     string `default:"go"         enum:"go,tui,game" help:"Generated program kind (${enum})." short:"t"`
	Out        string `help:"Output directory, stdout when empty and compiling one file." short:"o" type:"path"`
	Package    string `default:"components" help:"Package name of go target output."`
	NoOptimize bool   `help:"Disable the optimizer."`
}

// Run executes the compile command.
func (c *Compile) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancelCause(ctx)

	defer func(err *error) { cancel(*err) }(&err)

	target, err := transpile.ParseTarget(c.Target)
	if err != nil {
		return err
	}

	files, err := collect(c.Paths)
	if err != nil {
		return err
	}

	if c.Out == "" && len(files) > 1 {
		return ErrWriteOutput.With(slog.String("reason", "--out is required for more than one file"))
	}

	e := engineFrom(ctx)

	opts := []transpile.Option{
		transpile.WithPackage(c.Package),
		transpile.WithLogger(e.Logger),
	}
	if c.NoOptimize {
		opts = append(opts, transpile.WithoutOptimize())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(goruntime.GOMAXPROCS(0))

	written := make([]string, len(files))

	for i, file := range files {
		g.Go(func() error {
			comp, err := e.Components.GetOrParse(gctx, file)
			if err != nil {
				return err
			}

			src, err := transpile.Compile(gctx, comp, target, opts...)
			if err != nil {
				return err
			}

			if c.Out == "" {
				_, err = stdout(ctx).Write(src)

				return err
			}

			written[i], err = c.write(gctx, e, file, target, src)

			return err
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	for _, path := range written {
		if path != "" {
			fmt.Fprintln(stdout(ctx), path)
		}
	}

	return nil
}

// write stores src under the output directory: name.go for the go target
// and name/main.go for standalone programs.
func (c *Compile) write(ctx context.Context, e *Engine, file string, target transpile.Target, src []byte) (string, error) {
	name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))

	path := filepath.Join(c.Out, name+".go")
	if target.Standalone() {
		path = filepath.Join(c.Out, name, "main.go")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", ErrWriteOutput.Wrap(err).With(slog.String("file", path))
	}

	if err := os.WriteFile(path, src, 0o644); err != nil {
		return "", ErrWriteOutput.Wrap(err).With(slog.String("file", path))
	}

	e.Logger.DebugContext(ctx, "wrote generated source",
		slog.String("component", file),
		slog.String("file", path),
		slog.Int("bytes", len(src)))

	return path, nil
}
