package cmd

import (
	"context"
	"fmt"
	"log/slog"
	goruntime "runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ardnew/quill/lang"
)

// Check parses component files with their imports and reports every
// error found.
type Check struct {
	Paths []string `arg:"" help:"Component files or directories" name:"path" type:"path"`

	Quiet bool `help:"Print nothing for components without errors." short:"q"`
	AST   bool `help:"Print the syntax tree of each component."`
}

// Run executes the check command.
func (c *Check) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancelCause(ctx)

	defer func(err *error) { cancel(*err) }(&err)

	files, err := collect(c.Paths)
	if err != nil {
		return err
	}

	e := engineFrom(ctx)
	errs := make([]error, len(files))
	nodes := make([]int, len(files))
	roots := make([]*lang.Component, len(files))

	var g errgroup.Group
	g.SetLimit(goruntime.GOMAXPROCS(0))

	for i, file := range files {
		g.Go(func() error {
			b, err := e.Components.Load(ctx, file)
			if err != nil {
				errs[i] = err

				return nil
			}

			roots[i] = b.Root

			for _, comp := range b.Components() {
				nodes[i] += lang.Count(comp)
			}

			return nil
		})
	}

	_ = g.Wait()

	out := stdout(ctx)
	failed := 0

	for i, file := range files {
		if errs[i] != nil {
			failed++

			e.Logger.ErrorContext(ctx, "check failed",
				slog.String("file", file),
				slog.Any("error", errs[i]))
			fmt.Fprintf(out, "%s: %v\n", file, errs[i])

			continue
		}

		if !c.Quiet {
			fmt.Fprintf(out, "%s: ok (%d nodes)\n", file, nodes[i])
		}

		if c.AST {
			if err := lang.Fprint(out, roots[i]); err != nil {
				return err
			}
		}
	}

	if failed > 0 {
		return ErrCheck.With(slog.Int("failed", failed), slog.Int("total", len(files)))
	}

	return nil
}
