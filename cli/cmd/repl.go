package cmd

import (
	"context"

	"github.com/ardnew/quill/cli/cmd/repl"
	"github.com/ardnew/quill/scope"
)

// Repl starts an interactive session.
type Repl struct {
	File string `arg:"" help:"Component whose functions and variables are loaded first" optional:"" type:"existingfile"`
}

// Run executes the repl command.
func (r *Repl) Run(ctx context.Context) error {
	e := engineFrom(ctx)

	var cacheDir string
	if ktx := kongContextFrom(ctx); ktx != nil {
		cacheDir = ktx.Model.Vars()[CacheIdentifier]
	}

	return repl.Run(ctx, repl.Config{
		Runtime:  e.Runtime(),
		Context:  scope.New(),
		File:     r.File,
		CacheDir: cacheDir,
		Logger:   e.Logger,
	})
}
