package cmd

import (
	"context"
	"fmt"
	goruntime "runtime"

	"github.com/ardnew/quill/pkg"
	"github.com/ardnew/quill/profile"
)

// Version prints the version of quill.
type Version struct {
	Verbose bool `help:"Include build details." short:"V"`
}

// Run executes the version command.
func (v *Version) Run(ctx context.Context) error {
	out := stdout(ctx)

	if !v.Verbose {
		_, err := fmt.Fprintf(out, "%s %s\n", pkg.Name, pkg.Version)

		return err
	}

	_, err := fmt.Fprintf(out, "%s %s\n  go:       %s\n  platform: %s/%s\n  pprof:    %t\n",
		pkg.Name, pkg.Version, goruntime.Version(), goruntime.GOOS, goruntime.GOARCH, profile.Enabled())

	return err
}
