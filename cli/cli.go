package cli

import (
	"context"

	"github.com/alecthomas/kong"

	"github.com/ardnew/quill/cli/cmd"
	"github.com/ardnew/quill/pkg"
)

// CLI is the top-level command-line interface of quill.
type CLI struct {
	Log   logConfig   `embed:"" group:"log"   prefix:"log-"`
	Cache cacheConfig `embed:"" group:"cache" prefix:"cache-"`
	Pprof pprofConfig `embed:"" group:"pprof" prefix:"pprof-"`

	Run     cmd.Run     `cmd:"" help:"Execute a component and print its output"`
	Compile cmd.Compile `cmd:"" help:"Transpile components to Go"`
	Check   cmd.Check   `cmd:"" help:"Parse components and report errors"`
	Repl    cmd.Repl    `cmd:"" help:"Evaluate bindings and tags interactively"`
	Init    cmd.Init    `cmd:"" help:"Write the configuration file"`
	Version cmd.Version `cmd:"" help:"Print the version"`
}

// Run executes the quill CLI with args. Kong calls exit when it handles
// --help or a usage error.
func Run(
	ctx context.Context,
	exit func(code int),
	args ...string,
) error {
	var cli CLI

	if err := pkg.MkdirAll(); err != nil {
		return err
	}

	configFile := pkg.ConfigPath()

	vars := kong.Vars{
		cmd.ConfigIdentifier: configFile,
		cmd.CacheIdentifier:  pkg.CacheDir(),
	}.
		CloneWith(cli.Log.vars()).
		CloneWith(cli.Cache.vars()).
		CloneWith(cli.Pprof.vars())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Logger flags take effect before kong reports parse errors.
	cli.Log.scan(args)

	parser, err := kong.New(&cli,
		kong.Name(pkg.Name),
		kong.Description(pkg.Description),
		kong.UsageOnError(),
		kong.Exit(exit),
		kong.ExplicitGroups(
			[]kong.Group{cli.Log.group(), cli.Cache.group(), cli.Pprof.group()},
		),
		kong.BindSingletonProvider(func() context.Context {
			return ctx
		}),
		kong.ConfigureHelp(
			kong.HelpOptions{
				Compact:             true,
				Summary:             true,
				Tree:                true,
				NoExpandSubcommands: true,
			}),
		kong.Configuration(loadConfig, configFile),
		vars,
	)
	if err != nil {
		return err
	}

	ktx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	ctx = cmd.WithContext(ctx, ktx)

	cli.Log.start(ctx)

	engine := cli.Cache.engine()
	defer engine.Close(ctx)

	ctx = cmd.WithEngine(ctx, engine)

	// No-op unless built with the pprof tag and a mode is selected.
	defer cli.Pprof.start(ctx)()

	return ktx.Run(ctx, &cli)
}
