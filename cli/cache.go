package cli

import (
	"strconv"

	"github.com/alecthomas/kong"

	"github.com/ardnew/quill/binding"
	"github.com/ardnew/quill/cache"
	"github.com/ardnew/quill/cli/cmd"
	"github.com/ardnew/quill/log"
)

type cacheConfig struct {
	MaxEntries int  `default:"${cacheMaxEntries}" help:"Parsed components kept in the AST cache."`
	Exprs      int  `default:"${cacheExprs}"      help:"Compiled expressions kept in the expression cache."`
	Stats      bool `default:"false"              help:"Log cache statistics on exit."                     negatable:""`
}

func (cacheConfig) vars() kong.Vars {
	return kong.Vars{
		"cacheMaxEntries": strconv.Itoa(cache.DefaultMaxEntries),
		"cacheExprs":      strconv.Itoa(binding.DefaultMaxSize),
	}
}

func (cacheConfig) group() kong.Group {
	return kong.Group{Key: "cache", Title: "Cache options"}
}

// engine builds the caches shared by every component a command loads.
func (c cacheConfig) engine() *cmd.Engine {
	logger := log.Default()

	return &cmd.Engine{
		Components: cache.New(
			cache.WithMaxEntries(c.MaxEntries),
			cache.WithLogger(logger),
		),
		Expressions: binding.NewCache(
			binding.WithMaxSize(c.Exprs),
			binding.WithLogger(logger),
		),
		Logger: logger,
		Stats:  c.Stats,
	}
}
