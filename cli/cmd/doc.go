// Package cmd implements the quill subcommands: run, compile, check, repl,
// init and version.
package cmd

var (
	// CacheIdentifier is the kong variable holding the cache directory.
	CacheIdentifier = "cache"

	// ConfigIdentifier is the kong variable holding the configuration file
	// path.
	ConfigIdentifier = "config"
)
