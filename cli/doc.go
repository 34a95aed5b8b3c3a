// Package cli contains the command line interface of quill.
//
// # Commands
//
//	run       execute a component and print its output
//	compile   transpile components to Go (targets go, tui, game)
//	check     parse components and report errors
//	repl      evaluate bindings and tags interactively
//	init      write the configuration file
//	version   print the version
//
// # Configuration
//
// Global flags may also be set in the YAML file at [pkg.ConfigPath], either
// flat with the full flag name or nested under the flag group:
//
//	log:
//	  level: debug
//	  pretty: true
//	cache-max-entries: 1024
//
// Values on the command line win over the file. "quill init" writes the
// current settings to the file.
//
// # Logging Options
//
//   - --log-level: minimum log level (trace, debug, info, warn, error)
//   - --log-format: output format (json, text)
//   - --[no-]log-pretty: colorized text output
//   - --log-time-layout: timestamp layout (RFC3339, Kitchen, ...)
//   - --[no-]log-caller: include the source location
//
// Logging flags are applied before the rest of the command line is parsed,
// so parse errors are reported in the selected format.
//
// # Cache Options
//
//   - --cache-max-entries: parsed components kept in memory
//   - --cache-exprs: compiled expressions kept in memory
//   - --[no-]cache-stats: log hit and miss counts on exit
//
// # Profiling Options
//
// Profiling is only available when built with the pprof build tag:
//
//	go build -tags pprof .
//
//   - --pprof-mode: profile to record (allocs, block, cpu, goroutine, heap,
//     mutex, thread, trace)
//   - --pprof-dir: profile output directory
//
// # Examples
//
//	quill run page.q --var user=Ada
//	quill compile --target tui -o build ./components
//	quill --log-level=debug check ./components
package cli
