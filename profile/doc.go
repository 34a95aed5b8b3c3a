// Package profile wraps [github.com/pkg/profile] for optional runtime
// profiling of the quill command.
//
// Profiling is compiled in only with the pprof build tag:
//
//	go build -tags pprof .
//	quill --pprof-mode=cpu run page.q
//
// Supported modes are allocs, block, clock, cpu, goroutine, heap, mem,
// mutex, thread and trace. Each mode writes into its own subdirectory of
// --pprof-dir, by default $XDG_CACHE_HOME/quill/pprof, and the result is
// read with go tool pprof.
//
// Without the tag [Modes] is empty and [Profiler.Start] returns a handle
// whose Stop does nothing.
package profile

// Tag is the build tag required to enable profiling.
const Tag = `pprof`
