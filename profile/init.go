package profile

// Profiler selects a profiling mode and the directory receiving its
// output.
type Profiler struct {
	Mode  string
	Path  string
	Quiet bool
}

// Start begins profiling and returns the handle that stops it. Without the
// pprof build tag, or with an empty or unknown Mode, Start does nothing.
// Stop is always safe to call.
func (p Profiler) Start() interface{ Stop() } {
	if p.Mode == "" {
		return ignore{}
	}

	return start(p)
}

// Enabled reports whether profiling support is compiled in.
func Enabled() bool { return len(Modes()) > 0 }

type ignore struct{}

func (ignore) Stop() {}
