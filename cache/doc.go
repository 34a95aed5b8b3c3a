// Package cache keeps parsed components in memory.
//
// A [Cache] is keyed by absolute file path. Every lookup stats the file and
// compares its modification time against the time recorded when the entry
// was built, so a changed file is always re-parsed. Concurrent misses for
// the same file share a single parse.
//
//	c := cache.New(cache.WithMaxEntries(128))
//	defer c.Shutdown()
//
//	comp, err := c.GetOrParse(ctx, "views/index.q")
//
// [Cache.Load] follows q:import declarations and returns a [Bundle] that
// the runtime uses to find imported components.
package cache
