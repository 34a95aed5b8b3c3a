package cache

import (
	"container/list"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ardnew/quill/lang"
	"github.com/ardnew/quill/log"
)

// DefaultMaxEntries is the entry ceiling used when none is configured.
const DefaultMaxEntries = 512

// nodeOverhead approximates the memory held by one AST node beyond its
// text.
const nodeOverhead = 96

// ErrClosed is returned by every operation after [Cache.Shutdown].
var ErrClosed = lang.NewError("cache closed")

// ParseFunc parses the component stored at an absolute path.
type ParseFunc func(ctx context.Context, path string) (*lang.Component, error)

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits          uint64
	Misses        uint64
	Invalidations uint64
	Evictions     uint64
	Entries       int
	// Memory is the sum of per-entry size estimates in bytes.
	Memory int64
}

// HitRate returns the fraction of lookups served from the cache.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}

	return float64(s.Hits) / float64(total)
}

func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("hits", s.Hits),
		slog.Uint64("misses", s.Misses),
		slog.Uint64("invalidations", s.Invalidations),
		slog.Uint64("evictions", s.Evictions),
		slog.Int("entries", s.Entries),
		slog.Int64("memory", s.Memory),
	)
}

type entry struct {
	path  string
	comp  *lang.Component
	mtime time.Time
	size  int64
}

// Cache holds parsed components keyed by absolute path. An entry is only
// returned while the file's modification time matches the one recorded
// when it was parsed. Least recently used entries are evicted once the
// entry ceiling is reached.
//
// Safe for concurrent use by multiple goroutines.
type Cache struct {
	mu     sync.RWMutex
	ll     *list.List
	items  map[string]*list.Element
	memory int64

	fill singleflight.Group

	maxEntries int
	parse      ParseFunc
	logger     log.Logger

	hits          atomic.Uint64
	misses        atomic.Uint64
	invalidations atomic.Uint64
	evictions     atomic.Uint64

	closed atomic.Bool
}

// Option configures a [Cache].
type Option func(*Cache)

// WithMaxEntries sets the entry ceiling. Values below one select
// [DefaultMaxEntries].
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithParser replaces the function used to parse files on a miss.
func WithParser(fn ParseFunc) Option {
	return func(c *Cache) {
		if fn != nil {
			c.parse = fn
		}
	}
}

// WithLogger sets the logger for cache events.
func WithLogger(logger log.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// New returns an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		ll:         list.New(),
		maxEntries: DefaultMaxEntries,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.items = make(map[string]*list.Element, c.maxEntries)

	if c.parse == nil {
		logger := c.logger
		c.parse = func(ctx context.Context, path string) (*lang.Component, error) {
			return lang.ParseFile(ctx, path, lang.WithLogger(logger))
		}
	}

	return c
}

// GetOrParse returns the component stored at path, parsing it when no
// fresh entry exists. A file that does not exist yields a
// *[lang.NotFoundError] and drops any entry held for it.
func (c *Cache) GetOrParse(ctx context.Context, path string) (*lang.Component, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, lang.ErrReadInput.Wrap(err).With(slog.String("path", path))
	}

	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.drop(abs)

			return nil, &lang.NotFoundError{Path: abs, Err: err}
		}

		return nil, lang.ErrReadInput.Wrap(err).With(slog.String("path", abs))
	}

	mtime := info.ModTime()

	if comp, ok := c.lookup(abs, mtime); ok {
		c.hits.Add(1)
		c.logger.TraceContext(ctx, "cache hit", slog.String("path", abs))

		return comp, nil
	}

	key := abs + "@" + mtime.Format(time.RFC3339Nano)

	v, err, shared := c.fill.Do(key, func() (any, error) {
		if comp, ok := c.lookup(abs, mtime); ok {
			return comp, nil
		}

		c.misses.Add(1)

		comp, err := c.parse(ctx, abs)
		if err != nil {
			return nil, err
		}

		c.store(ctx, abs, comp, mtime)

		return comp, nil
	})
	if err != nil {
		if errors.Is(err, lang.ErrNotFound) {
			c.drop(abs)
		}

		return nil, err
	}

	if shared {
		c.logger.TraceContext(ctx, "cache fill shared", slog.String("path", abs))
	}

	comp, _ := v.(*lang.Component)

	return comp, nil
}

// lookup returns the entry for path when its recorded mtime equals mtime,
// promoting it to most recently used.
func (c *Cache) lookup(path string, mtime time.Time) (*lang.Component, bool) {
	c.mu.RLock()
	el, ok := c.items[path]
	front := ok && c.ll.Front() == el

	var (
		comp  *lang.Component
		fresh bool
	)

	if ok {
		e, _ := el.Value.(*entry)
		comp, fresh = e.comp, e.mtime.Equal(mtime)
	}
	c.mu.RUnlock()

	if !fresh {
		return nil, false
	}

	if !front {
		c.mu.Lock()
		if el, ok := c.items[path]; ok {
			c.ll.MoveToFront(el)
		}
		c.mu.Unlock()
	}

	return comp, true
}

func (c *Cache) store(ctx context.Context, path string, comp *lang.Component, mtime time.Time) {
	size := EstimateSize(comp)

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[path]; ok {
		e, _ := el.Value.(*entry)
		c.memory += size - e.size
		e.comp, e.mtime, e.size = comp, mtime, size
		c.ll.MoveToFront(el)

		c.logger.DebugContext(ctx, "cache refresh", slog.String("path", path))

		return
	}

	for c.ll.Len() >= c.maxEntries {
		c.evictLocked(ctx)
	}

	c.items[path] = c.ll.PushFront(&entry{path: path, comp: comp, mtime: mtime, size: size})
	c.memory += size

	c.logger.DebugContext(ctx, "cache store",
		slog.String("path", path),
		slog.Int64("size", size),
		slog.Int("entries", c.ll.Len()))
}

// evictLocked removes the least recently used entry. c.mu must be held for
// writing.
func (c *Cache) evictLocked(ctx context.Context) {
	el := c.ll.Back()
	if el == nil {
		return
	}

	e, _ := el.Value.(*entry)
	c.removeLocked(el)
	c.evictions.Add(1)

	c.logger.DebugContext(ctx, "cache evict", slog.String("path", e.path))
}

func (c *Cache) removeLocked(el *list.Element) {
	e, _ := el.Value.(*entry)
	c.ll.Remove(el)
	delete(c.items, e.path)
	c.memory -= e.size
}

func (c *Cache) drop(path string) {
	c.mu.Lock()
	if el, ok := c.items[path]; ok {
		c.removeLocked(el)
	}
	c.mu.Unlock()
}

// Invalidate evicts the entry for path and reports whether one existed.
func (c *Cache) Invalidate(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[abs]
	if !ok {
		return false
	}

	c.removeLocked(el)
	c.invalidations.Add(1)

	return true
}

// Clear evicts every entry. Counters are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ll.Init()
	c.items = make(map[string]*list.Element, c.maxEntries)
	c.memory = 0
}

// Shutdown clears the cache and makes later calls fail with [ErrClosed].
func (c *Cache) Shutdown() {
	c.closed.Store(true)
	c.Clear()
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.ll.Len()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	entries, memory := c.ll.Len(), c.memory
	c.mu.RUnlock()

	return Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Invalidations: c.invalidations.Load(),
		Evictions:     c.evictions.Load(),
		Entries:       entries,
		Memory:        memory,
	}
}

// EstimateSize approximates the memory retained by comp.
func EstimateSize(comp *lang.Component) int64 {
	if comp == nil {
		return 0
	}

	return int64(comp.Size)*2 + int64(lang.Count(comp))*nodeOverhead
}
