package binding

import (
	"container/list"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ardnew/quill/lang"
	"github.com/ardnew/quill/log"
	"github.com/ardnew/quill/value"
)

// DefaultMaxSize is the number of compiled programs retained when no
// ceiling is configured.
const DefaultMaxSize = 1024

// ErrClosed is returned by every operation after [Cache.Shutdown].
var ErrClosed = lang.NewError("expression cache closed")

// Stats is a snapshot of expression cache counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Compiles  uint64
	Evictions uint64
	Size      int
}

func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("hits", s.Hits),
		slog.Uint64("misses", s.Misses),
		slog.Uint64("compiles", s.Compiles),
		slog.Uint64("evictions", s.Evictions),
		slog.Int("size", s.Size),
	)
}

type entry struct {
	text    string
	program *Program
}

// Cache stores compiled programs keyed by their exact source text. Each
// distinct text is compiled once; later evaluations only rebind the
// environment.
//
// Safe for concurrent use by multiple goroutines.
type Cache struct {
	mu    sync.RWMutex
	ll    *list.List
	items map[string]*list.Element

	// fill serializes the check-compile-insert sequence.
	fill sync.Mutex

	// fast mirrors items for lock-free reads by FastEvaluate.
	fast sync.Map

	maxSize int
	logger  log.Logger

	hits      atomic.Uint64
	misses    atomic.Uint64
	compiles  atomic.Uint64
	evictions atomic.Uint64

	closed atomic.Bool
}

// Option configures a [Cache].
type Option func(*Cache)

// WithMaxSize sets the number of programs retained. Values below one select
// [DefaultMaxSize].
func WithMaxSize(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// WithLogger sets the logger for compile and eviction events.
func WithLogger(logger log.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// NewCache returns an empty expression cache.
func NewCache(opts ...Option) *Cache {
	c := &Cache{ll: list.New(), maxSize: DefaultMaxSize}

	for _, opt := range opts {
		opt(c)
	}

	c.items = make(map[string]*list.Element, c.maxSize)

	return c
}

// Program returns the compiled program for text, compiling it on first
// use. Compile failures are not cached.
func (c *Cache) Program(text string) (*Program, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	if p, ok := c.get(text); ok {
		c.hits.Add(1)

		return p, nil
	}

	c.fill.Lock()
	defer c.fill.Unlock()

	if p, ok := c.get(text); ok {
		c.hits.Add(1)

		return p, nil
	}

	c.misses.Add(1)

	p, err := Compile(text)
	if err != nil {
		c.logger.Debug("expression compile failed",
			slog.String("expr", text), slog.Any("error", err))

		return nil, err
	}

	c.compiles.Add(1)
	c.set(text, p)

	c.logger.Trace("expression compiled",
		slog.String("expr", text), slog.String("lowered", p.Lowered))

	return p, nil
}

// Evaluate compiles text if needed and runs it against env.
func (c *Cache) Evaluate(text string, env Env) (value.Value, error) {
	p, err := c.Program(text)
	if err != nil {
		return value.Null(), err
	}

	return p.Run(env)
}

// FastEvaluate is [Cache.Evaluate] without statistics or locking for
// programs already compiled. It neither counts hits nor updates recency,
// so heavily used entries reached only through FastEvaluate may be evicted
// first.
func (c *Cache) FastEvaluate(text string, env Env) (value.Value, error) {
	if p, ok := c.fast.Load(text); ok {
		prog, _ := p.(*Program)

		return prog.Run(env)
	}

	return c.Evaluate(text, env)
}

func (c *Cache) get(text string) (*Program, bool) {
	c.mu.RLock()
	el, ok := c.items[text]
	front := ok && c.ll.Front() == el

	var p *Program
	if ok {
		e, _ := el.Value.(*entry)
		p = e.program
	}
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if !front {
		c.mu.Lock()
		if el, ok := c.items[text]; ok {
			c.ll.MoveToFront(el)
		}
		c.mu.Unlock()
	}

	return p, true
}

func (c *Cache) set(text string, p *Program) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.ll.Len() >= c.maxSize {
		el := c.ll.Back()
		e, _ := el.Value.(*entry)

		c.ll.Remove(el)
		delete(c.items, e.text)
		c.fast.Delete(e.text)
		c.evictions.Add(1)

		c.logger.Trace("expression evicted", slog.String("expr", e.text))
	}

	c.items[text] = c.ll.PushFront(&entry{text: text, program: p})
	c.fast.Store(text, p)
}

// Len returns the number of compiled programs held.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.ll.Len()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Compiles:  c.compiles.Load(),
		Evictions: c.evictions.Load(),
		Size:      c.Len(),
	}
}

// Clear drops every compiled program. Counters are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ll.Init()
	c.items = make(map[string]*list.Element, c.maxSize)
	c.fast.Clear()
}

// Shutdown clears the cache and makes later calls fail with [ErrClosed].
func (c *Cache) Shutdown() {
	c.closed.Store(true)
	c.Clear()
}
