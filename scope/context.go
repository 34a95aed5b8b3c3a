package scope

import (
	"bytes"
	"log/slog"
	"slices"
	"strings"

	"github.com/ardnew/quill/binding"
	"github.com/ardnew/quill/lang"
	"github.com/ardnew/quill/value"
)

// Scope names.
const (
	Component   = "component"
	Request     = "request"
	Session     = "session"
	Application = "application"
)

// Precedence is the order in which unqualified names are searched.
var Precedence = []string{Component, Request, Session, Application}

// ErrScope reports a scope name outside [Precedence].
var ErrScope = lang.NewError("unknown scope")

// Context is the variable environment of one component execution. The
// component store is private to the execution, the request store is shared
// with nested calls made while serving the same request, and the session
// and application stores are shared by reference with every context built
// from the same [Shared].
//
// Context implements [binding.Env] and [binding.Caller].
type Context struct {
	stores [4]*Store
	caller binding.Caller
	out    *bytes.Buffer
}

// Shared holds the stores that outlive a single request.
type Shared struct {
	Session     *Store
	Application *Store
}

// NewShared returns empty session and application stores.
func NewShared() *Shared {
	return &Shared{Session: NewStore(), Application: NewStore()}
}

// Option configures a [Context].
type Option func(*Context)

// WithShared attaches the session and application stores of sh.
func WithShared(sh *Shared) Option {
	return func(c *Context) {
		if sh == nil {
			return
		}

		if sh.Session != nil {
			c.stores[2] = sh.Session
		}

		if sh.Application != nil {
			c.stores[3] = sh.Application
		}
	}
}

// WithRequest seeds the request store with vars.
func WithRequest(vars map[string]value.Value) Option {
	return func(c *Context) { c.stores[1] = NewStoreFrom(vars) }
}

// WithVars seeds the component store with vars.
func WithVars(vars map[string]value.Value) Option {
	return func(c *Context) { c.stores[0] = NewStoreFrom(vars) }
}

// WithCaller sets the function dispatcher used by expressions.
func WithCaller(caller binding.Caller) Option {
	return func(c *Context) { c.caller = caller }
}

// New returns a context with empty stores unless seeded by opts.
func New(opts ...Option) *Context {
	c := &Context{out: new(bytes.Buffer)}

	for _, opt := range opts {
		opt(c)
	}

	for i := range c.stores {
		if c.stores[i] == nil {
			c.stores[i] = NewStore()
		}
	}

	return c
}

// Child returns a context with a fresh component store that shares every
// other store, the function dispatcher and the output buffer with c.
func (c *Context) Child() *Context {
	child := *c
	child.stores[0] = NewStore()

	return &child
}

// SetCaller replaces the function dispatcher used by expressions.
func (c *Context) SetCaller(caller binding.Caller) { c.caller = caller }

// Store returns the store named scope.
func (c *Context) Store(scope string) (*Store, error) {
	i := slices.Index(Precedence, scope)
	if i < 0 {
		return nil, ErrScope.With(slog.String("scope", scope))
	}

	return c.stores[i], nil
}

// split separates a leading scope qualifier from name.
func split(name string) (scope, rest string) {
	if s, r, ok := strings.Cut(name, "."); ok && slices.Contains(Precedence, s) {
		return s, r
	}

	return "", name
}

// Lookup implements [binding.Env]. A qualified name such as "session.user"
// addresses exactly one store; an unqualified name is searched in
// [Precedence] order.
func (c *Context) Lookup(name string) (value.Value, bool) {
	scope, rest := split(name)

	if scope != "" {
		st, _ := c.Store(scope)

		return st.Get(rest)
	}

	for _, st := range c.stores {
		if v, ok := st.Get(name); ok {
			return v, true
		}
	}

	return value.Null(), false
}

// Get returns the variable name, failing with a
// *[lang.VariableNotFoundError] when it is not set.
func (c *Context) Get(name string) (value.Value, error) {
	v, ok := c.Lookup(name)
	if !ok {
		scope, rest := split(name)

		return value.Null(), &lang.VariableNotFoundError{Name: rest, Scope: scope}
	}

	return v, nil
}

// Has reports whether name resolves.
func (c *Context) Has(name string) bool {
	_, ok := c.Lookup(name)

	return ok
}

// resolveStore picks the store written by Set and friends. An explicit
// scope wins over a qualifier in name; neither selects the component store.
func (c *Context) resolveStore(name, scope string) (*Store, string, error) {
	q, rest := split(name)

	switch {
	case scope != "":
		if q == scope {
			name = rest
		}
	case q != "":
		scope, name = q, rest
	default:
		scope = Component
	}

	st, err := c.Store(scope)
	if err != nil {
		return nil, "", err
	}

	return st, name, nil
}

// Set writes name into scope, or into the store named by a qualifier in
// name, or into the component store.
func (c *Context) Set(name string, v value.Value, scope string) error {
	st, name, err := c.resolveStore(name, scope)
	if err != nil {
		return err
	}

	st.Set(name, v)

	return nil
}

// Update overwrites an existing variable in the store it resolves to.
func (c *Context) Update(name string, v value.Value) error {
	st, key, err := c.owner(name)
	if err != nil {
		return err
	}

	st.Set(key, v)

	return nil
}

// owner returns the store currently holding name.
func (c *Context) owner(name string) (*Store, string, error) {
	scope, rest := split(name)

	if scope != "" {
		st, _ := c.Store(scope)
		if st.Has(rest) {
			return st, rest, nil
		}

		return nil, "", &lang.VariableNotFoundError{Name: rest, Scope: scope}
	}

	for _, st := range c.stores {
		if st.Has(name) {
			return st, name, nil
		}
	}

	return nil, "", &lang.VariableNotFoundError{Name: name}
}

// Delete removes name from the store it resolves to and reports whether it
// was present.
func (c *Context) Delete(name string) bool {
	st, key, err := c.owner(name)
	if err != nil {
		return false
	}

	return st.Delete(key)
}

// Apply performs an array operation on name. With an empty scope the
// variable is updated where it currently resolves, or created in the
// component store. The stored array is replaced by a modified copy, so
// values previously read from it never change.
func (c *Context) Apply(name string, op Operation, arg value.Value, scope string) (value.Value, error) {
	return c.ApplyWith(name, scope, func(cur value.Value) (value.Value, error) {
		return ApplyArray(op, cur, arg)
	})
}

// ApplyWith is [Context.Apply] with a caller-supplied transformation.
func (c *Context) ApplyWith(name, scope string, fn func(cur value.Value) (value.Value, error)) (value.Value, error) {
	var (
		st  *Store
		key string
		err error
	)

	if scope == "" {
		st, key, err = c.owner(name)
	}

	if scope != "" || err != nil {
		st, key, err = c.resolveStore(name, scope)
		if err != nil {
			return value.Null(), err
		}
	}

	return st.Update(key, func(cur value.Value, _ bool) (value.Value, error) {
		return fn(cur)
	})
}

// Snapshot returns a copy of the variables held in scope.
func (c *Context) Snapshot(scope string) (map[string]value.Value, error) {
	st, err := c.Store(scope)
	if err != nil {
		return nil, err
	}

	return st.Snapshot(), nil
}

// Names returns every visible unqualified variable name, each once.
func (c *Context) Names() []string {
	var out []string

	for _, st := range c.stores {
		for _, n := range st.Names() {
			if !slices.Contains(out, n) {
				out = append(out, n)
			}
		}
	}

	slices.Sort(out)

	return out
}

// CallFunction implements [binding.Caller] through the dispatcher set with
// [WithCaller].
func (c *Context) CallFunction(name string, args []value.Value) (value.Value, error) {
	if c.caller == nil {
		return value.Null(), &lang.VariableNotFoundError{Name: name + "()"}
	}

	return c.caller.CallFunction(name, args)
}

// Write appends rendered output.
func (c *Context) Write(p []byte) (int, error) { return c.out.Write(p) }

// WriteString appends rendered output.
func (c *Context) WriteString(s string) (int, error) { return c.out.WriteString(s) }

// Output returns everything written so far.
func (c *Context) Output() string { return c.out.String() }

// Capture runs fn with output redirected into a fresh buffer and returns
// what fn wrote.
func (c *Context) Capture(fn func() error) (string, error) {
	saved := c.out
	c.out = new(bytes.Buffer)

	defer func() { c.out = saved }()

	err := fn()

	return c.out.String(), err
}

var (
	_ binding.Env    = (*Context)(nil)
	_ binding.Caller = (*Context)(nil)
)
