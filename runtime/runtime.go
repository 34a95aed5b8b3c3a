package runtime

import (
	"context"
	"log/slog"

	"github.com/ardnew/quill/binding"
	"github.com/ardnew/quill/cache"
	"github.com/ardnew/quill/lang"
	"github.com/ardnew/quill/log"
	"github.com/ardnew/quill/scope"
	"github.com/ardnew/quill/value"
)

// DefaultMaxDepth bounds nested function and component calls.
const DefaultMaxDepth = 64

// DefaultMaxIterations bounds the passes of a single range loop.
const DefaultMaxIterations = 10_000_000

// Importer finds the component that from imports under alias.
// [*cache.Bundle] implements Importer.
type Importer interface {
	Lookup(from *lang.Component, alias string) (*lang.Component, bool)
}

// Result is the outcome of executing a component or calling a function.
type Result struct {
	// Output is the rendered markup.
	Output string
	// Value is the returned value; null unless Returned.
	Value value.Value
	// Returned reports whether a q:return ended execution.
	Returned bool
}

// Runtime executes parsed components. A Runtime holds no per-execution
// state and may be shared by concurrent executions.
type Runtime struct {
	resolver *binding.Resolver
	cond     ConditionEvaluator
	arrays   ArrayOperator
	services Services
	cache    *cache.Cache
	logger   log.Logger
	maxDepth int
	maxIter  int
}

// Option configures a [Runtime].
type Option func(*Runtime)

// WithExpressionCache compiles bindings through c.
func WithExpressionCache(c *binding.Cache) Option {
	return func(rt *Runtime) { rt.resolver = binding.NewResolver(c) }
}

// WithCache loads files and imports through c.
func WithCache(c *cache.Cache) Option {
	return func(rt *Runtime) { rt.cache = c }
}

// WithServices sets every external service at once.
func WithServices(s Services) Option {
	return func(rt *Runtime) { rt.services = s }
}

// WithDatabase sets the service used by q:query.
func WithDatabase(db Database) Option {
	return func(rt *Runtime) { rt.services.Database = db }
}

// WithInvoker sets the service used by q:invoke url, q:action, q:mail,
// q:file and q:websocket-send.
func WithInvoker(inv Invoker) Option {
	return func(rt *Runtime) { rt.services.Invoker = inv }
}

// WithLogging sets the service used by q:log.
func WithLogging(l Logging) Option {
	return func(rt *Runtime) { rt.services.Logging = l }
}

// WithConditionEvaluator replaces the evaluator of conditions.
func WithConditionEvaluator(ce ConditionEvaluator) Option {
	return func(rt *Runtime) { rt.cond = ce }
}

// WithArrayOperator replaces the implementation of array operations.
func WithArrayOperator(op ArrayOperator) Option {
	return func(rt *Runtime) { rt.arrays = op }
}

// WithLogger sets the logger for execution events.
func WithLogger(logger log.Logger) Option {
	return func(rt *Runtime) { rt.logger = logger }
}

// WithMaxDepth bounds nested calls. Values below one select
// [DefaultMaxDepth].
func WithMaxDepth(n int) Option {
	return func(rt *Runtime) {
		if n > 0 {
			rt.maxDepth = n
		}
	}
}

// WithMaxIterations bounds the passes of a single range loop. Zero removes
// the bound; negative values select [DefaultMaxIterations].
func WithMaxIterations(n int) Option {
	return func(rt *Runtime) {
		if n >= 0 {
			rt.maxIter = n
		}
	}
}

// New returns a runtime. Unless configured otherwise it compiles bindings
// through a private expression cache, logs q:log messages through
// [log.Default] and applies array operations with [scope.ApplyArray].
func New(opts ...Option) *Runtime {
	rt := &Runtime{maxDepth: DefaultMaxDepth, maxIter: DefaultMaxIterations}

	for _, opt := range opts {
		opt(rt)
	}

	if rt.resolver == nil {
		rt.resolver = binding.NewResolver(binding.NewCache(binding.WithLogger(rt.logger)))
	}

	if rt.cond == nil {
		rt.cond = resolverConditions{rt.resolver}
	}

	if rt.arrays == nil {
		rt.arrays = ArrayOperatorFunc(scope.ApplyArray)
	}

	if rt.services.Logging == nil {
		rt.services.Logging = LogService{Logger: log.Default()}
	}

	if rt.cache == nil {
		rt.cache = cache.New(cache.WithLogger(rt.logger))
	}

	return rt
}

// Resolver returns the binding resolver used by rt.
func (rt *Runtime) Resolver() *binding.Resolver { return rt.resolver }

// Execute runs comp against sc. A nil sc gets an empty context. Imports are
// not available; use [Runtime.ExecuteBundle] or [Runtime.ExecuteFile] for
// components that invoke imported components.
//
// Execute installs a function dispatcher on sc so that expressions can
// call the functions comp declares.
func (rt *Runtime) Execute(ctx context.Context, comp *lang.Component, sc *scope.Context) (Result, error) {
	return rt.execute(ctx, comp, nil, sc)
}

// ExecuteBundle runs the root of b with its imports available.
func (rt *Runtime) ExecuteBundle(ctx context.Context, b *cache.Bundle, sc *scope.Context) (Result, error) {
	return rt.execute(ctx, b.Root, b, sc)
}

// ExecuteFile loads the component at path and its imports through the
// cache and runs it.
func (rt *Runtime) ExecuteFile(ctx context.Context, path string, sc *scope.Context) (Result, error) {
	b, err := rt.cache.Load(ctx, path)
	if err != nil {
		return Result{}, err
	}

	return rt.ExecuteBundle(ctx, b, sc)
}

// Cache returns the component cache used by rt.
func (rt *Runtime) Cache() *cache.Cache { return rt.cache }

func (rt *Runtime) execute(ctx context.Context, comp *lang.Component, imports Importer, sc *scope.Context) (Result, error) {
	if sc == nil {
		sc = scope.New()
	}

	f := &frame{rt: rt, ctx: ctx, comp: comp, imports: imports, sc: sc}
	sc.SetCaller(f)

	rt.logger.TraceContext(ctx, "execute component",
		slog.String("component", comp.Name),
		slog.String("path", comp.Path))

	var ctl control

	out, err := sc.Capture(func() error {
		if err := rt.bindParams(sc, params(comp.Params), nil, nil); err != nil {
			return f.wrap(comp, err)
		}

		var err error
		ctl, err = f.exec(comp.Body)

		return err
	})
	if err != nil {
		rt.logger.DebugContext(ctx, "component failed",
			slog.String("component", comp.Name),
			slog.Any("error", err))

		return Result{Output: out}, err
	}

	return Result{Output: out, Value: ctl.value, Returned: ctl.returned}, nil
}

// Call invokes the function name declared by comp with named arguments.
func (rt *Runtime) Call(
	ctx context.Context,
	comp *lang.Component,
	name string,
	args map[string]value.Value,
	sc *scope.Context,
) (Result, error) {
	if sc == nil {
		sc = scope.New()
	}

	f := &frame{rt: rt, ctx: ctx, comp: comp, sc: sc}
	sc.SetCaller(f)

	var v value.Value

	out, err := sc.Capture(func() error {
		var err error
		v, err = f.call(name, args, nil, true)

		return err
	})
	if err != nil {
		return Result{Output: out}, err
	}

	return Result{Output: out, Value: v, Returned: true}, nil
}

// Param describes a component or function parameter.
type Param struct {
	Name       string
	Type       string
	Default    string
	HasDefault bool
	Required   bool
}

func params(ps []*lang.ParamNode) []Param {
	out := make([]Param, len(ps))
	for i, p := range ps {
		out[i] = Param{
			Name:       p.Name,
			Type:       p.Type,
			Default:    p.Default,
			HasDefault: p.HasDefault,
			Required:   p.Required,
		}
	}

	return out
}

// bindParams validates ps and writes each into the component store of sc.
// A parameter takes its value from named, then positional, then a
// variable already visible in sc, then its default. Named arguments that
// match no parameter are bound as given.
func (rt *Runtime) bindParams(sc *scope.Context, ps []Param, named map[string]value.Value, positional []value.Value) error {
	for i, p := range ps {
		v, ok := named[p.Name]

		if !ok && i < len(positional) {
			v, ok = positional[i], true
		}

		if !ok && named == nil && positional == nil {
			v, ok = sc.Lookup(p.Name)
		}

		if !ok {
			switch {
			case p.HasDefault:
				d, err := rt.resolveValue(sc, p.Default)
				if err != nil {
					return err
				}

				v = d

			case p.Required:
				return ErrArgument.With(slog.String("missing", p.Name))

			default:
				v = value.Null()
			}
		}

		if p.Type != "" && !(v.IsNull() && !p.Required) {
			c, err := Coerce(v, p.Type)
			if err != nil {
				return ErrArgument.Wrap(err).With(slog.String("param", p.Name))
			}

			v = c
		}

		if err := sc.Set(p.Name, v, scope.Component); err != nil {
			return err
		}
	}

	for name, v := range named {
		if !hasParam(ps, name) {
			if err := sc.Set(name, v, scope.Component); err != nil {
				return err
			}
		}
	}

	return nil
}

func hasParam(ps []Param, name string) bool {
	for _, p := range ps {
		if p.Name == name {
			return true
		}
	}

	return false
}

// resolveValue evaluates attribute text: bindings are resolved, and text
// without bindings is inferred as a literal.
func (rt *Runtime) resolveValue(sc *scope.Context, text string) (value.Value, error) {
	if lang.HasBinding(text) {
		return rt.resolver.Resolve(text, sc)
	}

	return value.Infer(text), nil
}
