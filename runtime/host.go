package runtime

import (
	"context"
	"iter"
	"log/slog"
	"maps"
	"slices"

	"github.com/ardnew/quill/lang"
	"github.com/ardnew/quill/scope"
	"github.com/ardnew/quill/value"
)

// Host is the execution surface of transpiled components. Generated code
// drives a Host instead of walking a tree: it writes output, evaluates
// bindings and declares functions through these methods.
//
// The first failure is kept and reported by [Host.Err]; afterwards every
// method does nothing and returns a zero value, so generated code checks
// for errors once at the end.
type Host struct {
	f     *frame
	funcs map[string]hostFunc
	err   error
}

type hostFunc struct {
	params []Param
	fn     func(*Host) value.Value
}

// Host returns a host executing against sc on behalf of the component
// named name. A nil sc gets an empty context.
func (rt *Runtime) Host(ctx context.Context, name string, sc *scope.Context) *Host {
	if sc == nil {
		sc = scope.New()
	}

	h := &Host{
		f: &frame{
			rt:   rt,
			ctx:  ctx,
			comp: &lang.Component{Name: name},
			sc:   sc,
		},
		funcs: map[string]hostFunc{},
	}
	sc.SetCaller(h)

	return h
}

// Err returns the first failure, if any.
func (h *Host) Err() error { return h.err }

func (h *Host) fail(err error) bool {
	if err != nil && h.err == nil {
		h.err = err
	}

	return h.err != nil
}

// Context returns the execution context.
func (h *Host) Context() *scope.Context { return h.f.sc }

// Output returns everything written so far.
func (h *Host) Output() string { return h.f.sc.Output() }

// Write appends s to the output.
func (h *Host) Write(s string) {
	if h.err == nil {
		h.f.write(s)
	}
}

// Eval evaluates a bare expression.
func (h *Host) Eval(expr string) value.Value {
	if h.err != nil {
		return value.Null()
	}

	v, err := h.f.rt.resolver.Eval(expr, h.f.sc)
	if h.fail(err) {
		return value.Null()
	}

	return v
}

// Str evaluates a bare expression to its display form.
func (h *Host) Str(expr string) string {
	return h.Eval(expr).String()
}

// Value resolves attribute text: bindings are evaluated and literals
// inferred.
func (h *Host) Value(text string) value.Value {
	if h.err != nil {
		return value.Null()
	}

	v, err := h.f.value(text)
	if h.fail(err) {
		return value.Null()
	}

	return v
}

// Interp substitutes every binding in text.
func (h *Host) Interp(text string) string {
	if h.err != nil {
		return ""
	}

	s, err := h.f.interpolate(text)
	if h.fail(err) {
		return ""
	}

	return s
}

// Attr substitutes every binding in an attribute value and escapes the
// result for a double-quoted attribute.
func (h *Host) Attr(text string) string {
	return attrEscaper.Replace(h.Interp(text))
}

// Coerce converts v to typ as [Coerce] does.
func (h *Host) Coerce(v value.Value, typ string) value.Value {
	if h.err != nil {
		return value.Null()
	}

	c, err := Coerce(v, typ)
	if h.fail(err) {
		return value.Null()
	}

	return c
}

// Bind binds component parameters from variables visible in the context
// or their defaults.
func (h *Host) Bind(params []Param) {
	if h.err == nil {
		h.fail(h.f.rt.bindParams(h.f.sc, params, nil, nil))
	}
}

// Cond evaluates a condition.
func (h *Host) Cond(text string) bool {
	if h.err != nil {
		return false
	}

	ok, err := h.f.rt.cond.EvaluateCondition(text, h.f.sc)
	if h.fail(err) {
		return false
	}

	return ok
}

// Set assigns v to name in scope in, coerced to typ when typ is not
// empty.
func (h *Host) Set(name string, v value.Value, typ, in string) {
	if h.err != nil {
		return
	}

	if typ != "" {
		var err error
		if v, err = Coerce(v, typ); h.fail(err) {
			return
		}
	}

	h.fail(h.f.sc.Set(name, v, in))
}

// Unset removes name from the scope it resolves to.
func (h *Host) Unset(name string) {
	if h.err == nil {
		h.f.sc.Delete(name)
	}
}

// Apply performs the array operation op on name.
func (h *Host) Apply(name, op string, arg value.Value, in string) {
	if h.err != nil {
		return
	}

	o, ok := scope.ParseOperation(op)
	if !ok {
		h.fail(scope.ErrOperation.With(slog.String("op", op)))

		return
	}

	_, err := h.f.sc.ApplyWith(name, in, func(cur value.Value) (value.Value, error) {
		return h.f.rt.arrays.ApplyArray(o, cur, arg)
	})
	h.fail(err)
}

// Shadow saves the named component variables and returns a function that
// restores them.
func (h *Host) Shadow(names ...string) func() {
	st, err := h.f.sc.Store(scope.Component)
	if h.fail(err) {
		return func() {}
	}

	return shadow(st, names...)
}

// Range returns the iterations of a range loop.
func (h *Host) Range(from, to, step string) iter.Seq[Iteration] {
	if h.err != nil {
		return none
	}

	r, err := h.f.rangeOf(from, to, step)
	if h.fail(err) {
		return none
	}

	return r.all()
}

// Items returns the iterations of an array loop over text.
func (h *Host) Items(text, delim string) iter.Seq[Iteration] {
	if h.err != nil {
		return none
	}

	v, err := h.f.collection(text)
	if h.fail(err) {
		return none
	}

	its, err := h.f.collectionIterations(v, delim)
	if h.fail(err) {
		return none
	}

	return slices.Values(its)
}

// List returns the iterations of a list loop over text.
func (h *Host) List(text, delim string) iter.Seq[Iteration] {
	return slices.Values(listIterations(h.Interp(text), delim))
}

func none(func(Iteration) bool) {}

// Define declares a function callable from expressions and [Host.Call].
func (h *Host) Define(name string, params []Param, fn func(*Host) value.Value) {
	h.funcs[name] = hostFunc{params: params, fn: fn}
}

// CallFunction implements [binding.Caller].
func (h *Host) CallFunction(name string, args []value.Value) (value.Value, error) {
	return h.call(name, nil, args, false)
}

// Call invokes a defined function with named arguments and writes its
// output.
func (h *Host) Call(name string, args map[string]value.Value) value.Value {
	if h.err != nil {
		return value.Null()
	}

	v, err := h.call(name, args, nil, true)
	if h.fail(err) {
		return value.Null()
	}

	return v
}

func (h *Host) call(name string, named map[string]value.Value, positional []value.Value, emit bool) (value.Value, error) {
	def, ok := h.funcs[name]
	if !ok {
		return value.Null(), ErrFunctionNotFound.With(slog.String("function", name))
	}

	if h.f.depth >= h.f.rt.maxDepth {
		return value.Null(), ErrDepth.With(slog.Int("depth", h.f.depth))
	}

	if named == nil {
		named = map[string]value.Value{}
	}

	child := h.f.sc.Child()
	ch := &Host{
		f: &frame{
			rt:    h.f.rt,
			ctx:   h.f.ctx,
			comp:  h.f.comp,
			sc:    child,
			depth: h.f.depth + 1,
		},
		funcs: maps.Clone(h.funcs),
	}
	child.SetCaller(ch)

	var v value.Value

	out, err := child.Capture(func() error {
		if err := h.f.rt.bindParams(child, def.params, named, positional); err != nil {
			return err
		}

		v = def.fn(ch)

		return ch.err
	})
	if err != nil {
		return value.Null(), err
	}

	if emit {
		h.f.write(out)
	}

	return v, nil
}

// Log sends a message to the logging service.
func (h *Host) Log(level, message string, fields value.Value) {
	if h.err != nil {
		return
	}

	if err := h.f.rt.services.Logging.Log(h.f.ctx, level, message, fields); err != nil {
		h.fail(ErrService.Wrap(err).With(slog.String("service", "logging")))
	}
}

// Dump writes v formatted by [Dump].
func (h *Host) Dump(label string, v value.Value) {
	h.Write(Dump(label, v))
}

// Invoke sends params to the invocation service and fails unless it
// succeeds.
func (h *Host) Invoke(kind string, params map[string]value.Value) InvokeResult {
	if h.err != nil {
		return InvokeResult{}
	}

	res, err := h.f.service(kind, params)
	h.fail(err)

	return res
}

// Query runs sql on datasource and returns the result mapping.
func (h *Host) Query(datasource, sql string, params map[string]value.Value) value.Value {
	if h.err != nil {
		return value.Null()
	}

	db := h.f.rt.services.Database
	if db == nil {
		h.fail(ErrNoService.With(slog.String("service", "database")))

		return value.Null()
	}

	res, err := db.ExecuteQuery(h.f.ctx, datasource, sql, params)
	if h.fail(err) {
		return value.Null()
	}

	return res.Value()
}
