package runtime

import (
	"context"
	"errors"
	"html"
	"iter"
	"log/slog"
	"math"
	"slices"
	"strings"

	"fortio.org/safecast"
	"github.com/goccy/go-yaml"

	"github.com/ardnew/quill/cache"
	"github.com/ardnew/quill/lang"
	"github.com/ardnew/quill/scope"
	"github.com/ardnew/quill/value"
)

// control carries an early exit up through nested bodies.
type control struct {
	returned bool
	value    value.Value
}

// slotFill is content a caller passed to a named slot. It executes in the
// frame of the caller that supplied it.
type slotFill struct {
	nodes []lang.Node
	owner *frame
}

// frame is the state of one component or function activation.
type frame struct {
	rt      *Runtime
	ctx     context.Context
	comp    *lang.Component
	imports Importer
	sc      *scope.Context
	slots   map[string]slotFill
	depth   int
}

// CallFunction implements [binding.Caller]. Output written by the function
// body is discarded.
func (f *frame) CallFunction(name string, args []value.Value) (value.Value, error) {
	return f.call(name, nil, args, false)
}

// call runs the function name declared by the current component. When emit
// is set the body's output is written to the caller's output.
func (f *frame) call(name string, named map[string]value.Value, positional []value.Value, emit bool) (value.Value, error) {
	fn, ok := f.comp.Function(name)
	if !ok {
		return value.Null(), ErrFunctionNotFound.With(slog.String("function", name))
	}

	if f.depth >= f.rt.maxDepth {
		return value.Null(), ErrDepth.With(slog.Int("depth", f.depth))
	}

	if named == nil {
		named = map[string]value.Value{}
	}

	child := f.sc.Child()
	cf := &frame{
		rt:      f.rt,
		ctx:     f.ctx,
		comp:    f.comp,
		imports: f.imports,
		sc:      child,
		slots:   f.slots,
		depth:   f.depth + 1,
	}
	child.SetCaller(cf)

	var ctl control

	out, err := child.Capture(func() error {
		if err := f.rt.bindParams(child, params(fn.Params), named, positional); err != nil {
			return cf.wrap(fn, err)
		}

		var err error
		ctl, err = cf.exec(fn.Body)

		return err
	})
	if err != nil {
		return value.Null(), err
	}

	if emit {
		f.write(out)
	}

	v := ctl.value
	if fn.ReturnType != "" && !v.IsNull() {
		if v, err = Coerce(v, fn.ReturnType); err != nil {
			return value.Null(), cf.wrap(fn, err)
		}
	}

	return v, nil
}

func (f *frame) write(s string) {
	_, _ = f.sc.WriteString(s)
}

// wrap attributes err to node n unless an inner node already claimed it.
func (f *frame) wrap(n lang.Node, err error) error {
	if err == nil {
		return nil
	}

	var ce *lang.ComponentExecutionError
	if errors.As(err, &ce) {
		return err
	}

	return &lang.ComponentExecutionError{
		Component: f.comp.Name,
		Tag:       tag(n),
		Pos:       n.Position(),
		Err:       err,
	}
}

func tag(n lang.Node) string {
	if e, ok := n.(*lang.ElementNode); ok {
		return e.Name
	}

	return "q:" + n.Kind().String()
}

// exec runs body in order, stopping at the first error or return.
func (f *frame) exec(body []lang.Node) (control, error) {
	for _, n := range body {
		ctl, err := f.node(n)
		if err != nil {
			return control{}, f.wrap(n, err)
		}

		if ctl.returned {
			return ctl, nil
		}
	}

	return control{}, nil
}

func (f *frame) node(n lang.Node) (control, error) {
	switch n := n.(type) {
	case *lang.TextNode:
		return control{}, f.text(n)
	case *lang.ElementNode:
		return f.element(n)
	case *lang.SetNode:
		return control{}, f.set(n)
	case *lang.IfNode:
		return f.cond(n)
	case *lang.LoopNode:
		return f.loop(n)
	case *lang.ReturnNode:
		v, err := f.typed(n.Value, "")
		if err != nil {
			return control{}, err
		}

		return control{returned: true, value: v}, nil
	case *lang.CallNode:
		return control{}, f.callNode(n)
	case *lang.InvokeNode:
		return control{}, f.invoke(n)
	case *lang.QueryNode:
		return control{}, f.query(n)
	case *lang.ActionNode:
		return f.action(n)
	case *lang.MailNode:
		return control{}, f.mail(n)
	case *lang.FileNode:
		return control{}, f.file(n)
	case *lang.WebSocketSendNode:
		return control{}, f.websocket(n)
	case *lang.LogNode:
		return control{}, f.log(n)
	case *lang.DumpNode:
		return control{}, f.dump(n)
	case *lang.SlotNode:
		return control{}, f.slot(n)
	case *lang.FunctionNode, *lang.ParamNode, *lang.ImportNode:
		// declarations
		return control{}, nil
	default:
		return control{}, lang.ErrExecution.With(slog.String("kind", n.Kind().String()))
	}
}

// value resolves attribute text to a typed value.
func (f *frame) value(text string) (value.Value, error) {
	if text == "" {
		return value.Null(), nil
	}

	return f.rt.resolveValue(f.sc, text)
}

func (f *frame) interpolate(text string) (string, error) {
	if !lang.HasBinding(text) {
		return text, nil
	}

	return f.rt.resolver.Interpolate(text, f.sc)
}

func (f *frame) text(n *lang.TextNode) error {
	if !n.Bound || n.Raw || n.Whitespace {
		f.write(n.Text)

		return nil
	}

	s, err := f.rt.resolver.Interpolate(n.Text, f.sc)
	if err != nil {
		return err
	}

	f.write(s)

	return nil
}

var attrEscaper = strings.NewReplacer(`"`, "&quot;")

func (f *frame) element(n *lang.ElementNode) (control, error) {
	var sb strings.Builder

	sb.WriteString("<" + n.Name)

	for _, a := range n.Attrs {
		sb.WriteString(" " + a.Name)

		if !a.HasValue {
			continue
		}

		s, err := f.interpolate(a.Value)
		if err != nil {
			return control{}, err
		}

		sb.WriteString(`="` + attrEscaper.Replace(s) + `"`)
	}

	if n.SelfClosing {
		sb.WriteString("/>")
		f.write(sb.String())

		return control{}, nil
	}

	sb.WriteString(">")
	f.write(sb.String())

	ctl, err := f.exec(n.Body)
	if err != nil || ctl.returned {
		return ctl, err
	}

	f.write("</" + n.Name + ">")

	return control{}, nil
}

func (f *frame) set(n *lang.SetNode) error {
	if n.Operation != "" {
		op, ok := scope.ParseOperation(n.Operation)
		if !ok {
			return scope.ErrOperation.With(slog.String("op", n.Operation))
		}

		arg := value.Null()

		if op.TakesArgument() {
			var err error
			if arg, err = f.typed(n.Value, n.Type); err != nil {
				return err
			}
		}

		_, err := f.sc.ApplyWith(n.Name, n.Scope, func(cur value.Value) (value.Value, error) {
			return f.rt.arrays.ApplyArray(op, cur, arg)
		})

		return err
	}

	v, err := f.typed(n.Value, n.Type)
	if err != nil {
		return err
	}

	return f.sc.Set(n.Name, v, n.Scope)
}

// typed resolves text and coerces the result to typ.
// typed resolves text and coerces it to typ. Untyped literal text written
// as a bracketed list is an array.
func (f *frame) typed(text, typ string) (value.Value, error) {
	if typ == "" && isListLiteral(text) {
		if v, ok := parseCollection(text); ok && v.Kind() == value.KindArray {
			return v, nil
		}
	}

	v, err := f.value(text)
	if err != nil {
		return value.Null(), err
	}

	if typ == "" {
		return v, nil
	}

	return Coerce(v, typ)
}

func (f *frame) cond(n *lang.IfNode) (control, error) {
	ok, err := f.rt.cond.EvaluateCondition(n.Condition, f.sc)
	if err != nil {
		return control{}, err
	}

	if ok {
		return f.exec(n.Then)
	}

	for _, c := range n.ElseIfs {
		ok, err := f.rt.cond.EvaluateCondition(c.Condition, f.sc)
		if err != nil {
			return control{}, &lang.ComponentExecutionError{
				Component: f.comp.Name,
				Tag:       "q:elseif",
				Pos:       c.Pos,
				Err:       err,
			}
		}

		if ok {
			return f.exec(c.Body)
		}
	}

	if n.HasElse {
		return f.exec(n.Else)
	}

	return control{}, nil
}

// Iteration is one pass of a loop: the item and its index, or its key when
// iterating a mapping.
type Iteration struct {
	Item  value.Value
	Index value.Value
}

func (f *frame) loop(n *lang.LoopNode) (control, error) {
	its, err := f.iterations(n)
	if err != nil {
		return control{}, err
	}

	st, err := f.sc.Store(scope.Component)
	if err != nil {
		return control{}, err
	}

	restore := shadow(st, n.Var, n.Index)
	defer restore()

	for it := range its {
		st.Set(n.Var, it.Item)

		if n.Index != "" {
			st.Set(n.Index, it.Index)
		}

		ctl, err := f.exec(n.Body)
		if err != nil || ctl.returned {
			return ctl, err
		}
	}

	return control{}, nil
}

// shadow saves the named variables of st and returns a function that
// restores them, deleting those that did not exist.
func shadow(st *scope.Store, names ...string) func() {
	type saved struct {
		name string
		v    value.Value
		ok   bool
	}

	var prev []saved

	for _, name := range names {
		if name == "" {
			continue
		}

		v, ok := st.Get(name)
		prev = append(prev, saved{name, v, ok})
	}

	return func() {
		for _, p := range prev {
			if p.ok {
				st.Set(p.name, p.v)
			} else {
				st.Delete(p.name)
			}
		}
	}
}

func (f *frame) iterations(n *lang.LoopNode) (iter.Seq[Iteration], error) {
	switch n.Mode {
	case lang.LoopRange:
		r, err := f.rangeOf(n.From, n.To, n.Step)
		if err != nil {
			return nil, err
		}

		return r.all(), nil

	case lang.LoopList:
		text, err := f.interpolate(n.Items)
		if err != nil {
			return nil, err
		}

		return slices.Values(listIterations(text, n.Delimiter)), nil

	default:
		v, err := f.collection(n.Items)
		if err != nil {
			return nil, err
		}

		its, err := f.collectionIterations(v, n.Delimiter)
		if err != nil {
			return nil, err
		}

		return slices.Values(its), nil
	}
}

// span is an inclusive numeric range. Its values are computed from an
// integer counter.
type span struct {
	from, step float64
	count      int
}

func (r span) all() iter.Seq[Iteration] {
	return func(yield func(Iteration) bool) {
		for k := range r.count {
			it := Iteration{
				Item:  value.Number(r.from + float64(k)*r.step),
				Index: value.Int(int64(k)),
			}

			if !yield(it) {
				return
			}
		}
	}
}

// rangeOf resolves the bounds of a range loop from..to inclusive by step.
func (f *frame) rangeOf(from, to, step string) (span, error) {
	bound := func(name, text, def string) (float64, error) {
		if text == "" {
			text = def
		}

		v, err := f.value(text)
		if err != nil {
			return 0, err
		}

		n, ok := numberOf(v)
		if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, ErrArgument.With(slog.String(name, v.String()))
		}

		return n, nil
	}

	lo, err := bound("from", from, "")
	if err != nil {
		return span{}, err
	}

	hi, err := bound("to", to, "")
	if err != nil {
		return span{}, err
	}

	by, err := bound("step", step, "1")
	if err != nil {
		return span{}, err
	}

	if by == 0 {
		return span{}, ErrArgument.With(slog.String("step", "0"))
	}

	r := span{from: lo, step: by}

	q := (hi - lo) / by
	if q < 0 {
		return r, nil
	}

	// 0.3/0.1 is 2.9999999999999996.
	q = math.Floor(q + 1e-9)

	if limit := f.rt.maxIter; limit > 0 && q >= float64(limit) {
		return span{}, ErrIterations.With(
			slog.Float64("iterations", q+1), slog.Int("max", limit))
	}

	n, err := safecast.Truncate[int](q)
	if err != nil {
		return span{}, ErrArgument.Wrap(err)
	}

	r.count = n + 1

	return r, nil
}

func listIterations(text, delim string) []Iteration {
	if delim == "" {
		delim = ","
	}

	var its []Iteration

	for part := range strings.SplitSeq(text, delim) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		its = append(its, Iteration{
			Item:  value.Infer(part),
			Index: value.Int(int64(len(its))),
		})
	}

	return its
}

// collection resolves the items of an array loop. A bare identifier names
// a variable; other literal text is parsed as a collection or list.
func (f *frame) collection(text string) (value.Value, error) {
	text = strings.TrimSpace(text)

	if lang.HasBinding(text) {
		return f.rt.resolver.Resolve(text, f.sc)
	}

	if isIdent(text) {
		return f.sc.Get(text)
	}

	if v, ok := parseCollection(text); ok {
		return v, nil
	}

	return value.String(text), nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}

	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r == '.' || (r >= '0' && r <= '9')):
		default:
			return false
		}
	}

	return true
}

func (f *frame) collectionIterations(v value.Value, delim string) ([]Iteration, error) {
	switch v.Kind() {
	case value.KindNull:
		return nil, nil

	case value.KindArray:
		items := v.Items()
		its := make([]Iteration, len(items))

		for i, it := range items {
			its[i] = Iteration{Item: it, Index: value.Int(int64(i))}
		}

		return its, nil

	case value.KindMapping:
		keys := v.Keys()
		its := make([]Iteration, len(keys))

		for i, k := range keys {
			it, _ := v.Field(k)
			its[i] = Iteration{Item: it, Index: value.String(k)}
		}

		return its, nil

	case value.KindString:
		return listIterations(v.Str(), delim), nil

	default:
		return nil, ErrNotIterable.With(slog.String("kind", v.Kind().String()))
	}
}

// arguments resolves and coerces args by name.
func (f *frame) arguments(args []lang.Arg) (map[string]value.Value, error) {
	out := make(map[string]value.Value, len(args))

	for _, a := range args {
		v, err := f.typed(a.Value, a.Type)
		if err != nil {
			return nil, ErrArgument.Wrap(err).With(slog.String("arg", a.Name))
		}

		out[a.Name] = v
	}

	return out, nil
}

func (f *frame) assign(name string, v value.Value) error {
	if name == "" {
		return nil
	}

	return f.sc.Set(name, v, "")
}

func (f *frame) callNode(n *lang.CallNode) error {
	args, err := f.arguments(n.Args)
	if err != nil {
		return err
	}

	v, err := f.call(n.Function, args, nil, true)
	if err != nil {
		return err
	}

	return f.assign(n.Result, v)
}

func (f *frame) invoke(n *lang.InvokeNode) error {
	args, err := f.arguments(n.Args)
	if err != nil {
		return err
	}

	kind, target := n.Target()

	switch kind {
	case "function":
		v, err := f.call(target, args, nil, n.Result == "")
		if err != nil {
			return err
		}

		return f.assign(n.Result, v)

	case "component":
		return f.invokeComponent(n, target, args)

	default:
		url, err := f.interpolate(target)
		if err != nil {
			return err
		}

		method, err := f.interpolate(n.Method)
		if err != nil {
			return err
		}

		if method == "" {
			method = "GET"
		}

		args["url"] = value.String(url)
		args["method"] = value.String(strings.ToUpper(method))

		res, err := f.service(InvokeHTTP, args)
		if err != nil {
			return err
		}

		return f.assign(n.Result, res.Value())
	}
}

// lookup finds the component imported under name, loading it through the
// cache when the current bundle does not hold it.
func (f *frame) lookup(name string) (*lang.Component, Importer, error) {
	if f.imports != nil {
		if c, ok := f.imports.Lookup(f.comp, name); ok {
			return c, f.imports, nil
		}
	}

	path, err := cache.Resolve(f.comp.Path, name)
	if err != nil {
		return nil, nil, err
	}

	b, err := f.rt.cache.Load(f.ctx, path)
	if err != nil {
		return nil, nil, err
	}

	return b.Root, b, nil
}

func (f *frame) invokeComponent(n *lang.InvokeNode, name string, args map[string]value.Value) error {
	target, imports, err := f.lookup(name)
	if err != nil {
		return err
	}

	if f.depth >= f.rt.maxDepth {
		return ErrDepth.With(slog.Int("depth", f.depth))
	}

	child := f.sc.Child()
	cf := &frame{
		rt:      f.rt,
		ctx:     f.ctx,
		comp:    target,
		imports: imports,
		sc:      child,
		slots:   f.fills(n.Body),
		depth:   f.depth + 1,
	}
	child.SetCaller(cf)

	var ctl control

	out, err := child.Capture(func() error {
		if err := f.rt.bindParams(child, params(target.Params), args, nil); err != nil {
			return cf.wrap(target, err)
		}

		var err error
		ctl, err = cf.exec(target.Body)

		return err
	})
	if err != nil {
		return err
	}

	if n.Result == "" {
		f.write(out)

		return nil
	}

	if ctl.returned {
		return f.assign(n.Result, ctl.value)
	}

	return f.assign(n.Result, value.String(out))
}

// fills sorts invoke body content into slots. Elements carrying a slot
// attribute fill the slot it names; everything else fills "default".
// Whitespace alone fills nothing.
func (f *frame) fills(body []lang.Node) map[string]slotFill {
	if len(body) == 0 {
		return nil
	}

	fills := map[string]slotFill{}
	add := func(name string, n lang.Node) {
		fill := fills[name]
		fill.owner = f
		fill.nodes = append(fill.nodes, n)
		fills[name] = fill
	}

	for _, n := range body {
		if e, ok := n.(*lang.ElementNode); ok {
			if name, ok := slotName(e); ok {
				add(name, n)

				continue
			}
		}

		add("default", n)
	}

	for name, fill := range fills {
		if blank(fill.nodes) {
			delete(fills, name)
		}
	}

	return fills
}

func slotName(e *lang.ElementNode) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name == "slot" && a.HasValue && a.Value != "" {
			return a.Value, true
		}
	}

	return "", false
}

func blank(nodes []lang.Node) bool {
	for _, n := range nodes {
		if t, ok := n.(*lang.TextNode); !ok || !t.Whitespace {
			return false
		}
	}

	return true
}

func (f *frame) slot(n *lang.SlotNode) error {
	fill, ok := f.slots[n.Name]
	if !ok {
		_, err := f.exec(n.Default)

		return err
	}

	owner := fill.owner

	out, err := owner.sc.Capture(func() error {
		_, err := owner.exec(fill.nodes)

		return err
	})
	if err != nil {
		return err
	}

	f.write(out)

	return nil
}

// service sends params to the invoker and fails unless it succeeds.
func (f *frame) service(kind string, params map[string]value.Value) (InvokeResult, error) {
	res, err := f.invoker(kind, params)
	if err != nil {
		return res, err
	}

	if !res.Success {
		return res, ErrService.With(slog.String("kind", kind), slog.String("reason", res.Error))
	}

	return res, nil
}

func (f *frame) invoker(kind string, params map[string]value.Value) (InvokeResult, error) {
	inv := f.rt.services.Invoker
	if inv == nil {
		return InvokeResult{}, ErrNoService.With(slog.String("service", kind))
	}

	res, err := inv.Invoke(f.ctx, kind, params, f.sc)
	if err != nil {
		return res, ErrService.Wrap(err).With(slog.String("kind", kind))
	}

	return res, nil
}

// texts resolves each named attribute text to its display form.
func (f *frame) texts(attrs map[string]string) (map[string]value.Value, error) {
	out := make(map[string]value.Value, len(attrs))

	for k, text := range attrs {
		s, err := f.interpolate(text)
		if err != nil {
			return nil, err
		}

		out[k] = value.String(s)
	}

	return out, nil
}

func (f *frame) query(n *lang.QueryNode) error {
	db := f.rt.services.Database
	if db == nil {
		return ErrNoService.With(slog.String("service", "database"))
	}

	ds, err := f.interpolate(n.Datasource)
	if err != nil {
		return err
	}

	args, err := f.arguments(n.Params)
	if err != nil {
		return err
	}

	res, err := db.ExecuteQuery(f.ctx, ds, n.SQL, args)
	if err != nil {
		return ErrService.Wrap(err).With(slog.String("query", n.Name))
	}

	return f.assign(n.Name, res.Value())
}

func (f *frame) action(n *lang.ActionNode) (control, error) {
	params, err := f.texts(map[string]string{"name": n.Name, "method": n.Method})
	if err != nil {
		return control{}, err
	}

	res, err := f.invoker(InvokeAction, params)
	if err != nil {
		return control{}, err
	}

	if !res.Success {
		return control{}, nil
	}

	if err := f.assign(n.Name, res.Data); err != nil {
		return control{}, err
	}

	return f.exec(n.Body)
}

func (f *frame) mail(n *lang.MailNode) error {
	params, err := f.texts(map[string]string{"to": n.To, "from": n.From, "subject": n.Subject})
	if err != nil {
		return err
	}

	body, err := f.sc.Capture(func() error {
		_, err := f.exec(n.Body)

		return err
	})
	if err != nil {
		return err
	}

	params["body"] = value.String(body)

	_, err = f.service(InvokeMail, params)

	return err
}

func (f *frame) file(n *lang.FileNode) error {
	params, err := f.texts(map[string]string{
		"field":       n.Field,
		"destination": n.Destination,
		"accept":      n.Accept,
	})
	if err != nil {
		return err
	}

	if n.MaxSize != "" {
		if params["maxSize"], err = f.value(n.MaxSize); err != nil {
			return err
		}
	}

	res, err := f.service(InvokeFile, params)
	if err != nil {
		return err
	}

	return f.assign(n.Result, res.Data)
}

func (f *frame) websocket(n *lang.WebSocketSendNode) error {
	channel, err := f.interpolate(n.Channel)
	if err != nil {
		return err
	}

	msg, err := f.value(n.Message)
	if err != nil {
		return err
	}

	_, err = f.service(InvokeWebSocket, map[string]value.Value{
		"channel": value.String(channel),
		"message": msg,
	})

	return err
}

func (f *frame) log(n *lang.LogNode) error {
	if n.When != "" {
		ok, err := f.rt.cond.EvaluateCondition(n.When, f.sc)
		if err != nil || !ok {
			return err
		}
	}

	level, err := f.interpolate(n.Level)
	if err != nil {
		return err
	}

	msg, err := f.interpolate(n.Message)
	if err != nil {
		return err
	}

	fields, err := f.value(n.Context)
	if err != nil {
		return err
	}

	if err := f.rt.services.Logging.Log(f.ctx, level, msg, fields); err != nil {
		return ErrService.Wrap(err).With(slog.String("service", "logging"))
	}

	return nil
}

func (f *frame) dump(n *lang.DumpNode) error {
	var (
		v   value.Value
		err error
	)

	if lang.HasBinding(n.Var) {
		v, err = f.rt.resolver.Resolve(n.Var, f.sc)
	} else {
		v, err = f.sc.Get(n.Var)
	}

	if err != nil {
		return err
	}

	label := n.Label
	if label == "" {
		label = n.Var
	}

	f.write(Dump(label, v))

	return nil
}

// Dump renders v as YAML inside a pre element headed by label.
func Dump(label string, v value.Value) string {
	text, err := yaml.Marshal(v.Native())
	if err != nil {
		text = []byte(v.String())
	}

	var sb strings.Builder

	sb.WriteString(`<pre class="q-dump">`)

	if label != "" {
		sb.WriteString("<strong>" + html.EscapeString(label) + "</strong>\n")
	}

	sb.WriteString(html.EscapeString(strings.TrimRight(string(text), "\n")))
	sb.WriteString("</pre>")

	return sb.String()
}
