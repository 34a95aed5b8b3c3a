package lang

import (
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"

	"github.com/ardnew/quill/log"
)

// level tracks where in a component a node appears, which decides whether
// declarations may be hoisted from it.
type level int

const (
	levelComponent level = iota
	levelMarkup
	levelFunction
)

func (l level) nested() level {
	if l == levelFunction {
		return levelFunction
	}

	return levelMarkup
}

// scopes accepted by q:set.
var knownScopes = []string{"", "component", "request", "session", "application"}

// builder turns the scanner's markup tree into typed nodes.
type builder struct {
	prefix string
	src    []byte
	logger log.Logger
	comp   *Component
}

func (b *builder) build(nodes []*mkNode, name, file string) (*Component, error) {
	b.comp = &Component{
		node:      node{Pos: Pos{File: file, Line: 1, Col: 1}},
		Name:      name,
		Path:      file,
		Functions: make(map[string]*FunctionNode),
	}

	if root := b.explicitRoot(nodes); root != nil {
		if err := b.allow(root, "name"); err != nil {
			return nil, err
		}

		if n, ok := root.attr("name"); ok && n != "" {
			b.comp.Name = n
		}

		b.comp.Pos = root.pos
		nodes = root.children
	}

	body, err := b.body(nodes, levelComponent, nil)
	if err != nil {
		return nil, err
	}

	b.comp.Body = body

	return b.comp, nil
}

// explicitRoot returns the q:component element when it is the only
// significant top-level node.
func (b *builder) explicitRoot(nodes []*mkNode) *mkNode {
	var root *mkNode

	for _, n := range nodes {
		if n.whitespace() {
			continue
		}

		if n.isText || root != nil || b.local(n) != "component" {
			return nil
		}

		root = n
	}

	return root
}

// local returns the control tag name of n without the prefix, or "" for
// text and host markup.
func (b *builder) local(n *mkNode) string {
	if n.isText || !strings.HasPrefix(n.name, b.prefix) {
		return ""
	}

	return n.name[len(b.prefix):]
}

// body builds a statement list. When parent is non-nil, q:elseif and q:else
// children that do not follow a sibling q:if start new clauses of parent.
func (b *builder) body(nodes []*mkNode, lvl level, parent *IfNode) ([]Node, error) {
	var out []Node

	cur := make([]Node, 0, len(nodes))
	dest := func(ns []Node) { out = ns }

	for _, mn := range nodes {
		switch tag := b.local(mn); tag {
		case "elseif", "else":
			if i := lastIf(cur); i >= 0 {
				ifn, _ := cur[i].(*IfNode)
				if err := b.attachSibling(ifn, mn, tag, lvl); err != nil {
					return nil, err
				}

				cur = cur[:i+1]

				continue
			}

			if parent == nil {
				return nil, b.errorf(mn.pos, "<%s> without preceding <%sif>", mn.name, b.prefix)
			}

			if err := b.checkClause(parent, mn, tag); err != nil {
				return nil, err
			}

			dest(cur)
			cur = nil

			if tag == "else" {
				parent.HasElse = true
				dest = func(ns []Node) { parent.Else = ns }
			} else {
				cond, _ := mn.attr("condition")
				parent.ElseIfs = append(parent.ElseIfs, ElseIf{Pos: mn.pos, Condition: cond})
				idx := len(parent.ElseIfs) - 1
				dest = func(ns []Node) { parent.ElseIfs[idx].Body = ns }
			}

			children, err := b.body(mn.children, lvl, nil)
			if err != nil {
				return nil, err
			}

			cur = append(cur, children...)

			continue
		}

		n, err := b.node(mn, lvl)
		if err != nil {
			return nil, err
		}

		if n != nil {
			cur = append(cur, n)
		}
	}

	dest(cur)

	return out, nil
}

// lastIf returns the index of the q:if that ends nodes, ignoring trailing
// whitespace, or -1.
func lastIf(nodes []Node) int {
	for i := len(nodes) - 1; i >= 0; i-- {
		switch n := nodes[i].(type) {
		case *TextNode:
			if !n.Whitespace {
				return -1
			}
		case *IfNode:
			return i
		default:
			return -1
		}
	}

	return -1
}

func (b *builder) checkClause(ifn *IfNode, mn *mkNode, tag string) error {
	if ifn.HasElse {
		return b.errorf(mn.pos, "<%s> after <%selse>", mn.name, b.prefix)
	}

	if tag == "else" {
		if len(mn.attrs) > 0 {
			return b.errorf(mn.pos, "unknown attribute combination: <%s> takes no attributes", mn.name)
		}

		return nil
	}

	if err := b.allow(mn, "condition"); err != nil {
		return err
	}

	return b.require(mn, "condition")
}

func (b *builder) attachSibling(ifn *IfNode, mn *mkNode, tag string, lvl level) error {
	if err := b.checkClause(ifn, mn, tag); err != nil {
		return err
	}

	children, err := b.body(mn.children, lvl.nested(), nil)
	if err != nil {
		return err
	}

	if tag == "else" {
		ifn.HasElse = true
		ifn.Else = children

		return nil
	}

	cond, _ := mn.attr("condition")
	ifn.ElseIfs = append(ifn.ElseIfs, ElseIf{Pos: mn.pos, Condition: cond, Body: children})

	return nil
}

func (b *builder) node(mn *mkNode, lvl level) (Node, error) {
	if mn.isText {
		return b.text(mn), nil
	}

	tag := b.local(mn)

	switch tag {
	case "":
		return b.element(mn, lvl)
	case "component":
		return nil, b.errorf(mn.pos, "<%s> must be the root element", mn.name)
	case "comment":
		return nil, nil
	case "import":
		return nil, b.importDecl(mn, lvl)
	case "param":
		return nil, b.componentParam(mn, lvl)
	case "function":
		return nil, b.function(mn, lvl)
	case "set":
		return b.set(mn)
	case "if":
		return b.ifChain(mn, lvl)
	case "loop":
		return b.loop(mn, lvl)
	case "return":
		return b.ret(mn, lvl)
	case "call":
		return b.call(mn)
	case "query":
		return b.query(mn)
	case "action":
		return b.action(mn, lvl)
	case "mail":
		return b.mail(mn, lvl)
	case "file":
		return b.file(mn)
	case "invoke":
		return b.invoke(mn, lvl)
	case "log":
		return b.log(mn)
	case "dump":
		return b.dump(mn)
	case "websocket-send":
		return b.wsSend(mn)
	case "slot":
		return b.slot(mn, lvl)
	case "arg":
		return nil, b.errorf(mn.pos, "<%s> outside <%scall> or <%sinvoke>", mn.name, b.prefix, b.prefix)
	case "queryparam":
		return nil, b.errorf(mn.pos, "<%s> outside <%squery>", mn.name, b.prefix)
	}

	b.logger.Debug("unknown control tag passed through",
		slog.String("tag", mn.name),
		slog.String("pos", mn.pos.String()))

	return b.element(mn, lvl)
}

func (b *builder) text(mn *mkNode) *TextNode {
	return &TextNode{
		node:       node{Pos: mn.pos},
		Text:       mn.text,
		Whitespace: strings.TrimSpace(mn.text) == "",
		Raw:        mn.raw,
		Bound:      !mn.raw && HasBinding(mn.text),
	}
}

func (b *builder) element(mn *mkNode, lvl level) (Node, error) {
	body, err := b.body(mn.children, lvl.nested(), nil)
	if err != nil {
		return nil, err
	}

	return &ElementNode{
		node:        node{Pos: mn.pos},
		Name:        mn.name,
		Attrs:       slices.Clone(mn.attrs),
		Body:        body,
		SelfClosing: mn.selfClosing,
	}, nil
}

func (b *builder) importDecl(mn *mkNode, lvl level) error {
	if lvl == levelFunction {
		return b.errorf(mn.pos, "<%s> inside a function", mn.name)
	}

	if err := b.allow(mn, "component", "as"); err != nil {
		return err
	}

	if err := b.require(mn, "component"); err != nil {
		return err
	}

	comp, _ := mn.attr("component")

	as, ok := mn.attr("as")
	if !ok || as == "" {
		as = strings.TrimSuffix(path.Base(comp), path.Ext(comp))
	}

	b.comp.Imports = append(b.comp.Imports, &ImportNode{
		node:      node{Pos: mn.pos},
		Component: comp,
		As:        as,
	})

	return nil
}

func (b *builder) param(mn *mkNode) (*ParamNode, error) {
	if err := b.allow(mn, "name", "type", "default", "required"); err != nil {
		return nil, err
	}

	if err := b.require(mn, "name"); err != nil {
		return nil, err
	}

	p := &ParamNode{node: node{Pos: mn.pos}}
	p.Name, _ = mn.attr("name")
	p.Type, _ = mn.attr("type")
	p.Default, p.HasDefault = mn.attr("default")

	if req, ok := mn.attr("required"); ok {
		switch strings.ToLower(strings.TrimSpace(req)) {
		case "", "true", "yes", "1":
			p.Required = true
		case "false", "no", "0":
		default:
			return nil, b.errorf(mn.pos, "invalid required=%q on <%s>", req, mn.name)
		}
	}

	return p, nil
}

func (b *builder) componentParam(mn *mkNode, lvl level) error {
	if lvl != levelComponent {
		return b.errorf(mn.pos, "<%s> outside <%sfunction> or component level", mn.name, b.prefix)
	}

	p, err := b.param(mn)
	if err != nil {
		return err
	}

	b.comp.Params = append(b.comp.Params, p)

	return nil
}

func (b *builder) function(mn *mkNode, lvl level) error {
	if lvl == levelFunction {
		return b.errorf(mn.pos, "nested <%s>", mn.name)
	}

	if err := b.allow(mn, "name", "returntype", "return-type"); err != nil {
		return err
	}

	if err := b.require(mn, "name"); err != nil {
		return err
	}

	fn := &FunctionNode{node: node{Pos: mn.pos}}
	fn.Name, _ = mn.attr("name")

	if rt, ok := mn.attr("returntype"); ok {
		fn.ReturnType = rt
	} else {
		fn.ReturnType, _ = mn.attr("return-type")
	}

	if _, dup := b.comp.Functions[fn.Name]; dup {
		return b.errorf(mn.pos, "duplicate function %q", fn.Name)
	}

	rest := make([]*mkNode, 0, len(mn.children))

	for _, c := range mn.children {
		if b.local(c) != "param" {
			rest = append(rest, c)

			continue
		}

		p, err := b.param(c)
		if err != nil {
			return err
		}

		fn.Params = append(fn.Params, p)
	}

	body, err := b.body(rest, levelFunction, nil)
	if err != nil {
		return err
	}

	fn.Body = body
	b.comp.Functions[fn.Name] = fn

	return nil
}

func (b *builder) set(mn *mkNode) (Node, error) {
	if err := b.allow(mn, "name", "value", "type", "operation", "scope", "index"); err != nil {
		return nil, err
	}

	if err := b.require(mn, "name"); err != nil {
		return nil, err
	}

	n := &SetNode{node: node{Pos: mn.pos}}
	n.Name, _ = mn.attr("name")
	n.Value, n.HasValue = mn.attr("value")
	n.Type, _ = mn.attr("type")
	n.Operation, _ = mn.attr("operation")
	n.Scope, _ = mn.attr("scope")

	if idx, ok := mn.attr("index"); ok && !n.HasValue {
		n.Value, n.HasValue = idx, true
	}

	if !slices.Contains(knownScopes, n.Scope) {
		return nil, b.errorf(mn.pos, "unknown scope %q on <%s>", n.Scope, mn.name)
	}

	if !n.HasValue && n.Operation == "" {
		for _, c := range mn.children {
			if !c.whitespace() {
				return nil, b.errorf(c.pos, "<%s> takes no content", mn.name)
			}
		}
	}

	return n, nil
}

func (b *builder) ifChain(mn *mkNode, lvl level) (Node, error) {
	if err := b.allow(mn, "condition"); err != nil {
		return nil, err
	}

	if err := b.require(mn, "condition"); err != nil {
		return nil, err
	}

	n := &IfNode{node: node{Pos: mn.pos}}
	n.Condition, _ = mn.attr("condition")

	then, err := b.body(mn.children, lvl.nested(), n)
	if err != nil {
		return nil, err
	}

	n.Then = then

	return n, nil
}

func (b *builder) loop(mn *mkNode, lvl level) (Node, error) {
	err := b.allow(mn,
		"var", "index", "from", "to", "step",
		"items", "collection", "array", "list", "type", "delimiter")
	if err != nil {
		return nil, err
	}

	if err := b.require(mn, "var"); err != nil {
		return nil, err
	}

	n := &LoopNode{node: node{Pos: mn.pos}}
	n.Var, _ = mn.attr("var")
	n.Index, _ = mn.attr("index")
	n.Step, _ = mn.attr("step")
	n.Delimiter, _ = mn.attr("delimiter")

	from, hasFrom := mn.attr("from")
	to, hasTo := mn.attr("to")

	var hasItems bool

	for _, key := range []string{"items", "collection", "array", "list"} {
		v, ok := mn.attr(key)
		if !ok {
			continue
		}

		if hasItems {
			return nil, b.errorf(mn.pos, "unknown attribute combination: more than one collection on <%s>", mn.name)
		}

		n.Items, hasItems = v, true

		if key == "list" {
			n.Mode = LoopList
		}
	}

	switch {
	case (hasFrom || hasTo) && hasItems:
		return nil, b.errorf(mn.pos, "unknown attribute combination: from/to with items on <%s>", mn.name)

	case hasFrom || hasTo:
		if !hasFrom || !hasTo {
			return nil, b.errorf(mn.pos, "range <%s> requires both from and to", mn.name)
		}

		n.Mode, n.From, n.To = LoopRange, from, to

	case hasItems:
		if n.Mode != LoopList {
			n.Mode = LoopArray
			if n.Delimiter != "" {
				n.Mode = LoopList
			}
		}

	default:
		return nil, b.errorf(mn.pos, "<%s> requires from/to or items", mn.name)
	}

	if typ, ok := mn.attr("type"); ok {
		switch want := strings.ToLower(typ); {
		case want == n.Mode.String():
		case want == "list" && n.Mode == LoopArray:
			n.Mode = LoopList
		case want == "array" && n.Mode == LoopList && n.Delimiter == "":
			n.Mode = LoopArray
		default:
			return nil, b.errorf(mn.pos, "unknown attribute combination: type=%q with %s loop", typ, n.Mode)
		}
	}

	if n.Step != "" && n.Mode != LoopRange {
		return nil, b.errorf(mn.pos, "unknown attribute combination: step on %s loop", n.Mode)
	}

	body, err := b.body(mn.children, lvl.nested(), nil)
	if err != nil {
		return nil, err
	}

	n.Body = body

	return n, nil
}

func (b *builder) ret(mn *mkNode, lvl level) (Node, error) {
	if err := b.allow(mn, "value"); err != nil {
		return nil, err
	}

	n := &ReturnNode{node: node{Pos: mn.pos}}

	var ok bool
	if n.Value, ok = mn.attr("value"); !ok {
		n.Value = strings.TrimSpace(textOf(mn))
	}

	if lvl == levelComponent && b.comp.Return == nil {
		b.comp.Return = n
	}

	return n, nil
}

func (b *builder) args(mn *mkNode, reserved ...string) ([]Arg, []*mkNode, error) {
	var out []Arg

	for _, a := range mn.attrs {
		if !slices.Contains(reserved, a.Name) {
			out = append(out, Arg{Pos: a.Pos, Name: a.Name, Value: a.Value})
		}
	}

	rest := make([]*mkNode, 0, len(mn.children))

	for _, c := range mn.children {
		if b.local(c) != "arg" {
			rest = append(rest, c)

			continue
		}

		if err := b.allow(c, "name", "value", "type"); err != nil {
			return nil, nil, err
		}

		if err := b.require(c, "name"); err != nil {
			return nil, nil, err
		}

		arg := Arg{Pos: c.pos}
		arg.Name, _ = c.attr("name")
		arg.Type, _ = c.attr("type")

		var ok bool
		if arg.Value, ok = c.attr("value"); !ok {
			arg.Value = textOf(c)
		}

		out = append(out, arg)
	}

	return out, rest, nil
}

func (b *builder) call(mn *mkNode) (Node, error) {
	if err := b.require(mn, "function"); err != nil {
		return nil, err
	}

	args, rest, err := b.args(mn, "function", "result")
	if err != nil {
		return nil, err
	}

	for _, c := range rest {
		if !c.whitespace() {
			return nil, b.errorf(c.pos, "unexpected content in <%s>", mn.name)
		}
	}

	n := &CallNode{node: node{Pos: mn.pos}, Args: args}
	n.Function, _ = mn.attr("function")
	n.Result, _ = mn.attr("result")

	return n, nil
}

func (b *builder) query(mn *mkNode) (Node, error) {
	if err := b.allow(mn, "name", "datasource"); err != nil {
		return nil, err
	}

	if err := b.require(mn, "name"); err != nil {
		return nil, err
	}

	n := &QueryNode{node: node{Pos: mn.pos}}
	n.Name, _ = mn.attr("name")
	n.Datasource, _ = mn.attr("datasource")

	var sql strings.Builder

	for _, c := range mn.children {
		switch {
		case c.isText:
			sql.WriteString(c.text)

		case b.local(c) == "queryparam":
			if err := b.allow(c, "name", "value", "type"); err != nil {
				return nil, err
			}

			if err := b.require(c, "name"); err != nil {
				return nil, err
			}

			p := Arg{Pos: c.pos}
			p.Name, _ = c.attr("name")
			p.Value, _ = c.attr("value")
			p.Type, _ = c.attr("type")
			n.Params = append(n.Params, p)

		default:
			return nil, b.errorf(c.pos, "unexpected <%s> in <%s>", c.name, mn.name)
		}
	}

	n.SQL = strings.TrimSpace(sql.String())

	return n, nil
}

func (b *builder) action(mn *mkNode, lvl level) (Node, error) {
	if err := b.allow(mn, "name", "method"); err != nil {
		return nil, err
	}

	if err := b.require(mn, "name"); err != nil {
		return nil, err
	}

	body, err := b.body(mn.children, lvl.nested(), nil)
	if err != nil {
		return nil, err
	}

	n := &ActionNode{node: node{Pos: mn.pos}, Body: body}
	n.Name, _ = mn.attr("name")
	n.Method, _ = mn.attr("method")

	return n, nil
}

func (b *builder) mail(mn *mkNode, lvl level) (Node, error) {
	if err := b.allow(mn, "to", "from", "subject"); err != nil {
		return nil, err
	}

	if err := b.require(mn, "to"); err != nil {
		return nil, err
	}

	body, err := b.body(mn.children, lvl.nested(), nil)
	if err != nil {
		return nil, err
	}

	n := &MailNode{node: node{Pos: mn.pos}, Body: body}
	n.To, _ = mn.attr("to")
	n.From, _ = mn.attr("from")
	n.Subject, _ = mn.attr("subject")

	return n, nil
}

func (b *builder) file(mn *mkNode) (Node, error) {
	if err := b.allow(mn, "field", "destination", "accept", "maxsize", "result"); err != nil {
		return nil, err
	}

	if err := b.require(mn, "field"); err != nil {
		return nil, err
	}

	n := &FileNode{node: node{Pos: mn.pos}}
	n.Field, _ = mn.attr("field")
	n.Destination, _ = mn.attr("destination")
	n.Accept, _ = mn.attr("accept")
	n.MaxSize, _ = mn.attr("maxsize")
	n.Result, _ = mn.attr("result")

	return n, nil
}

func (b *builder) invoke(mn *mkNode, lvl level) (Node, error) {
	n := &InvokeNode{node: node{Pos: mn.pos}}
	n.Function, _ = mn.attr("function")
	n.Component, _ = mn.attr("component")
	n.URL, _ = mn.attr("url")
	n.Method, _ = mn.attr("method")
	n.Result, _ = mn.attr("result")

	targets := 0

	for _, t := range []string{n.Function, n.Component, n.URL} {
		if t != "" {
			targets++
		}
	}

	if targets != 1 {
		return nil, b.errorf(mn.pos,
			"unknown attribute combination: <%s> requires exactly one of function, component or url", mn.name)
	}

	args, rest, err := b.args(mn, "function", "component", "url", "method", "result")
	if err != nil {
		return nil, err
	}

	body, err := b.body(rest, lvl.nested(), nil)
	if err != nil {
		return nil, err
	}

	n.Args, n.Body = args, body

	return n, nil
}

func (b *builder) log(mn *mkNode) (Node, error) {
	if err := b.allow(mn, "level", "message", "context", "when"); err != nil {
		return nil, err
	}

	n := &LogNode{node: node{Pos: mn.pos}, Level: "info"}

	var ok bool
	if n.Message, ok = mn.attr("message"); !ok {
		n.Message = strings.TrimSpace(textOf(mn))
	}

	if n.Message == "" {
		return nil, b.errorf(mn.pos, "<%s> requires message", mn.name)
	}

	if lvl, ok := mn.attr("level"); ok && lvl != "" {
		n.Level = lvl
	}

	n.Context, _ = mn.attr("context")
	n.When, _ = mn.attr("when")

	return n, nil
}

func (b *builder) dump(mn *mkNode) (Node, error) {
	if err := b.allow(mn, "var", "label"); err != nil {
		return nil, err
	}

	if err := b.require(mn, "var"); err != nil {
		return nil, err
	}

	n := &DumpNode{node: node{Pos: mn.pos}}
	n.Var, _ = mn.attr("var")
	n.Label, _ = mn.attr("label")

	return n, nil
}

func (b *builder) wsSend(mn *mkNode) (Node, error) {
	if err := b.allow(mn, "channel", "message"); err != nil {
		return nil, err
	}

	if err := b.require(mn, "channel"); err != nil {
		return nil, err
	}

	n := &WebSocketSendNode{node: node{Pos: mn.pos}}
	n.Channel, _ = mn.attr("channel")

	var ok bool
	if n.Message, ok = mn.attr("message"); !ok {
		n.Message = strings.TrimSpace(textOf(mn))
	}

	return n, nil
}

func (b *builder) slot(mn *mkNode, lvl level) (Node, error) {
	if err := b.allow(mn, "name"); err != nil {
		return nil, err
	}

	def, err := b.body(mn.children, lvl.nested(), nil)
	if err != nil {
		return nil, err
	}

	n := &SlotNode{node: node{Pos: mn.pos}, Name: "default", Default: def}
	if name, ok := mn.attr("name"); ok && name != "" {
		n.Name = name
	}

	return n, nil
}

// allow rejects attributes of mn not listed in names.
func (b *builder) allow(mn *mkNode, names ...string) error {
	for _, a := range mn.attrs {
		if !slices.Contains(names, a.Name) {
			return b.errorf(a.Pos, "unknown attribute combination: %q on <%s>", a.Name, mn.name)
		}
	}

	return nil
}

func (b *builder) require(mn *mkNode, name string) error {
	if v, ok := mn.attr(name); !ok || strings.TrimSpace(v) == "" {
		return b.errorf(mn.pos, "<%s> requires %s", mn.name, name)
	}

	return nil
}

func (b *builder) errorf(pos Pos, format string, args ...any) *SyntaxError {
	return &SyntaxError{
		Pos:  pos,
		Msg:  fmt.Sprintf(format, args...),
		Line: sourceLine(b.src, pos.Offset),
	}
}

// textOf concatenates the text content of mn and its descendants.
func textOf(mn *mkNode) string {
	var sb strings.Builder

	for _, c := range mn.children {
		if c.isText {
			sb.WriteString(c.text)
		} else {
			sb.WriteString(textOf(c))
		}
	}

	return sb.String()
}

// HasBinding reports whether s contains a {…} span.
func HasBinding(s string) bool {
	open := strings.IndexByte(s, '{')

	return open >= 0 && strings.IndexByte(s[open:], '}') > 0
}
