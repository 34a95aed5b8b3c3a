package transpile

import (
	"log/slog"
	"strings"

	"github.com/ardnew/quill/binding"
	"github.com/ardnew/quill/lang"
	"github.com/ardnew/quill/runtime"
)

// Stmt is a statement of the intermediate program built from a component.
// Targets render statements as source code; the optimizer rewrites them.
type Stmt interface {
	stmt()
}

// Text writes literal output.
type Text struct{ Text string }

// Expr writes the display form of an expression.
type Expr struct{ Expr string }

// AttrText writes an attribute value containing bindings, escaped for a
// double-quoted attribute.
type AttrText struct{ Text string }

// Open starts a scene node. Only scene programs contain Open and Close.
type Open struct {
	Tag   string
	Attrs []lang.Attr
}

// Close ends the innermost open scene node.
type Close struct{ Tag string }

// Set assigns or applies an array operation to a variable.
type Set struct {
	Name  string
	Value string
	Type  string
	Op    string
	Scope string
}

// Branch is one guarded body of an If.
type Branch struct {
	Cond string
	Body []Stmt
}

// If runs the body of the first branch whose condition holds, else Else.
type If struct {
	Branches []Branch
	Else     []Stmt
	HasElse  bool
}

// Loop iterates Body.
type Loop struct {
	Mode  lang.LoopMode
	Var   string
	Index string
	From  string
	To    string
	Step  string
	Items string
	Delim string
	Body  []Stmt
}

// Block runs Body with the Shadow variables saved and restored around it.
type Block struct {
	Shadow []string
	Body   []Stmt
}

// Return ends the enclosing function or component.
type Return struct{ Value string }

// Arg is a named argument. Str arguments are interpolated to strings
// rather than resolved to typed values.
type Arg struct {
	Name  string
	Value string
	Type  string
	Str   bool
}

// Call calls a component function.
type Call struct {
	Function string
	Result   string
	Args     []Arg
}

// Query runs a database query and stores the result under Name.
type Query struct {
	Name       string
	Datasource string
	SQL        string
	Params     []Arg
}

// Invoke sends Params to the invocation service.
type Invoke struct {
	Kind   string
	Result string
	Params []Arg
}

// Log sends a message to the logging service when When holds.
type Log struct {
	Level   string
	Message string
	Context string
	When    string
}

// Dump writes a variable rendered as YAML.
type Dump struct {
	Var   string
	Label string
}

func (Text) stmt()     {}
func (Expr) stmt()     {}
func (AttrText) stmt() {}
func (Open) stmt()     {}
func (Close) stmt()    {}
func (Set) stmt()      {}
func (If) stmt()       {}
func (Loop) stmt()     {}
func (Block) stmt()    {}
func (Return) stmt()   {}
func (Call) stmt()     {}
func (Query) stmt()    {}
func (Invoke) stmt()   {}
func (Log) stmt()      {}
func (Dump) stmt()     {}

// Func is a component function.
type Func struct {
	Name       string
	ReturnType string
	Params     []runtime.Param
	Body       []Stmt
}

// Program is the intermediate form of one component.
type Program struct {
	Name   string
	Params []runtime.Param
	Funcs  []Func
	Body   []Stmt
}

// Lower builds the program for comp. Scene programs keep elements as
// Open and Close statements; otherwise elements are lowered to text.
func Lower(comp *lang.Component, scene bool) (*Program, error) {
	l := lowerer{scene: scene, comp: comp}

	p := &Program{Name: comp.Name, Params: params(comp.Params)}

	for _, name := range comp.FunctionNames() {
		fn := comp.Functions[name]

		body, err := l.body(fn.Body)
		if err != nil {
			return nil, err
		}

		p.Funcs = append(p.Funcs, Func{
			Name:       fn.Name,
			ReturnType: fn.ReturnType,
			Params:     params(fn.Params),
			Body:       body,
		})
	}

	body, err := l.body(comp.Body)
	if err != nil {
		return nil, err
	}

	p.Body = body

	return p, nil
}

func params(ps []*lang.ParamNode) []runtime.Param {
	out := make([]runtime.Param, len(ps))
	for i, p := range ps {
		out[i] = runtime.Param{
			Name:       p.Name,
			Type:       p.Type,
			Default:    p.Default,
			HasDefault: p.HasDefault,
			Required:   p.Required,
		}
	}

	return out
}

type lowerer struct {
	scene bool
	comp  *lang.Component
}

func (l lowerer) unsupported(n lang.Node) error {
	return ErrUnsupported.With(
		slog.String("component", l.comp.Name),
		slog.String("kind", n.Kind().String()),
		slog.String("pos", n.Position().String()))
}

func (l lowerer) body(nodes []lang.Node) ([]Stmt, error) {
	var out []Stmt

	for _, n := range nodes {
		stmts, err := l.node(n)
		if err != nil {
			return nil, err
		}

		out = append(out, stmts...)
	}

	return out, nil
}

func (l lowerer) node(n lang.Node) ([]Stmt, error) {
	switch n := n.(type) {
	case *lang.TextNode:
		return text(n), nil

	case *lang.ElementNode:
		return l.element(n)

	case *lang.SetNode:
		return []Stmt{Set{Name: n.Name, Value: n.Value, Type: n.Type, Op: n.Operation, Scope: n.Scope}}, nil

	case *lang.IfNode:
		return l.cond(n)

	case *lang.LoopNode:
		body, err := l.body(n.Body)
		if err != nil {
			return nil, err
		}

		return []Stmt{Loop{
			Mode:  n.Mode,
			Var:   n.Var,
			Index: n.Index,
			From:  n.From,
			To:    n.To,
			Step:  n.Step,
			Items: n.Items,
			Delim: n.Delimiter,
			Body:  body,
		}}, nil

	case *lang.ReturnNode:
		return []Stmt{Return{Value: n.Value}}, nil

	case *lang.CallNode:
		return []Stmt{Call{Function: n.Function, Result: n.Result, Args: args(n.Args)}}, nil

	case *lang.InvokeNode:
		kind, target := n.Target()

		switch kind {
		case "function":
			return []Stmt{Call{Function: target, Result: n.Result, Args: args(n.Args)}}, nil

		case "http":
			ps := append(args(n.Args),
				Arg{Name: "url", Value: target, Str: true},
				Arg{Name: "method", Value: method(n.Method), Str: true})

			return []Stmt{Invoke{Kind: runtime.InvokeHTTP, Result: n.Result, Params: ps}}, nil

		default:
			return nil, l.unsupported(n)
		}

	case *lang.QueryNode:
		return []Stmt{Query{Name: n.Name, Datasource: n.Datasource, SQL: n.SQL, Params: args(n.Params)}}, nil

	case *lang.FileNode:
		ps := []Arg{
			{Name: "field", Value: n.Field, Str: true},
			{Name: "destination", Value: n.Destination, Str: true},
			{Name: "accept", Value: n.Accept, Str: true},
		}
		if n.MaxSize != "" {
			ps = append(ps, Arg{Name: "maxSize", Value: n.MaxSize})
		}

		return []Stmt{Invoke{Kind: runtime.InvokeFile, Result: n.Result, Params: ps}}, nil

	case *lang.WebSocketSendNode:
		return []Stmt{Invoke{Kind: runtime.InvokeWebSocket, Params: []Arg{
			{Name: "channel", Value: n.Channel, Str: true},
			{Name: "message", Value: n.Message},
		}}}, nil

	case *lang.LogNode:
		return []Stmt{Log{Level: n.Level, Message: n.Message, Context: n.Context, When: n.When}}, nil

	case *lang.DumpNode:
		return []Stmt{Dump{Var: n.Var, Label: n.Label}}, nil

	case *lang.FunctionNode, *lang.ParamNode, *lang.ImportNode:
		return nil, nil

	default:
		return nil, l.unsupported(n)
	}
}

func method(m string) string {
	if m == "" {
		return "GET"
	}

	return strings.ToUpper(m)
}

func args(as []lang.Arg) []Arg {
	out := make([]Arg, len(as))
	for i, a := range as {
		out[i] = Arg{Name: a.Name, Value: a.Value, Type: a.Type}
	}

	return out
}

// text splits bound text into literal and expression statements.
func text(n *lang.TextNode) []Stmt {
	if !n.Bound || n.Raw || n.Whitespace {
		return []Stmt{Text{Text: n.Text}}
	}

	var (
		out  []Stmt
		last int
	)

	for _, sp := range binding.Spans(n.Text) {
		if sp.Start > last {
			out = append(out, Text{Text: n.Text[last:sp.Start]})
		}

		out = append(out, Expr{Expr: strings.TrimSpace(sp.Expr)})
		last = sp.End
	}

	if last < len(n.Text) {
		out = append(out, Text{Text: n.Text[last:]})
	}

	return out
}

var attrEscaper = strings.NewReplacer(`"`, "&quot;")

func (l lowerer) element(n *lang.ElementNode) ([]Stmt, error) {
	body, err := l.body(n.Body)
	if err != nil {
		return nil, err
	}

	if l.scene {
		out := []Stmt{Open{Tag: n.Name, Attrs: n.Attrs}}
		out = append(out, body...)

		return append(out, Close{Tag: n.Name}), nil
	}

	out := []Stmt{Text{Text: "<" + n.Name}}

	for _, a := range n.Attrs {
		switch {
		case !a.HasValue:
			out = append(out, Text{Text: " " + a.Name})

		case lang.HasBinding(a.Value):
			out = append(out,
				Text{Text: " " + a.Name + `="`},
				AttrText{Text: a.Value},
				Text{Text: `"`})

		default:
			out = append(out, Text{Text: " " + a.Name + `="` + attrEscaper.Replace(a.Value) + `"`})
		}
	}

	if n.SelfClosing {
		return append(out, Text{Text: "/>"}), nil
	}

	out = append(out, Text{Text: ">"})
	out = append(out, body...)

	return append(out, Text{Text: "</" + n.Name + ">"}), nil
}

func (l lowerer) cond(n *lang.IfNode) ([]Stmt, error) {
	then, err := l.body(n.Then)
	if err != nil {
		return nil, err
	}

	s := If{Branches: []Branch{{Cond: n.Condition, Body: then}}, HasElse: n.HasElse}

	for _, c := range n.ElseIfs {
		body, err := l.body(c.Body)
		if err != nil {
			return nil, err
		}

		s.Branches = append(s.Branches, Branch{Cond: c.Condition, Body: body})
	}

	if n.HasElse {
		if s.Else, err = l.body(n.Else); err != nil {
			return nil, err
		}
	}

	return []Stmt{s}, nil
}
