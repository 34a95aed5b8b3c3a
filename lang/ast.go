package lang

import "slices"

//go:generate go tool stringer -type=Kind -linecomment

// Kind discriminates the variants of [Node].
type Kind int

const (
	KindText          Kind = iota // text
	KindElement                   // element
	KindComponent                 // component
	KindImport                    // import
	KindParam                     // param
	KindSet                       // set
	KindIf                        // if
	KindLoop                      // loop
	KindFunction                  // function
	KindReturn                    // return
	KindCall                      // call
	KindQuery                     // query
	KindAction                    // action
	KindMail                      // mail
	KindFile                      // file
	KindInvoke                    // invoke
	KindLog                       // log
	KindDump                      // dump
	KindWebSocketSend             // websocket-send
	KindSlot                      // slot
)

// Node is an element of a parsed component.
//
// Nodes are never modified after [Parse] returns, so a single tree may be
// executed by many goroutines at once.
type Node interface {
	Kind() Kind
	Position() Pos
	Children() []Node
}

type node struct {
	Pos Pos
}

func (n *node) Position() Pos    { return n.Pos }
func (n *node) Children() []Node { return nil }

// TextNode is literal output, possibly containing {expression} bindings.
type TextNode struct {
	node

	Text string
	// Whitespace is set when Text holds only whitespace. Such nodes are kept
	// for output fidelity but carry no data.
	Whitespace bool
	// Raw text (comments, CDATA, script and style bodies) is never scanned
	// for bindings.
	Raw bool
	// Bound is set when Text contains at least one binding span.
	Bound bool
}

func (*TextNode) Kind() Kind { return KindText }

// Attr is a single attribute of a pass-through element.
type Attr struct {
	Name  string
	Value string
	// HasValue is false for valueless attributes such as <input disabled>.
	HasValue bool
	Pos      Pos
}

// ElementNode is any element outside the control vocabulary. It is
// written to output as markup with its attribute values resolved.
type ElementNode struct {
	node

	Name        string
	Attrs       []Attr
	Body        []Node
	SelfClosing bool
}

func (*ElementNode) Kind() Kind         { return KindElement }
func (e *ElementNode) Children() []Node { return e.Body }

// Component is the root of one parsed unit.
type Component struct {
	node

	Name string
	// Path is the absolute source path, empty for components parsed from
	// memory.
	Path      string
	Body      []Node
	Params    []*ParamNode
	Functions map[string]*FunctionNode
	Imports   []*ImportNode
	// Return is the first q:return at component level, if any.
	Return *ReturnNode
	// Size is the length in bytes of the source the component was parsed
	// from.
	Size int
}

func (*Component) Kind() Kind { return KindComponent }

func (c *Component) Children() []Node {
	out := make([]Node, 0, len(c.Imports)+len(c.Params)+len(c.Functions)+len(c.Body))

	for _, i := range c.Imports {
		out = append(out, i)
	}

	for _, p := range c.Params {
		out = append(out, p)
	}

	for _, name := range c.FunctionNames() {
		out = append(out, c.Functions[name])
	}

	return append(out, c.Body...)
}

// FunctionNames returns the names of the declared functions in source
// order.
func (c *Component) FunctionNames() []string {
	names := make([]string, 0, len(c.Functions))
	for name := range c.Functions {
		names = append(names, name)
	}

	slices.SortFunc(names, func(a, b string) int {
		return c.Functions[a].Pos.Offset - c.Functions[b].Pos.Offset
	})

	return names
}

// Function returns the named function declaration.
func (c *Component) Function(name string) (*FunctionNode, bool) {
	f, ok := c.Functions[name]

	return f, ok
}

// ImportNode is a q:import declaration.
type ImportNode struct {
	node

	Component string
	// As is the local alias, defaulting to the base name of Component.
	As string
}

func (*ImportNode) Kind() Kind { return KindImport }

// ParamNode declares a component or function parameter.
type ParamNode struct {
	node

	Name       string
	Type       string
	Default    string
	HasDefault bool
	Required   bool
}

func (*ParamNode) Kind() Kind { return KindParam }

// SetNode is a q:set assignment.
type SetNode struct {
	node

	Name     string
	Value    string
	HasValue bool
	// Type optionally coerces the resolved value: string, number,
	// boolean, array or object.
	Type string
	// Operation names an array operation such as "append". Empty means a
	// plain assignment.
	Operation string
	// Scope is the target scope, empty for the component scope.
	Scope string
}

func (*SetNode) Kind() Kind { return KindSet }

// ElseIf is one q:elseif clause of an [IfNode].
type ElseIf struct {
	Pos       Pos
	Condition string
	Body      []Node
}

// IfNode is a q:if chain.
type IfNode struct {
	node

	Condition string
	Then      []Node
	ElseIfs   []ElseIf
	Else      []Node
	HasElse   bool
}

func (*IfNode) Kind() Kind { return KindIf }

func (n *IfNode) Children() []Node {
	out := append([]Node{}, n.Then...)
	for _, c := range n.ElseIfs {
		out = append(out, c.Body...)
	}

	return append(out, n.Else...)
}

// LoopMode selects how a [LoopNode] iterates.
type LoopMode int

const (
	// LoopRange iterates From..To inclusive by Step.
	LoopRange LoopMode = iota
	// LoopArray iterates the elements of an array or mapping value.
	LoopArray
	// LoopList iterates a delimited literal list.
	LoopList
)

func (m LoopMode) String() string {
	switch m {
	case LoopRange:
		return "range"
	case LoopArray:
		return "array"
	case LoopList:
		return "list"
	default:
		return "unknown"
	}
}

// LoopNode is a q:loop.
type LoopNode struct {
	node

	Mode  LoopMode
	Var   string
	Index string
	From  string
	To    string
	Step  string
	// Items is the collection for array and list loops. In array mode a
	// bare name refers to a variable.
	Items     string
	Delimiter string
	Body      []Node
}

func (*LoopNode) Kind() Kind         { return KindLoop }
func (n *LoopNode) Children() []Node { return n.Body }

// FunctionNode is a q:function declaration.
type FunctionNode struct {
	node

	Name       string
	ReturnType string
	Params     []*ParamNode
	Body       []Node
}

func (*FunctionNode) Kind() Kind { return KindFunction }

func (n *FunctionNode) Children() []Node {
	out := make([]Node, 0, len(n.Params)+len(n.Body))
	for _, p := range n.Params {
		out = append(out, p)
	}

	return append(out, n.Body...)
}

// ReturnNode is a q:return. It ends the enclosing function or component.
type ReturnNode struct {
	node

	Value string
}

func (*ReturnNode) Kind() Kind { return KindReturn }

// Arg is a named argument passed by q:call, q:invoke or q:queryparam.
type Arg struct {
	Pos   Pos
	Name  string
	Value string
	Type  string
}

// CallNode is a q:call of a component function.
type CallNode struct {
	node

	Function string
	// Result names the variable receiving the return value.
	Result string
	Args   []Arg
}

func (*CallNode) Kind() Kind { return KindCall }

// QueryNode is a q:query delegated to the database service.
type QueryNode struct {
	node

	Name       string
	Datasource string
	SQL        string
	Params     []Arg
}

func (*QueryNode) Kind() Kind { return KindQuery }

// ActionNode is a q:action. Its body runs when the invocation service
// accepts the action.
type ActionNode struct {
	node

	Name   string
	Method string
	Body   []Node
}

func (*ActionNode) Kind() Kind         { return KindAction }
func (n *ActionNode) Children() []Node { return n.Body }

// MailNode is a q:mail. Its body is rendered to produce the message.
type MailNode struct {
	node

	To      string
	From    string
	Subject string
	Body    []Node
}

func (*MailNode) Kind() Kind         { return KindMail }
func (n *MailNode) Children() []Node { return n.Body }

// FileNode is a q:file upload.
type FileNode struct {
	node

	Field       string
	Destination string
	Accept      string
	MaxSize     string
	Result      string
}

func (*FileNode) Kind() Kind { return KindFile }

// InvokeNode is a q:invoke of a function, component or URL.
type InvokeNode struct {
	node

	Function  string
	Component string
	URL       string
	Method    string
	Result    string
	Args      []Arg
	// Body is slot content handed to an invoked component.
	Body []Node
}

func (*InvokeNode) Kind() Kind         { return KindInvoke }
func (n *InvokeNode) Children() []Node { return n.Body }

// Target returns the invocation kind and its target.
func (n *InvokeNode) Target() (kind, target string) {
	switch {
	case n.Function != "":
		return "function", n.Function
	case n.Component != "":
		return "component", n.Component
	default:
		return "http", n.URL
	}
}

// LogNode is a q:log.
type LogNode struct {
	node

	Level   string
	Message string
	Context string
	When    string
}

func (*LogNode) Kind() Kind { return KindLog }

// DumpNode is a q:dump of a variable.
type DumpNode struct {
	node

	Var   string
	Label string
}

func (*DumpNode) Kind() Kind { return KindDump }

// WebSocketSendNode is a q:websocket-send.
type WebSocketSendNode struct {
	node

	Channel string
	Message string
}

func (*WebSocketSendNode) Kind() Kind { return KindWebSocketSend }

// SlotNode marks where caller content is inserted. Default is rendered
// when the caller provides nothing for Name.
type SlotNode struct {
	node

	Name    string
	Default []Node
}

func (*SlotNode) Kind() Kind         { return KindSlot }
func (n *SlotNode) Children() []Node { return n.Default }

// Walk traverses the tree rooted at n depth-first. Children of a node are
// skipped when fn returns false.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}

	for _, c := range n.Children() {
		Walk(c, fn)
	}
}

// Count returns the number of nodes in the tree rooted at n.
func Count(n Node) int {
	total := 0

	Walk(n, func(Node) bool {
		total++

		return true
	})

	return total
}
