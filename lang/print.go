package lang

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Fprint writes an indented outline of the tree rooted at n to w, one node
// per line with its position.
func Fprint(w io.Writer, n Node) error {
	p := &printer{w: w}
	p.node(n, 0)

	return p.err
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(depth int, format string, args ...any) {
	if p.err != nil {
		return
	}

	_, p.err = fmt.Fprintf(p.w, "%s"+format+"\n",
		append([]any{strings.Repeat("  ", depth)}, args...)...)
}

func (p *printer) list(nodes []Node, depth int) {
	for _, n := range nodes {
		p.node(n, depth)
	}
}

func (p *printer) node(n Node, depth int) {
	pos := n.Position()
	at := strconv.Itoa(pos.Line) + ":" + strconv.Itoa(pos.Col)

	switch n := n.(type) {
	case *Component:
		p.printf(depth, "component %s @%s", n.Name, at)
		p.list(n.Children(), depth+1)

	case *TextNode:
		if n.Whitespace {
			return
		}

		flag := ""
		if n.Bound {
			flag = " bound"
		} else if n.Raw {
			flag = " raw"
		}

		p.printf(depth, "text%s %s @%s", flag, strconv.Quote(n.Text), at)

	case *ElementNode:
		var attrs strings.Builder

		for _, a := range n.Attrs {
			attrs.WriteString(" " + a.Name)
			if a.HasValue {
				attrs.WriteString("=" + strconv.Quote(a.Value))
			}
		}

		p.printf(depth, "<%s%s> @%s", n.Name, attrs.String(), at)
		p.list(n.Body, depth+1)

	case *IfNode:
		p.printf(depth, "if %s @%s", strconv.Quote(n.Condition), at)
		p.list(n.Then, depth+1)

		for _, c := range n.ElseIfs {
			p.printf(depth, "elseif %s @%d:%d", strconv.Quote(c.Condition), c.Pos.Line, c.Pos.Col)
			p.list(c.Body, depth+1)
		}

		if n.HasElse {
			p.printf(depth, "else")
			p.list(n.Else, depth+1)
		}

	case *LoopNode:
		var desc string

		switch n.Mode {
		case LoopRange:
			desc = n.From + ".." + n.To
			if n.Step != "" {
				desc += " step " + n.Step
			}
		default:
			desc = strconv.Quote(n.Items)
		}

		p.printf(depth, "loop %s %s in %s @%s", n.Mode, n.Var, desc, at)
		p.list(n.Body, depth+1)

	case *SetNode:
		desc := n.Name
		if n.Scope != "" {
			desc = n.Scope + "." + desc
		}

		if n.Operation != "" {
			desc += " " + n.Operation
		}

		p.printf(depth, "set %s = %s @%s", desc, strconv.Quote(n.Value), at)

	case *FunctionNode:
		p.printf(depth, "function %s @%s", n.Name, at)
		p.list(n.Children(), depth+1)

	case *ParamNode:
		desc := n.Name
		if n.Type != "" {
			desc += " " + n.Type
		}

		if n.Required {
			desc += " required"
		}

		if n.HasDefault {
			desc += " default " + strconv.Quote(n.Default)
		}

		p.printf(depth, "param %s @%s", desc, at)

	case *ReturnNode:
		p.printf(depth, "return %s @%s", strconv.Quote(n.Value), at)

	case *ImportNode:
		p.printf(depth, "import %s as %s @%s", n.Component, n.As, at)

	case *CallNode:
		p.printf(depth, "call %s%s @%s", n.Function, formatArgs(n.Args), at)

	case *InvokeNode:
		kind, target := n.Target()
		p.printf(depth, "invoke %s %s%s @%s", kind, target, formatArgs(n.Args), at)
		p.list(n.Body, depth+1)

	case *QueryNode:
		p.printf(depth, "query %s %s%s @%s", n.Name, strconv.Quote(n.SQL), formatArgs(n.Params), at)

	default:
		p.printf(depth, "%s @%s", n.Kind(), at)
		p.list(n.Children(), depth+1)
	}
}

func formatArgs(args []Arg) string {
	if len(args) == 0 {
		return ""
	}

	part := make([]string, len(args))
	for i, a := range args {
		part[i] = a.Name + "=" + strconv.Quote(a.Value)
	}

	return " (" + strings.Join(part, ", ") + ")"
}
