package transpile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ardnew/quill/runtime"
)

const header = "// Code generated by quill compile. DO NOT EDIT."

// generator renders a [Program] as Go source driving a [runtime.Host].
type generator struct {
	target Target
	pkg    string
	typ    string
	prog   *Program

	e        *emitter
	restores []string
	nblocks  int
	inFunc   bool
	retType  string
}

func (g *generator) scene() bool { return g.target == TargetGame }

// file returns the complete, unformatted source file.
func (g *generator) file() string {
	body := g.render()

	imports := []string{"context"}
	switch g.target {
	case TargetTUI:
		imports = append(imports, "fmt", "os", "regexp", "strings", "",
			"tea github.com/charmbracelet/bubbletea",
			"github.com/charmbracelet/lipgloss", "")
	case TargetGame:
		imports = append(imports, "fmt", "io", "os", "slices", "strings", "")
	default:
		imports = append(imports, "")
	}

	imports = append(imports,
		"github.com/ardnew/quill/runtime",
		"github.com/ardnew/quill/scope")

	if strings.Contains(body, "value.") {
		imports = append(imports, "github.com/ardnew/quill/value")
	}

	e := newEmitter()
	e.println(header)
	e.println("")
	e.printf("package %s", g.pkg)
	e.println("")
	e.block("import (", ")", func() {
		for _, imp := range imports {
			switch name, path, ok := strings.Cut(imp, " "); {
			case imp == "":
				e.println("")
			case ok:
				e.printf("%s %q", name, path)
			default:
				e.printf("%q", imp)
			}
		}
	})
	e.println("")

	return e.source() + body + g.extra()
}

// render returns the component type and its render method.
func (g *generator) render() string {
	g.e = newEmitter()
	e := g.e

	e.printf("// %s renders the %q component.", g.typ, g.prog.Name)
	e.printf("type %s struct{}", g.typ)
	e.println("")

	sig := "Render(ctx context.Context, rt *runtime.Runtime, sc *scope.Context) (string, error)"
	doc := "// Render executes the component against sc and returns its output."

	if g.scene() {
		sig = "Scene(ctx context.Context, rt *runtime.Runtime, sc *scope.Context) (*Node, error)"
		doc = "// Scene executes the component against sc and returns its scene graph."
	}

	e.println(doc)
	e.block(fmt.Sprintf("func (%s) %s {", g.typ, sig), "}", func() {
		e.printf("h := rt.Host(ctx, %q, sc)", g.prog.Name)

		if g.scene() {
			e.println("b := newBuilder()")
		}

		if len(g.prog.Params) > 0 {
			e.printf("h.Bind(%s)", paramList(g.prog.Params))
		}

		for _, f := range g.prog.Funcs {
			g.function(f)
		}

		g.stmts(g.prog.Body)

		if !endsWithReturn(g.prog.Body) {
			g.finish()
		}
	})

	return e.source()
}

func (g *generator) finish() {
	if g.scene() {
		g.e.println("return b.Root(), h.Err()")
	} else {
		g.e.println("return h.Output(), h.Err()")
	}
}

func endsWithReturn(stmts []Stmt) bool {
	if len(stmts) == 0 {
		return false
	}

	_, ok := stmts[len(stmts)-1].(Return)

	return ok
}

func paramList(ps []runtime.Param) string {
	if len(ps) == 0 {
		return "nil"
	}

	items := make([]string, len(ps))

	for i, p := range ps {
		fields := []string{"Name: " + strconv.Quote(p.Name)}

		if p.Type != "" {
			fields = append(fields, "Type: "+strconv.Quote(p.Type))
		}

		if p.HasDefault {
			fields = append(fields, "Default: "+strconv.Quote(p.Default), "HasDefault: true")
		}

		if p.Required {
			fields = append(fields, "Required: true")
		}

		items[i] = "{" + strings.Join(fields, ", ") + "}"
	}

	return "[]runtime.Param{" + strings.Join(items, ", ") + "}"
}

func (g *generator) function(f Func) {
	e := g.e

	saved, inFunc := g.restores, g.inFunc
	g.restores, g.inFunc = nil, true

	defer func() { g.restores, g.inFunc = saved, inFunc }()

	// Inside the closure h is the function's own host.
	e.block(fmt.Sprintf("h.Define(%q, %s, func(h *runtime.Host) value.Value {",
		f.Name, paramList(f.Params)), "})", func() {
		g.retType = f.ReturnType
		g.stmts(f.Body)
		g.retType = ""

		if !endsWithReturn(f.Body) {
			e.println("return value.Null()")
		}
	})
}

func (g *generator) stmts(stmts []Stmt) {
	for _, s := range stmts {
		g.stmt(s)
	}
}

func (g *generator) write(expr string) {
	if g.scene() {
		g.e.printf("b.Text(%s)", expr)
	} else {
		g.e.printf("h.Write(%s)", expr)
	}
}

func (g *generator) stmt(s Stmt) {
	e := g.e

	switch s := s.(type) {
	case Text:
		g.write(strconv.Quote(s.Text))

	case Expr:
		g.write(fmt.Sprintf("h.Str(%q)", s.Expr))

	case AttrText:
		g.write(fmt.Sprintf("h.Attr(%q)", s.Text))

	case Open:
		g.open(s)

	case Close:
		e.println("b.Close()")

	case Set:
		g.set(s)

	case If:
		g.cond(s)

	case Loop:
		g.loop(s)

	case Block:
		g.shadow(s.Shadow, func() { g.stmts(s.Body) })

	case Return:
		g.ret(s)

	case Call:
		call := fmt.Sprintf("h.Call(%q, %s)", s.Function, argMap(s.Args))
		if s.Result != "" {
			e.printf("h.Set(%q, %s, \"\", \"\")", s.Result, call)
		} else {
			e.println(call)
		}

	case Query:
		e.printf("h.Set(%q, h.Query(h.Interp(%q), %q, %s), \"\", \"\")",
			s.Name, s.Datasource, s.SQL, argMap(s.Params))

	case Invoke:
		call := fmt.Sprintf("h.Invoke(%q, %s)", s.Kind, argMap(s.Params))

		switch {
		case s.Result == "":
			e.println(call)
		case s.Kind == runtime.InvokeHTTP:
			e.printf("h.Set(%q, %s.Value(), \"\", \"\")", s.Result, call)
		default:
			e.printf("h.Set(%q, %s.Data, \"\", \"\")", s.Result, call)
		}

	case Log:
		log := func() {
			e.printf("h.Log(h.Interp(%q), h.Interp(%q), %s)", s.Level, s.Message, valueOf(s.Context))
		}

		if s.When == "" {
			log()
		} else {
			e.block(fmt.Sprintf("if h.Cond(%q) {", s.When), "}", log)
		}

	case Dump:
		label := s.Label
		if label == "" {
			label = s.Var
		}

		e.printf("h.Dump(%q, %s)", label, dumped(s.Var))
	}
}

func (g *generator) open(s Open) {
	if len(s.Attrs) == 0 {
		g.e.printf("b.Open(%q, nil)", s.Tag)

		return
	}

	g.e.block(fmt.Sprintf("b.Open(%q, map[string]string{", s.Tag), "})", func() {
		for _, a := range s.Attrs {
			if a.HasValue {
				g.e.printf("%q: h.Interp(%q),", a.Name, a.Value)
			} else {
				g.e.printf("%q: \"\",", a.Name)
			}
		}
	})
}

func (g *generator) set(s Set) {
	v := valueOf(s.Value)
	if s.Type != "" {
		v = fmt.Sprintf("h.Coerce(%s, %q)", v, s.Type)
	}

	if s.Op == "" {
		g.e.printf("h.Set(%q, %s, %q, %q)", s.Name, valueOf(s.Value), s.Type, s.Scope)

		return
	}

	if s.Value == "" {
		v = "value.Null()"
	}

	g.e.printf("h.Apply(%q, %q, %s, %q)", s.Name, s.Op, v, s.Scope)
}

func (g *generator) cond(s If) {
	e := g.e

	for i, b := range s.Branches {
		open := fmt.Sprintf("if h.Cond(%q) {", b.Cond)
		if i > 0 {
			open = "} else " + open
		}

		e.println(open)
		e.incIndent()
		g.stmts(b.Body)
		e.decIndent()
	}

	if s.HasElse {
		e.println("} else {")
		e.incIndent()
		g.stmts(s.Else)
		e.decIndent()
	}

	e.println("}")
}

// shadow saves names around fn, restoring them after fn and before any
// return fn generates.
func (g *generator) shadow(names []string, fn func()) {
	g.nblocks++
	restore := fmt.Sprintf("restore%d", g.nblocks)

	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = strconv.Quote(n)
	}

	g.e.block("{", "}", func() {
		g.e.printf("%s := h.Shadow(%s)", restore, strings.Join(quoted, ", "))

		g.restores = append(g.restores, restore)
		fn()
		g.restores = g.restores[:len(g.restores)-1]

		g.e.printf("%s()", restore)
	})
}

func (g *generator) loop(s Loop) {
	names := []string{s.Var}
	if s.Index != "" {
		names = append(names, s.Index)
	}

	var iter string

	switch s.Mode.String() {
	case "range":
		iter = fmt.Sprintf("h.Range(%q, %q, %q)", s.From, s.To, s.Step)
	case "list":
		iter = fmt.Sprintf("h.List(%q, %q)", s.Items, s.Delim)
	default:
		iter = fmt.Sprintf("h.Items(%q, %q)", s.Items, s.Delim)
	}

	g.shadow(names, func() {
		g.e.block(fmt.Sprintf("for it := range %s {", iter), "}", func() {
			g.e.printf("h.Set(%q, it.Item, \"\", \"\")", s.Var)

			if s.Index != "" {
				g.e.printf("h.Set(%q, it.Index, \"\", \"\")", s.Index)
			} else {
				g.e.println("_ = it.Index")
			}

			g.stmts(s.Body)
		})
	})
}

func (g *generator) ret(s Return) {
	for i := len(g.restores) - 1; i >= 0; i-- {
		g.e.printf("%s()", g.restores[i])
	}

	if g.inFunc {
		v := "value.Null()"
		if s.Value != "" {
			v = valueOf(s.Value)
		}

		if g.retType != "" {
			v = fmt.Sprintf("h.Coerce(%s, %q)", v, g.retType)
		}

		g.e.printf("return %s", v)

		return
	}

	if s.Value != "" {
		g.e.printf("_ = %s", valueOf(s.Value))
	}

	g.finish()
}

func valueOf(text string) string {
	if text == "" {
		return "value.Null()"
	}

	return fmt.Sprintf("h.Value(%q)", text)
}

func dumped(v string) string {
	if strings.Contains(v, "{") {
		return fmt.Sprintf("h.Value(%q)", v)
	}

	return fmt.Sprintf("h.Eval(%q)", v)
}

func argMap(args []Arg) string {
	if len(args) == 0 {
		return "nil"
	}

	items := make([]string, len(args))

	for i, a := range args {
		v := valueOf(a.Value)

		switch {
		case a.Str:
			v = fmt.Sprintf("value.String(h.Interp(%q))", a.Value)
		case a.Type != "":
			v = fmt.Sprintf("h.Coerce(%s, %q)", v, a.Type)
		}

		items[i] = fmt.Sprintf("%q: %s", a.Name, v)
	}

	return "map[string]value.Value{" + strings.Join(items, ", ") + "}"
}
