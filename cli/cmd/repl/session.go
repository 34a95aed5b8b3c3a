package repl

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/ardnew/quill/binding"
	"github.com/ardnew/quill/lang"
	"github.com/ardnew/quill/log"
	"github.com/ardnew/quill/runtime"
	"github.com/ardnew/quill/scope"
	"github.com/ardnew/quill/value"
)

// resultVar holds the value of the last evaluated expression.
const resultVar = "_"

// commands are the names accepted after a leading ':'.
var commands = []string{"help", "vars", "funcs", "load", "ast", "clear", "quit"}

const helpText = `Enter an expression such as  price * qty  or  {upper(name)}
to evaluate it; the result is kept in _.
Lines starting with '<' are executed as markup:
  <q:set name="n" value="3"/>
  <q:loop from="1" to="{n}" var="i">{i} </q:loop>
Functions declared by the loaded component may be called from both.

Commands:
  :help         print this text
  :vars         list variables
  :funcs        list functions of the loaded component
  :load FILE    load a component, run it and keep its functions
  :ast          print the syntax tree of the loaded component
  :clear        clear the screen
  :quit         exit (also Ctrl+D)`

// Session evaluates REPL input against one execution context.
type Session struct {
	ctx    context.Context
	rt     *runtime.Runtime
	sc     *scope.Context
	base   *lang.Component
	logger log.Logger
}

// NewSession returns a session executing with rt against sc.
func NewSession(ctx context.Context, rt *runtime.Runtime, sc *scope.Context, logger log.Logger) *Session {
	if sc == nil {
		sc = scope.New()
	}

	return &Session{ctx: ctx, rt: rt, sc: sc, logger: logger}
}

// Context returns the execution context of s.
func (s *Session) Context() *scope.Context { return s.sc }

// Load parses and runs the component at path, returning its output. Its
// functions stay available to later input.
func (s *Session) Load(path string) (string, error) {
	b, err := s.rt.Cache().Load(s.ctx, path)
	if err != nil {
		return "", err
	}

	res, err := s.rt.ExecuteBundle(s.ctx, b, s.sc)
	if err != nil {
		return "", err
	}

	s.base = b.Root

	s.logger.DebugContext(s.ctx, "repl loaded component",
		slog.String("path", path),
		slog.Int("functions", len(b.Root.Functions)))

	return res.Output, nil
}

// Eval runs one line of input and returns the text to display. It
// returns [ErrQuit] when the user asks to leave.
func (s *Session) Eval(line string) (string, error) {
	line = strings.TrimSpace(line)

	switch {
	case line == "":
		return "", nil

	case strings.HasPrefix(line, ":"):
		return s.command(strings.Fields(line[1:]))

	case strings.HasPrefix(line, "<"):
		comp, err := lang.Parse(s.ctx, line, lang.WithName("repl"), lang.WithLogger(s.logger))
		if err != nil {
			return "", err
		}

		res, err := s.execute(comp)

		return res.Output, err

	default:
		return s.expression(line)
	}
}

func (s *Session) expression(expr string) (string, error) {
	if !lang.HasBinding(expr) {
		expr = "{" + expr + "}"
	}

	comp := &lang.Component{
		Name: "repl",
		Body: []lang.Node{&lang.SetNode{Name: resultVar, Value: expr, HasValue: true}},
	}

	if _, err := s.execute(comp); err != nil {
		return "", err
	}

	v, err := s.sc.Get(resultVar)
	if err != nil {
		return "", err
	}

	return Format(v), nil
}

// execute runs comp with the functions of the loaded component.
func (s *Session) execute(comp *lang.Component) (runtime.Result, error) {
	if s.base != nil {
		if comp.Functions == nil {
			comp.Functions = map[string]*lang.FunctionNode{}
		}

		for name, fn := range s.base.Functions {
			if _, ok := comp.Functions[name]; !ok {
				comp.Functions[name] = fn
			}
		}

		comp.Path = s.base.Path
	}

	return s.rt.Execute(s.ctx, comp, s.sc)
}

func (s *Session) command(args []string) (string, error) {
	if len(args) == 0 {
		return "", ErrCommand
	}

	switch args[0] {
	case "help", "h", "?":
		return helpText, nil

	case "vars":
		var sb strings.Builder

		for _, name := range s.sc.Names() {
			v, _ := s.sc.Lookup(name)
			fmt.Fprintf(&sb, "%s = %s\n", name, Format(v))
		}

		return strings.TrimSuffix(sb.String(), "\n"), nil

	case "funcs":
		return strings.Join(s.signatures(), "\n"), nil

	case "load":
		if len(args) != 2 {
			return "", ErrCommand.With(slog.String("usage", ":load FILE"))
		}

		return s.Load(args[1])

	case "ast":
		if s.base == nil {
			return "", ErrNoFile
		}

		var sb strings.Builder
		if err := lang.Fprint(&sb, s.base); err != nil {
			return "", err
		}

		return strings.TrimSuffix(sb.String(), "\n"), nil

	case "clear":
		return "", nil

	case "quit", "q", "exit":
		return "", ErrQuit

	default:
		return "", ErrCommand.With(slog.String("command", args[0]))
	}
}

// functions returns the functions declared by the loaded component.
func (s *Session) functions() map[string]*lang.FunctionNode {
	if s.base == nil {
		return nil
	}

	return s.base.Functions
}

func (s *Session) signatures() []string {
	fns := s.functions()

	out := make([]string, 0, len(fns))
	for _, name := range slices.Sorted(maps.Keys(fns)) {
		sig, _ := s.signature(name)
		out = append(out, sig)
	}

	return out
}

// signature formats the parameter list of a declared or builtin function.
func (s *Session) signature(name string) (string, []string) {
	fn, ok := s.functions()[name]
	if !ok {
		if slices.Contains(binding.Builtins(), name) {
			return name + "(...)", nil
		}

		return "", nil
	}

	params := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = p.Name
		if p.Type != "" {
			params[i] += " " + p.Type
		}
	}

	sig := name + "(" + strings.Join(params, ", ") + ")"
	if fn.ReturnType != "" {
		sig += " " + fn.ReturnType
	}

	return sig, params
}

// Format renders a value for display: strings are quoted, arrays and
// mappings are JSON and null is "null".
func Format(v value.Value) string {
	switch v.Kind() {
	case value.KindNull:
		return "null"
	case value.KindString:
		return strconv.Quote(v.Str())
	default:
		return v.String()
	}
}
