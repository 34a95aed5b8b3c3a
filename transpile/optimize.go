package transpile

import (
	"math"
	"slices"
	"strings"

	"github.com/ardnew/quill/binding"
	"github.com/ardnew/quill/lang"
	"github.com/ardnew/quill/value"
)

// MaxUnroll is the largest iteration count of a range loop the unroll pass
// replaces with straight-line code.
const MaxUnroll = 3

// maxRounds bounds the optimizer fixpoint.
const maxRounds = 32

// Pass rewrites a statement list and reports whether anything changed.
// Every pass is idempotent.
type Pass struct {
	Name  string
	Apply func([]Stmt) ([]Stmt, bool)
}

// Passes lists the optimizer passes in the order [Optimize] runs them.
var Passes = []Pass{
	{"fold", Fold},
	{"merge", Merge},
	{"unroll", Unroll},
	{"dce", Eliminate},
}

// Optimize runs every pass over p until none changes anything. The result
// does not depend on the order of [Passes].
func Optimize(p *Program) {
	for range maxRounds {
		changed := false

		for _, pass := range Passes {
			if RunPass(p, pass) {
				changed = true
			}
		}

		if !changed {
			return
		}
	}
}

// RunPass applies one pass to the body and every function of p.
func RunPass(p *Program, pass Pass) bool {
	var changed bool

	p.Body, changed = pass.Apply(p.Body)

	for i := range p.Funcs {
		var c bool

		p.Funcs[i].Body, c = pass.Apply(p.Funcs[i].Body)
		changed = changed || c
	}

	return changed
}

// walk rebuilds every nested body of stmts with fn, children first.
func walk(stmts []Stmt, fn func([]Stmt) ([]Stmt, bool)) ([]Stmt, bool) {
	changed := false

	sub := func(body []Stmt) []Stmt {
		out, c := walk(body, fn)
		changed = changed || c

		return out
	}

	out := make([]Stmt, 0, len(stmts))

	for _, s := range stmts {
		switch s := s.(type) {
		case If:
			branches := make([]Branch, len(s.Branches))
			for i, b := range s.Branches {
				branches[i] = Branch{Cond: b.Cond, Body: sub(b.Body)}
			}

			s.Branches = branches
			s.Else = sub(s.Else)
			out = append(out, s)

		case Loop:
			s.Body = sub(s.Body)
			out = append(out, s)

		case Block:
			s.Body = sub(s.Body)
			out = append(out, s)

		default:
			out = append(out, s)
		}
	}

	res, c := fn(out)

	return res, changed || c
}

// constant evaluates expr when it refers to no variable or function.
func constant(expr string) (value.Value, bool) {
	lowered, err := binding.Lower(expr)
	if err != nil || strings.Contains(lowered, "__env") {
		return value.Null(), false
	}

	p, err := binding.Compile(expr)
	if err != nil {
		return value.Null(), false
	}

	v, err := p.Run(binding.MapEnv{})
	if err != nil {
		return value.Null(), false
	}

	return v, true
}

// constantText resolves text when every binding in it is constant. A
// single binding covering the whole text yields its typed value.
func constantText(text string) (value.Value, bool) {
	spans := binding.Spans(text)
	if len(spans) == 0 {
		return value.String(text), true
	}

	if len(spans) == 1 && spans[0].Start == 0 && spans[0].End == len(text) {
		return constant(spans[0].Expr)
	}

	var (
		sb   strings.Builder
		last int
	)

	for _, sp := range spans {
		v, ok := constant(sp.Expr)
		if !ok {
			return value.Null(), false
		}

		sb.WriteString(text[last:sp.Start])
		sb.WriteString(v.String())

		last = sp.End
	}

	sb.WriteString(text[last:])

	return value.String(sb.String()), true
}

// constantCond reports the value of a condition that depends on nothing.
func constantCond(text string) (result, ok bool) {
	var v value.Value

	if len(binding.Spans(text)) == 0 {
		v, ok = constant(text)
	} else {
		v, ok = constantText(text)
	}

	if !ok {
		return false, false
	}

	return v.Truthy(), true
}

// literal folds attribute text with constant bindings into literal text
// that resolves to the same value.
func literal(text string) (string, bool) {
	if !lang.HasBinding(text) {
		return text, false
	}

	v, ok := constantText(text)
	if !ok {
		return text, false
	}

	s := v.String()
	if v.Kind() == value.KindString && lang.HasBinding(s) {
		return text, false
	}

	if !value.Infer(s).Equal(v) {
		return text, false
	}

	return s, true
}

// Fold evaluates expressions that depend on no variable: constant output
// becomes text, constant conditions become "true" or "false", and constant
// attribute values become literals.
func Fold(stmts []Stmt) ([]Stmt, bool) {
	return walk(stmts, fold)
}

func fold(stmts []Stmt) ([]Stmt, bool) {
	changed := false

	lit := func(text *string) {
		if s, ok := literal(*text); ok {
			*text = s
			changed = true
		}
	}

	out := make([]Stmt, len(stmts))

	for i, st := range stmts {
		out[i] = st

		switch s := st.(type) {
		case Expr:
			if v, ok := constant(s.Expr); ok && !lang.HasBinding(v.String()) {
				out[i], changed = Text{Text: v.String()}, true
			}

		case AttrText:
			if v, ok := constantText(s.Text); ok && !lang.HasBinding(v.String()) {
				out[i], changed = Text{Text: attrEscaper.Replace(v.String())}, true
			}

		case If:
			branches := slices.Clone(s.Branches)
			for j, b := range branches {
				if v, ok := constantCond(b.Cond); ok && b.Cond != boolText(v) {
					branches[j].Cond, changed = boolText(v), true
				}
			}

			s.Branches = branches
			out[i] = s

		case Loop:
			if s.Mode == lang.LoopRange {
				lit(&s.From)
				lit(&s.To)
				lit(&s.Step)
			}

			out[i] = s

		case Set:
			lit(&s.Value)
			out[i] = s

		case Return:
			lit(&s.Value)
			out[i] = s
		}
	}

	return out, changed
}

func boolText(b bool) string {
	if b {
		return "true"
	}

	return "false"
}

// Merge coalesces adjacent text statements and drops empty ones.
func Merge(stmts []Stmt) ([]Stmt, bool) {
	return walk(stmts, merge)
}

func merge(stmts []Stmt) ([]Stmt, bool) {
	changed := false
	out := make([]Stmt, 0, len(stmts))

	for _, s := range stmts {
		t, ok := s.(Text)
		if !ok {
			out = append(out, s)

			continue
		}

		if t.Text == "" {
			changed = true

			continue
		}

		if n := len(out); n > 0 {
			if prev, ok := out[n-1].(Text); ok {
				out[n-1] = Text{Text: prev.Text + t.Text}
				changed = true

				continue
			}
		}

		out = append(out, s)
	}

	return out, changed
}

// Unroll replaces range loops with literal bounds and at most [MaxUnroll]
// iterations by a block assigning the loop variables before each copy of
// the body.
func Unroll(stmts []Stmt) ([]Stmt, bool) {
	return walk(stmts, unroll)
}

func unroll(stmts []Stmt) ([]Stmt, bool) {
	changed := false
	out := make([]Stmt, 0, len(stmts))

	for _, s := range stmts {
		l, ok := s.(Loop)
		if !ok || l.Mode != lang.LoopRange {
			out = append(out, s)

			continue
		}

		items, ok := iterations(l.From, l.To, l.Step)
		if !ok {
			out = append(out, s)

			continue
		}

		b := Block{Shadow: []string{l.Var}}
		if l.Index != "" {
			b.Shadow = append(b.Shadow, l.Index)
		}

		for i, x := range items {
			b.Body = append(b.Body, Set{Name: l.Var, Value: value.FormatNumber(x)})

			if l.Index != "" {
				b.Body = append(b.Body, Set{Name: l.Index, Value: value.FormatNumber(float64(i))})
			}

			b.Body = append(b.Body, clone(l.Body)...)
		}

		out = append(out, b)
		changed = true
	}

	return out, changed
}

// iterations returns the values of a literal range when there are at most
// MaxUnroll of them.
func iterations(from, to, step string) ([]float64, bool) {
	num := func(s string) (float64, bool) {
		if lang.HasBinding(s) {
			return 0, false
		}

		return value.ParseNumber(strings.TrimSpace(s))
	}

	if step == "" {
		step = "1"
	}

	lo, ok1 := num(from)
	hi, ok2 := num(to)
	by, ok3 := num(step)

	if !ok1 || !ok2 || !ok3 || by == 0 {
		return nil, false
	}

	q := (hi - lo) / by
	if q < 0 {
		return nil, true
	}

	// Match the interpreter: values come from an integer counter.
	q = math.Floor(q + 1e-9)
	if q >= MaxUnroll {
		return nil, false
	}

	out := make([]float64, 0, int(q)+1)
	for k := range int(q) + 1 {
		out = append(out, lo+float64(k)*by)
	}

	return out, true
}

// Eliminate removes code that can never run: branches with a false
// condition, branches after a true one, statements after a return, and
// empty blocks.
func Eliminate(stmts []Stmt) ([]Stmt, bool) {
	return walk(stmts, eliminate)
}

func eliminate(stmts []Stmt) ([]Stmt, bool) {
	changed := false
	out := make([]Stmt, 0, len(stmts))

	for _, s := range stmts {
		switch s := s.(type) {
		case If:
			kept, rest, c := prune(s)
			changed = changed || c

			if kept == nil {
				out = append(out, rest...)

				continue
			}

			out = append(out, *kept)

		case Block:
			switch {
			case len(s.Body) == 0:
				changed = true
			case len(s.Shadow) == 0:
				out = append(out, s.Body...)
				changed = true
			default:
				out = append(out, s)
			}

		default:
			out = append(out, s)
		}

		if len(out) > 0 {
			if _, ok := out[len(out)-1].(Return); ok {
				break
			}
		}
	}

	if len(out) < len(stmts) {
		changed = true
	}

	return out, changed
}

// prune drops constant branches of s. When no conditional branch remains
// it returns nil and the statements that always run instead.
func prune(s If) (*If, []Stmt, bool) {
	changed := false
	kept := If{}

	for _, b := range s.Branches {
		switch b.Cond {
		case "false":
			changed = true

			continue

		case "true":
			changed = true

			if len(kept.Branches) == 0 {
				return nil, b.Body, true
			}

			kept.Else, kept.HasElse = b.Body, true

			return &kept, nil, true
		}

		kept.Branches = append(kept.Branches, b)
	}

	kept.Else, kept.HasElse = s.Else, s.HasElse

	if len(kept.Branches) == 0 {
		return nil, kept.Else, true
	}

	if kept.HasElse && len(kept.Else) == 0 {
		kept.HasElse, kept.Else, changed = false, nil, true
	}

	return &kept, nil, changed
}

// clone deep-copies stmts so unrolled bodies share no slices.
func clone(stmts []Stmt) []Stmt {
	if stmts == nil {
		return nil
	}

	out := make([]Stmt, len(stmts))

	for i, s := range stmts {
		switch s := s.(type) {
		case If:
			branches := make([]Branch, len(s.Branches))
			for j, b := range s.Branches {
				branches[j] = Branch{Cond: b.Cond, Body: clone(b.Body)}
			}

			s.Branches = branches
			s.Else = clone(s.Else)
			out[i] = s

		case Loop:
			s.Body = clone(s.Body)
			out[i] = s

		case Block:
			s.Shadow = slices.Clone(s.Shadow)
			s.Body = clone(s.Body)
			out[i] = s

		default:
			out[i] = s
		}
	}

	return out
}
