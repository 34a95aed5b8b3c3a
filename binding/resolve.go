package binding

import (
	"strings"

	"github.com/ardnew/quill/value"
)

// Span is one {…} binding within a template text.
type Span struct {
	// Start and End are byte offsets of the opening and one past the closing
	// brace.
	Start, End int
	// Expr is the text between the braces.
	Expr string
}

// Spans returns the bindings of text in order. Braces inside quoted strings
// do not terminate a binding; an opening brace without a closing one and
// empty braces are literal text.
func Spans(text string) []Span {
	var out []Span

	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}

		end, closed := spanEnd(text, i+1)
		if !closed {
			if end < 0 {
				break
			}

			// Restart at the nested opening brace.
			i = end - 1

			continue
		}

		if inner := text[i+1 : end]; strings.TrimSpace(inner) != "" {
			out = append(out, Span{Start: i, End: end + 1, Expr: inner})
		}

		i = end
	}

	return out
}

// spanEnd returns the offset of the brace closing a binding opened before
// from. When another opening brace comes first its offset is returned with
// closed false; when neither occurs the offset is -1.
func spanEnd(text string, from int) (end int, closed bool) {
	var quote byte

	for i := from; i < len(text); i++ {
		c := text[i]

		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}

			continue
		}

		switch c {
		case '"', '\'':
			quote = c
		case '}':
			return i, true
		case '{':
			return i, false
		}
	}

	return -1, false
}

// Resolver evaluates template texts containing {…} bindings.
type Resolver struct {
	cache *Cache
}

// NewResolver returns a resolver compiling through c. A nil c gets a
// private cache.
func NewResolver(c *Cache) *Resolver {
	if c == nil {
		c = NewCache()
	}

	return &Resolver{cache: c}
}

// Cache returns the expression cache used by r.
func (r *Resolver) Cache() *Cache { return r.cache }

// Eval evaluates a bare expression, without braces.
func (r *Resolver) Eval(expr string, env Env) (value.Value, error) {
	return r.cache.FastEvaluate(strings.TrimSpace(expr), env)
}

// Resolve evaluates text. When text is exactly one binding the typed value
// of its expression is returned; otherwise every binding is rendered with
// [value.Value.String] and substituted, yielding a string. Text without
// bindings is returned as a string unchanged.
func (r *Resolver) Resolve(text string, env Env) (value.Value, error) {
	spans := Spans(text)

	if len(spans) == 1 && spans[0].Start == 0 && spans[0].End == len(text) {
		return r.Eval(spans[0].Expr, env)
	}

	s, err := r.substitute(text, spans, env)
	if err != nil {
		return value.Null(), err
	}

	return value.String(s), nil
}

// Interpolate evaluates text and returns its display form.
func (r *Resolver) Interpolate(text string, env Env) (string, error) {
	return r.substitute(text, Spans(text), env)
}

func (r *Resolver) substitute(text string, spans []Span, env Env) (string, error) {
	if len(spans) == 0 {
		return text, nil
	}

	var sb strings.Builder

	sb.Grow(len(text))

	last := 0

	for _, sp := range spans {
		v, err := r.Eval(sp.Expr, env)
		if err != nil {
			return "", err
		}

		sb.WriteString(text[last:sp.Start])
		sb.WriteString(v.String())

		last = sp.End
	}

	sb.WriteString(text[last:])

	return sb.String(), nil
}

// ResolveCondition evaluates a condition and reduces the result with
// [value.Value.Truthy]. A condition without bindings is evaluated as a
// whole expression, so "x > 5" and "{x > 5}" are equivalent.
func (r *Resolver) ResolveCondition(text string, env Env) (bool, error) {
	var (
		v   value.Value
		err error
	)

	if len(Spans(text)) == 0 {
		v, err = r.Eval(text, env)
	} else {
		v, err = r.Resolve(text, env)
	}

	if err != nil {
		return false, err
	}

	return v.Truthy(), nil
}
