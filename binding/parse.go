package binding

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ardnew/quill/value"
)

// operator is a binary operator recognized by the splitter.
type operator struct {
	tok  string
	fn   string
	word bool
}

// operators are tried in order. An expression is split at the first
// top-level occurrence of the first operator found; both halves are then
// split recursively. There is no precedence climbing beyond this order.
var operators = []operator{
	{tok: "or", fn: "__or", word: true},
	{tok: "||", fn: "__or"},
	{tok: "and", fn: "__and", word: true},
	{tok: "&&", fn: "__and"},
	{tok: "==", fn: "__eq"},
	{tok: "!=", fn: "__ne"},
	{tok: ">=", fn: "__ge"},
	{tok: "<=", fn: "__le"},
	{tok: ">", fn: "__gt"},
	{tok: "<", fn: "__lt"},
	{tok: "+", fn: "__add"},
	{tok: "-", fn: "__sub"},
	{tok: "*", fn: "__mul"},
	{tok: "/", fn: "__div"},
	{tok: "%", fn: "__mod"},
}

// scopeNames are the roots that select a single scope in a qualified path.
var scopeNames = map[string]bool{
	"component": true, "request": true, "session": true, "application": true,
}

var (
	errEmpty    = errors.New("empty expression")
	errUnclosed = errors.New("unbalanced brackets or quotes")
)

// node is a parsed expression, lowered to expr-lang source for compilation.
type node interface {
	lower(sb *strings.Builder)
}

type binary struct {
	fn          string
	left, right node
}

func (n binary) lower(sb *strings.Builder) {
	if n.fn == "__and" || n.fn == "__or" {
		n.shortCircuit(sb)

		return
	}

	sb.WriteString(n.fn + "(")
	n.left.lower(sb)
	sb.WriteString(", ")
	n.right.lower(sb)
	sb.WriteByte(')')
}

// shortCircuit lowers and/or to a conditional so the right operand is only
// evaluated when the left one does not decide the result. The left operand
// is bound once; its name is unique within the lowered program.
func (n binary) shortCircuit(sb *strings.Builder) {
	v := "__l" + strconv.Itoa(sb.Len())

	sb.WriteString("(let " + v + " = ")
	n.left.lower(sb)
	sb.WriteString("; __truthy(" + v + ") ? ")

	if n.fn == "__and" {
		n.right.lower(sb)
		sb.WriteString(" : " + v + ")")

		return
	}

	sb.WriteString(v + " : ")
	n.right.lower(sb)
	sb.WriteByte(')')
}

type unary struct {
	fn string
	x  node
}

func (n unary) lower(sb *strings.Builder) {
	sb.WriteString(n.fn + "(")
	n.x.lower(sb)
	sb.WriteByte(')')
}

type literal string

func (n literal) lower(sb *strings.Builder) { sb.WriteString(string(n)) }

type path struct {
	root string
	segs []node
}

func (n path) lower(sb *strings.Builder) {
	sb.WriteString("__get(__env, " + strconv.Quote(n.root))

	for _, s := range n.segs {
		sb.WriteString(", ")
		s.lower(sb)
	}

	sb.WriteByte(')')
}

type call struct {
	name    string
	builtin bool
	args    []node
}

func (n call) lower(sb *strings.Builder) {
	if n.builtin {
		sb.WriteString(n.name + "(")
	} else {
		sb.WriteString("__call(__env, " + strconv.Quote(n.name))

		if len(n.args) > 0 {
			sb.WriteString(", ")
		}
	}

	for i, a := range n.args {
		if i > 0 {
			sb.WriteString(", ")
		}

		a.lower(sb)
	}

	sb.WriteByte(')')
}

type array []node

func (n array) lower(sb *strings.Builder) {
	sb.WriteByte('[')

	for i, a := range n {
		if i > 0 {
			sb.WriteString(", ")
		}

		a.lower(sb)
	}

	sb.WriteByte(']')
}

// Lower translates a binding expression into expr-lang source.
func Lower(src string) (string, error) {
	n, err := split(src)
	if err != nil {
		return "", err
	}

	var sb strings.Builder

	n.lower(&sb)

	return sb.String(), nil
}

func split(src string) (node, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, errEmpty
	}

	if err := checkBalanced(src); err != nil {
		return nil, err
	}

	if inner, ok := unwrap(src, '(', ')'); ok {
		return split(inner)
	}

	for _, op := range operators {
		i := findTop(src, op)
		if i < 0 {
			continue
		}

		left, right := src[:i], src[i+len(op.tok):]

		if strings.TrimSpace(left) == "" || strings.TrimSpace(right) == "" {
			return nil, fmt.Errorf("missing operand for %q", op.tok)
		}

		l, err := split(left)
		if err != nil {
			return nil, err
		}

		r, err := split(right)
		if err != nil {
			return nil, err
		}

		return binary{fn: op.fn, left: l, right: r}, nil
	}

	return atom(src)
}

// findTop returns the offset of the first occurrence of op outside quotes
// and brackets, or -1.
func findTop(src string, op operator) int {
	depth := 0

	var quote byte

	for i := 0; i < len(src); i++ {
		c := src[i]

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

			continue
		case '(', '[':
			depth++

			continue
		case ')', ']':
			depth--

			continue
		}

		if depth != 0 || !strings.HasPrefix(src[i:], op.tok) {
			continue
		}

		if op.word && !wordBoundary(src, i, len(op.tok)) {
			continue
		}

		if !binaryPosition(src[:i], op.tok) {
			continue
		}

		return i
	}

	return -1
}

func wordBoundary(src string, i, n int) bool {
	if i > 0 && isIdent(src[i-1]) {
		return false
	}

	return i+n >= len(src) || !isIdent(src[i+n])
}

// binaryPosition reports whether an operator found after left is used as a
// binary operator rather than a sign or part of a number.
func binaryPosition(left, tok string) bool {
	if tok != "-" && tok != "+" {
		return true
	}

	l := strings.TrimRight(left, " \t\r\n")
	if l == "" {
		return false
	}

	last := l[len(l)-1]
	if strings.IndexByte("+-*/%<>=!(,[&|", last) >= 0 {
		return false
	}

	// Exponent of a numeric literal such as 1e-5.
	if (last == 'e' || last == 'E') && len(l) > 1 && l[len(l)-2] >= '0' && l[len(l)-2] <= '9' {
		start := strings.LastIndexFunc(l[:len(l)-1], func(r rune) bool {
			return !(r >= '0' && r <= '9' || r == '.')
		})

		return start >= 0 && isIdent(l[start])
	}

	if strings.HasSuffix(l, "not") && wordBoundary(l, len(l)-3, 3) {
		return false
	}

	return true
}

func atom(src string) (node, error) {
	switch strings.ToLower(src) {
	case "true":
		return literal("true"), nil
	case "false":
		return literal("false"), nil
	case "null", "nil", "none":
		return literal("nil"), nil
	}

	if s, ok := unquote(src); ok {
		return literal(strconv.Quote(s)), nil
	}

	if f, ok := value.ParseNumber(src); ok {
		if math.Abs(f) >= 1e15 {
			return literal(strconv.FormatFloat(f, 'e', -1, 64)), nil
		}

		return literal(value.FormatNumber(f)), nil
	}

	if rest, ok := strings.CutPrefix(src, "not"); ok && len(rest) > 0 && !isIdent(rest[0]) {
		x, err := split(rest)
		if err != nil {
			return nil, err
		}

		return unary{fn: "__not", x: x}, nil
	}

	switch src[0] {
	case '!':
		x, err := split(src[1:])
		if err != nil {
			return nil, err
		}

		return unary{fn: "__not", x: x}, nil

	case '-':
		x, err := split(src[1:])
		if err != nil {
			return nil, err
		}

		return unary{fn: "__neg", x: x}, nil

	case '+':
		return split(src[1:])

	case '[':
		if inner, ok := unwrap(src, '[', ']'); ok {
			items, err := splitList(inner)
			if err != nil {
				return nil, err
			}

			return array(items), nil
		}
	}

	return reference(src)
}

// reference parses a variable path or a function call.
func reference(src string) (node, error) {
	i := 0
	for i < len(src) && isIdent(src[i]) {
		i++
	}

	if i == 0 || isDigit(src[0]) {
		return nil, fmt.Errorf("unexpected %q", src)
	}

	name := src[:i]
	rest := src[i:]

	if strings.HasPrefix(strings.TrimLeft(rest, " "), "(") {
		rest = strings.TrimLeft(rest, " ")

		inner, ok := unwrap(rest, '(', ')')
		if !ok {
			return nil, fmt.Errorf("unexpected %q after call to %s", rest, name)
		}

		args, err := splitList(inner)
		if err != nil {
			return nil, err
		}

		return call{name: name, builtin: isBuiltin(name), args: args}, nil
	}

	p := path{root: name}

	for rest != "" {
		switch rest[0] {
		case '.':
			j := 1
			for j < len(rest) && isIdent(rest[j]) {
				j++
			}

			field := rest[1:j]
			if field == "" {
				return nil, fmt.Errorf("missing field name in %q", src)
			}

			if allDigits(field) {
				p.segs = append(p.segs, literal(field))
			} else {
				p.segs = append(p.segs, literal(strconv.Quote(field)))
			}

			rest = rest[j:]

		case '[':
			end := matching(rest, '[', ']')
			if end < 0 {
				return nil, errUnclosed
			}

			idx, err := split(rest[1:end])
			if err != nil {
				return nil, err
			}

			p.segs = append(p.segs, idx)
			rest = rest[end+1:]

		default:
			return nil, fmt.Errorf("unexpected %q in %q", rest, src)
		}
	}

	// component.x, session.x and the like address exactly one scope.
	if scopeNames[p.root] && len(p.segs) > 0 {
		if f, ok := p.segs[0].(literal); ok {
			if s, err := strconv.Unquote(string(f)); err == nil {
				p.root += "." + s
				p.segs = p.segs[1:]
			}
		}
	}

	return p, nil
}

// splitList splits comma-separated expressions at the top level.
func splitList(src string) ([]node, error) {
	if strings.TrimSpace(src) == "" {
		return nil, nil
	}

	var (
		out   []node
		depth int
		quote byte
		start int
	)

	for i := 0; i <= len(src); i++ {
		if i < len(src) {
			c := src[i]

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
			case '(', '[':
				depth++
			case ')', ']':
				depth--
			}

			if c != ',' || depth != 0 {
				continue
			}
		}

		n, err := split(src[start:i])
		if err != nil {
			return nil, err
		}

		out = append(out, n)
		start = i + 1
	}

	return out, nil
}

// unwrap strips open/close when they enclose all of src.
func unwrap(src string, open, close byte) (string, bool) {
	if len(src) < 2 || src[0] != open || src[len(src)-1] != close {
		return "", false
	}

	if matching(src, open, close) != len(src)-1 {
		return "", false
	}

	return src[1 : len(src)-1], true
}

// matching returns the offset of the bracket closing src[0], or -1.
func matching(src string, open, close byte) int {
	depth := 0

	var quote byte

	for i := 0; i < len(src); i++ {
		c := src[i]

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
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i
			}
		}
	}

	return -1
}

func checkBalanced(src string) error {
	var (
		stack []byte
		quote byte
	)

	for i := 0; i < len(src); i++ {
		c := src[i]

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
		case '(', '[':
			stack = append(stack, c)
		case ')', ']':
			want := byte('(')
			if c == ']' {
				want = '['
			}

			if len(stack) == 0 || stack[len(stack)-1] != want {
				return errUnclosed
			}

			stack = stack[:len(stack)-1]
		}
	}

	if quote != 0 || len(stack) != 0 {
		return errUnclosed
	}

	return nil
}

// unquote decodes a single- or double-quoted string literal spanning all
// of src.
func unquote(src string) (string, bool) {
	if len(src) < 2 {
		return "", false
	}

	q := src[0]
	if (q != '"' && q != '\'') || src[len(src)-1] != q {
		return "", false
	}

	var sb strings.Builder

	body := src[1 : len(src)-1]

	for i := 0; i < len(body); i++ {
		c := body[i]

		switch {
		case c == '\\' && i+1 < len(body):
			i++

			switch body[i] {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			default:
				sb.WriteByte(body[i])
			}

		case c == q:
			// An unescaped quote inside means src is not one literal.
			return "", false

		default:
			sb.WriteByte(c)
		}
	}

	return sb.String(), true
}

func isIdent(c byte) bool {
	return c == '_' || c == '$' || isDigit(c) ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func allDigits(s string) bool {
	for i := range len(s) {
		if !isDigit(s[i]) {
			return false
		}
	}

	return s != ""
}
