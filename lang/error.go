package lang

import (
	"errors"
	"log/slog"
	"strconv"
	"strings"
)

// Sentinel errors. Test for them with [errors.Is]; values derived with
// [Error.Wrap] and [Error.With] still match their sentinel.
var (
	ErrSyntax            = NewError("syntax error")
	ErrComponentNotFound = NewError("component not found")
	ErrExpression        = NewError("expression error")
	ErrVariableNotFound  = NewError("variable not found")
	ErrExecution         = NewError("component execution failed")
	ErrNotFound          = NewError("not found")
	ErrReadInput         = NewError("failed to read input")
)

// Error is an error with optional structured logging attributes. It
// implements both error and slog.LogValuer.
type Error struct {
	msg   string
	err   error
	attrs []slog.Attr
}

// NewError creates a new Error with a message.
func NewError(msg string) *Error {
	return &Error{msg: msg}
}

// WrapError converts err into an *Error, returning err itself when it
// already is one.
func WrapError(err error) *Error {
	if err == nil {
		return nil
	}

	var ee *Error
	if errors.As(err, &ee) {
		return ee
	}

	return &Error{err: err}
}

// Error implements the error interface as "<msg>: <cause>".
func (e *Error) Error() string {
	part := make([]string, 0, 2)

	if e.msg != "" {
		part = append(part, e.msg)
	}

	if e.err != nil {
		part = append(part, e.err.Error())
	}

	return strings.Join(part, ": ")
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error { return e.err }

// Is reports whether target is the sentinel e was derived from.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.err != nil || len(t.attrs) != 0 {
		return false
	}

	return t.msg != "" && t.msg == e.msg
}

// LogValue implements slog.LogValuer.
func (e *Error) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(e.attrs)+2)

	if e.msg != "" {
		attrs = append(attrs, slog.String("error", e.msg))
	}

	if e.err != nil {
		attrs = append(attrs, slog.Any("cause", e.err))
	}

	return slog.GroupValue(append(attrs, e.attrs...)...)
}

// Wrap returns a copy of e wrapping err.
func (e *Error) Wrap(err error) *Error {
	return &Error{msg: e.msg, err: err, attrs: e.attrs}
}

// With returns a copy of e with attrs appended.
func (e *Error) With(attrs ...slog.Attr) *Error {
	merged := make([]slog.Attr, 0, len(e.attrs)+len(attrs))
	merged = append(merged, e.attrs...)
	merged = append(merged, attrs...)

	return &Error{msg: e.msg, err: e.err, attrs: merged}
}

// Pos is a position in component source. Line and Col are 1-based; the zero
// Pos means "unknown".
type Pos struct {
	File   string
	Line   int
	Col    int
	Offset int
}

// IsValid reports whether p refers to an actual source location.
func (p Pos) IsValid() bool { return p.Line > 0 }

// String formats p as "file:line:col", omitting unknown parts.
func (p Pos) String() string {
	var sb strings.Builder

	if p.File != "" {
		sb.WriteString(p.File)
	}

	if p.IsValid() {
		if sb.Len() > 0 {
			sb.WriteByte(':')
		}

		sb.WriteString(strconv.Itoa(p.Line))
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(p.Col))
	}

	if sb.Len() == 0 {
		return "-"
	}

	return sb.String()
}

// SyntaxError reports malformed component source.
type SyntaxError struct {
	Pos Pos
	Msg string
	// Line holds the offending source line for display, if known.
	Line string
}

func (e *SyntaxError) Error() string {
	return "syntax error at " + e.Pos.String() + ": " + e.Msg
}

// Is matches [ErrSyntax].
func (e *SyntaxError) Is(target error) bool { return target == ErrSyntax }

// Snippet renders the offending line with a caret under the column.
func (e *SyntaxError) Snippet() string {
	if e.Line == "" || !e.Pos.IsValid() {
		return ""
	}

	num := strconv.Itoa(e.Pos.Line)

	var sb strings.Builder

	sb.WriteString("  " + num + " | " + e.Line + "\n")
	sb.WriteString(strings.Repeat(" ", len(num)+5))

	if e.Pos.Col > 1 {
		sb.WriteString(strings.Repeat(" ", e.Pos.Col-1))
	}

	sb.WriteString("^\n")

	return sb.String()
}

func (e *SyntaxError) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("error", e.Msg),
		slog.String("pos", e.Pos.String()),
	)
}

// ComponentNotFoundError reports an import that could not be resolved.
type ComponentNotFoundError struct {
	Name string
	// From is the file containing the import, if any.
	From string
	// Suggestions lists near-miss component names, best first.
	Suggestions []string
}

func (e *ComponentNotFoundError) Error() string {
	msg := "component not found: " + strconv.Quote(e.Name)
	if e.From != "" {
		msg += " (imported from " + e.From + ")"
	}

	if len(e.Suggestions) > 0 {
		msg += "; did you mean " + strings.Join(quoteAll(e.Suggestions), " or ") + "?"
	}

	return msg
}

// Is matches [ErrComponentNotFound].
func (e *ComponentNotFoundError) Is(target error) bool {
	return target == ErrComponentNotFound
}

func (e *ComponentNotFoundError) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("error", "component not found"),
		slog.String("name", e.Name),
		slog.String("from", e.From),
		slog.Any("suggestions", e.Suggestions),
	)
}

// ExpressionError reports an expression that could not be compiled or
// evaluated.
type ExpressionError struct {
	Expr string
	Err  error
}

func (e *ExpressionError) Error() string {
	msg := "expression error in " + strconv.Quote(e.Expr)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *ExpressionError) Unwrap() error { return e.Err }

// Is matches [ErrExpression].
func (e *ExpressionError) Is(target error) bool { return target == ErrExpression }

func (e *ExpressionError) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("error", "expression error"),
		slog.String("expr", e.Expr),
		slog.Any("cause", e.Err),
	)
}

// VariableNotFoundError reports a lookup miss in an execution context.
type VariableNotFoundError struct {
	Name string
	// Scope is the scope that was searched, or "" for an unqualified lookup
	// through all scopes.
	Scope string
}

func (e *VariableNotFoundError) Error() string {
	if e.Scope != "" {
		return "variable not found: " + e.Scope + "." + e.Name
	}

	return "variable not found: " + e.Name
}

// Is matches [ErrVariableNotFound].
func (e *VariableNotFoundError) Is(target error) bool {
	return target == ErrVariableNotFound
}

// ComponentExecutionError wraps any fault raised while interpreting a node.
type ComponentExecutionError struct {
	Component string
	Tag       string
	Pos       Pos
	Err       error
}

func (e *ComponentExecutionError) Error() string {
	var sb strings.Builder

	sb.WriteString("execution of ")

	if e.Component != "" {
		sb.WriteString(e.Component + " ")
	}

	sb.WriteString("failed")

	if e.Tag != "" {
		sb.WriteString(" at <" + e.Tag + ">")
	}

	if e.Pos.IsValid() || e.Pos.File != "" {
		sb.WriteString(" (" + e.Pos.String() + ")")
	}

	if e.Err != nil {
		sb.WriteString(": " + e.Err.Error())
	}

	return sb.String()
}

func (e *ComponentExecutionError) Unwrap() error { return e.Err }

// Is matches [ErrExecution].
func (e *ComponentExecutionError) Is(target error) bool { return target == ErrExecution }

func (e *ComponentExecutionError) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("error", "component execution failed"),
		slog.String("component", e.Component),
		slog.String("tag", e.Tag),
		slog.String("pos", e.Pos.String()),
		slog.Any("cause", e.Err),
	)
}

// NotFoundError reports that a source file vanished or never existed. It is
// distinct from a cache miss.
type NotFoundError struct {
	Path string
	Err  error
}

func (e *NotFoundError) Error() string {
	return "not found: " + e.Path
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// Is matches [ErrNotFound].
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func quoteAll(s []string) []string {
	out := make([]string, len(s))
	for i, v := range s {
		out[i] = strconv.Quote(v)
	}

	return out
}
