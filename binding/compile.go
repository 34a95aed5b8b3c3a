package binding

import (
	"errors"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/file"
	"github.com/expr-lang/expr/vm"

	"github.com/ardnew/quill/lang"
	"github.com/ardnew/quill/value"
)

// envKey is the name under which the evaluation environment is passed to
// compiled programs.
const envKey = "__env"

// Env supplies variables to a running expression. Implementations that also
// implement [Caller] make user functions callable from expressions.
type Env interface {
	Lookup(name string) (value.Value, bool)
}

// MapEnv is an [Env] backed by a plain map.
type MapEnv map[string]value.Value

func (m MapEnv) Lookup(name string) (value.Value, bool) {
	v, ok := m[name]

	return v, ok
}

// Program is a compiled binding expression. It is immutable and may be run
// concurrently against different environments.
type Program struct {
	// Source is the expression as written, without braces.
	Source string
	// Lowered is the expr-lang source compiled from Source.
	Lowered string

	program *vm.Program
}

// Compile translates src into an expr-lang program. Failures are reported
// as *[lang.ExpressionError].
func Compile(src string) (*Program, error) {
	lowered, err := Lower(src)
	if err != nil {
		return nil, &lang.ExpressionError{Expr: src, Err: err}
	}

	opts := append(functions(), expr.AllowUndefinedVariables())

	program, err := expr.Compile(lowered, opts...)
	if err != nil {
		return nil, &lang.ExpressionError{Expr: src, Err: cause(err)}
	}

	return &Program{Source: src, Lowered: lowered, program: program}, nil
}

// Run evaluates p against env.
func (p *Program) Run(env Env) (value.Value, error) {
	out, err := vm.Run(p.program, map[string]any{envKey: env})
	if err != nil {
		return value.Null(), &lang.ExpressionError{Expr: p.Source, Err: cause(err)}
	}

	return value.FromNative(out), nil
}

// cause strips the position and snippet expr-lang attaches to err. Both
// index the lowered program, not the source as written.
func cause(err error) error {
	var fe *file.Error
	if !errors.As(err, &fe) {
		return err
	}

	if fe.Prev != nil {
		return fe.Prev
	}

	return errors.New(fe.Message)
}
