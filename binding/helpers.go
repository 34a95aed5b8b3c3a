package binding

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"

	"fortio.org/safecast"
	"github.com/expr-lang/expr"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ardnew/quill/value"
)

// builtins are expr-lang builtin functions that binding expressions may
// call directly. Any other call is routed to the environment.
var builtins = map[string]bool{
	"len": true, "upper": true, "lower": true, "trim": true,
	"trimPrefix": true, "trimSuffix": true, "split": true, "join": true,
	"replace": true, "repeat": true, "indexOf": true, "hasPrefix": true,
	"hasSuffix": true, "abs": true, "ceil": true, "floor": true,
	"round": true, "max": true, "min": true, "int": true, "float": true,
	"string": true, "keys": true, "values": true, "first": true,
	"last": true, "sum": true, "mean": true, "median": true,
	"toJSON": true, "fromJSON": true, "type": true, "reverse": true,
	"uniq": true, "title": true,
}

func isBuiltin(name string) bool { return builtins[name] }

// Builtins returns the sorted names of the builtin functions.
func Builtins() []string {
	return slices.Sorted(maps.Keys(builtins))
}

var (
	errDivByZero = errors.New("division by zero")
	errNoCaller  = errors.New("functions are not available in this context")
)

// Caller is implemented by environments that expose callable functions.
type Caller interface {
	CallFunction(name string, args []value.Value) (value.Value, error)
}

var titleCaser = cases.Title(language.Und)

// functions returns the expr options registering operator helpers.
func functions() []expr.Option {
	return []expr.Option{
		expr.Function("__get", get),
		expr.Function("__call", callEnv),
		expr.Function("__add", arith("+")),
		expr.Function("__sub", arith("-")),
		expr.Function("__mul", arith("*")),
		expr.Function("__div", arith("/")),
		expr.Function("__mod", arith("%")),
		expr.Function("__eq", equality(true)),
		expr.Function("__ne", equality(false)),
		expr.Function("__gt", ordering(">", func(c int) bool { return c > 0 })),
		expr.Function("__ge", ordering(">=", func(c int) bool { return c >= 0 })),
		expr.Function("__lt", ordering("<", func(c int) bool { return c < 0 })),
		expr.Function("__le", ordering("<=", func(c int) bool { return c <= 0 })),
		expr.Function("__truthy", func(p ...any) (any, error) {
			return value.FromNative(p[0]).Truthy(), nil
		}),
		expr.Function("__not", func(p ...any) (any, error) {
			return !value.FromNative(p[0]).Truthy(), nil
		}),
		expr.Function("__neg", func(p ...any) (any, error) {
			v := value.FromNative(p[0])
			if v.Kind() != value.KindNumber {
				return nil, fmt.Errorf("cannot negate %s", v.Kind())
			}

			return normalize(-v.Float()), nil
		}),
		expr.Function("title", func(p ...any) (any, error) {
			return titleCaser.String(value.FromNative(p[0]).String()), nil
		}),
	}
}

// get walks a variable path. The first parameter is the evaluation
// environment; the second names the root variable. Missing variables and
// fields yield null.
func get(p ...any) (any, error) {
	env, _ := p[0].(Env)
	if env == nil {
		return nil, nil
	}

	name, _ := p[1].(string)

	cur, ok := env.Lookup(name)
	if !ok {
		return nil, nil
	}

	for _, seg := range p[2:] {
		next, err := step(cur, seg)
		if err != nil {
			return nil, err
		}

		cur = next
	}

	return cur.Native(), nil
}

func step(cur value.Value, seg any) (value.Value, error) {
	key := value.FromNative(seg)

	switch key.Kind() {
	case value.KindString:
		switch {
		case cur.Kind() == value.KindMapping:
			v, _ := cur.Field(key.Str())

			return v, nil
		case key.Str() == "length" && (cur.Kind() == value.KindArray || cur.Kind() == value.KindString):
			return value.Int(int64(cur.Len())), nil
		default:
			return value.Null(), nil
		}

	case value.KindNumber:
		if cur.Kind() == value.KindMapping {
			v, _ := cur.Field(key.String())

			return v, nil
		}

		idx, err := safecast.Convert[int](key.Float())
		if err != nil {
			return value.Null(), fmt.Errorf("invalid index %s: %w", key, err)
		}

		if cur.Kind() == value.KindString {
			r := []rune(cur.Str())
			if idx < 0 {
				idx += len(r)
			}

			if idx < 0 || idx >= len(r) {
				return value.Null(), nil
			}

			return value.String(string(r[idx])), nil
		}

		v, _ := cur.Index(idx)

		return v, nil

	default:
		return value.Null(), fmt.Errorf("invalid index of kind %s", key.Kind())
	}
}

func callEnv(p ...any) (any, error) {
	caller, ok := p[0].(Caller)
	if !ok {
		return nil, errNoCaller
	}

	name, _ := p[1].(string)

	args := make([]value.Value, len(p)-2)
	for i, a := range p[2:] {
		args[i] = value.FromNative(a)
	}

	out, err := caller.CallFunction(name, args)
	if err != nil {
		return nil, err
	}

	return out.Native(), nil
}

func arith(op string) func(p ...any) (any, error) {
	return func(p ...any) (any, error) {
		a, b := value.FromNative(p[0]), value.FromNative(p[1])

		if op == "+" {
			switch {
			case a.Kind() == value.KindString || b.Kind() == value.KindString:
				return a.String() + b.String(), nil
			case a.Kind() == value.KindArray && b.Kind() == value.KindArray:
				return value.Array(append(append([]value.Value{}, a.Items()...), b.Items()...)...).Native(), nil
			}
		}

		x, okx := numeric(a)
		y, oky := numeric(b)

		if !okx || !oky {
			return nil, fmt.Errorf("unsupported operands %s %s %s", a.Kind(), op, b.Kind())
		}

		switch op {
		case "+":
			return normalize(x + y), nil
		case "-":
			return normalize(x - y), nil
		case "*":
			return normalize(x * y), nil
		case "/":
			if y == 0 {
				return nil, errDivByZero
			}

			return normalize(x / y), nil
		default:
			if y == 0 {
				return nil, errDivByZero
			}

			return normalize(math.Mod(x, y)), nil
		}
	}
}

func equality(want bool) func(p ...any) (any, error) {
	return func(p ...any) (any, error) {
		return value.FromNative(p[0]).Equal(value.FromNative(p[1])) == want, nil
	}
}

func ordering(op string, test func(int) bool) func(p ...any) (any, error) {
	return func(p ...any) (any, error) {
		a, b := value.FromNative(p[0]), value.FromNative(p[1])

		if a.IsNull() || b.IsNull() {
			return false, nil
		}

		if a.Kind() != b.Kind() {
			x, okx := numeric(a)
			y, oky := numeric(b)

			if !okx || !oky {
				return nil, fmt.Errorf("cannot compare %s %s %s", a.Kind(), op, b.Kind())
			}

			a, b = value.Number(x), value.Number(y)
		}

		c, _ := a.Compare(b)

		return test(c), nil
	}
}

// numeric returns the number held by v or denoted by its string text.
func numeric(v value.Value) (float64, bool) {
	switch v.Kind() {
	case value.KindNumber:
		return v.Float(), true
	case value.KindString:
		return value.ParseNumber(v.Str())
	default:
		return 0, false
	}
}

// normalize returns integral results as int so they remain usable as
// lengths and indexes by builtins.
func normalize(f float64) any {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		if i, err := safecast.Convert[int](f); err == nil {
			return i
		}
	}

	return f
}
