package binding

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ardnew/quill/lang"
	"github.com/ardnew/quill/value"
)

// funcEnv is a MapEnv that also serves function calls.
type funcEnv struct {
	MapEnv
	fns map[string]func(args []value.Value) (value.Value, error)
}

func (e funcEnv) CallFunction(name string, args []value.Value) (value.Value, error) {
	fn, ok := e.fns[name]
	if !ok {
		return value.Null(), fmt.Errorf("unknown function %q", name)
	}

	return fn(args)
}

func testEnv() MapEnv {
	return MapEnv{
		"x":     value.Int(5),
		"name":  value.String("quill"),
		"empty": value.String(""),
		"items": value.Array(value.Int(1), value.Int(2), value.Int(3)),
		"none":  value.Array(),
		"user": value.Mapping(map[string]value.Value{
			"name": value.String("ada"),
			"tags": value.Array(value.String("a"), value.String("b")),
		}),
		"session.user": value.String("grace"),
	}
}

func TestSpans(t *testing.T) {
	tests := []struct {
		text string
		want []Span
	}{
		{`plain`, nil},
		{`{a} and {b}`, []Span{{0, 3, "a"}, {8, 11, "b"}}},
		{`{}`, nil},
		{`{  }`, nil},
		{`a {b`, nil},
		{`{'}'}`, []Span{{0, 5, "'}'"}}},
		{`{{x}}`, []Span{{1, 4, "x"}}},
		{`f() { return 1 }`, []Span{{4, 16, " return 1 "}}},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Spans(tt.text)); diff != "" {
				t.Errorf("Spans(%q) mismatch (-want +got):\n%s", tt.text, diff)
			}
		})
	}
}

func TestResolve_TypedVersusString(t *testing.T) {
	r := NewResolver(nil)
	env := MapEnv{"x": value.Int(5)}

	typed, err := r.Resolve("{x}", env)
	if err != nil {
		t.Fatal(err)
	}

	if typed.Kind() != value.KindNumber || !typed.Equal(value.Int(5)) {
		t.Errorf(`Resolve("{x}") = %#v, want number 5`, typed)
	}

	mixed, err := r.Resolve("v={x}", env)
	if err != nil {
		t.Fatal(err)
	}

	if mixed.Kind() != value.KindString || mixed.Str() != "v=5" {
		t.Errorf(`Resolve("v={x}") = %#v, want string "v=5"`, mixed)
	}

	plain, err := r.Resolve("just text", env)
	if err != nil || plain.Str() != "just text" {
		t.Errorf(`Resolve("just text") = %#v, %v`, plain, err)
	}

	pair, err := r.Resolve("{x}{x}", env)
	if err != nil || pair.Kind() != value.KindString || pair.Str() != "55" {
		t.Errorf(`Resolve("{x}{x}") = %#v, %v, want string "55"`, pair, err)
	}
}

func TestResolve_Expressions(t *testing.T) {
	tests := []struct {
		text string
		want value.Value
	}{
		{`{x + 1}`, value.Int(6)},
		{`{x * 2 + 1}`, value.Int(11)},
		{`{2 + 3 * 4}`, value.Int(14)},
		{`{10 - 4 - 3}`, value.Int(9)},
		{`{20 / 4 / 2}`, value.Int(10)},
		{`{7 / 2}`, value.Number(3.5)},
		{`{7 % 4}`, value.Int(3)},
		{`{-x}`, value.Int(-5)},
		{`{'5' * 2}`, value.Int(10)},
		{`{name + 1}`, value.String("quill1")},
		{`{[1, 2] + [3]}`, value.Array(value.Int(1), value.Int(2), value.Int(3))},
		{`{x > 3}`, value.Bool(true)},
		{`{x >= 5 and x < 6}`, value.Bool(true)},
		{`{x == 5}`, value.Bool(true)},
		{`{x != 5}`, value.Bool(false)},
		{`{name == 'quill'}`, value.Bool(true)},
		{`{'10' > 9}`, value.Bool(true)},
		{`{missing > 1}`, value.Bool(false)},
		{`{missing}`, value.Null()},
		{`{missing or 'fallback'}`, value.String("fallback")},
		{`{0 and x}`, value.Int(0)},
		{`{not empty}`, value.Bool(true)},
		{`{user.name}`, value.String("ada")},
		{`{user.tags[1]}`, value.String("b")},
		{`{user.missing.deeper}`, value.Null()},
		{`{items[0]}`, value.Int(1)},
		{`{items[-1]}`, value.Int(3)},
		{`{items[x - 4]}`, value.Int(2)},
		{`{items.length}`, value.Int(3)},
		{`{name[0]}`, value.String("q")},
		{`{session.user}`, value.String("grace")},
		{`{len(items)}`, value.Int(3)},
		{`{upper(name)}`, value.String("QUILL")},
		{`{title('hello world')}`, value.String("Hello World")},
	}

	r := NewResolver(NewCache())
	env := testEnv()

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := r.Resolve(tt.text, env)
			if err != nil {
				t.Fatalf("Resolve(%q): %v", tt.text, err)
			}

			if !got.Equal(tt.want) {
				t.Errorf("Resolve(%q) = %#v, want %#v", tt.text, got, tt.want)
			}
		})
	}
}

func TestResolve_Errors(t *testing.T) {
	r := NewResolver(nil)
	env := testEnv()

	for _, text := range []string{
		`{1 +}`,
		`{10 / 0}`,
		`{x % 0}`,
		`{user - 1}`,
		`{name > 1}`,
		`{add(1, 2)}`,
		`{items[0.5]}`,
	} {
		t.Run(text, func(t *testing.T) {
			_, err := r.Resolve(text, env)
			if !errors.Is(err, lang.ErrExpression) {
				t.Fatalf("Resolve(%q) error = %v, want expression error", text, err)
			}

			var ee *lang.ExpressionError
			if !errors.As(err, &ee) || ee.Expr == "" {
				t.Errorf("error %v does not name the expression", err)
			}
		})
	}
}

func TestResolve_ShortCircuit(t *testing.T) {
	env := MapEnv{
		"a": value.Int(6),
		"b": value.Int(0),
		"x": value.Null(),
	}

	tests := []struct {
		text string
		want value.Value
	}{
		{`{b != 0 and a / b > 1}`, value.Bool(false)},
		{`{b == 0 or a / b > 1}`, value.Bool(true)},
		{`{x == null or x.y > 1}`, value.Bool(true)},
		{`{a and b and a / b}`, value.Int(0)},
		{`{b or a or a / b}`, value.Int(6)},
		{`{a > 1 and b == 0 and 'ok'}`, value.String("ok")},
	}

	r := NewResolver(nil)

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := r.Resolve(tt.text, env)
			if err != nil {
				t.Fatalf("Resolve(%q): %v", tt.text, err)
			}

			if !got.Equal(tt.want) {
				t.Errorf("Resolve(%q) = %#v, want %#v", tt.text, got, tt.want)
			}
		})
	}
}

func TestResolve_ErrorShowsSource(t *testing.T) {
	r := NewResolver(nil)

	_, err := r.Resolve(`{b != 0 or a / b > 1}`, MapEnv{"a": value.Int(1), "b": value.Int(0)})
	if err == nil {
		t.Fatal("expected division by zero")
	}

	msg := err.Error()
	if !strings.Contains(msg, `"b != 0 or a / b > 1"`) {
		t.Errorf("error %q does not quote the expression", msg)
	}

	for _, lowered := range []string{"__get", "__env", "^"} {
		if strings.Contains(msg, lowered) {
			t.Errorf("error %q leaks lowered text %q", msg, lowered)
		}
	}

	if !errors.Is(err, errDivByZero) {
		t.Errorf("error %v does not wrap division by zero", err)
	}
}

func TestResolve_FunctionCalls(t *testing.T) {
	env := funcEnv{
		MapEnv: testEnv(),
		fns: map[string]func([]value.Value) (value.Value, error){
			"add": func(args []value.Value) (value.Value, error) {
				return value.Number(args[0].Float() + args[1].Float()), nil
			},
		},
	}

	r := NewResolver(nil)

	got, err := r.Resolve("{add(x, 2)}", env)
	if err != nil {
		t.Fatal(err)
	}

	if !got.Equal(value.Int(7)) {
		t.Errorf("add(x, 2) = %#v, want 7", got)
	}

	if _, err := r.Resolve("{nope()}", env); !errors.Is(err, lang.ErrExpression) {
		t.Errorf("unknown function error = %v", err)
	}
}

func TestInterpolate(t *testing.T) {
	r := NewResolver(nil)

	got, err := r.Interpolate("{user.name} has {len(items)} items: {items}", testEnv())
	if err != nil {
		t.Fatal(err)
	}

	if want := "ada has 3 items: [1,2,3]"; got != want {
		t.Errorf("Interpolate = %q, want %q", got, want)
	}
}

func TestResolveCondition(t *testing.T) {
	tests := []struct {
		text string
		x    int64
		want bool
	}{
		{`{x > 5}`, 10, true},
		{`{x > 5}`, 2, false},
		{`x > 5`, 10, true},
		{`x > 5`, 2, false},
		{`{x}`, 0, false},
		{`{x}`, 3, true},
		{`{name}`, 0, true},
		{`{empty}`, 0, false},
		{`{none}`, 0, false},
		{`{items}`, 0, true},
		{`{missing}`, 0, false},
		{`true`, 0, true},
	}

	r := NewResolver(nil)

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/x=%d", tt.text, tt.x), func(t *testing.T) {
			env := testEnv()
			env["x"] = value.Int(tt.x)

			got, err := r.ResolveCondition(tt.text, env)
			if err != nil {
				t.Fatal(err)
			}

			if got != tt.want {
				t.Errorf("ResolveCondition(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}
