package transpile

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ardnew/quill/lang"
	"github.com/ardnew/quill/runtime"
	"github.com/ardnew/quill/scope"
)

func parse(t *testing.T, src string) *lang.Component {
	t.Helper()

	comp, err := lang.Parse(context.Background(), src, lang.WithName("card"))
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}

	return comp
}

func lower(t *testing.T, src string, scene bool) *Program {
	t.Helper()

	p, err := Lower(parse(t, src), scene)
	if err != nil {
		t.Fatalf("Lower(%q): %v", src, err)
	}

	return p
}

func generate(p *Program, target Target) string {
	g := generator{target: target, pkg: "components", typ: TypeName(p.Name), prog: p}

	return g.file()
}

func TestOptimize(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []Stmt
	}{
		{
			name: "merge markup",
			src:  `<p class="x">hi {name}</p>`,
			want: []Stmt{Text{`<p class="x">hi `}, Expr{"name"}, Text{"</p>"}},
		},
		{
			name: "fold constant output",
			src:  `a{1 + 2}b`,
			want: []Stmt{Text{"a3b"}},
		},
		{
			name: "false branch",
			src:  `<q:if condition="{1 > 2}">a<q:else/>b</q:if>`,
			want: []Stmt{Text{"b"}},
		},
		{
			name: "true branch",
			src:  `<q:if condition="{x}">a<q:elseif condition="{2 > 1}"/>b<q:else/>c</q:if>`,
			want: []Stmt{If{
				Branches: []Branch{{Cond: "{x}", Body: []Stmt{Text{"a"}}}},
				Else:     []Stmt{Text{"b"}},
				HasElse:  true,
			}},
		},
		{
			name: "unroll short range",
			src:  `<q:loop from="1" to="3" var="i">{i}</q:loop>`,
			want: []Stmt{Block{
				Shadow: []string{"i"},
				Body: []Stmt{
					Set{Name: "i", Value: "1"}, Expr{"i"},
					Set{Name: "i", Value: "2"}, Expr{"i"},
					Set{Name: "i", Value: "3"}, Expr{"i"},
				},
			}},
		},
		{
			name: "keep long range",
			src:  `<q:loop from="1" to="{2 + 2}" var="i">{i}</q:loop>`,
			want: []Stmt{Loop{
				Mode: lang.LoopRange, Var: "i", From: "1", To: "4",
				Body: []Stmt{Expr{"i"}},
			}},
		},
		{
			name: "fold set",
			src:  `<q:set name="n" value="{2 * 21}"/>`,
			want: []Stmt{Set{Name: "n", Value: "42"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := lower(t, tt.src, false)
			Optimize(p)

			if diff := cmp.Diff(tt.want, p.Body); diff != "" {
				t.Errorf("body (-want +got):\n%s", diff)
			}
		})
	}
}

func TestOptimize_DropsDeadBranch(t *testing.T) {
	const src = `<q:if condition="{1 > 2}">dead</q:if><q:else>live</q:else>` +
		`<q:loop from="1" to="{1 + 2}" var="i">x</q:loop>`

	p := lower(t, src, false)
	Optimize(p)

	want := []Stmt{
		Text{"live"},
		Block{
			Shadow: []string{"i"},
			Body: []Stmt{
				Set{Name: "i", Value: "1"}, Text{"x"},
				Set{Name: "i", Value: "2"}, Text{"x"},
				Set{Name: "i", Value: "3"}, Text{"x"},
			},
		},
	}

	if diff := cmp.Diff(want, p.Body); diff != "" {
		t.Errorf("body (-want +got):\n%s", diff)
	}

	out, err := Compile(context.Background(), parse(t, src), TargetGo)
	if err != nil {
		t.Fatal(err)
	}

	for _, gone := range []string{"dead", "h.Cond(", "h.Range("} {
		if strings.Contains(string(out), gone) {
			t.Errorf("output still contains %q:\n%s", gone, out)
		}
	}
}

// TestOptimize_MatchesInterpreter checks that components the optimizer
// reduces to plain text render the same text when interpreted.
func TestOptimize_MatchesInterpreter(t *testing.T) {
	for _, src := range []string{
		`a{1 + 2}b`,
		`<q:if condition="{1 > 2}">dead</q:if><q:else>live {2 * 3}</q:else>`,
		`<q:if condition="{'x' == 'x'}">yes</q:if><q:elseif condition="{true}">no</q:elseif>`,
		`<q:if condition="{0 and 1 / 0}">never</q:if>ok`,
		`<p title="{4 / 2}">{'q' + 'uill'}</p>`,
	} {
		t.Run(src, func(t *testing.T) {
			p := lower(t, src, false)
			Optimize(p)

			var sb strings.Builder

			for _, s := range p.Body {
				text, ok := s.(Text)
				if !ok {
					t.Fatalf("optimized body keeps %#v", s)
				}

				sb.WriteString(text.Text)
			}

			res, err := runtime.New().Execute(context.Background(), parse(t, src), scope.New())
			if err != nil {
				t.Fatal(err)
			}

			if diff := cmp.Diff(res.Output, sb.String()); diff != "" {
				t.Errorf("output (-interpreted +optimized):\n%s", diff)
			}
		})
	}
}

func TestOptimize_ReturnEndsBody(t *testing.T) {
	p := lower(t, `<q:function name="f"><q:return value="1"/>dead</q:function>`, false)
	Optimize(p)

	if len(p.Funcs) != 1 {
		t.Fatalf("functions = %d, want 1", len(p.Funcs))
	}

	if diff := cmp.Diff([]Stmt{Return{"1"}}, p.Funcs[0].Body); diff != "" {
		t.Errorf("function body (-want +got):\n%s", diff)
	}
}

func TestOptimize_Idempotent(t *testing.T) {
	p := lower(t, `<ul><q:loop from="1" to="3" var="i" index="n"><li>{n}:{i}</li></q:loop></ul>`, false)
	Optimize(p)

	first := generate(p, TargetGo)

	for _, pass := range Passes {
		for range 2 {
			if RunPass(p, pass) {
				t.Errorf("pass %s changed an optimized program", pass.Name)
			}
		}
	}

	if diff := cmp.Diff(first, generate(p, TargetGo)); diff != "" {
		t.Errorf("source changed (-first +again):\n%s", diff)
	}
}

func TestCompile(t *testing.T) {
	const src = `<q:param name="title" default="Cards"/>` +
		`<q:function name="double"><q:param name="x" type="number"/><q:return value="{x * 2}"/></q:function>` +
		`<h1>{title}</h1>` +
		`<q:loop from="1" to="10" var="i"><q:if condition="{i % 2 == 0}">{double(i)} </q:if></q:loop>` +
		`<q:log level="debug" message="done {title}"/>`

	out, err := Compile(context.Background(), parse(t, src), TargetGo)
	if err != nil {
		t.Fatal(err)
	}

	got := string(out)

	for _, want := range []string{
		header,
		"package components",
		"type Card struct{}",
		"func (Card) Render(ctx context.Context, rt *runtime.Runtime, sc *scope.Context) (string, error) {",
		`h := rt.Host(ctx, "card", sc)`,
		`h.Bind([]runtime.Param{{Name: "title", Default: "Cards", HasDefault: true}})`,
		`h.Define("double", []runtime.Param{{Name: "x", Type: "number"}}, func(h *runtime.Host) value.Value {`,
		`return h.Value("{x * 2}")`,
		`for it := range h.Range("1", "10", "") {`,
		`if h.Cond("{i % 2 == 0}") {`,
		`h.Write(h.Str("double(i)"))`,
		`h.Log(h.Interp("debug"), h.Interp("done {title}"), value.Null())`,
		"return h.Output(), h.Err()",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output lacks %q:\n%s", want, got)
		}
	}
}

func TestCompile_UnrollIsStable(t *testing.T) {
	comp := parse(t, `<q:loop from="1" to="3" var="i">{i}</q:loop>`)

	a, err := Compile(context.Background(), comp, TargetGo)
	if err != nil {
		t.Fatal(err)
	}

	b, err := Compile(context.Background(), comp, TargetGo)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(string(a), string(b)); diff != "" {
		t.Errorf("output differs (-first +second):\n%s", diff)
	}

	if strings.Contains(string(a), "h.Range(") {
		t.Errorf("short loop not unrolled:\n%s", a)
	}

	raw, err := Compile(context.Background(), comp, TargetGo, WithoutOptimize())
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(string(raw), `h.Range("1", "3", "")`) {
		t.Errorf("unoptimized output lacks loop:\n%s", raw)
	}
}

func TestCompile_Targets(t *testing.T) {
	comp := parse(t, `<box w="{1 + 1}" visible>hi {who}</box>`)

	tests := []struct {
		target Target
		want   []string
	}{
		{TargetTUI, []string{
			"package main",
			`tea "github.com/charmbracelet/bubbletea"`,
			"tea.NewProgram(",
			"Card{}.Render(context.Background(), runtime.New(), scope.New())",
			`h.Write("<box w=\"2\" visible>hi ")`,
		}},
		{TargetGame, []string{
			"package main",
			"type Node struct {",
			"func (Card) Scene(ctx context.Context, rt *runtime.Runtime, sc *scope.Context) (*Node, error) {",
			`b.Open("box", map[string]string{`,
			`"visible": "",`,
			`b.Text(h.Str("who"))`,
			"b.Close()",
			"root.Draw(os.Stdout, 0)",
		}},
	}

	for _, tt := range tests {
		t.Run(string(tt.target), func(t *testing.T) {
			out, err := Compile(context.Background(), comp, tt.target)
			if err != nil {
				t.Fatal(err)
			}

			for _, want := range tt.want {
				if !strings.Contains(string(out), want) {
					t.Errorf("output lacks %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestCompile_Unsupported(t *testing.T) {
	for _, src := range []string{
		`<q:action name="save">saved</q:action>`,
		`<q:mail to="a@example.com">hi</q:mail>`,
		`<q:invoke component="card"/>`,
	} {
		_, err := Compile(context.Background(), parse(t, src), TargetGo)
		if !errors.Is(err, ErrUnsupported) {
			t.Errorf("Compile(%q) error = %v, want ErrUnsupported", src, err)
		}
	}
}

func TestParseTarget(t *testing.T) {
	for _, s := range []string{"go", "TUI", "game"} {
		if _, err := ParseTarget(s); err != nil {
			t.Errorf("ParseTarget(%q): %v", s, err)
		}
	}

	if _, err := ParseTarget("wasm"); !errors.Is(err, ErrTarget) {
		t.Errorf("ParseTarget(wasm) error = %v, want ErrTarget", err)
	}
}

func TestTypeName(t *testing.T) {
	tests := map[string]string{
		"card":       "Card",
		"user-list":  "UserList",
		"my_comp.v2": "MyCompV2",
		"":           "Component",
	}

	for in, want := range tests {
		if got := TypeName(in); got != want {
			t.Errorf("TypeName(%q) = %q, want %q", in, got, want)
		}
	}
}
