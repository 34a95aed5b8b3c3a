package lang

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sumSource = `<q:set name="total" value="0"/>` +
	`<q:loop from="1" to="5" var="i"><q:set name="total" value="{total + i}"/></q:loop>`

func mustParse(t *testing.T, src string, opts ...Option) *Component {
	t.Helper()

	comp, err := Parse(context.Background(), src, opts...)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}

	return comp
}

// significant drops whitespace-only text nodes.
func significant(nodes []Node) []Node {
	out := make([]Node, 0, len(nodes))

	for _, n := range nodes {
		if t, ok := n.(*TextNode); ok && t.Whitespace {
			continue
		}

		out = append(out, n)
	}

	return out
}

func TestParse_SetAndRangeLoop(t *testing.T) {
	comp := mustParse(t, sumSource)

	if len(comp.Body) != 2 {
		t.Fatalf("body has %d nodes, want 2", len(comp.Body))
	}

	set, ok := comp.Body[0].(*SetNode)
	if !ok || set.Name != "total" || set.Value != "0" {
		t.Fatalf("first node = %#v, want set total=0", comp.Body[0])
	}

	loop, ok := comp.Body[1].(*LoopNode)
	if !ok {
		t.Fatalf("second node = %T, want *LoopNode", comp.Body[1])
	}

	if loop.Mode != LoopRange || loop.Var != "i" || loop.From != "1" || loop.To != "5" {
		t.Errorf("loop = %+v", loop)
	}

	if len(loop.Body) != 1 || loop.Body[0].Kind() != KindSet {
		t.Errorf("loop body = %v", loop.Body)
	}
}

func TestParse_Outline(t *testing.T) {
	var sb strings.Builder

	if err := Fprint(&sb, mustParse(t, sumSource)); err != nil {
		t.Fatal(err)
	}

	want := strings.Join([]string{
		`component component @1:1`,
		`  set total = "0" @1:1`,
		`  loop range i in 1..5 @1:32`,
		`    set total = "{total + i}" @1:64`,
		``,
	}, "\n")

	if diff := cmp.Diff(want, sb.String()); diff != "" {
		t.Errorf("outline mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_IfChain(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		then     int
		elseIfs  int
		hasElse  bool
		elseBody int
	}{
		{
			name:     "sibling else",
			src:      `<q:if condition="{x > 5}"><q:set name="r" value="big"/></q:if><q:else><q:set name="r" value="small"/></q:else>`,
			then:     1,
			hasElse:  true,
			elseBody: 1,
		},
		{
			name: "siblings separated by whitespace",
			src: "<q:if condition=\"a\">A</q:if>\n  " +
				"<q:elseif condition=\"b\">B</q:elseif>\n" +
				"<q:else>C</q:else>",
			then:     1,
			elseIfs:  1,
			hasElse:  true,
			elseBody: 1,
		},
		{
			name:     "child clauses",
			src:      `<q:if condition="a"><p>A</p><q:elseif condition="b"/><q:else>C</q:else></q:if>`,
			then:     1,
			elseIfs:  1,
			hasElse:  true,
			elseBody: 1,
		},
		{
			name: "no else",
			src:  `<q:if condition="a">A</q:if>`,
			then: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comp := mustParse(t, tt.src)

			if len(comp.Body) != 1 {
				t.Fatalf("body has %d nodes, want the if chain only", len(comp.Body))
			}

			ifn, ok := comp.Body[0].(*IfNode)
			if !ok {
				t.Fatalf("node = %T, want *IfNode", comp.Body[0])
			}

			if len(ifn.Then) != tt.then {
				t.Errorf("then has %d nodes, want %d", len(ifn.Then), tt.then)
			}

			if len(ifn.ElseIfs) != tt.elseIfs {
				t.Errorf("%d elseif clauses, want %d", len(ifn.ElseIfs), tt.elseIfs)
			}

			if ifn.HasElse != tt.hasElse || len(ifn.Else) != tt.elseBody {
				t.Errorf("else = %v/%d, want %v/%d", ifn.HasElse, len(ifn.Else), tt.hasElse, tt.elseBody)
			}
		})
	}
}

func TestParse_NestedIfTakesSiblingElse(t *testing.T) {
	comp := mustParse(t, `<q:if condition="a"><q:if condition="b">B</q:if><q:else>E</q:else></q:if>`)

	outer := comp.Body[0].(*IfNode)
	if outer.HasElse {
		t.Error("else attached to the outer if")
	}

	inner, ok := outer.Then[0].(*IfNode)
	if !ok || !inner.HasElse {
		t.Errorf("inner if = %#v, want else attached", outer.Then[0])
	}
}

func TestParse_SyntaxErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
		col  int
		msg  string
	}{
		{"unclosed", `<div><p>x</p>`, 1, 1, "unclosed <div>"},
		{"mismatched", `<div></span>`, 1, 6, "does not match"},
		{"stray close", `text</div>`, 1, 5, "unexpected closing tag"},
		{"loop without var", "line\n  <q:loop from=\"1\" to=\"2\"></q:loop>", 2, 3, "requires var"},
		{"loop from with items", `<q:loop var="i" from="1" items="x"></q:loop>`, 1, 1, "unknown attribute combination"},
		{"loop half range", `<q:loop var="i" from="1"></q:loop>`, 1, 1, "requires both from and to"},
		{"loop no source", `<q:loop var="i"></q:loop>`, 1, 1, "requires from/to or items"},
		{"dangling else", `<p/><q:else>x</q:else>`, 1, 5, "without preceding"},
		{"double else", `<q:if condition="a">x</q:if><q:else/><q:else/>`, 1, 38, "after <q:else>"},
		{"else with condition", `<q:if condition="a">x</q:if><q:else condition="b"/>`, 1, 29, "takes no attributes"},
		{"set without name", `<q:set value="1"/>`, 1, 1, "requires name"},
		{"if without condition", `<q:if>x</q:if>`, 1, 1, "requires condition"},
		{"unknown attribute", `<q:set name="a" bogus="1"/>`, 1, 17, `"bogus"`},
		{"unknown scope", `<q:set name="a" value="1" scope="global"/>`, 1, 1, "unknown scope"},
		{"unterminated attribute", `<a href="x>`, 1, 9, "unterminated value"},
		{"duplicate attribute", `<a x="1" x="2"/>`, 1, 10, "duplicate attribute"},
		{"nested component", `<p><q:component/></p>`, 1, 4, "must be the root"},
		{"nested function", `<q:function name="f"><q:function name="g"/></q:function>`, 1, 22, "nested"},
		{"invoke two targets", `<q:invoke function="f" url="u"/>`, 1, 1, "exactly one"},
		{"arg outside call", `<q:arg name="a"/>`, 1, 1, "outside"},
		{"unterminated comment", `<!-- x`, 1, 1, "unterminated comment"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(context.Background(), tt.src)
			if err == nil {
				t.Fatal("expected error")
			}

			if !errors.Is(err, ErrSyntax) {
				t.Errorf("error %v does not match ErrSyntax", err)
			}

			var se *SyntaxError
			if !errors.As(err, &se) {
				t.Fatalf("error %T is not a *SyntaxError", err)
			}

			if se.Pos.Line != tt.line || se.Pos.Col != tt.col {
				t.Errorf("position = %d:%d, want %d:%d (%v)", se.Pos.Line, se.Pos.Col, tt.line, tt.col, err)
			}

			if !strings.Contains(se.Msg, tt.msg) {
				t.Errorf("message %q does not contain %q", se.Msg, tt.msg)
			}
		})
	}
}

func TestSyntaxError_Snippet(t *testing.T) {
	_, err := Parse(context.Background(), "ok\n<q:set value=\"1\"/>")

	var se *SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v", err)
	}

	want := "  2 | <q:set value=\"1\"/>\n      ^\n"
	if got := se.Snippet(); got != want {
		t.Errorf("Snippet() = %q, want %q", got, want)
	}
}

func TestParse_PassThroughMarkup(t *testing.T) {
	comp := mustParse(t, `<div class="c-{x}" hidden><br><img src="a"/>hi {name}<q:widget a="1"/></div>`)

	div, ok := comp.Body[0].(*ElementNode)
	if !ok || div.Name != "div" {
		t.Fatalf("node = %#v, want <div>", comp.Body[0])
	}

	wantAttrs := []struct {
		name, value string
		has         bool
	}{
		{"class", "c-{x}", true},
		{"hidden", "", false},
	}

	if len(div.Attrs) != len(wantAttrs) {
		t.Fatalf("attrs = %+v", div.Attrs)
	}

	for i, w := range wantAttrs {
		a := div.Attrs[i]
		if a.Name != w.name || a.Value != w.value || a.HasValue != w.has {
			t.Errorf("attr %d = %+v, want %+v", i, a, w)
		}
	}

	if len(div.Body) != 4 {
		t.Fatalf("div body has %d nodes, want 4", len(div.Body))
	}

	if br := div.Body[0].(*ElementNode); br.Name != "br" || !br.SelfClosing {
		t.Errorf("br = %+v", br)
	}

	if img := div.Body[1].(*ElementNode); img.Name != "img" || !img.SelfClosing {
		t.Errorf("img = %+v", img)
	}

	if txt := div.Body[2].(*TextNode); txt.Text != "hi {name}" || !txt.Bound {
		t.Errorf("text = %+v", txt)
	}

	if w := div.Body[3].(*ElementNode); w.Name != "q:widget" {
		t.Errorf("unknown control tag = %+v, want pass-through element", w)
	}
}

func TestParse_RawText(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"comment", `<!-- {keep} -->`, `<!-- {keep} -->`},
		{"cdata", `<![CDATA[<b>{x}</b>]]>`, `<b>{x}</b>`},
		{"doctype", `<!DOCTYPE html>`, `<!DOCTYPE html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comp := mustParse(t, tt.src)

			txt, ok := comp.Body[0].(*TextNode)
			if !ok || !txt.Raw || txt.Bound {
				t.Fatalf("node = %#v, want raw text", comp.Body[0])
			}

			if txt.Text != tt.want {
				t.Errorf("text = %q, want %q", txt.Text, tt.want)
			}
		})
	}
}

func TestParse_ScriptBodyIsRaw(t *testing.T) {
	comp := mustParse(t, `<script>if (a<b) { x() }</script><p/>`)

	script := comp.Body[0].(*ElementNode)
	if len(script.Body) != 1 {
		t.Fatalf("script body = %v", script.Body)
	}

	if txt := script.Body[0].(*TextNode); txt.Text != "if (a<b) { x() }" || !txt.Raw {
		t.Errorf("script text = %+v", txt)
	}

	if len(comp.Body) != 2 {
		t.Errorf("body has %d nodes, want 2", len(comp.Body))
	}
}

func TestParse_BindingProtectsMarkupCharacters(t *testing.T) {
	comp := mustParse(t, `<p>{a<b}</p>`)

	p := comp.Body[0].(*ElementNode)
	if txt := p.Body[0].(*TextNode); txt.Text != "{a<b}" || !txt.Bound {
		t.Errorf("text = %+v", txt)
	}
}

func TestParse_Declarations(t *testing.T) {
	src := `
<q:import component="lib/card.q"/>
<q:param name="title" required="true"/>
<q:function name="add">
  <q:param name="a" type="number"/>
  <q:param name="b" default="1"/>
  <q:return value="{a + b}"/>
</q:function>
<p>{add(1, 2)}</p>
<q:comment>ignored</q:comment>
`
	comp := mustParse(t, src)

	if len(comp.Imports) != 1 || comp.Imports[0].As != "card" {
		t.Errorf("imports = %+v", comp.Imports)
	}

	if len(comp.Params) != 1 || !comp.Params[0].Required {
		t.Errorf("params = %+v", comp.Params)
	}

	fn, ok := comp.Function("add")
	if !ok {
		t.Fatal("function add missing")
	}

	if len(fn.Params) != 2 || !fn.Params[1].HasDefault || fn.Params[1].Default != "1" {
		t.Errorf("function params = %+v", fn.Params)
	}

	if body := significant(fn.Body); len(body) != 1 || body[0].Kind() != KindReturn {
		t.Errorf("function body = %v", fn.Body)
	}

	body := significant(comp.Body)
	if len(body) != 1 || body[0].(*ElementNode).Name != "p" {
		t.Errorf("component body = %v", body)
	}
}

func TestParse_ExplicitRoot(t *testing.T) {
	comp := mustParse(t, "<q:component name=\"Card\">\n<p>x</p>\n</q:component>\n")

	if comp.Name != "Card" {
		t.Errorf("name = %q, want Card", comp.Name)
	}

	if body := significant(comp.Body); len(body) != 1 {
		t.Errorf("body = %v", body)
	}
}

func TestParse_LoopModes(t *testing.T) {
	tests := []struct {
		src  string
		want LoopMode
	}{
		{`<q:loop var="i" from="1" to="3" step="2"/>`, LoopRange},
		{`<q:loop var="x" items="fruits"/>`, LoopArray},
		{`<q:loop var="x" collection="{fruits}"/>`, LoopArray},
		{`<q:loop var="x" items="a,b" type="list"/>`, LoopList},
		{`<q:loop var="x" items="a;b" delimiter=";"/>`, LoopList},
		{`<q:loop var="x" list="a,b"/>`, LoopList},
	}

	for _, tt := range tests {
		comp := mustParse(t, tt.src)

		if got := comp.Body[0].(*LoopNode).Mode; got != tt.want {
			t.Errorf("%s: mode = %v, want %v", tt.src, got, tt.want)
		}
	}
}

func TestParse_ServiceTags(t *testing.T) {
	src := `<q:query name="users" datasource="main">
  SELECT * FROM users WHERE id = :id
  <q:queryparam name="id" value="{uid}" type="integer"/>
</q:query>
<q:invoke url="https://example.com/api" method="POST" result="resp" token="{tok}">
  <q:arg name="q" value="x"/>
</q:invoke>
<q:log level="warn" message="slow {ms}ms"/>
<q:dump var="users"/>`

	body := significant(mustParse(t, src).Body)
	if len(body) != 4 {
		t.Fatalf("body = %v", body)
	}

	q := body[0].(*QueryNode)
	if q.SQL != "SELECT * FROM users WHERE id = :id" || len(q.Params) != 1 || q.Params[0].Type != "integer" {
		t.Errorf("query = %+v", q)
	}

	inv := body[1].(*InvokeNode)
	if kind, target := inv.Target(); kind != "http" || target != "https://example.com/api" {
		t.Errorf("invoke target = %s %s", kind, target)
	}

	gotArgs := make([]string, len(inv.Args))
	for i, a := range inv.Args {
		gotArgs[i] = a.Name + "=" + a.Value
	}

	if diff := cmp.Diff([]string{"token={tok}", "q=x"}, gotArgs); diff != "" {
		t.Errorf("invoke args (-want +got):\n%s", diff)
	}

	if lg := body[2].(*LogNode); lg.Level != "warn" || lg.Message != "slow {ms}ms" {
		t.Errorf("log = %+v", lg)
	}
}

func TestWalk_SkipsChildren(t *testing.T) {
	comp := mustParse(t, sumSource)

	if got := Count(comp); got != 4 {
		t.Errorf("Count = %d, want 4", got)
	}

	var kinds []string

	Walk(comp, func(n Node) bool {
		kinds = append(kinds, n.Kind().String())

		return n.Kind() != KindLoop
	})

	if diff := cmp.Diff([]string{"component", "set", "loop"}, kinds); diff != "" {
		t.Errorf("walk order (-want +got):\n%s", diff)
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "greeting.q")

	if err := os.WriteFile(path, []byte(`<p>hello {name}</p>`), 0o600); err != nil {
		t.Fatal(err)
	}

	comp, err := ParseFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}

	if comp.Name != "greeting" || comp.Path != path {
		t.Errorf("component = %q at %q", comp.Name, comp.Path)
	}

	if comp.Body[0].Position().File != path {
		t.Errorf("position file = %q", comp.Body[0].Position().File)
	}

	_, err = ParseFile(context.Background(), filepath.Join(dir, "missing.q"))
	if !errors.Is(err, ErrNotFound) || !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing file error = %v", err)
	}
}

func TestError_IsSentinel(t *testing.T) {
	err := ErrReadInput.Wrap(os.ErrPermission)

	if !errors.Is(err, ErrReadInput) {
		t.Error("wrapped error lost its sentinel")
	}

	if !errors.Is(err, os.ErrPermission) {
		t.Error("wrapped error lost its cause")
	}

	if errors.Is(err, ErrSyntax) {
		t.Error("unrelated sentinel matched")
	}
}
