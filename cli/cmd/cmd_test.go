package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/goccy/go-yaml"
	"github.com/google/go-cmp/cmp"
)

// testContext returns a context whose kong context writes to a buffer.
func testContext(t *testing.T, grammar any, args ...string) (context.Context, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer

	parser, err := kong.New(grammar,
		kong.Writers(&buf, &buf),
		kong.ExplicitGroups([]kong.Group{{Key: "log", Title: "Logging"}}),
		kong.Vars{ConfigIdentifier: filepath.Join(t.TempDir(), "config.yaml")},
	)
	if err != nil {
		t.Fatal(err)
	}

	ktx, err := parser.Parse(args)
	if err != nil {
		t.Fatal(err)
	}

	return WithContext(context.Background(), ktx), &buf
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()

	for name, src := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}

		if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	return dir
}

func TestCollect(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.q":         "a",
		"sub/b.quill": "b",
		"notes.txt":   "skip",
	})

	if err := os.Symlink(filepath.Join(dir, "a.q"), filepath.Join(dir, "link.q")); err != nil {
		t.Skip("symlinks unsupported:", err)
	}

	got, err := collect([]string{dir, filepath.Join(dir, "a.q")})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{filepath.Join(dir, "a.q"), filepath.Join(dir, "sub", "b.quill")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("collect (-want +got):\n%s", diff)
	}

	if _, err := collect([]string{filepath.Join(dir, "sub", "nope.q")}); !errors.Is(err, ErrSource) {
		t.Errorf("missing file error = %v, want ErrSource", err)
	}

	empty := t.TempDir()
	if _, err := collect([]string{empty}); !errors.Is(err, ErrSource) {
		t.Errorf("empty directory error = %v, want ErrSource", err)
	}
}

func TestRun(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"hello.q": `<q:param name="who" default="world"/>Hello {who}!` +
			`<q:return value="{count * 2}"/>`,
		"vars.yaml": "who: Ada\ncount: 1\n",
	})

	ctx, out := testContext(t, &struct{}{})

	r := &Run{
		File:  filepath.Join(dir, "hello.q"),
		Vars:  filepath.Join(dir, "vars.yaml"),
		Var:   map[string]string{"count": "21"},
		Value: true,
	}

	if err := r.Run(ctx); err != nil {
		t.Fatal(err)
	}

	got := out.String()

	head, tail, ok := strings.Cut(got, "\n---\n")
	if !ok {
		t.Fatalf("output lacks the value document:\n%s", got)
	}

	if head != "Hello Ada!" {
		t.Errorf("output = %q, want %q", head, "Hello Ada!")
	}

	var v float64
	if err := yaml.Unmarshal([]byte(tail), &v); err != nil || v != 42 {
		t.Errorf("value document = %q, want 42", tail)
	}
}

func TestRun_Stub(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"svc.q": `<q:invoke url="https://example.com/api" method="POST" result="r"/>{r.success}`,
	})

	ctx, out := testContext(t, &struct{}{})

	if err := (&Run{File: filepath.Join(dir, "svc.q"), Stub: true}).Run(ctx); err != nil {
		t.Fatal(err)
	}

	if out.String() != "true" {
		t.Errorf("output = %q, want %q", out.String(), "true")
	}
}

func TestRun_BadVariable(t *testing.T) {
	r := &Run{Var: map[string]string{" ": "x"}}
	if _, err := r.variables(); !errors.Is(err, ErrVariable) {
		t.Errorf("variables() error = %v, want ErrVariable", err)
	}
}

func TestCompile(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"card.q": `<q:param name="title" default="Card"/><h1>{title}</h1>`,
		"list.q": `<ul><q:loop from="1" to="3" var="i"><li>{i}</li></q:loop></ul>`,
	})

	tests := []struct {
		target string
		files  []string
	}{
		{"go", []string{"card.go", "list.go"}},
		{"tui", []string{"card/main.go", "list/main.go"}},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			out := t.TempDir()
			ctx, stdout := testContext(t, &struct{}{})

			c := &Compile{Paths: []string{dir}, Target: tt.target, Out: out, Package: "views"}
			if err := c.Run(ctx); err != nil {
				t.Fatal(err)
			}

			for _, name := range tt.files {
				path := filepath.Join(out, name)

				b, err := os.ReadFile(path)
				if err != nil {
					t.Fatal(err)
				}

				pkg := "package views"
				if tt.target != "go" {
					pkg = "package main"
				}

				if !bytes.Contains(b, []byte(pkg)) {
					t.Errorf("%s lacks %q", name, pkg)
				}

				if !strings.Contains(stdout.String(), path) {
					t.Errorf("written path %s not reported:\n%s", path, stdout)
				}
			}
		})
	}
}

func TestCompile_Stdout(t *testing.T) {
	dir := writeFiles(t, map[string]string{"card.q": `<b>hi</b>`})
	ctx, out := testContext(t, &struct{}{})

	c := &Compile{Paths: []string{filepath.Join(dir, "card.q")}, Target: "go", Package: "components"}
	if err := c.Run(ctx); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(out.String(), "type Card struct{}") {
		t.Errorf("stdout lacks the component type:\n%s", out)
	}

	c.Paths = []string{dir, filepath.Join(writeFiles(t, map[string]string{"x.q": "x"}), "x.q")}
	if err := c.Run(ctx); !errors.Is(err, ErrWriteOutput) {
		t.Errorf("multiple files without --out error = %v, want ErrWriteOutput", err)
	}
}

func TestCheck(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"good.q": `<q:set name="n" value="1"/><p>{n}</p>`,
		"bad.q":  `<q:loop var="i"><p>{i}</p>`,
	})

	ctx, out := testContext(t, &struct{}{})

	err := (&Check{Paths: []string{filepath.Join(dir, "good.q")}}).Run(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(out.String(), "good.q: ok (") {
		t.Errorf("output = %q", out)
	}

	out.Reset()

	err = (&Check{Paths: []string{dir}, Quiet: true}).Run(ctx)
	if !errors.Is(err, ErrCheck) {
		t.Fatalf("error = %v, want ErrCheck", err)
	}

	if strings.Contains(out.String(), "good.q") || !strings.Contains(out.String(), "bad.q: ") {
		t.Errorf("quiet output = %q", out)
	}
}

func TestSettings(t *testing.T) {
	var grammar struct {
		Log struct {
			Level  string `default:"info"`
			Pretty bool   `default:"true"`
		} `embed:"" group:"log" prefix:"log-"`
		Name string `default:"quill"`
	}

	ctx, _ := testContext(t, &grammar, "--log-level=debug")

	want := yaml.MapSlice{
		{Key: "name", Value: "quill"},
		{Key: "log", Value: yaml.MapSlice{
			{Key: "level", Value: "debug"},
			{Key: "pretty", Value: true},
		}},
	}

	if diff := cmp.Diff(want, settings(kongContextFrom(ctx))); diff != "" {
		t.Errorf("settings (-want +got):\n%s", diff)
	}
}

func TestInit(t *testing.T) {
	var grammar struct {
		Name string `default:"quill"`
	}

	ctx, _ := testContext(t, &grammar)
	path := kongContextFrom(ctx).Model.Vars()[ConfigIdentifier]

	if err := (&Init{}).Run(ctx); err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if string(b) != "name: quill\n" {
		t.Errorf("config = %q", b)
	}

	if err := (&Init{}).Run(ctx); !errors.Is(err, ErrFileExists) {
		t.Errorf("second init error = %v, want ErrFileExists", err)
	}

	if err := (&Init{Force: true}).Run(ctx); err != nil {
		t.Errorf("forced init: %v", err)
	}
}
