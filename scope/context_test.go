package scope

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ardnew/quill/binding"
	"github.com/ardnew/quill/lang"
	"github.com/ardnew/quill/value"
)

func TestContext_Precedence(t *testing.T) {
	sh := NewShared()
	c := New(WithShared(sh))

	must(t, c.Set("x", value.Int(1), Component))
	must(t, c.Set("x", value.Int(2), Session))
	must(t, c.Set("x", value.Int(3), Application))
	must(t, c.Set("y", value.Int(4), Request))

	tests := []struct {
		name string
		want value.Value
	}{
		{"x", value.Int(1)},
		{"component.x", value.Int(1)},
		{"session.x", value.Int(2)},
		{"application.x", value.Int(3)},
		{"y", value.Int(4)},
		{"request.y", value.Int(4)},
	}

	for _, tt := range tests {
		got, err := c.Get(tt.name)
		if err != nil {
			t.Fatalf("Get(%q): %v", tt.name, err)
		}

		if !got.Equal(tt.want) {
			t.Errorf("Get(%q) = %#v, want %#v", tt.name, got, tt.want)
		}
	}

	if !c.Delete("x") {
		t.Fatal("Delete(x) found nothing")
	}

	if got, _ := c.Get("x"); !got.Equal(value.Int(2)) {
		t.Errorf("after deleting component.x, x = %#v, want session value 2", got)
	}
}

func TestContext_NotFound(t *testing.T) {
	c := New()

	_, err := c.Get("session.user")

	var vnf *lang.VariableNotFoundError
	if !errors.As(err, &vnf) || vnf.Scope != Session || vnf.Name != "user" {
		t.Fatalf("error = %v, want session.user not found", err)
	}

	if !errors.Is(err, lang.ErrVariableNotFound) {
		t.Error("error does not match ErrVariableNotFound")
	}

	if err := c.Update("missing", value.Int(1)); !errors.Is(err, lang.ErrVariableNotFound) {
		t.Errorf("Update(missing) error = %v", err)
	}

	if err := c.Set("x", value.Int(1), "global"); !errors.Is(err, ErrScope) {
		t.Errorf("Set in unknown scope error = %v", err)
	}
}

func TestContext_SetQualifiedAndUpdate(t *testing.T) {
	c := New()

	must(t, c.Set("session.user", value.String("ada"), ""))

	if v, ok := c.Lookup("user"); !ok || v.Str() != "ada" {
		t.Fatalf("user = %#v, %v", v, ok)
	}

	must(t, c.Update("user", value.String("grace")))

	snap, err := c.Snapshot(Session)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(map[string]string{"user": "grace"}, display(snap)); diff != "" {
		t.Errorf("session snapshot mismatch (-want +got):\n%s", diff)
	}

	if c.Has("component.user") {
		t.Error("Update created a component variable")
	}
}

func TestContext_SharedAcrossContexts(t *testing.T) {
	sh := NewShared()
	a := New(WithShared(sh))
	b := New(WithShared(sh))

	must(t, a.Set("hits", value.Int(0), Application))
	must(t, a.Set("local", value.Int(1), ""))

	if b.Has("local") {
		t.Error("component variable leaked between contexts")
	}

	var wg sync.WaitGroup

	for range 50 {
		wg.Add(2)

		for _, c := range []*Context{a, b} {
			go func() {
				defer wg.Done()

				_, err := c.ApplyWith("application.hits", "", func(cur value.Value) (value.Value, error) {
					return value.Number(cur.Float() + 1), nil
				})
				if err != nil {
					t.Error(err)
				}
			}()
		}
	}

	wg.Wait()

	if got, _ := b.Get("hits"); !got.Equal(value.Int(100)) {
		t.Errorf("hits = %#v, want 100", got)
	}
}

func TestContext_Child(t *testing.T) {
	c := New(WithRequest(map[string]value.Value{"id": value.Int(7)}))
	must(t, c.Set("x", value.Int(1), ""))

	child := c.Child()
	must(t, child.Set("x", value.Int(2), ""))
	must(t, child.Set("request.seen", value.Bool(true), ""))

	if got, _ := c.Get("x"); !got.Equal(value.Int(1)) {
		t.Errorf("parent x = %#v after child write", got)
	}

	if !c.Has("seen") || !child.Has("id") {
		t.Error("request store not shared with child")
	}

	if _, err := child.WriteString("from child"); err != nil {
		t.Fatal(err)
	}

	if c.Output() != "from child" {
		t.Errorf("parent output = %q", c.Output())
	}
}

func TestContext_Capture(t *testing.T) {
	c := New()

	_, _ = c.WriteString("a")

	got, err := c.Capture(func() error {
		_, err := c.Child().WriteString("b")

		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	_, _ = c.WriteString("c")

	if got != "b" || c.Output() != "ac" {
		t.Errorf("captured %q, output %q; want b and ac", got, c.Output())
	}
}

type echo struct{}

func (echo) CallFunction(name string, args []value.Value) (value.Value, error) {
	return value.String(fmt.Sprintf("%s/%d", name, len(args))), nil
}

func TestContext_BindingEnv(t *testing.T) {
	sh := NewShared()
	c := New(WithShared(sh), WithCaller(echo{}))

	must(t, c.Set("total", value.Int(10), ""))
	must(t, c.Set("total", value.Int(99), Session))

	r := binding.NewResolver(nil)

	got, err := r.Resolve("{total + session.total}", c)
	if err != nil {
		t.Fatal(err)
	}

	if !got.Equal(value.Int(109)) {
		t.Errorf("total + session.total = %#v, want 109", got)
	}

	s, err := r.Interpolate("{f(1, 2)}", c)
	if err != nil || s != "f/2" {
		t.Errorf("f(1, 2) = %q, %v", s, err)
	}

	if _, err := r.Resolve("{f()}", New()); !errors.Is(err, lang.ErrExpression) {
		t.Errorf("call without dispatcher error = %v", err)
	}
}

func TestContext_Names(t *testing.T) {
	c := New(WithRequest(map[string]value.Value{"b": value.Null(), "a": value.Null()}))
	must(t, c.Set("b", value.Int(1), ""))

	if diff := cmp.Diff([]string{"a", "b"}, c.Names()); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}
}

func must(t *testing.T, err error) {
	t.Helper()

	if err != nil {
		t.Fatal(err)
	}
}

func display(m map[string]value.Value) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v.String()
	}

	return out
}
