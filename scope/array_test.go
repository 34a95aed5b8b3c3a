package scope

import (
	"errors"
	"testing"

	"github.com/ardnew/quill/value"
)

func ints(n ...int64) value.Value {
	items := make([]value.Value, len(n))
	for i, x := range n {
		items[i] = value.Int(x)
	}

	return value.Array(items...)
}

func TestApplyArray(t *testing.T) {
	tests := []struct {
		op   Operation
		cur  value.Value
		arg  value.Value
		want value.Value
	}{
		{OpAppend, ints(1, 2), value.Int(3), ints(1, 2, 3)},
		{OpAppend, value.Null(), value.Int(1), ints(1)},
		{OpPrepend, ints(1, 2), value.Int(0), ints(0, 1, 2)},
		{OpRemove, ints(1, 2, 1), value.Int(1), ints(2, 1)},
		{OpRemove, ints(1, 2), value.Int(9), ints(1, 2)},
		{OpRemoveAt, ints(1, 2, 3), value.Int(1), ints(1, 3)},
		{OpRemoveAt, ints(1, 2, 3), value.Int(-1), ints(1, 2)},
		{OpRemoveAt, ints(1, 2, 3), value.String("0"), ints(2, 3)},
		{OpClear, ints(1, 2), value.Null(), ints()},
		{OpSort, ints(3, 1, 2), value.Null(), ints(1, 2, 3)},
		{
			OpSort,
			value.Array(value.String("b"), value.Int(2), value.String("a"), value.Int(1)),
			value.Null(),
			value.Array(value.Int(1), value.Int(2), value.String("a"), value.String("b")),
		},
		{OpReverse, ints(1, 2, 3), value.Null(), ints(3, 2, 1)},
		{OpUnique, ints(3, 1, 3, 2, 1), value.Null(), ints(3, 1, 2)},
	}

	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			got, err := ApplyArray(tt.op, tt.cur, tt.arg)
			if err != nil {
				t.Fatal(err)
			}

			if !got.Equal(tt.want) {
				t.Errorf("%s(%#v, %#v) = %#v, want %#v", tt.op, tt.cur, tt.arg, got, tt.want)
			}
		})
	}
}

func TestApplyArray_Errors(t *testing.T) {
	tests := []struct {
		op  Operation
		cur value.Value
		arg value.Value
	}{
		{OpAppend, value.String("text"), value.Int(1)},
		{OpRemoveAt, ints(1), value.Int(5)},
		{OpRemoveAt, ints(1), value.Number(0.5)},
		{OpRemoveAt, ints(), value.Int(0)},
		{Operation("shuffle"), ints(1), value.Null()},
	}

	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			if _, err := ApplyArray(tt.op, tt.cur, tt.arg); !errors.Is(err, ErrOperation) {
				t.Errorf("error = %v, want ErrOperation", err)
			}
		})
	}
}

func TestApply_CopiesBeforeWrite(t *testing.T) {
	c := New()

	if err := c.Set("items", ints(1, 2), ""); err != nil {
		t.Fatal(err)
	}

	held, _ := c.Get("items")

	got, err := c.Apply("items", OpAppend, value.Int(3), "")
	if err != nil {
		t.Fatal(err)
	}

	if !got.Equal(ints(1, 2, 3)) {
		t.Errorf("append result = %#v", got)
	}

	if !held.Equal(ints(1, 2)) {
		t.Errorf("held reference changed to %#v", held)
	}

	if _, err := c.Apply("items", OpReverse, value.Null(), ""); err != nil {
		t.Fatal(err)
	}

	if cur, _ := c.Get("items"); !cur.Equal(ints(3, 2, 1)) {
		t.Errorf("items = %#v, want [3 2 1]", cur)
	}

	if !held.Equal(ints(1, 2)) {
		t.Errorf("held reference changed to %#v", held)
	}
}

func TestApply_TargetsResolvedStore(t *testing.T) {
	sh := NewShared()
	c := New(WithShared(sh))

	if err := c.Set("cart", ints(1), Session); err != nil {
		t.Fatal(err)
	}

	if _, err := c.Apply("cart", OpAppend, value.Int(2), ""); err != nil {
		t.Fatal(err)
	}

	if c.Has("component.cart") {
		t.Error("append created a component variable instead of updating the session")
	}

	if got, _ := c.Get("session.cart"); !got.Equal(ints(1, 2)) {
		t.Errorf("session.cart = %#v", got)
	}

	if _, err := c.Apply("fresh", OpAppend, value.Int(1), ""); err != nil {
		t.Fatal(err)
	}

	if got, _ := c.Get("component.fresh"); !got.Equal(ints(1)) {
		t.Errorf("component.fresh = %#v", got)
	}
}

func TestParseOperation(t *testing.T) {
	for _, op := range Operations {
		if got, ok := ParseOperation(string(op)); !ok || got != op {
			t.Errorf("ParseOperation(%q) = %q, %v", op, got, ok)
		}
	}

	if _, ok := ParseOperation("pop"); ok {
		t.Error("ParseOperation accepted pop")
	}
}
