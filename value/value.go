// Package value defines the dynamically-typed values manipulated by quill
// components.
//
// A [Value] is a closed tagged union over six kinds: null, boolean, number,
// string, array and mapping. Code that needs to branch on the kind of a value
// switches on [Value.Kind] instead of using reflection:
//
//	switch v.Kind() {
//	case value.KindNumber:
//		n := v.Float()
//	case value.KindArray:
//		for _, item := range v.Items() { ... }
//	}
//
// Values are immutable from the point of view of their holders. Arrays and
// mappings share their backing storage between copies, so any operation that
// changes an element must first [Value.Clone] the container.
package value

import (
	"math"
	"strconv"
	"strings"
)

// Kind discriminates the variants of [Value].
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindMapping
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"

	case KindBool:
		return "bool"

	case KindNumber:
		return "number"

	case KindString:
		return "string"

	case KindArray:
		return "array"

	case KindMapping:
		return "mapping"

	default:
		return "unknown"
	}
}

// Value is a dynamically-typed quill value. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	a    []Value
	m    map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a numeric value.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// Int returns a numeric value holding an integer.
func Int(i int64) Value { return Value{kind: KindNumber, n: float64(i)} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array returns an array value holding items. The slice is not copied.
func Array(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}

	return Value{kind: KindArray, a: items}
}

// Mapping returns a mapping value holding m. The map is not copied.
func Mapping(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}

	return Value{kind: KindMapping, m: m}
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Bool returns the boolean held by v, or false for other kinds.
func (v Value) Bool() bool { return v.kind == KindBool && v.b }

// Float returns the number held by v, or 0 for other kinds.
func (v Value) Float() float64 {
	if v.kind != KindNumber {
		return 0
	}

	return v.n
}

// Int returns the number held by v truncated toward zero.
func (v Value) Int() int64 {
	if v.kind != KindNumber || math.IsNaN(v.n) {
		return 0
	}

	return int64(v.n)
}

// IsInteger reports whether v is a number without a fractional part.
func (v Value) IsInteger() bool {
	return v.kind == KindNumber &&
		!math.IsInf(v.n, 0) && v.n == math.Trunc(v.n)
}

// Str returns the raw string held by v, or "" for other kinds.
// Use [Value.String] for the display form of any kind.
func (v Value) Str() string {
	if v.kind != KindString {
		return ""
	}

	return v.s
}

// Items returns the elements of an array value, or nil for other kinds.
// The returned slice must not be modified.
func (v Value) Items() []Value {
	if v.kind != KindArray {
		return nil
	}

	return v.a
}

// Map returns the entries of a mapping value, or nil for other kinds.
// The returned map must not be modified.
func (v Value) Map() map[string]Value {
	if v.kind != KindMapping {
		return nil
	}

	return v.m
}

// Len returns the number of elements of an array or mapping, the byte length
// of a string, and 0 otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindString:
		return len(v.s)

	case KindArray:
		return len(v.a)

	case KindMapping:
		return len(v.m)

	default:
		return 0
	}
}

// Truthy reduces v to a boolean. Booleans pass through, numbers are true iff
// non-zero, strings, arrays and mappings are true iff non-empty, and null is
// false.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindBool:
		return v.b

	case KindNumber:
		return v.n != 0 && !math.IsNaN(v.n)

	case KindString, KindArray, KindMapping:
		return v.Len() > 0

	default:
		return false
	}
}

// Clone returns a shallow copy of v. Arrays and mappings get fresh backing
// storage; their elements are shared.
func (v Value) Clone() Value {
	switch v.kind {
	case KindArray:
		a := make([]Value, len(v.a))
		copy(a, v.a)

		return Value{kind: KindArray, a: a}

	case KindMapping:
		m := make(map[string]Value, len(v.m))
		for k, e := range v.m {
			m[k] = e
		}

		return Value{kind: KindMapping, m: m}

	default:
		return v
	}
}

// Field returns the entry name of a mapping value.
func (v Value) Field(name string) (Value, bool) {
	if v.kind != KindMapping {
		return Value{}, false
	}

	e, ok := v.m[name]

	return e, ok
}

// Index returns element i of an array value. Negative indices count from the
// end of the array.
func (v Value) Index(i int) (Value, bool) {
	if v.kind != KindArray {
		return Value{}, false
	}

	if i < 0 {
		i += len(v.a)
	}

	if i < 0 || i >= len(v.a) {
		return Value{}, false
	}

	return v.a[i], true
}

// String returns the display form of v as used when a value is interpolated
// into markup. Null renders as the empty string, integral numbers render
// without a decimal point, and arrays and mappings render as JSON.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return ""

	case KindBool:
		return strconv.FormatBool(v.b)

	case KindNumber:
		return FormatNumber(v.n)

	case KindString:
		return v.s

	case KindArray, KindMapping:
		return encodeJSON(v)

	default:
		return ""
	}
}

// GoString implements fmt.GoStringer for test diagnostics.
func (v Value) GoString() string {
	var sb strings.Builder

	sb.WriteString(v.kind.String())
	sb.WriteByte('(')

	if v.kind == KindString {
		sb.WriteString(strconv.Quote(v.s))
	} else {
		sb.WriteString(v.String())
	}

	sb.WriteByte(')')

	return sb.String()
}

// FormatNumber formats n the way quill displays numbers: integers without a
// fractional part, everything else in the shortest exact decimal form.
func FormatNumber(n float64) string {
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return strconv.FormatInt(int64(n), 10)
	}

	return strconv.FormatFloat(n, 'f', -1, 64)
}
