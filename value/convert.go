package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// FromNative converts a Go value produced by a decoder, an expression program
// or a caller into a [Value]. Unsupported types fall back to their fmt
// representation as a string.
func FromNative(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()

	case Value:
		return t

	case *Value:
		if t == nil {
			return Null()
		}

		return *t

	case bool:
		return Bool(t)

	case string:
		return String(t)

	case []byte:
		return String(string(t))

	case int:
		return Int(int64(t))

	case int8:
		return Int(int64(t))

	case int16:
		return Int(int64(t))

	case int32:
		return Int(int64(t))

	case int64:
		return Int(t)

	case uint:
		return Number(float64(t))

	case uint8:
		return Int(int64(t))

	case uint16:
		return Int(int64(t))

	case uint32:
		return Int(int64(t))

	case uint64:
		return Number(float64(t))

	case float32:
		return Number(float64(t))

	case float64:
		return Number(t)

	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return String(t.String())
		}

		return Number(f)

	case []Value:
		return Array(t...)

	case []any:
		items := make([]Value, len(t))
		for i, e := range t {
			items[i] = FromNative(e)
		}

		return Array(items...)

	case []string:
		items := make([]Value, len(t))
		for i, e := range t {
			items[i] = String(e)
		}

		return Array(items...)

	case map[string]Value:
		return Mapping(t)

	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			m[k] = FromNative(e)
		}

		return Mapping(m)

	case map[string]string:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			m[k] = String(e)
		}

		return Mapping(m)

	case fmt.Stringer:
		return String(t.String())
	}

	return fromReflect(reflect.ValueOf(x))
}

// fromReflect handles the container types not covered by the type switch in
// FromNative, such as map[any]any produced by YAML decoders.
func fromReflect(rv reflect.Value) Value {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]Value, rv.Len())
		for i := range items {
			items[i] = FromNative(rv.Index(i).Interface())
		}

		return Array(items...)

	case reflect.Map:
		m := make(map[string]Value, rv.Len())

		iter := rv.MapRange()
		for iter.Next() {
			m[fmt.Sprint(iter.Key().Interface())] = FromNative(iter.Value().Interface())
		}

		return Mapping(m)

	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null()
		}

		return FromNative(rv.Elem().Interface())

	case reflect.Invalid:
		return Null()

	default:
		return String(fmt.Sprint(rv.Interface()))
	}
}

// Native converts v into plain Go data: nil, bool, int or float64, string,
// []any and map[string]any.
func (v Value) Native() any {
	switch v.kind {
	case KindBool:
		return v.b

	case KindNumber:
		if v.IsInteger() && math.Abs(v.n) <= math.MaxInt32 {
			return int(v.n)
		}

		return v.n

	case KindString:
		return v.s

	case KindArray:
		out := make([]any, len(v.a))
		for i, e := range v.a {
			out[i] = e.Native()
		}

		return out

	case KindMapping:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = e.Native()
		}

		return out

	default:
		return nil
	}
}

// Infer converts literal attribute text into the value it most plausibly
// denotes: "true"/"false" become booleans, "null" becomes null, numeric text
// becomes a number, and anything else stays a string.
func Infer(s string) Value {
	switch strings.TrimSpace(s) {
	case "true":
		return Bool(true)

	case "false":
		return Bool(false)

	case "null":
		return Null()
	}

	if n, ok := ParseNumber(s); ok {
		return Number(n)
	}

	return String(s)
}

// ParseNumber parses decimal numeric text. Leading and trailing spaces are
// ignored; hexadecimal, "Inf" and "NaN" forms are rejected.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' && r != '-' && r != '+' &&
			r != 'e' && r != 'E' {
			return 0, false
		}
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}

	return f, true
}

// Equal reports whether v and o are deeply equal. Numbers compare by value and
// never equal strings.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}

	switch v.kind {
	case KindNull:
		return true

	case KindBool:
		return v.b == o.b

	case KindNumber:
		return v.n == o.n

	case KindString:
		return v.s == o.s

	case KindArray:
		if len(v.a) != len(o.a) {
			return false
		}

		for i := range v.a {
			if !v.a[i].Equal(o.a[i]) {
				return false
			}
		}

		return true

	case KindMapping:
		if len(v.m) != len(o.m) {
			return false
		}

		for k, e := range v.m {
			oe, ok := o.m[k]
			if !ok || !e.Equal(oe) {
				return false
			}
		}

		return true

	default:
		return false
	}
}

// Compare orders v relative to o, returning -1, 0 or +1. Numbers compare
// numerically, strings lexically and booleans false-before-true. Values of
// different kinds order by kind, which keeps sorts of mixed arrays
// deterministic. The second result is false when the kinds differ.
func (v Value) Compare(o Value) (int, bool) {
	if v.kind != o.kind {
		return cmpInt(int(v.kind), int(o.kind)), false
	}

	switch v.kind {
	case KindNumber:
		switch {
		case v.n < o.n:
			return -1, true
		case v.n > o.n:
			return 1, true
		default:
			return 0, true
		}

	case KindString:
		return strings.Compare(v.s, o.s), true

	case KindBool:
		switch {
		case v.b == o.b:
			return 0, true
		case !v.b:
			return -1, true
		default:
			return 1, true
		}

	case KindArray, KindMapping:
		return cmpInt(v.Len(), o.Len()), true

	default:
		return 0, true
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Keys returns the keys of a mapping value in sorted order.
func (v Value) Keys() []string {
	if v.kind != KindMapping {
		return nil
	}

	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// encodeJSON renders containers compactly with sorted mapping keys.
func encodeJSON(v Value) string {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(v.Native()); err != nil {
		return fmt.Sprint(v.Native())
	}

	return strings.TrimSuffix(buf.String(), "\n")
}
