package runtime

import (
	"log/slog"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/ardnew/quill/lang"
	"github.com/ardnew/quill/value"
)

// Coerce converts v to the named type. The empty type and "any" accept
// every value. Strings are parsed when the target is a number, boolean,
// array or object; array and object text may be written as JSON or YAML
// flow collections.
func Coerce(v value.Value, typ string) (value.Value, error) {
	fail := func() (value.Value, error) {
		return value.Null(), ErrType.With(
			slog.String("want", typ),
			slog.String("have", v.Kind().String()),
			slog.String("value", v.String()))
	}

	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "", "any":
		return v, nil

	case "string":
		if v.Kind() == value.KindString {
			return v, nil
		}

		return value.String(v.String()), nil

	case "number", "numeric", "float", "decimal":
		if f, ok := numberOf(v); ok {
			return value.Number(f), nil
		}

		return fail()

	case "integer", "int":
		if f, ok := numberOf(v); ok && value.Number(f).IsInteger() {
			return value.Number(f), nil
		}

		return fail()

	case "boolean", "bool":
		switch v.Kind() {
		case value.KindBool:
			return v, nil
		case value.KindNumber:
			return value.Bool(v.Truthy()), nil
		case value.KindString:
			switch strings.ToLower(strings.TrimSpace(v.Str())) {
			case "true", "yes", "on", "1":
				return value.Bool(true), nil
			case "false", "no", "off", "0", "":
				return value.Bool(false), nil
			}
		}

		return fail()

	case "array", "list":
		switch v.Kind() {
		case value.KindArray:
			return v, nil
		case value.KindNull:
			return value.Array(), nil
		case value.KindString:
			if p, ok := parseCollection(v.Str()); ok && p.Kind() == value.KindArray {
				return p, nil
			}
		}

		return fail()

	case "object", "struct", "mapping", "map":
		switch v.Kind() {
		case value.KindMapping:
			return v, nil
		case value.KindNull:
			return value.Mapping(nil), nil
		case value.KindString:
			if p, ok := parseCollection(v.Str()); ok && p.Kind() == value.KindMapping {
				return p, nil
			}
		}

		return fail()

	default:
		return value.Null(), ErrType.With(slog.String("unknown", typ))
	}
}

func numberOf(v value.Value) (float64, bool) {
	switch v.Kind() {
	case value.KindNumber:
		return v.Float(), true
	case value.KindString:
		return value.ParseNumber(v.Str())
	default:
		return 0, false
	}
}

func isListLiteral(s string) bool {
	s = strings.TrimSpace(s)

	return len(s) >= 2 && s[0] == '[' && s[len(s)-1] == ']' && !lang.HasBinding(s)
}

// parseCollection decodes a JSON or YAML flow collection.
func parseCollection(s string) (value.Value, bool) {
	s = strings.TrimSpace(s)
	if s == "" || (s[0] != '[' && s[0] != '{') {
		return value.Null(), false
	}

	var out any
	if err := yaml.Unmarshal([]byte(s), &out); err != nil {
		return value.Null(), false
	}

	return value.FromNative(out), true
}
