package repl

import (
	"path/filepath"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWordBounds(t *testing.T) {
	tests := []struct {
		input  string
		cursor int
		word   string
		start  int
	}{
		{"", 0, "", 0},
		{"user", 4, "user", 0},
		{"x + use", 7, "use", 4},
		{"user.na", 7, "na", 5},
		{"{upper(na", 9, "na", 7},
		{"a b", 2, "b", 2},
	}

	for _, tt := range tests {
		word, start, _ := wordBounds(tt.input, tt.cursor)
		if word != tt.word || start != tt.start {
			t.Errorf("wordBounds(%q, %d) = %q, %d; want %q, %d",
				tt.input, tt.cursor, word, start, tt.word, tt.start)
		}
	}
}

func TestParentPath(t *testing.T) {
	tests := map[string]string{
		"user.":               "user",
		"x + user.address.":   "user.address",
		"upper(user.address.": "user.address",
		"user":                "",
		"1 + ":                "",
	}

	for input, want := range tests {
		if got := parentPath(input, len(input)); got != want {
			t.Errorf("parentPath(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestSession_Complete(t *testing.T) {
	s := newSession(t)

	strs := func(input string) []string {
		matches, _, _ := s.Complete(input, len(input))

		out := make([]string, len(matches))
		for i, m := range matches {
			out[i] = m.Str
		}

		return out
	}

	if got := strs("use"); !slices.Contains(got, "user") {
		t.Errorf("Complete(use) = %v, want user", got)
	}

	if got := strs("uppe"); !slices.Contains(got, "upper") {
		t.Errorf("Complete(uppe) = %v, want builtin upper", got)
	}

	if diff := cmp.Diff([]string{"address", "name"}, strs("user.")); diff != "" {
		t.Errorf("Complete(user.) (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"city"}, strs("user.address.c")); diff != "" {
		t.Errorf("Complete(user.address.c) (-want +got):\n%s", diff)
	}

	if got := strs(":lo"); !slices.Contains(got, "load") {
		t.Errorf("Complete(:lo) = %v, want load", got)
	}

	if got := strs(""); len(got) != 0 {
		t.Errorf("Complete(\"\") = %v, want none", got)
	}
}

func TestDetectFunctionCall(t *testing.T) {
	tests := []struct {
		input string
		want  functionCall
	}{
		{"upper(", functionCall{name: "upper", inCall: true}},
		{"join(items, ", functionCall{name: "join", argIndex: 1, inCall: true}},
		{"f(g(1, 2), ", functionCall{name: "f", argIndex: 1, inCall: true}},
		{"f(g(1, ", functionCall{name: "g", argIndex: 1, inCall: true}},
		{"f(1) + 2", functionCall{}},
		{"(1 + ", functionCall{}},
	}

	for _, tt := range tests {
		got := detectFunctionCall(tt.input, len(tt.input))
		if diff := cmp.Diff(tt.want, got, cmp.AllowUnexported(functionCall{})); diff != "" {
			t.Errorf("detectFunctionCall(%q) (-want +got):\n%s", tt.input, diff)
		}
	}
}

func TestHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), baseHistory)

	h := NewHistory(path)
	for _, line := range []string{"a", "b", "b", " ", "a", "c"} {
		if err := h.Add(line); err != nil {
			t.Fatal(err)
		}
	}

	reloaded := NewHistory(path)
	if err := reloaded.Load(); err != nil {
		t.Fatal(err)
	}

	var got []string
	for i := range reloaded.Len() {
		line, _ := reloaded.Line(i)
		got = append(got, line)
	}

	if diff := cmp.Diff([]string{"b", "a", "c"}, got); diff != "" {
		t.Errorf("history (-want +got):\n%s", diff)
	}

	if _, ok := reloaded.Line(3); ok {
		t.Error("Line(3) succeeded past the end")
	}
}
