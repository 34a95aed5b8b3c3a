package repl

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"

	"github.com/ardnew/quill/binding"
)

// isWordBoundary reports whether r ends a completion word.
func isWordBoundary(r rune) bool {
	switch r {
	case '.', ' ', '\t', '{', '}', '"', '\'',
		'(', ')', '[', ']',
		'+', '-', '*', '/', '%',
		'<', '>', '=', '!',
		'&', '|', ',', '?', ':', ';':
		return true
	}

	return false
}

// wordBounds returns the word under cursor and its byte offsets in input.
func wordBounds(input string, cursor int) (word string, start, end int) {
	cursor = min(cursor, len(input))

	for start = cursor; start > 0; {
		r, size := utf8.DecodeLastRuneInString(input[:start])
		if isWordBoundary(r) {
			break
		}

		start -= size
	}

	for end = cursor; end < len(input); {
		r, size := utf8.DecodeRuneInString(input[end:])
		if isWordBoundary(r) {
			break
		}

		end += size
	}

	return input[start:end], start, end
}

// parentPath returns the member-access chain before the word starting at
// wordStart: "user.address" for "x + user.address.ci".
func parentPath(input string, wordStart int) string {
	prefix := input[:wordStart]
	if !strings.HasSuffix(prefix, ".") {
		return ""
	}

	prefix = strings.TrimRight(prefix, ".")

	pos := len(prefix)
	for pos > 0 {
		r, size := utf8.DecodeLastRuneInString(prefix[:pos])
		if r != '.' && isWordBoundary(r) {
			break
		}

		pos -= size
	}

	return strings.TrimSpace(prefix[pos:])
}

// candidates returns the completions available after parent: variables,
// functions and builtins at top level, otherwise the keys of the mapping
// parent names.
func (s *Session) candidates(parent string) []string {
	if parent == "" {
		names := s.sc.Names()
		for name := range s.functions() {
			names = append(names, name)
		}

		names = append(names, binding.Builtins()...)
		slices.Sort(names)

		return slices.Compact(names)
	}

	segments := strings.Split(parent, ".")

	v, ok := s.sc.Lookup(segments[0])
	if !ok {
		return nil
	}

	for _, seg := range segments[1:] {
		if v, ok = v.Field(seg); !ok {
			return nil
		}
	}

	return v.Keys()
}

// Complete returns the ranked completions of the word at cursor in input
// together with the word's byte offsets. Commands are completed after a
// leading ':'. An empty word only completes members after a '.'.
func (s *Session) Complete(input string, cursor int) (fuzzy.Matches, int, int) {
	word, start, end := wordBounds(input, cursor)

	var list []string

	if strings.HasPrefix(input, ":") && start == 1 {
		list = commands
	} else {
		parent := parentPath(input, start)
		list = s.candidates(parent)

		if word == "" {
			if parent == "" {
				return nil, start, end
			}

			all := make(fuzzy.Matches, len(list))
			for i, c := range list {
				all[i] = fuzzy.Match{Str: c, Index: i}
			}

			return all, start, end
		}
	}

	if word == "" || len(list) == 0 {
		return nil, start, end
	}

	return fuzzy.Find(word, list), start, end
}

// renderCandidateBar renders matches on one line no wider than width.
func renderCandidateBar(matches fuzzy.Matches, selected, width int) string {
	if len(matches) == 0 || width <= 0 {
		return ""
	}

	const sep = "  "

	ellipsis := hintStyle.Render("...")

	var (
		b    strings.Builder
		used int
	)

	for i, match := range matches {
		rendered := renderCandidate(match, i == selected)

		w := lipgloss.Width(rendered)
		if i > 0 {
			w += len(sep)
		}

		if i > 0 && used+w+lipgloss.Width(ellipsis) > width {
			b.WriteString(sep + ellipsis)

			break
		}

		if i > 0 {
			b.WriteString(sep)
		}

		b.WriteString(rendered)

		used += w
	}

	return b.String()
}

func renderCandidate(match fuzzy.Match, selected bool) string {
	base, bold := suggestionStyle, suggestionStyle.Bold(true)
	if selected {
		base, bold = selectedStyle, selectedStyle.Bold(true)
	}

	var b strings.Builder

	for i, r := range match.Str {
		if slices.Contains(match.MatchedIndexes, i) {
			b.WriteString(bold.Render(string(r)))
		} else {
			b.WriteString(base.Render(string(r)))
		}
	}

	return b.String()
}
