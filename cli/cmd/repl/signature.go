package repl

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// functionCall is the innermost call whose argument list holds the cursor.
type functionCall struct {
	name     string
	argIndex int
	inCall   bool
}

// detectFunctionCall finds the call enclosing cursor in input.
func detectFunctionCall(input string, cursor int) functionCall {
	cursor = min(cursor, len(input))

	open, depth := -1, 0

	for i := cursor - 1; i >= 0 && open < 0; i-- {
		switch input[i] {
		case ')':
			depth++
		case '(':
			if depth == 0 {
				open = i
			}

			depth--
		}
	}

	if open < 0 {
		return functionCall{}
	}

	start := open
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(input[:start])
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}

		start -= size
	}

	name := input[start:open]
	if name == "" {
		return functionCall{}
	}

	arg := 0
	depth = 0

	for i := open + 1; i < cursor; i++ {
		switch input[i] {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ',':
			if depth == 0 {
				arg++
			}
		}
	}

	return functionCall{name: name, argIndex: arg, inCall: true}
}

// renderSignatureHint renders sig with parameter current highlighted.
func renderSignatureHint(sig string, params []string, current int) string {
	name, _, _ := strings.Cut(sig, "(")
	if len(params) == 0 {
		return signatureNameStyle.Render(name) + signatureStyle.Render(sig[len(name):])
	}

	var b strings.Builder

	b.WriteString(signatureNameStyle.Render(name))
	b.WriteString(signatureStyle.Render("("))

	for i, p := range params {
		if i > 0 {
			b.WriteString(signatureStyle.Render(", "))
		}

		if i == current {
			b.WriteString(currentParamStyle.Render(p))
		} else {
			b.WriteString(signatureStyle.Render(p))
		}
	}

	b.WriteString(signatureStyle.Render(")"))

	if _, ret, ok := strings.Cut(sig, ") "); ok {
		b.WriteString(signatureStyle.Render(" " + ret))
	}

	return b.String()
}
