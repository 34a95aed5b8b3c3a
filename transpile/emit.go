package transpile

import (
	"fmt"
	"strings"
)

const indentWith = "\t"

// emittedLine is one line of generated source.
type emittedLine struct {
	indent int
	parts  []string
}

// emitter accumulates indented lines of generated source.
type emitter struct {
	lines  []*emittedLine
	indent int
}

func newEmitter() *emitter {
	return &emitter{lines: []*emittedLine{{}}}
}

func (e *emitter) current() *emittedLine {
	return e.lines[len(e.lines)-1]
}

// print appends part to the current line.
func (e *emitter) print(part string) {
	if part != "" {
		e.current().parts = append(e.current().parts, part)
	}
}

// println appends part and ends the line.
func (e *emitter) println(part string) {
	e.print(part)
	e.lines = append(e.lines, &emittedLine{indent: e.indent})
}

// printf formats a complete line.
func (e *emitter) printf(format string, args ...any) {
	e.println(fmt.Sprintf(format, args...))
}

func (e *emitter) incIndent() {
	e.indent++
	if len(e.current().parts) == 0 {
		e.current().indent = e.indent
	}
}

func (e *emitter) decIndent() {
	e.indent--
	if len(e.current().parts) == 0 {
		e.current().indent = e.indent
	}
}

// block prints open, runs fn one level deeper and prints close.
func (e *emitter) block(open, close string, fn func()) {
	e.println(open)
	e.incIndent()
	fn()
	e.decIndent()
	e.println(close)
}

func (e *emitter) source() string {
	var sb strings.Builder

	lines := e.lines
	if len(lines) > 0 && len(lines[len(lines)-1].parts) == 0 {
		lines = lines[:len(lines)-1]
	}

	for _, l := range lines {
		if len(l.parts) > 0 {
			sb.WriteString(strings.Repeat(indentWith, l.indent))
			sb.WriteString(strings.Join(l.parts, ""))
		}

		sb.WriteByte('\n')
	}

	return sb.String()
}
