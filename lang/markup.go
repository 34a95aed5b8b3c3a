package lang

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// mkNode is an untyped markup node produced by the scanner. The builder
// turns it into a typed [Node].
type mkNode struct {
	pos Pos

	text   string
	isText bool
	raw    bool

	name        string
	attrs       []Attr
	children    []*mkNode
	selfClosing bool
}

func (n *mkNode) attr(name string) (string, bool) {
	for _, a := range n.attrs {
		if a.Name == name {
			return a.Value, true
		}
	}

	return "", false
}

func (n *mkNode) whitespace() bool {
	return n.isText && strings.TrimSpace(n.text) == ""
}

// voidElements never have content or a closing tag.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

// rawElements have bodies that are not scanned for markup or bindings.
var rawElements = map[string]bool{
	"script": true, "style": true,
}

// scanner splits component source into a tree of markup nodes.
type scanner struct {
	input []byte
	file  string
	pos   int
	line  int
	col   int

	text    strings.Builder
	textPos Pos
}

func newScanner(input []byte, file string) *scanner {
	return &scanner{input: input, file: file, line: 1, col: 1}
}

func (s *scanner) scan() ([]*mkNode, error) {
	root := &mkNode{}
	stack := []*mkNode{root}

	top := func() *mkNode { return stack[len(stack)-1] }

	for !s.eof() {
		if s.peek() == '{' {
			s.scanBinding()

			continue
		}

		if s.peek() != '<' {
			s.textRune()

			continue
		}

		switch {
		case s.hasPrefix("<!--"):
			s.flush(top())

			n, err := s.scanDelimited("<!--", "-->", "comment", true)
			if err != nil {
				return nil, err
			}

			top().children = append(top().children, n)

		case s.hasPrefix("<![CDATA["):
			s.flush(top())

			n, err := s.scanDelimited("<![CDATA[", "]]>", "CDATA section", false)
			if err != nil {
				return nil, err
			}

			top().children = append(top().children, n)

		case s.hasPrefix("<!"), s.hasPrefix("<?"):
			s.flush(top())

			n, err := s.scanDelimited(string(s.input[s.pos:s.pos+2]), ">", "declaration", true)
			if err != nil {
				return nil, err
			}

			top().children = append(top().children, n)

		case s.hasPrefix("</"):
			s.flush(top())

			pos := s.position()

			name, err := s.closeTag()
			if err != nil {
				return nil, err
			}

			if len(stack) == 1 || top().name != name {
				if voidElements[strings.ToLower(name)] {
					continue
				}

				if len(stack) == 1 {
					return nil, s.errorf(pos, "unexpected closing tag </%s>", name)
				}

				return nil, s.errorf(pos, "closing tag </%s> does not match <%s> opened at %d:%d",
					name, top().name, top().pos.Line, top().pos.Col)
			}

			stack = stack[:len(stack)-1]

		case isNameStart(s.peekAt(1)):
			s.flush(top())

			el, err := s.openTag()
			if err != nil {
				return nil, err
			}

			top().children = append(top().children, el)

			lower := strings.ToLower(el.name)

			switch {
			case el.selfClosing:
			case voidElements[lower]:
				el.selfClosing = true
			case rawElements[lower]:
				if err := s.scanRawBody(el); err != nil {
					return nil, err
				}
			default:
				stack = append(stack, el)
			}

		default:
			s.textRune()
		}
	}

	s.flush(top())

	if len(stack) > 1 {
		open := top()

		return nil, s.errorf(open.pos, "unclosed <%s>", open.name)
	}

	return root.children, nil
}

// scanBinding consumes a {…} span as text so that markup characters inside
// an expression are not mistaken for tags. A lone '{' is ordinary text.
func (s *scanner) scanBinding() {
	end := s.bindingEnd()
	if end < 0 {
		s.textRune()

		return
	}

	for s.pos < end {
		s.textRune()
	}
}

// bindingEnd returns the offset just past the '}' matching the '{' at the
// current position, or -1.
func (s *scanner) bindingEnd() int {
	depth := 0

	var quote byte

	for i := s.pos; i < len(s.input); i++ {
		c := s.input[i]

		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}

			continue
		}

		switch c {
		case '"', '\'':
			quote = c
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		case '<':
			if i+1 < len(s.input) && s.input[i+1] == '/' {
				return -1
			}
		}
	}

	return -1
}

func (s *scanner) scanDelimited(open, close, what string, keep bool) (*mkNode, error) {
	pos := s.position()

	end := bytes.Index(s.input[s.pos+len(open):], []byte(close))
	if end < 0 {
		return nil, s.errorf(pos, "unterminated %s", what)
	}

	start := s.pos
	inner := s.pos + len(open) + end
	stop := inner + len(close)

	for s.pos < stop {
		s.advance()
	}

	text := string(s.input[start+len(open) : inner])
	if keep {
		text = string(s.input[start:stop])
	}

	return &mkNode{pos: pos, text: text, isText: true, raw: true}, nil
}

func (s *scanner) scanRawBody(el *mkNode) error {
	pos := s.position()
	closing := []byte("</" + strings.ToLower(el.name))

	rest := s.input[s.pos:]

	end := bytes.Index(bytes.ToLower(rest), closing)
	if end < 0 {
		return s.errorf(el.pos, "unclosed <%s>", el.name)
	}

	stop := s.pos + end
	for s.pos < stop {
		s.advance()
	}

	if end > 0 {
		el.children = append(el.children, &mkNode{
			pos:    pos,
			text:   string(rest[:end]),
			isText: true,
			raw:    true,
		})
	}

	_, err := s.closeTag()

	return err
}

func (s *scanner) openTag() (*mkNode, error) {
	el := &mkNode{pos: s.position()}

	s.advance()

	el.name = s.name()

	for {
		s.skipSpace()

		switch {
		case s.eof():
			return nil, s.errorf(el.pos, "unterminated <%s> tag", el.name)

		case s.hasPrefix("/>"):
			s.advance()
			s.advance()

			el.selfClosing = true

			return el, nil

		case s.peek() == '>':
			s.advance()

			return el, nil

		case !isNameStart(s.peek()):
			return nil, s.errorf(s.position(), "unexpected %q in <%s> tag", s.peek(), el.name)
		}

		a, err := s.attribute(el.name)
		if err != nil {
			return nil, err
		}

		if _, dup := el.attr(a.Name); dup {
			return nil, s.errorf(a.Pos, "duplicate attribute %q on <%s>", a.Name, el.name)
		}

		el.attrs = append(el.attrs, a)
	}
}

func (s *scanner) attribute(tag string) (Attr, error) {
	a := Attr{Pos: s.position(), Name: s.name()}

	s.skipSpace()

	if s.peek() != '=' {
		return a, nil
	}

	s.advance()
	s.skipSpace()

	a.HasValue = true

	if q := s.peek(); q == '"' || q == '\'' {
		start := s.position()

		s.advance()

		var sb strings.Builder

		for !s.eof() && s.peek() != q {
			sb.WriteRune(s.peek())
			s.advance()
		}

		if s.eof() {
			return a, s.errorf(start, "unterminated value for attribute %q of <%s>", a.Name, tag)
		}

		s.advance()

		a.Value = sb.String()

		return a, nil
	}

	var sb strings.Builder

	for !s.eof() && !unicode.IsSpace(s.peek()) && s.peek() != '>' && !s.hasPrefix("/>") {
		sb.WriteRune(s.peek())
		s.advance()
	}

	if sb.Len() == 0 {
		return a, s.errorf(s.position(), "missing value for attribute %q of <%s>", a.Name, tag)
	}

	a.Value = sb.String()

	return a, nil
}

func (s *scanner) closeTag() (string, error) {
	pos := s.position()

	s.advance()
	s.advance()

	if !isNameStart(s.peek()) {
		return "", s.errorf(pos, "malformed closing tag")
	}

	name := s.name()

	s.skipSpace()

	if !s.expect('>') {
		return "", s.errorf(pos, "malformed closing tag </%s", name)
	}

	return name, nil
}

func (s *scanner) name() string {
	start := s.pos
	for !s.eof() && isNameContinue(s.peek()) {
		s.advance()
	}

	return string(s.input[start:s.pos])
}

func (s *scanner) textRune() {
	if s.text.Len() == 0 {
		s.textPos = s.position()
	}

	s.text.WriteRune(s.peek())
	s.advance()
}

func (s *scanner) flush(parent *mkNode) {
	if s.text.Len() == 0 {
		return
	}

	parent.children = append(parent.children, &mkNode{
		pos:    s.textPos,
		text:   s.text.String(),
		isText: true,
	})

	s.text.Reset()
}

func (s *scanner) errorf(pos Pos, format string, args ...any) *SyntaxError {
	return &SyntaxError{
		Pos:  pos,
		Msg:  fmt.Sprintf(format, args...),
		Line: sourceLine(s.input, pos.Offset),
	}
}

func sourceLine(input []byte, offset int) string {
	if offset > len(input) {
		offset = len(input)
	}

	start := bytes.LastIndexByte(input[:offset], '\n') + 1

	end := bytes.IndexByte(input[offset:], '\n')
	if end < 0 {
		end = len(input)
	} else {
		end += offset
	}

	return strings.TrimRight(string(input[start:end]), "\r")
}

func (s *scanner) peek() rune {
	if s.eof() {
		return 0
	}

	r, _ := utf8.DecodeRune(s.input[s.pos:])

	return r
}

func (s *scanner) peekAt(n int) rune {
	if s.pos+n >= len(s.input) {
		return 0
	}

	r, _ := utf8.DecodeRune(s.input[s.pos+n:])

	return r
}

func (s *scanner) hasPrefix(p string) bool {
	return bytes.HasPrefix(s.input[s.pos:], []byte(p))
}

func (s *scanner) advance() {
	if s.eof() {
		return
	}

	r, size := utf8.DecodeRune(s.input[s.pos:])

	s.pos += size
	if r == '\n' {
		s.line++
		s.col = 1
	} else {
		s.col++
	}
}

func (s *scanner) expect(ch rune) bool {
	if s.peek() == ch {
		s.advance()

		return true
	}

	return false
}

func (s *scanner) eof() bool {
	return s.pos >= len(s.input)
}

func (s *scanner) position() Pos {
	return Pos{File: s.file, Line: s.line, Col: s.col, Offset: s.pos}
}

func (s *scanner) skipSpace() {
	for !s.eof() && unicode.IsSpace(s.peek()) {
		s.advance()
	}
}

func isNameStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isNameContinue(r rune) bool {
	return isNameStart(r) || unicode.IsDigit(r) ||
		r == '-' || r == ':' || r == '.'
}
