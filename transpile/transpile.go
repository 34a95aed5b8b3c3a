package transpile

import (
	"context"
	"go/format"
	"log/slog"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ardnew/quill/lang"
	"github.com/ardnew/quill/log"
)

// Sentinel errors.
var (
	ErrUnsupported = lang.NewError("construct not supported by transpiler")
	ErrTarget      = lang.NewError("unknown target")
	ErrFormat      = lang.NewError("generated source does not format")
)

// Target selects the kind of program generated from a component.
type Target string

const (
	// TargetGo generates a Go type rendering the component's markup.
	TargetGo Target = "go"
	// TargetTUI generates a terminal program displaying the rendered text.
	TargetTUI Target = "tui"
	// TargetGame generates a program building a scene graph from the
	// component's elements.
	TargetGame Target = "game"
)

// Targets lists every supported target.
var Targets = []Target{TargetGo, TargetTUI, TargetGame}

// ParseTarget returns the target named s.
func ParseTarget(s string) (Target, error) {
	for _, t := range Targets {
		if strings.EqualFold(s, string(t)) {
			return t, nil
		}
	}

	return "", ErrTarget.With(slog.String("target", s))
}

// Standalone reports whether t generates a complete main package.
func (t Target) Standalone() bool { return t != TargetGo }

type config struct {
	pkg      string
	optimize bool
	logger   log.Logger
}

// Option configures [Compile].
type Option func(*config)

// WithPackage sets the package clause of Go target output. Standalone
// targets always generate package main.
func WithPackage(name string) Option {
	return func(c *config) { c.pkg = name }
}

// WithoutOptimize disables the optimizer.
func WithoutOptimize() Option {
	return func(c *config) { c.optimize = false }
}

// WithLogger sets the logger receiving pass statistics.
func WithLogger(logger log.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// Compile generates formatted Go source for comp.
func Compile(ctx context.Context, comp *lang.Component, target Target, opts ...Option) ([]byte, error) {
	c := config{pkg: "components", optimize: true}
	for _, opt := range opts {
		opt(&c)
	}

	if target.Standalone() {
		c.pkg = "main"
	}

	if _, err := ParseTarget(string(target)); err != nil {
		return nil, err
	}

	p, err := Lower(comp, target == TargetGame)
	if err != nil {
		return nil, err
	}

	before := count(p)

	if c.optimize {
		Optimize(p)
	}

	c.logger.DebugContext(ctx, "lowered component",
		slog.String("component", comp.Name),
		slog.String("target", string(target)),
		slog.Int("statements", before),
		slog.Int("optimized", count(p)))

	g := generator{target: target, pkg: c.pkg, typ: TypeName(comp.Name), prog: p}

	src := g.file()

	out, err := format.Source([]byte(src))
	if err != nil {
		return []byte(src), ErrFormat.Wrap(err).With(slog.String("component", comp.Name))
	}

	return out, nil
}

var titleCaser = cases.Title(language.Und)

// TypeName returns the exported Go identifier for a component name, such
// as "UserList" for "user-list".
func TypeName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var sb strings.Builder
	for _, p := range parts {
		sb.WriteString(titleCaser.String(p))
	}

	s := sb.String()

	switch {
	case s == "":
		return "Component"
	case unicode.IsDigit(rune(s[0])):
		return "C" + s
	}

	return s
}

// count returns the number of statements in p, nested ones included.
func count(p *Program) int {
	n := countStmts(p.Body)
	for _, f := range p.Funcs {
		n += countStmts(f.Body)
	}

	return n
}

func countStmts(stmts []Stmt) int {
	n := len(stmts)

	for _, s := range stmts {
		switch s := s.(type) {
		case If:
			for _, b := range s.Branches {
				n += countStmts(b.Body)
			}

			n += countStmts(s.Else)
		case Loop:
			n += countStmts(s.Body)
		case Block:
			n += countStmts(s.Body)
		}
	}

	return n
}
