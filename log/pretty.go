package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	keyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	stringStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	numberStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	trueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	falseStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	timeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	msgStyle    = lipgloss.NewStyle().Bold(true)

	levelStyles = map[Level]lipgloss.Style{
		LevelTrace: lipgloss.NewStyle().Foreground(lipgloss.Color("5")),
		LevelDebug: lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		LevelInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		LevelWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		LevelError: lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
	}
)

// prettyHandler writes one colorized line per record.
type prettyHandler struct {
	opts       slog.HandlerOptions
	timeLayout string
	mu         *sync.Mutex
	w          io.Writer
	attrs      []slog.Attr
	group      string
}

func newPrettyHandler(
	w io.Writer,
	opts *slog.HandlerOptions,
	timeLayout string,
) *prettyHandler {
	return &prettyHandler{
		opts:       *opts,
		timeLayout: timeLayout,
		mu:         &sync.Mutex{},
		w:          w,
	}
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer

	if h.timeLayout != "" && !r.Time.IsZero() {
		buf.WriteString(timeStyle.Render(r.Time.Format(h.timeLayout)))
		buf.WriteByte(' ')
	}

	level := Level(r.Level)
	label := strings.ToUpper(level.String())

	if style, ok := levelStyles[level]; ok {
		label = style.Render(label)
	}

	buf.WriteString(label)
	buf.WriteByte(' ')

	if h.opts.AddSource {
		if src := r.Source(); src != nil && src.File != "" {
			buf.WriteString(keyStyle.Render(fmt.Sprintf("%s:%d", src.File, src.Line)))
			buf.WriteByte(' ')
		}
	}

	buf.WriteString(msgStyle.Render(r.Message))

	for _, a := range h.attrs {
		h.writeAttr(&buf, h.group, a)
	}

	r.Attrs(func(a slog.Attr) bool {
		h.writeAttr(&buf, h.group, a)

		return true
	})

	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()

	_, err := h.w.Write(buf.Bytes())

	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append(h.attrs[:len(h.attrs):len(h.attrs)], qualify(h.group, attrs)...)

	return &c
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	c := *h
	if c.group == "" {
		c.group = name
	} else {
		c.group += "." + name
	}

	return &c
}

func qualify(group string, attrs []slog.Attr) []slog.Attr {
	if group == "" {
		return attrs
	}

	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = slog.Attr{Key: group + "." + a.Key, Value: a.Value}
	}

	return out
}

func (h *prettyHandler) writeAttr(buf *bytes.Buffer, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	key := a.Key
	if prefix != "" && !strings.HasPrefix(key, prefix+".") {
		key = prefix + "." + key
	}

	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			h.writeAttr(buf, key, ga)
		}

		return
	}

	buf.WriteByte(' ')
	buf.WriteString(keyStyle.Render(key + "="))
	buf.WriteString(renderValue(a.Value))
}

func renderValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return stringStyle.Render(v.String())

	case slog.KindInt64:
		return numberStyle.Render(strconv.FormatInt(v.Int64(), 10))

	case slog.KindUint64:
		return numberStyle.Render(strconv.FormatUint(v.Uint64(), 10))

	case slog.KindFloat64:
		return numberStyle.Render(strconv.FormatFloat(v.Float64(), 'g', -1, 64))

	case slog.KindBool:
		if v.Bool() {
			return trueStyle.Render("true")
		}

		return falseStyle.Render("false")

	case slog.KindDuration:
		return numberStyle.Render(v.Duration().String())

	case slog.KindTime:
		return timeStyle.Render(v.Time().String())

	default:
		return stringStyle.Render(v.String())
	}
}

// indentHandler renders records as indented JSON objects by delegating to
// the standard JSON handler and re-indenting its output.
type indentHandler struct {
	inner slog.Handler
	buf   *bytes.Buffer
	mu    *sync.Mutex
	w     io.Writer
}

func newIndentHandler(w io.Writer, opts *slog.HandlerOptions) *indentHandler {
	buf := new(bytes.Buffer)

	return &indentHandler{
		inner: slog.NewJSONHandler(buf, opts),
		buf:   buf,
		mu:    &sync.Mutex{},
		w:     w,
	}
}

func (h *indentHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *indentHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf.Reset()

	if err := h.inner.Handle(ctx, r); err != nil {
		return err
	}

	var out bytes.Buffer
	if err := json.Indent(&out, bytes.TrimSpace(h.buf.Bytes()), "", "  "); err != nil {
		_, werr := h.w.Write(h.buf.Bytes())

		return werr
	}

	out.WriteByte('\n')

	_, err := h.w.Write(out.Bytes())

	return err
}

func (h *indentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.inner = h.inner.WithAttrs(attrs)

	return &c
}

func (h *indentHandler) WithGroup(name string) slog.Handler {
	c := *h
	c.inner = h.inner.WithGroup(name)

	return &c
}
