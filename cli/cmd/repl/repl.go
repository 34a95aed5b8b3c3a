package repl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ardnew/quill/log"
	"github.com/ardnew/quill/runtime"
	"github.com/ardnew/quill/scope"
)

const (
	prompt       = "➜ "
	defaultWidth = 80
)

var (
	promptStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	inputStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	resultStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	hintStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	suggestionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	selectedStyle   = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("4"))

	signatureStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	signatureNameStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	currentParamStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)

// Config configures [Run].
type Config struct {
	Runtime  *runtime.Runtime
	Context  *scope.Context
	File     string
	CacheDir string
	Logger   log.Logger
}

// Run starts an interactive session. When cfg.File is set the component is
// loaded and executed first.
func Run(ctx context.Context, cfg Config) error {
	s := NewSession(ctx, cfg.Runtime, cfg.Context, cfg.Logger)

	var banner string

	if cfg.File != "" {
		out, err := s.Load(cfg.File)
		if err != nil {
			return err
		}

		banner = out
	}

	history := NewHistory(filepath.Join(cfg.CacheDir, baseHistory))
	if err := history.Load(); err != nil {
		cfg.Logger.WarnContext(ctx, "could not load history", slog.Any("error", err))
	}

	cfg.Logger.DebugContext(ctx, "repl start",
		slog.String("file", cfg.File),
		slog.Int("history", history.Len()))

	m := newModel(ctx, s, history, cfg.Logger)
	if strings.TrimSpace(banner) != "" {
		m.pending = tea.Println(banner)
	}

	_, err := tea.NewProgram(m, tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}

	return err
}

type model struct {
	ctx        context.Context
	session    *Session
	logger     log.Logger
	input      textinput.Model
	history    *History
	historyIdx int
	matches    fuzzy.Matches
	wordStart  int
	wordEnd    int
	selected   int
	tabbing    bool
	preTab     string
	width      int
	pending    tea.Cmd
	quitting   bool
}

func newModel(ctx context.Context, s *Session, h *History, logger log.Logger) model {
	ti := textinput.New()
	ti.Prompt = promptStyle.Render(prompt)
	ti.Focus()
	ti.CharLimit = 4096
	ti.Width = defaultWidth

	return model{
		ctx:        ctx,
		session:    s,
		logger:     logger,
		input:      ti,
		history:    h,
		historyIdx: h.Len(),
		selected:   -1,
		width:      defaultWidth,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.pending)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.key(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(msg.Width-len(prompt)-2, 1)

		return m, nil
	}

	var cmd tea.Cmd

	m.input, cmd = m.input.Update(msg)

	return m, cmd
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(m.input.View())
	b.WriteString("\n")

	input := m.input.Value()
	call := detectFunctionCall(input, m.input.Position())

	switch {
	case m.historyIdx < m.history.Len():
		b.WriteString(hintStyle.Render(
			lipgloss.NewStyle().Bold(true).Render(strconv.Itoa(m.historyIdx+1)) +
				"/" + strconv.Itoa(m.history.Len())))

	case strings.TrimSpace(input) == "":
		b.WriteString(hintStyle.Render("Type an expression, <markup/> or :help"))

	case call.inCall && len(m.matches) == 0:
		if sig, params := m.session.signature(call.name); sig != "" {
			b.WriteString(renderSignatureHint(sig, params, call.argIndex))
		}

	default:
		sel := -1
		if m.tabbing {
			sel = m.selected
		}

		b.WriteString(renderCandidateBar(m.matches, sel, m.width))
	}

	b.WriteString("\n")

	return b.String()
}

func (m model) key(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.input.Value() == "" {
			m.quitting = true

			return m, tea.Quit
		}

		m.reset("")

		return m, nil

	case tea.KeyCtrlD:
		if m.input.Value() == "" {
			m.quitting = true

			return m, tea.Quit
		}

		return m, nil

	case tea.KeyEnter:
		if m.tabbing && len(m.matches) > 0 {
			m.tabbing = false
			m.refresh()

			return m, nil
		}

		return m.submit()

	case tea.KeyTab:
		return m.cycle(1), nil

	case tea.KeyShiftTab:
		return m.cycle(-1), nil

	case tea.KeyUp:
		return m.recall(m.historyIdx - 1), nil

	case tea.KeyDown:
		return m.recall(m.historyIdx + 1), nil

	case tea.KeyEsc:
		if m.tabbing {
			m.tabbing = false
			m.input.SetValue(m.preTab)
			m.input.CursorEnd()
			m.refresh()
		}

		return m, nil
	}

	if msg.Type != tea.KeyRunes || msg.String() == " " {
		m.tabbing = false
	}

	var cmd tea.Cmd

	m.historyIdx = m.history.Len()
	m.input, cmd = m.input.Update(msg)
	m.refresh()

	return m, cmd
}

// reset replaces the input with text and leaves history navigation.
func (m *model) reset(text string) {
	m.input.SetValue(text)
	m.input.CursorEnd()
	m.tabbing = false
	m.historyIdx = m.history.Len()
	m.refresh()
}

func (m *model) refresh() {
	m.matches, m.wordStart, m.wordEnd = m.session.Complete(m.input.Value(), m.input.Position())
	if !m.tabbing {
		m.selected = -1
	}
}

func (m model) cycle(step int) model {
	if len(m.matches) == 0 {
		return m
	}

	if len(m.matches) == 1 {
		m.replaceWord(m.matches[0].Str)
		m.tabbing = false
		m.matches = nil

		return m
	}

	if !m.tabbing {
		m.tabbing = true
		m.preTab = m.input.Value()
		m.selected = -1
	}

	m.selected = (m.selected + step + len(m.matches)) % len(m.matches)
	m.replaceWord(m.matches[m.selected].Str)

	return m
}

func (m *model) replaceWord(s string) {
	in := m.input.Value()
	m.input.SetValue(in[:m.wordStart] + s + in[m.wordEnd:])
	m.input.SetCursor(m.wordStart + len(s))
	m.wordEnd = m.wordStart + len(s)
}

func (m model) recall(i int) model {
	if i < 0 {
		return m
	}

	if i >= m.history.Len() {
		m.reset("")

		return m
	}

	if line, ok := m.history.Line(i); ok {
		m.historyIdx = i
		m.input.SetValue(line)
		m.input.CursorEnd()
		m.refresh()
	}

	return m
}

func (m model) submit() (model, tea.Cmd) {
	line := strings.TrimSpace(m.input.Value())
	m.reset("")

	if line == "" {
		return m, nil
	}

	if err := m.history.Add(line); err != nil {
		m.logger.DebugContext(m.ctx, "history write failed", slog.Any("error", err))
	}

	m.historyIdx = m.history.Len()

	echo := tea.Println(promptStyle.Render(prompt) + inputStyle.Render(line))

	if line == ":clear" {
		return m, tea.ClearScreen
	}

	out, err := m.session.Eval(line)

	m.logger.TraceContext(m.ctx, "repl eval",
		slog.String("input", line),
		slog.Bool("ok", err == nil))

	switch {
	case errors.Is(err, ErrQuit):
		m.quitting = true

		return m, tea.Sequence(echo, tea.Quit)

	case err != nil:
		return m, tea.Sequence(echo, tea.Println(errorStyle.Render(fmt.Sprint("error: ", err))))

	case out == "":
		return m, echo

	default:
		return m, tea.Sequence(echo, tea.Println(resultStyle.Render(out)))
	}
}
