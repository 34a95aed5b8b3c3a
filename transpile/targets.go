package transpile

import (
	"strconv"
	"strings"
)

// extra returns the target-specific code following the component type.
func (g *generator) extra() string {
	r := strings.NewReplacer("TYPE", g.typ, `"NAME"`, strconv.Quote(g.prog.Name))

	switch g.target {
	case TargetTUI:
		return r.Replace(tuiMain)
	case TargetGame:
		return r.Replace(sceneTypes + sceneMain)
	default:
		return ""
	}
}

const tuiMain = `
var (
	tags  = regexp.MustCompile("<[^>]*>")
	frame = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	title = lipgloss.NewStyle().Bold(true)
	hint  = lipgloss.NewStyle().Faint(true)
)

type model struct {
	lines  []string
	offset int
	height int
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.height = max(msg.Height-5, 1)
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			m.offset = max(m.offset-1, 0)
		case "down", "j":
			m.offset = min(m.offset+1, max(len(m.lines)-1, 0))
		}
	}

	return m, nil
}

func (m model) View() string {
	lines := m.lines[m.offset:]
	if m.height > 0 && len(lines) > m.height {
		lines = lines[:m.height]
	}

	return title.Render("NAME") + "\n" +
		frame.Render(strings.Join(lines, "\n")) + "\n" +
		hint.Render("j/k scroll, q quit")
}

func main() {
	out, err := TYPE{}.Render(context.Background(), runtime.New(), scope.New())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	text := strings.TrimSpace(tags.ReplaceAllString(out, ""))

	if _, err := tea.NewProgram(model{lines: strings.Split(text, "\n")}).Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
`

const sceneTypes = `
// Node is an element of the scene graph.
type Node struct {
	Kind     string
	Props    map[string]string
	Text     string
	Children []*Node
}

// Draw writes n and its descendants as an indented tree.
func (n *Node) Draw(w io.Writer, depth int) {
	fmt.Fprint(w, strings.Repeat("  ", depth), n.Kind)

	if n.Text != "" {
		fmt.Fprintf(w, " %q", n.Text)
	}

	keys := make([]string, 0, len(n.Props))
	for k := range n.Props {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	for _, k := range keys {
		fmt.Fprintf(w, " %s=%q", k, n.Props[k])
	}

	fmt.Fprintln(w)

	for _, c := range n.Children {
		c.Draw(w, depth+1)
	}
}

type builder struct{ stack []*Node }

func newBuilder() *builder {
	return &builder{stack: []*Node{{Kind: "scene"}}}
}

func (b *builder) top() *Node { return b.stack[len(b.stack)-1] }

func (b *builder) Open(kind string, props map[string]string) {
	n := &Node{Kind: kind, Props: props}
	b.top().Children = append(b.top().Children, n)
	b.stack = append(b.stack, n)
}

func (b *builder) Close() {
	if len(b.stack) > 1 {
		b.stack = b.stack[:len(b.stack)-1]
	}
}

func (b *builder) Text(s string) {
	if s = strings.TrimSpace(s); s != "" {
		b.top().Children = append(b.top().Children, &Node{Kind: "text", Text: s})
	}
}

func (b *builder) Root() *Node { return b.stack[0] }
`

const sceneMain = `
func main() {
	root, err := TYPE{}.Scene(context.Background(), runtime.New(), scope.New())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	root.Draw(os.Stdout, 0)
}
`
