package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/wippyai/thunkgen/analysis"
	"github.com/wippyai/thunkgen/cdecl"
	"github.com/wippyai/thunkgen/gen"
	"github.com/wippyai/thunkgen/layout"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	tabStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	hashStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AAAAAA"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type tab int

const (
	tabFunctions tab = iota
	tabTypes
	tabCallbacks
	tabGuest
	tabHost
	tabCount
)

func (t tab) String() string {
	switch t {
	case tabFunctions:
		return "Functions"
	case tabTypes:
		return "Types"
	case tabCallbacks:
		return "Callbacks"
	case tabGuest:
		return "Guest"
	case tabHost:
		return "Host"
	default:
		return "?"
	}
}

type inspectorModel struct {
	cfg *config
	gen *generation
	err error

	tab      tab
	selected int
	filter   textinput.Model
	source   viewport.Model

	width  int
	height int
	ready  bool
}

type generatedMsg struct {
	gen *generation
	err error
}

func newInspectorModel(cfg *config) *inspectorModel {
	filter := textinput.New()
	filter.Placeholder = "filter"
	filter.Prompt = "/ "
	filter.Width = 30
	return &inspectorModel{cfg: cfg, filter: filter}
}

func (m *inspectorModel) Init() tea.Cmd {
	return m.regenerate
}

func (m *inspectorModel) regenerate() tea.Msg {
	g, err := generate(m.cfg)
	return generatedMsg{gen: g, err: err}
}

// visibleFunctions applies the filter on the functions tab.
func (m *inspectorModel) visibleFunctions() []*analysis.Function {
	if m.gen == nil {
		return nil
	}
	needle := strings.ToLower(m.filter.Value())
	if needle == "" {
		return m.gen.api.Functions
	}
	var out []*analysis.Function
	for _, f := range m.gen.api.Functions {
		if strings.Contains(strings.ToLower(f.Name), needle) {
			out = append(out, f)
		}
	}
	return out
}

func (m *inspectorModel) rowCount() int {
	if m.gen == nil {
		return 0
	}
	switch m.tab {
	case tabFunctions:
		return len(m.visibleFunctions())
	case tabTypes:
		return len(m.gen.set.Types)
	case tabCallbacks:
		return len(m.gen.api.Callbacks)
	default:
		return 0
	}
}

func (m *inspectorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.filter.Focused() {
			switch msg.String() {
			case "enter", "esc":
				m.filter.Blur()
				m.selected = 0
				return m, nil
			default:
				var cmd tea.Cmd
				m.filter, cmd = m.filter.Update(msg)
				m.selected = 0
				return m, cmd
			}
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "tab", "right", "l":
			m.setTab((m.tab + 1) % tabCount)

		case "shift+tab", "left", "h":
			m.setTab((m.tab + tabCount - 1) % tabCount)

		case "/":
			if m.tab == tabFunctions {
				m.filter.Focus()
				return m, textinput.Blink
			}

		case "up", "k":
			if m.sourceTab() {
				m.source.ScrollUp(1)
			} else if m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.sourceTab() {
				m.source.ScrollDown(1)
			} else if m.selected < m.rowCount()-1 {
				m.selected++
			}

		case "pgup":
			if m.sourceTab() {
				m.source.HalfPageUp()
			}

		case "pgdown":
			if m.sourceTab() {
				m.source.HalfPageDown()
			}

		case "r":
			return m, m.regenerate
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		headerLines := 4
		footerLines := 2
		m.source = viewport.New(msg.Width, max(1, msg.Height-headerLines-footerLines))
		m.ready = true
		m.refreshSource()

	case generatedMsg:
		m.gen = msg.gen
		m.err = msg.err
		m.selected = 0
		m.refreshSource()
	}

	return m, nil
}

func (m *inspectorModel) sourceTab() bool {
	return m.tab == tabGuest || m.tab == tabHost
}

func (m *inspectorModel) setTab(t tab) {
	m.tab = t
	m.selected = 0
	m.refreshSource()
}

func (m *inspectorModel) refreshSource() {
	if !m.ready || m.gen == nil {
		return
	}
	switch m.tab {
	case tabGuest:
		m.source.SetContent(string(m.gen.guest))
		m.source.GotoTop()
	case tabHost:
		m.source.SetContent(string(m.gen.host))
		m.source.GotoTop()
	}
}

func (m *inspectorModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("thunkgen"))
	b.WriteString(" ")
	b.WriteString(m.cfg.input)
	if m.gen != nil {
		b.WriteString(hashStyle.Render(fmt.Sprintf("  [%s, guest %s]",
			m.gen.api.SOName(), m.cfg.guestArch)))
	}
	b.WriteString("\n")

	for t := tab(0); t < tabCount; t++ {
		if t == m.tab {
			b.WriteString(activeTabStyle.Render(t.String()))
		} else {
			b.WriteString(tabStyle.Render(" " + t.String() + " "))
		}
		b.WriteString(" ")
	}
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("r regenerate • q quit"))
		return b.String()
	}
	if m.gen == nil {
		b.WriteString("Parsing...")
		return b.String()
	}

	switch m.tab {
	case tabFunctions:
		m.viewFunctions(&b)
	case tabTypes:
		m.viewTypes(&b)
	case tabCallbacks:
		m.viewCallbacks(&b)
	case tabGuest, tabHost:
		b.WriteString(m.source.View())
		b.WriteString("\n")
	}

	b.WriteString("\n")
	help := "tab switch • ↑/↓ move • r regenerate • q quit"
	if m.tab == tabFunctions {
		help = "tab switch • ↑/↓ move • / filter • r regenerate • q quit"
	} else if m.sourceTab() {
		help = "tab switch • ↑/↓ scroll • pgup/pgdn page • r regenerate • q quit"
	}
	b.WriteString(helpStyle.Render(help))
	return b.String()
}

func (m *inspectorModel) viewFunctions(b *strings.Builder) {
	if m.filter.Focused() || m.filter.Value() != "" {
		b.WriteString(m.filter.View())
		b.WriteString("\n\n")
	}
	funcs := m.visibleFunctions()
	if len(funcs) == 0 {
		b.WriteString(helpStyle.Render("no functions"))
		b.WriteString("\n")
		return
	}
	for i, f := range funcs {
		line := m.formatFunction(f)
		if i == m.selected {
			b.WriteString(selectedStyle.Render("> " + f.Name))
			b.WriteString(line[len(f.Name):])
		} else {
			b.WriteString("  " + funcStyle.Render(f.Name) + line[len(f.Name):])
		}
		b.WriteString("\n")
	}
	if m.selected < len(funcs) {
		f := funcs[m.selected]
		h := gen.FunctionHash(m.gen.api.Library, f.ThunkName)
		b.WriteString("\n")
		b.WriteString(hashStyle.Render(fmt.Sprintf("sha256 %x", h[:8])))
		if notes := annotationNotes(f); notes != "" {
			b.WriteString(hashStyle.Render("  " + notes))
		}
		b.WriteString("\n")
	}
}

func (m *inspectorModel) formatFunction(f *analysis.Function) string {
	params := make([]string, len(f.APIParams))
	for i, p := range f.APIParams {
		params[i] = cdecl.CString(p.Type)
	}
	sig := f.Name + "(" + strings.Join(params, ", ")
	if f.Variadic {
		sig += ", ..."
	}
	sig += ")"
	if !cdecl.IsVoid(f.RetCanon) {
		sig += " -> " + typeStyle.Render(cdecl.CString(f.Ret))
	}
	return sig
}

func annotationNotes(f *analysis.Function) string {
	var notes []string
	if f.CustomHostImpl {
		notes = append(notes, "custom_host_impl")
	}
	if f.CustomGuestEntry {
		notes = append(notes, "custom_guest_entrypoint")
	}
	if f.ReturnsGuestPointer {
		notes = append(notes, "returns_guest_pointer")
	}
	if f.Variadic {
		notes = append(notes, "uniform_va_type = "+cdecl.CString(f.UniformVaType))
	}
	return strings.Join(notes, ", ")
}

func (m *inspectorModel) viewTypes(b *strings.Builder) {
	if len(m.gen.set.Types) == 0 {
		b.WriteString(helpStyle.Render("no referenced types"))
		b.WriteString("\n")
		return
	}
	for i, tl := range m.gen.set.Types {
		line := fmt.Sprintf("%-24s %-12s", tl.Name, classStyle(tl.Class))
		if tl.Class != layout.Opaque {
			line += fmt.Sprintf(" guest %d/%d host %d/%d",
				tl.GuestInfo.Size, tl.GuestInfo.Align, tl.HostInfo.Size, tl.HostInfo.Align)
		}
		if tl.BadMember != "" {
			line += errorStyle.Render("  !" + tl.BadMember)
		}
		if i == m.selected {
			b.WriteString(selectedStyle.Render("> " + tl.Name))
			b.WriteString(line[len(tl.Name):])
		} else {
			b.WriteString("  " + typeStyle.Render(tl.Name) + line[len(tl.Name):])
		}
		b.WriteString("\n")
	}
}

func classStyle(c layout.Classification) string {
	s := c.String()
	switch c {
	case layout.Incompatible:
		return errorStyle.Render(s)
	case layout.Identical:
		return funcStyle.Render(s)
	default:
		return s
	}
}

func (m *inspectorModel) viewCallbacks(b *strings.Builder) {
	if len(m.gen.api.Callbacks) == 0 {
		b.WriteString(helpStyle.Render("no callback signatures"))
		b.WriteString("\n")
		return
	}
	for i, cb := range m.gen.api.Callbacks {
		h := gen.CallbackHash(cb.CStr)
		line := fmt.Sprintf("%s  %s", cb.CStr, hashStyle.Render(fmt.Sprintf("%x", h[:8])))
		if i == m.selected {
			b.WriteString(selectedStyle.Render("> ") + line)
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
}

func runInspector(cfg *config) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("interactive mode requires a terminal")
	}
	p := tea.NewProgram(newInspectorModel(cfg), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
