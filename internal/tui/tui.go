package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"townwatch/internal/render"
	"townwatch/internal/state"
)

// Refresher triggers an immediate snapshot poll.
type Refresher interface {
	RefreshNow()
}

type viewChangedMsg struct{}

type tickMsg time.Time

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FB326E"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("250")).MarginTop(1)
	onlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	eventStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FB326E"))
	cursorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FB326E"))

	buildingStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), true, true, false, true).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
	windowStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	activeWindowStyle = lipgloss.NewStyle().Bold(true).
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("220"))

	levelStyles = map[string]lipgloss.Style{
		"ERROR":   offlineStyle,
		"WARN":    pendingStyle,
		"WARNING": pendingStyle,
		"DEBUG":   mutedStyle,
	}
)

// Model is the terminal dashboard.
type Model struct {
	view      *state.View
	refresher Refresher
	changes   <-chan struct{}
	release   func()

	data     state.ViewData
	cursor   int
	width    int
	height   int
	help     help.Model
	quitting bool
}

// New creates a Model rendering view. refresher may be nil.
func New(view *state.View, refresher Refresher) *Model {
	changes, release := view.Subscribe()
	return &Model{
		view:      view,
		refresher: refresher,
		changes:   changes,
		release:   release,
		data:      view.Snapshot(),
		width:     100,
		height:    40,
		help:      help.New(),
	}
}

// Close releases the view subscription.
func (m *Model) Close() {
	if m.release != nil {
		m.release()
		m.release = nil
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.waitForChange(), doTick())
}

func (m *Model) waitForChange() tea.Cmd {
	changes := m.changes
	return func() tea.Msg {
		if _, ok := <-changes; !ok {
			return nil
		}
		return viewChangedMsg{}
	}
}

func doTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case viewChangedMsg:
		m.reload()
		return m, m.waitForChange()
	case tickMsg:
		m.data.RefreshAgo = m.view.Snapshot().RefreshAgo
		return m, doTick()
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.data.Domains)-1 {
				m.cursor++
			}
		case key.Matches(msg, keys.Toggle):
			if m.cursor < len(m.data.Domains) {
				m.view.ToggleDomain(m.data.Domains[m.cursor].Name)
				m.reload()
			}
		case key.Matches(msg, keys.Refresh):
			if m.refresher != nil {
				m.refresher.RefreshNow()
			}
		case key.Matches(msg, keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}
	}
	return m, nil
}

func (m *Model) reload() {
	m.data = m.view.Snapshot()
	if m.cursor >= len(m.data.Domains) {
		m.cursor = max(0, len(m.data.Domains)-1)
	}
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	d := m.data
	var b strings.Builder

	b.WriteString(m.header())
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(fmt.Sprintf("Tools %s · Plugins %s · Domains %s",
		humanize.Comma(int64(d.Stats.Tools)),
		humanize.Comma(int64(d.Stats.Plugins)),
		humanize.Comma(int64(d.Stats.Domains)))))
	b.WriteString("\n")

	b.WriteString(headingStyle.Render("Town"))
	b.WriteString("\n")
	b.WriteString(renderTown(d.Town))
	b.WriteString("\n")

	b.WriteString(headingStyle.Render("Ticker"))
	b.WriteString("\n")
	if d.Ticker == "" {
		b.WriteString(mutedStyle.Render("-"))
	} else {
		b.WriteString(d.Ticker)
	}
	b.WriteString("\n")

	left := lipgloss.JoinVertical(lipgloss.Left,
		headingStyle.Render("Recent events"),
		renderBillboard(d.Billboard, max(3, m.height/3)),
	)
	right := lipgloss.JoinVertical(lipgloss.Left,
		headingStyle.Render("Tools"),
		renderTools(d.Tools),
		headingStyle.Render("Domains"),
		m.renderDomains(),
	)
	half := max(20, m.width/2-2)
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Width(half).Render(left),
		lipgloss.NewStyle().Width(half).Render(right),
	))
	b.WriteString("\n\n")
	b.WriteString(m.help.View(keys))
	return b.String()
}

func (m *Model) header() string {
	d := m.data
	var indicator string
	switch {
	case d.Connection.Online:
		indicator = onlineStyle.Render("● " + d.Connection.Label)
	case d.Connection.State == "connecting":
		indicator = pendingStyle.Render("● " + d.Connection.Label)
	default:
		indicator = offlineStyle.Render("● " + d.Connection.Label)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		titleStyle.Render("Townwatch"), "  ", indicator, "  ", mutedStyle.Render(d.RefreshAgo))
}

func renderTown(town []render.Building) string {
	if len(town) == 0 {
		return mutedStyle.Render("No plugins loaded")
	}
	buildings := make([]string, 0, len(town))
	for _, bld := range town {
		lines := []string{lipgloss.NewStyle().Bold(true).Render(bld.Domain)}
		for _, w := range bld.Windows {
			if w.Active {
				lines = append(lines, activeWindowStyle.Render("▣ "+w.Label))
			} else {
				lines = append(lines, windowStyle.Render("□ "+w.Label))
			}
		}
		buildings = append(buildings, buildingStyle.Render(strings.Join(lines, "\n")))
	}
	return lipgloss.JoinHorizontal(lipgloss.Bottom, buildings...)
}

func renderBillboard(entries []render.BillboardEntry, limit int) string {
	if len(entries) == 0 {
		return mutedStyle.Render("Waiting for events…")
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		msg := e.Message
		if style, ok := levelStyles[e.Level]; ok {
			msg = style.Render(msg)
		}
		lines = append(lines, fmt.Sprintf("%s %s %s",
			mutedStyle.Render(e.Time.Format("15:04:05")), eventStyle.Render(e.Name), msg))
	}
	return strings.Join(lines, "\n")
}

func renderTools(tools []render.ToolCard) string {
	if len(tools) == 0 {
		return mutedStyle.Render("No tools reported")
	}
	lines := make([]string, 0, len(tools))
	for _, t := range tools {
		dot := offlineStyle.Render("●")
		if t.OK {
			dot = onlineStyle.Render("●")
		}
		lines = append(lines, fmt.Sprintf("%s %s %s", dot, t.Name, mutedStyle.Render(t.Message)))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderDomains() string {
	if len(m.data.Domains) == 0 {
		return mutedStyle.Render("No domains")
	}
	var lines []string
	for i, card := range m.data.Domains {
		marker := "▸"
		if card.Open {
			marker = "▾"
		}
		line := fmt.Sprintf("%s %s (%d)", marker, card.Name, len(card.Plugins))
		if i == m.cursor {
			line = cursorStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		lines = append(lines, line)
		if !card.Open {
			continue
		}
		for _, p := range card.Plugins {
			deps := "none"
			if len(p.Dependencies) > 0 {
				deps = strings.Join(p.Dependencies, ", ")
			}
			lines = append(lines, "    "+p.Name+mutedStyle.Render(" → "+deps))
		}
	}
	return strings.Join(lines, "\n")
}

type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Toggle  key.Binding
	Refresh key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Refresh, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Toggle},
		{k.Refresh, k.Help, k.Quit},
	}
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Toggle: key.NewBinding(
		key.WithKeys("enter", " "),
		key.WithHelp("enter", "open/close domain"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "more"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q/ctrl+c", "quit"),
	),
}
