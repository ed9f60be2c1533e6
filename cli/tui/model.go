package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// maxLines bounds the scrollback and the lines held while logs are off.
const maxLines = 5000

// LogMsg carries one line of log output into the shell.
type LogMsg string

// DisconnectedMsg tells the shell the device session ended.
type DisconnectedMsg struct{ Err error }

type keyMap struct {
	Quit     key.Binding
	Submit   key.Binding
	PageUp   key.Binding
	PageDown key.Binding
}

var keys = keyMap{
	Quit:     key.NewBinding(key.WithKeys("ctrl+c", "ctrl+d"), key.WithHelp("ctrl+c", "quit")),
	Submit:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "run")),
	PageUp:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll up")),
	PageDown: key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "scroll down")),
}

// Model is the Bubble Tea model for the device shell.
type Model struct {
	shell    *Shell
	title    string
	input    textinput.Model
	view     viewport.Model
	lines    []string
	held     []string
	ready    bool
	quitting bool
	status   string
}

// NewModel creates a shell model. title is shown in the status bar.
func NewModel(shell *Shell, title string) Model {
	in := textinput.New()
	in.Prompt = PromptStyle.Render(shell.Prompt())
	in.Focus()
	return Model{
		shell: shell,
		title: title,
		input: in,
		view:  viewport.New(80, 20),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.view.Width = msg.Width
		m.view.Height = max(1, msg.Height-2)
		m.input.Width = max(1, msg.Width-lipgloss.Width(m.input.Prompt)-1)
		m.ready = true
		m.refresh()
		return m, nil

	case LogMsg:
		if m.shell.LogsEnabled() {
			m.appendLines(string(msg))
		} else {
			m.held = appendBounded(m.held, string(msg))
		}
		return m, nil

	case DisconnectedMsg:
		m.status = "disconnected"
		if msg.Err != nil {
			m.appendLines(ErrorStyle.Render("Disconnected: " + msg.Err.Error()))
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.PageUp), key.Matches(msg, keys.PageDown):
			var cmd tea.Cmd
			m.view, cmd = m.view.Update(msg)
			return m, cmd
		case key.Matches(msg, keys.Submit):
			return m.submit()
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	line := m.input.Value()
	m.input.Reset()
	m.appendLines(PromptStyle.Render(m.shell.Prompt()) + line)

	wasEnabled := m.shell.LogsEnabled()
	res := m.shell.Exec(line)
	for _, out := range res.Output {
		m.appendLines(styleFor(out.kind).Render(out.Text))
	}
	if !wasEnabled && m.shell.LogsEnabled() {
		m.appendLines(m.held...)
		m.held = nil
	}
	m.input.Prompt = PromptStyle.Render(m.shell.Prompt())

	if res.Quit {
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) appendLines(lines ...string) {
	for _, l := range lines {
		m.lines = appendBounded(m.lines, l)
	}
	m.refresh()
}

func (m *Model) refresh() {
	atBottom := m.view.AtBottom()
	m.view.SetContent(strings.Join(m.lines, "\n"))
	if atBottom || !m.ready {
		m.view.GotoBottom()
	}
}

func appendBounded(lines []string, l string) []string {
	lines = append(lines, l)
	if over := len(lines) - maxLines; over > 0 {
		lines = append(lines[:0:0], lines[over:]...)
	}
	return lines
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	status := m.title
	if m.status != "" {
		status += " (" + m.status + ")"
	}
	if !m.shell.LogsEnabled() {
		status += " | logs paused"
	}
	return TitleStyle.Render(status) + "\n" + m.view.View() + "\n" + m.input.View()
}

// Lines returns the scrollback, for tests.
func (m Model) Lines() []string { return m.lines }
