// Package tui is the terminal rendering layer: a topic sidebar, the selected
// topic's messages and an input line.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vovakirdan/wirechat-client/internal/core"
)

const sidebarWidth = 24

// Backend is what the UI drives.
type Backend interface {
	View(ctx context.Context) (core.View, error)
	Updates() <-chan struct{}
	Select(ctx context.Context, id core.TopicID) error
	Send(ctx context.Context, text string) error
	Refresh(ctx context.Context) ([]core.TopicID, error)
	CreateTopic(ctx context.Context, name string) ([]core.TopicID, error)
}

type viewMsg struct {
	view core.View
	err  error
}

type updateMsg struct{}

type actionMsg struct {
	status string
	err    error
	// sent is set when the input should be cleared
	sent bool
}

// Model is the bubbletea model for the chat screen.
type Model struct {
	ctx      context.Context
	backend  Backend
	username string

	view       core.View
	statusLine string
	errLine    string
	creating   bool

	width  int
	height int

	input    textinput.Model
	timeline viewport.Model
	theme    theme
}

// New builds the chat screen for username.
func New(ctx context.Context, backend Backend, username string) Model {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 2000
	input.Placeholder = "type a message, :emote: tokens welcome"
	input.Focus()

	timeline := viewport.New(0, 0)
	timeline.MouseWheelEnabled = true

	return Model{
		ctx:        ctx,
		backend:    backend,
		username:   username,
		statusLine: "starting...",
		input:      input,
		timeline:   timeline,
		theme:      newTheme(),
	}
}

// Init starts the view refresh and update listener.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.refreshView(),
		waitUpdate(m.backend.Updates()),
	)
}

// Update handles input and backend notifications.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		m.renderTimeline()
	case updateMsg:
		cmds = append(cmds, m.refreshView(), waitUpdate(m.backend.Updates()))
	case viewMsg:
		if msg.err != nil {
			m.errLine = msg.err.Error()
			break
		}
		atBottom := m.timeline.AtBottom()
		m.view = msg.view
		m.renderTimeline()
		if atBottom {
			m.timeline.GotoBottom()
		}
	case actionMsg:
		if msg.err != nil {
			m.errLine = describeError(msg.err)
			break
		}
		m.errLine = ""
		if msg.status != "" {
			m.statusLine = msg.status
		}
		if msg.sent {
			m.input.Reset()
		}
		cmds = append(cmds, m.refreshView())
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			if m.creating && msg.String() == "esc" {
				m.leaveCreate()
				return m, nil
			}
			return m, tea.Quit
		case "tab", "down":
			return m, m.selectNeighbour(1)
		case "shift+tab", "up":
			return m, m.selectNeighbour(-1)
		case "ctrl+n":
			if m.creating {
				m.leaveCreate()
			} else {
				m.creating = true
				m.input.Reset()
				m.input.Placeholder = "new topic name"
			}
			return m, nil
		case "ctrl+r":
			return m, m.refreshTopics()
		case "enter":
			text := m.input.Value()
			if m.creating {
				m.leaveCreate()
				return m, m.createTopic(text)
			}
			return m, m.send(text)
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.timeline, cmd = m.timeline.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// View draws the screen.
func (m Model) View() string {
	if m.width == 0 {
		return "loading..."
	}
	t := m.theme

	status := "no topic"
	if m.view.HasSelection {
		st := m.view.Status.String()
		status = fmt.Sprintf("#%s %s", m.view.Selected, t.statusStyle(st).Render(st))
	}
	header := t.header.Width(m.width - 2).Render(
		t.panelTitle.Render("wirechat") + "  " + m.username + "  " + status)

	sidebar := t.panel.Width(sidebarWidth).Height(m.timeline.Height).Render(
		t.panelTitle.Render("topics") + "\n" + renderTopics(t, m.view, sidebarWidth-2))
	timeline := t.panel.Width(m.timeline.Width + 2).Render(m.timeline.View())
	body := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, timeline)

	input := t.inputPanel.Width(m.width - 4).Render(m.input.View())

	footer := t.footer.Render(m.statusLine + "  ·  tab switch · enter send · ctrl+n new topic · ctrl+r refresh · esc quit")
	if m.errLine != "" {
		footer = t.errorLine.Render(m.errLine)
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, body, input, footer)
}

func (m *Model) resize() {
	w := m.width - sidebarWidth - 8
	h := m.height - 10
	m.timeline.Width = max(w, 10)
	m.timeline.Height = max(h, 3)
	m.input.Width = max(m.width-10, 10)
}

func (m *Model) renderTimeline() {
	m.timeline.SetContent(renderTimeline(m.theme, m.view, m.timeline.Width))
}

func (m *Model) leaveCreate() {
	m.creating = false
	m.input.Reset()
	m.input.Placeholder = "type a message, :emote: tokens welcome"
}

func (m Model) refreshView() tea.Cmd {
	ctx, backend := m.ctx, m.backend
	return func() tea.Msg {
		v, err := backend.View(ctx)
		return viewMsg{view: v, err: err}
	}
}

func waitUpdate(ch <-chan struct{}) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return updateMsg{}
	}
}

func (m Model) selectNeighbour(offset int) tea.Cmd {
	id, ok := neighbour(m.view, offset)
	if !ok {
		return nil
	}
	ctx, backend := m.ctx, m.backend
	return func() tea.Msg {
		if err := backend.Select(ctx, id); err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{status: "viewing #" + string(id)}
	}
}

func (m Model) send(text string) tea.Cmd {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	ctx, backend := m.ctx, m.backend
	return func() tea.Msg {
		if err := backend.Send(ctx, text); err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{sent: true}
	}
}

func (m Model) createTopic(name string) tea.Cmd {
	ctx, backend := m.ctx, m.backend
	return func() tea.Msg {
		if _, err := backend.CreateTopic(ctx, name); err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{status: "created #" + strings.TrimSpace(name)}
	}
}

func (m Model) refreshTopics() tea.Cmd {
	ctx, backend := m.ctx, m.backend
	return func() tea.Msg {
		ids, err := backend.Refresh(ctx)
		if err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{status: fmt.Sprintf("%d topics", len(ids))}
	}
}

// describeError prefers the user-facing text of core errors.
func describeError(err error) string {
	var ce *core.CoreError
	if errors.As(err, &ce) {
		return ce.Message
	}
	return err.Error()
}

// Run shows the chat screen until the user quits or ctx is cancelled.
func Run(ctx context.Context, backend Backend, username string) error {
	p := tea.NewProgram(New(ctx, backend, username), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
