package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	ryazhenka "github.com/ryazhenka-chat/ryazhenka-go"
)

const windowSize = 100

// Messages injected from engine event handlers.
type (
	syncCompleteMsg    struct{ online int }
	syncErrorMsg       struct{ status string }
	deliveryChangedMsg struct{}
	deliveryFailedMsg  struct{ reason string }
)

// model is the Bubble Tea model for the chat screen.
type model struct {
	engine  *ryazhenka.Engine
	session ryazhenka.Session
	styles  styles

	viewport viewport.Model
	input    textinput.Model

	width  int
	height int
	ready  bool

	online  int
	status  string
	offline bool
}

func newModel(engine *ryazhenka.Engine, session ryazhenka.Session) *model {
	input := textinput.New()
	input.Placeholder = "Write a message..."
	input.CharLimit = 500
	input.Focus()

	return &model{
		engine:  engine,
		session: session,
		styles:  newStyles(),
		input:   input,
		status:  "connecting",
	}
}

func (m *model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		chromeHeight := 4 // header, status line, input, spacing
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-chromeHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - chromeHeight
		}
		m.refreshViewport()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.Reset()
			if _, err := m.engine.SubmitMessage(text); err != nil {
				m.status = err.Error()
				return m, nil
			}
			m.refreshViewport()
			return m, nil
		}

	case syncCompleteMsg:
		m.online = msg.online
		m.offline = false
		m.status = "connected"
		m.refreshViewport()
		return m, nil

	case syncErrorMsg:
		m.offline = true
		m.status = msg.status + ", retrying"
		return m, nil

	case deliveryChangedMsg:
		m.refreshViewport()
		return m, nil

	case deliveryFailedMsg:
		m.status = "message not delivered: " + msg.reason
		m.refreshViewport()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// refreshViewport re-renders the message window into the viewport and keeps
// the newest message in view.
func (m *model) refreshViewport() {
	if !m.ready {
		return
	}
	window := m.engine.RecentWindow(windowSize)
	lines := make([]string, 0, len(window))
	for _, msg := range window {
		lines = append(lines, m.renderMessage(msg))
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
	m.viewport.GotoBottom()
}

func (m *model) renderMessage(msg ryazhenka.Message) string {
	ts := m.styles.timestamp.Render(msg.CreatedAt.Local().Format("15:04"))

	author := msg.AuthorName
	authorStyle := m.styles.peerName
	if msg.AuthorID == m.session.UserID {
		author = "you"
		authorStyle = m.styles.ownName
	}

	body := msg.Body
	if msg.AttachmentRef != "" {
		body += m.styles.attachment.Render(" [attachment]")
	}

	var marker string
	switch msg.State {
	case ryazhenka.StatePending:
		marker = m.styles.pending.Render(" ...")
	case ryazhenka.StateSent:
		marker = m.styles.pending.Render(" sent")
	case ryazhenka.StateFailed:
		marker = m.styles.failed.Render(" failed")
	}

	return fmt.Sprintf("%s %s %s%s", ts, authorStyle.Render(author+":"), body, marker)
}

func (m *model) View() string {
	if !m.ready {
		return "loading..."
	}

	title := fmt.Sprintf(" Ryazhenka Chat  |  %s  |  %d online ", m.session.DisplayName, m.online)
	header := m.styles.header.Width(m.width).Render(title)

	status := m.status
	style := m.styles.statusOK
	if m.offline {
		style = m.styles.statusBad
	}
	statusLine := style.Render(" " + status)

	return header + "\n" + m.viewport.View() + "\n" + statusLine + "\n" + m.input.View()
}
