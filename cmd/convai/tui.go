package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	convai "github.com/koscakluka/ema-convai/core"
	"github.com/muesli/reflow/wordwrap"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	agentStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	tentativeStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("8"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

const helpText = "enter send • ctrl+u contextual update • ctrl+f like • ctrl+d dislike • ctrl+t mute • esc quit"

type (
	startedMsg    struct{ err error }
	endedMsg      struct{}
	statusMsg     convai.Status
	modeMsg       convai.Mode
	messageMsg    convai.Message
	tentativeMsg  string
	muteMsg       bool
	feedbackMsg   bool
	errorMsg      struct{ err error }
	disconnectMsg convai.DisconnectDetails
)

type session interface {
	StartSession(ctx context.Context, opts ...convai.StartOption) error
	EndSession(ctx context.Context) error
	SendUserMessage(text string) error
	SendContextualUpdate(text string) error
	SendUserActivity() error
	SendFeedback(positive bool) error
	ToggleMute() error
}

type model struct {
	ctx          context.Context
	session      session
	startOptions []convai.StartOption

	input    textinput.Model
	viewport viewport.Model
	ready    bool
	width    int

	transcript []convai.Message
	tentative  string
	notice     string
	lastErr    error

	status          convai.Status
	mode            convai.Mode
	muted           bool
	canSendFeedback bool
	ending          bool
}

func newModel(ctx context.Context, startOptions ...convai.StartOption) *model {
	input := textinput.New()
	input.Placeholder = "Type a message"
	input.Prompt = "> "
	input.Focus()

	return &model{
		ctx:          ctx,
		startOptions: startOptions,
		input:        input,
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.start)
}

func (m *model) start() tea.Msg {
	return startedMsg{err: m.session.StartSession(m.ctx, m.startOptions...)}
}

func (m *model) end() tea.Msg {
	_ = m.session.EndSession(m.ctx)
	return endedMsg{}
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}

	case startedMsg:
		if msg.err != nil {
			m.lastErr = msg.err
		}
	case endedMsg:
		return m, tea.Quit
	case statusMsg:
		m.status = convai.Status(msg)
	case modeMsg:
		m.mode = convai.Mode(msg)
	case messageMsg:
		if msg.Role == convai.RoleUser {
			m.tentative = ""
		}
		m.transcript = append(m.transcript, convai.Message(msg))
		m.refresh()
	case tentativeMsg:
		m.tentative = string(msg)
		m.refresh()
	case muteMsg:
		m.muted = bool(msg)
	case feedbackMsg:
		m.canSendFeedback = bool(msg)
	case errorMsg:
		m.lastErr = msg.err
	case disconnectMsg:
		m.notice = fmt.Sprintf("session ended by %s", msg.Reason)
		if msg.Err != nil {
			m.lastErr = msg.Err
		}
		if msg.Reason != convai.DisconnectReasonUser {
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyCtrlC:
		if m.ending {
			return nil, true
		}
		m.ending = true
		m.notice = "ending session"
		return m.end, true

	case tea.KeyEnter:
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return nil, true
		}
		m.input.Reset()
		if err := m.session.SendUserMessage(text); err != nil {
			return m.report(err), true
		}
		m.transcript = append(m.transcript, convai.Message{Role: convai.RoleUser, Text: text})
		m.refresh()
		return nil, true

	case tea.KeyCtrlU:
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return nil, true
		}
		m.input.Reset()
		m.notice = "contextual update sent"
		return m.report(m.session.SendContextualUpdate(text)), true

	case tea.KeyCtrlF, tea.KeyCtrlD:
		positive := msg.Type == tea.KeyCtrlF
		if !m.canSendFeedback {
			m.notice = "nothing to rate yet"
			return nil, true
		}
		if err := m.session.SendFeedback(positive); err != nil {
			return m.report(err), true
		}
		if positive {
			m.notice = "liked the last response"
		} else {
			m.notice = "disliked the last response"
		}
		return nil, true

	case tea.KeyCtrlT:
		return m.report(m.session.ToggleMute()), true

	case tea.KeyRunes, tea.KeySpace, tea.KeyBackspace:
		// Typing tells the agent to hold off on speaking.
		_ = m.session.SendUserActivity()
	}
	return nil, false
}

func (m *model) report(err error) tea.Cmd {
	if err == nil {
		return nil
	}
	return func() tea.Msg { return errorMsg{err: err} }
}

func (m *model) resize(width, height int) {
	m.width = width
	m.input.Width = width - len(m.input.Prompt) - 1

	// header, status line, input, help and the notice line
	transcriptHeight := max(height-6, 1)
	if !m.ready {
		m.viewport = viewport.New(width, transcriptHeight)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = transcriptHeight
	}
	m.refresh()
}

func (m *model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(renderTranscript(m.transcript, m.tentative, m.width))
	m.viewport.GotoBottom()
}

func renderTranscript(transcript []convai.Message, tentative string, width int) string {
	var b strings.Builder
	for _, message := range transcript {
		label := agentStyle.Render("agent")
		if message.Role == convai.RoleUser {
			label = userStyle.Render("you")
		}
		b.WriteString(wrap(label+": "+message.Text, width))
		b.WriteString("\n")
	}
	if tentative != "" {
		b.WriteString(tentativeStyle.Render(wrap("you: "+tentative+"…", width)))
		b.WriteString("\n")
	}
	return b.String()
}

func wrap(text string, width int) string {
	if width <= 0 {
		return text
	}
	return wordwrap.String(text, width)
}

func (m *model) statusLine() string {
	feedback := "feedback unavailable"
	if m.canSendFeedback {
		feedback = "feedback available"
	}
	mic := "mic on"
	if m.muted {
		mic = "mic muted"
	}
	return statusStyle.Render(fmt.Sprintf("%s • agent %s • %s • %s", m.status, m.mode, mic, feedback))
}

func (m *model) View() string {
	if !m.ready {
		return "starting…"
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("convai"))
	b.WriteString("  ")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	switch {
	case m.lastErr != nil:
		b.WriteString(errorStyle.Render(wrap(m.lastErr.Error(), m.width)))
	case m.notice != "":
		b.WriteString(statusStyle.Render(m.notice))
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(helpText))
	return b.String()
}
