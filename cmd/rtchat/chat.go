package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/CUknot/runtogether/feed"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Thread is the part of a feed the chat page drives.
type Thread interface {
	Messages() []feed.Message
	HasMore() bool
	LoadOlder(ctx context.Context) error
	Send(ctx context.Context, text string) (feed.Message, error)
	ShouldScroll(atBottom bool) bool
	Updates() <-chan struct{}
}

type updatedMsg struct{}

type sentMsg struct{}

type errMsg struct{ err error }

type ChatPage struct {
	ctx    context.Context
	thread Thread
	title  string
	me     uint

	viewport viewport.Model
	textbox  textarea.Model
	status   string
	sending  bool

	meStyle    lipgloss.Style
	otherStyle lipgloss.Style
	infoStyle  lipgloss.Style
}

func NewChatPage(ctx context.Context, thread Thread, title string, me uint) ChatPage {
	m := ChatPage{ctx: ctx, thread: thread, title: title, me: me}

	m.viewport = viewport.New(80, 14)

	m.textbox = textarea.New()
	m.textbox.Focus()
	m.textbox.Placeholder = "Send a message..."
	m.textbox.Prompt = "┃ "
	m.textbox.CharLimit = 4000
	m.textbox.ShowLineNumbers = false
	m.textbox.SetHeight(3)
	m.textbox.SetWidth(80)
	m.textbox.FocusedStyle.CursorLine = lipgloss.NewStyle()

	m.meStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff8")).Bold(true)
	m.otherStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#45f")).Bold(true)
	m.infoStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888"))

	m.viewport.SetContent(m.render())
	m.viewport.GotoBottom()
	return m
}

func (m ChatPage) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, waitForUpdate(m.thread))
}

func waitForUpdate(t Thread) tea.Cmd {
	return func() tea.Msg {
		<-t.Updates()
		return updatedMsg{}
	}
}

func (m ChatPage) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	cmds := make([]tea.Cmd, 2)

	m.viewport, cmds[0] = m.viewport.Update(msg)
	m.textbox, cmds[1] = m.textbox.Update(msg)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-m.textbox.Height()-6, 3)
		m.textbox.SetWidth(msg.Width)
		m.viewport.SetContent(m.render())
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "ctrl+s":
			text := strings.TrimSpace(m.textbox.Value())
			if text == "" || m.sending {
				break
			}
			m.sending = true
			cmds = append(cmds, m.send(text))
		case "ctrl+o":
			if !m.thread.HasMore() {
				m.status = "No older messages"
				break
			}
			cmds = append(cmds, m.loadOlder())
		}
	case updatedMsg:
		atBottom := m.viewport.AtBottom()
		m.viewport.SetContent(m.render())
		if m.thread.ShouldScroll(atBottom) {
			m.viewport.GotoBottom()
		}
		cmds = append(cmds, waitForUpdate(m.thread))
	case sentMsg:
		m.sending = false
		m.status = ""
		m.textbox.Reset()
	case errMsg:
		m.sending = false
		m.status = msg.err.Error()
		log.Printf("rtchat: %v", msg.err)
	}
	return m, tea.Batch(cmds...)
}

func (m ChatPage) send(text string) tea.Cmd {
	return func() tea.Msg {
		if _, err := m.thread.Send(m.ctx, text); err != nil {
			return errMsg{err}
		}
		return sentMsg{}
	}
}

func (m ChatPage) loadOlder() tea.Cmd {
	return func() tea.Msg {
		if err := m.thread.LoadOlder(m.ctx); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

func (m ChatPage) render() string {
	msgs := m.thread.Messages()
	if len(msgs) == 0 {
		return m.infoStyle.Render("No messages yet. Say hi!")
	}

	var b strings.Builder
	if m.thread.HasMore() {
		b.WriteString(m.infoStyle.Render("ctrl+o to load older messages") + "\n\n")
	}
	for _, msg := range msgs {
		b.WriteString(MessageToString(msg, m.styleFor(msg)) + "\n")
	}
	return b.String()
}

func (m ChatPage) styleFor(msg feed.Message) lipgloss.Style {
	if msg.AuthorID == m.me {
		return m.meStyle
	}
	return m.otherStyle
}

func MessageToString(msg feed.Message, authorStyle lipgloss.Style) string {
	header := authorStyle.Render(fmt.Sprintf("[%s] %s", msg.Initials(), msg.AuthorName))
	return header + " " + msg.CreatedAt.Local().Format("15:04") + "\n" + msg.Body + "\n"
}

func (m ChatPage) View() string {
	var s string

	s = fmt.Sprintf("%s\n", m.title)
	s += "_________________________\n"
	s += m.viewport.View() + "\n"
	s += "‾‾‾‾‾‾‾‾‾‾‾‾‾‾‾‾‾‾‾‾‾‾‾‾‾\n"
	s += m.textbox.View() + "\n"
	s += m.infoStyle.Render("ctrl+s to send • ctrl+o older messages • esc to quit") + "\n"

	if m.status != "" {
		s += fmt.Sprintf("Info: %s\n", m.status)
	}

	return s
}
