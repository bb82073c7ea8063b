package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"thinkshare/internal/convsync"
	"thinkshare/internal/models"
)

const quickReaction = "👍"

// synchronizer is the part of *convsync.Synchronizer the view drives.
type synchronizer interface {
	Snapshot() convsync.Snapshot
	SelectConversation(ctx context.Context, conversationID string) error
	SendMessage(content, replyTo string) (models.Message, error)
	SetTyping(isTyping bool)
	RefreshConversations(ctx context.Context) error
	Retry(ctx context.Context) error
	React(ctx context.Context, messageID, reaction string) error
}

type viewState int

const (
	viewConversations viewState = iota
	viewChat
)

type changedMsg struct{}

type errMsg struct {
	err error
}

type model struct {
	sync      synchronizer
	accountID string

	snap     convsync.Snapshot
	selected int
	view     viewState

	input    textinput.Model
	messages viewport.Model

	status string
	width  int
	height int
}

func newModel(sync synchronizer, accountID string) model {
	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.CharLimit = 4000
	input.Width = 60

	return model{
		sync:      sync,
		accountID: accountID,
		input:     input,
		messages:  viewport.New(80, 20),
		width:     80,
		height:    24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.refresh())
}

func (m model) refresh() tea.Cmd {
	return func() tea.Msg {
		if err := m.sync.RefreshConversations(context.Background()); err != nil {
			return errMsg{err: err}
		}
		return changedMsg{}
	}
}

func (m model) open(conversationID string) tea.Cmd {
	return func() tea.Msg {
		err := m.sync.SelectConversation(context.Background(), conversationID)
		if err != nil && !errors.Is(err, context.Canceled) {
			return errMsg{err: err}
		}
		return changedMsg{}
	}
}

func (m model) retry() tea.Cmd {
	return func() tea.Msg {
		if err := m.sync.Retry(context.Background()); err != nil {
			return errMsg{err: err}
		}
		return changedMsg{}
	}
}

func (m model) react(messageID string) tea.Cmd {
	return func() tea.Msg {
		if err := m.sync.React(context.Background(), messageID, quickReaction); err != nil {
			return errMsg{err: err}
		}
		return nil
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.messages.Width = msg.Width - 2
		m.messages.Height = msg.Height - 8
		m.input.Width = msg.Width - 4
		m.render()
		return m, nil

	case changedMsg:
		m.snap = m.sync.Snapshot()
		if m.selected >= len(m.snap.Conversations) {
			m.selected = max(0, len(m.snap.Conversations)-1)
		}
		m.render()
		return m, nil

	case errMsg:
		m.status = describe(msg.err)
		var failed *convsync.SendFailed
		if errors.As(msg.err, &failed) && failed.Op == "send" && m.input.Value() == "" {
			m.input.SetValue(failed.Content)
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.view == viewChat {
			return m.updateChat(msg)
		}
		return m.updateConversations(msg)
	}
	return m, nil
}

func (m model) updateConversations(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(m.snap.Conversations)-1 {
			m.selected++
		}
	case "r":
		return m, m.refresh()
	case "enter":
		if len(m.snap.Conversations) == 0 {
			return m, nil
		}
		conv := m.snap.Conversations[m.selected]
		m.view = viewChat
		m.status = ""
		m.input.Focus()
		return m, m.open(conv.ID)
	}
	return m, nil
}

func (m model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.sync.SetTyping(false)
		m.view = viewConversations
		m.input.Blur()
		return m, m.refresh()
	case "enter":
		content := m.input.Value()
		if _, err := m.sync.SendMessage(content, ""); err != nil {
			m.status = describe(err)
			return m, nil
		}
		m.input.SetValue("")
		m.status = ""
		return m, nil
	case "ctrl+r":
		m.status = ""
		return m, m.retry()
	case "ctrl+t":
		if last, ok := lastConfirmed(m.snap.Messages); ok {
			return m, m.react(last.ID)
		}
		return m, nil
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.messages, cmd = m.messages.Update(msg)
		return m, cmd
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if after := m.input.Value(); after != before {
		m.sync.SetTyping(strings.TrimSpace(after) != "")
	}
	return m, cmd
}

func lastConfirmed(msgs []models.Message) (models.Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if !msgs[i].Pending {
			return msgs[i], true
		}
	}
	return models.Message{}, false
}

func describe(err error) string {
	var (
		validation *convsync.ValidationError
		denied     *convsync.PermissionDenied
		failed     *convsync.SendFailed
		fetch      *convsync.FetchFailed
	)
	switch {
	case errors.As(err, &validation):
		return validation.Reason
	case errors.As(err, &failed):
		return fmt.Sprintf("could not %s, press enter to try again", failed.Op)
	case errors.As(err, &denied):
		return "you do not have access to this conversation"
	case errors.As(err, &fetch):
		return "could not load messages, ctrl+r to retry"
	default:
		return err.Error()
	}
}

// render refreshes the message viewport from the current snapshot.
func (m *model) render() {
	var b strings.Builder
	for _, msg := range m.snap.Messages {
		b.WriteString(m.renderMessage(msg))
		b.WriteString("\n")
	}
	m.messages.SetContent(b.String())
	m.messages.GotoBottom()
}

func (m model) renderMessage(msg models.Message) string {
	timestamp := mutedStyle.Render(msg.CreatedAt.Local().Format("15:04"))
	style := otherMessageStyle
	sender := msg.SenderID
	if msg.Sender != nil && msg.Sender.DisplayName != "" {
		sender = msg.Sender.DisplayName
	}
	if msg.SenderID == m.accountID {
		style = ownMessageStyle
		sender = "you"
	}

	line := fmt.Sprintf("%s %s: %s", timestamp, style.Render(sender), msg.Content)
	if msg.EditedAt != nil {
		line += mutedStyle.Render(" (edited)")
	}
	if msg.Pending {
		line += mutedStyle.Render(" …")
	} else if msg.SenderID == m.accountID && readByOthers(msg, m.accountID) {
		line += mutedStyle.Render(" ✓✓")
	}
	for reaction, who := range msg.Reactions {
		line += fmt.Sprintf(" %s%d", reaction, len(who))
	}
	return line
}

func readByOthers(msg models.Message, self string) bool {
	for _, id := range msg.ReadBy {
		if id != self && id != msg.SenderID {
			return true
		}
	}
	return false
}

func (m model) conversationTitle(conv models.Conversation) string {
	if conv.Type == models.ConversationGroup && conv.Name != "" {
		return conv.Name
	}
	for _, p := range conv.Participants {
		if p != m.accountID {
			return p
		}
	}
	return conv.ID
}

func (m model) presenceDot(conv models.Conversation) string {
	if conv.Type != models.ConversationDirect {
		return " "
	}
	for _, p := range conv.Participants {
		if p == m.accountID {
			continue
		}
		if pr, ok := m.snap.Presence[p]; ok {
			return presenceStyles[string(pr.Status)].Render("●")
		}
	}
	return mutedStyle.Render("○")
}

func (m model) View() string {
	if m.view == viewChat {
		return m.chatView()
	}
	return m.conversationsView()
}

func (m model) conversationsView() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("ThinkShare"))
	s.WriteString("\n\n")

	if len(m.snap.Conversations) == 0 {
		s.WriteString(mutedStyle.Render("  No conversations yet.\n"))
	}
	for i, conv := range m.snap.Conversations {
		prefix := "  "
		style := lipgloss.NewStyle()
		if i == m.selected {
			prefix = "→ "
			style = selectedStyle
		}
		icon := "💬"
		if conv.Type == models.ConversationGroup {
			icon = "👥"
		}
		line := fmt.Sprintf("%s%s %s %s", prefix, m.presenceDot(conv), icon, m.conversationTitle(conv))
		s.WriteString(style.Render(line))
		if conv.UnreadCount > 0 {
			s.WriteString(" " + unreadStyle.Render(fmt.Sprint(conv.UnreadCount)))
		}
		if conv.LastMessage != nil {
			s.WriteString(mutedStyle.Render("  " + truncate(conv.LastMessage.Content, 40)))
		}
		s.WriteString("\n")
	}

	if m.status != "" {
		s.WriteString("\n" + errorStyle.Render("  "+m.status) + "\n")
	}
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("  ↑/↓ navigate • Enter to open • r to refresh • q to quit"))
	return s.String()
}

func (m model) chatView() string {
	var s strings.Builder
	title := m.snap.ConversationID
	for _, conv := range m.snap.Conversations {
		if conv.ID == m.snap.ConversationID {
			title = m.conversationTitle(conv)
		}
	}
	header := titleStyle.Render(title)
	if m.snap.State != convsync.Ready {
		header += mutedStyle.Render(" " + m.snap.State.String())
	}
	rule := strings.Repeat("─", max(m.width-2, 0))

	s.WriteString(header + "\n" + rule + "\n")
	s.WriteString(m.messages.View())
	s.WriteString("\n")
	s.WriteString(mutedStyle.Render(typingLine(m.snap.Typing)))
	s.WriteString("\n" + rule + "\n")
	s.WriteString(m.input.View())
	s.WriteString("\n")
	if m.status != "" {
		s.WriteString(errorStyle.Render(m.status) + "\n")
	}
	s.WriteString(helpStyle.Render("Enter to send • Ctrl+T " + quickReaction + " last • Ctrl+R retry • Esc to go back"))
	return s.String()
}

func typingLine(typing []convsync.TypingIndicator) string {
	switch len(typing) {
	case 0:
		return ""
	case 1:
		return typing[0].AccountID + " is typing…"
	default:
		names := make([]string, 0, len(typing))
		for _, t := range typing {
			names = append(names, t.AccountID)
		}
		return strings.Join(names, ", ") + " are typing…"
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
