package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chat-cli/internal/app"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const refreshInterval = 500 * time.Millisecond

// Model is the interactive chat view over one session. It renders the
// transcript projection, forwards turns to the SessionStore, and publishes
// visibility for in-flight responses so off-screen jobs stop burning poll
// calls.
type Model struct {
	application *app.Application
	sessionID   string

	input        textarea.Model
	scrollOffset int
	windowWidth  int
	windowHeight int

	// lastTurnID tracks the message a cancel key applies to.
	lastTurnID string
	// published remembers the last visibility value sent per response id
	// so scrolling only publishes changes.
	published map[string]bool

	// history is the persisted prompt recall list; historyIdx points one
	// past the entry currently recalled (len(history) means "not browsing").
	history    []string
	historyIdx int
}

type refreshMsg struct{}

type turnSentMsg struct {
	messageID string
	err       error
}

func New(application *app.Application, sessionID string) *Model {
	ta := textarea.New()
	ta.Placeholder = "Type a message, /checkpoint to compact…"
	ta.Focus()
	ta.CharLimit = 8000
	ta.SetWidth(80)
	ta.SetHeight(3)
	ta.Prompt = "▍ "
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.BlurredStyle.CursorLine = lipgloss.NewStyle()

	history := application.PromptHistory()
	return &Model{
		application:  application,
		sessionID:    sessionID,
		input:        ta,
		windowWidth:  80,
		windowHeight: 24,
		published:    map[string]bool{},
		history:      history,
		historyIdx:   len(history),
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.refreshCmd())
}

func (m *Model) refreshCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return refreshMsg{}
	})
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.windowWidth = msg.Width
		m.windowHeight = msg.Height
		m.input.SetWidth(msg.Width - 4)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.Reset()
			m.scrollOffset = 0
			m.application.RecordPrompt(text)
			m.history = append(m.history, text)
			m.historyIdx = len(m.history)
			return m, m.sendTurn(text)

		case "esc":
			if m.lastTurnID != "" {
				_ = m.application.Store.Cancel(m.sessionID, m.lastTurnID)
				m.lastTurnID = ""
			}
			return m, nil

		case "ctrl+left":
			m.selectBranch(-1)
			return m, nil

		case "ctrl+right":
			m.selectBranch(1)
			return m, nil

		case "ctrl+r":
			if m.lastTurnID != "" {
				_ = m.application.Store.Regenerate(context.Background(), m.sessionID, m.lastTurnID)
			}
			return m, nil

		case "ctrl+p":
			m.recallHistory(-1)
			return m, nil

		case "ctrl+n":
			m.recallHistory(1)
			return m, nil

		case "pgup":
			m.scrollOffset += m.transcriptHeight() / 2
			return m, nil

		case "pgdown":
			m.scrollOffset -= m.transcriptHeight() / 2
			if m.scrollOffset < 0 {
				m.scrollOffset = 0
			}
			return m, nil
		}

	case turnSentMsg:
		if msg.messageID != "" {
			m.lastTurnID = msg.messageID
		}
		return m, nil

	case refreshMsg:
		m.publishVisibility()
		return m, m.refreshCmd()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) sendTurn(text string) tea.Cmd {
	return func() tea.Msg {
		id, err := m.application.Store.SendTurn(context.Background(), m.sessionID, text, nil)
		return turnSentMsg{messageID: id, err: err}
	}
}

// recallHistory steps through the prompt history into the input. Stepping
// past the newest entry clears the input and leaves browse mode.
func (m *Model) recallHistory(delta int) {
	if len(m.history) == 0 {
		return
	}
	idx := m.historyIdx + delta
	if idx < 0 {
		idx = 0
	}
	if idx >= len(m.history) {
		m.historyIdx = len(m.history)
		m.input.Reset()
		return
	}
	m.historyIdx = idx
	m.input.SetValue(m.history[idx])
}

func (m *Model) selectBranch(delta int) {
	if m.lastTurnID == "" {
		return
	}
	_ = m.application.Store.SelectResponse(m.sessionID, m.lastTurnID, delta)
}

func (m *Model) transcriptHeight() int {
	h := m.windowHeight - m.input.Height() - 3
	if h < 3 {
		h = 3
	}
	return h
}

// renderedLine pairs one display line with the response it belongs to, if
// any, so visibility can be derived from what actually made it on screen.
type renderedLine struct {
	text       string
	responseID string
}

func (m *Model) renderTranscript() []renderedLine {
	sess, ok := m.application.Store.Session(m.sessionID)
	if !ok {
		return nil
	}
	var lines []renderedLine
	push := func(responseID, text string) {
		for _, l := range strings.Split(text, "\n") {
			lines = append(lines, renderedLine{text: l, responseID: responseID})
		}
	}

	for _, row := range app.Transcript(sess) {
		switch row.Role {
		case "user":
			push("", userStyle.Render("you ▸ ")+row.Content)
			if row.TopicNote != "" {
				push("", topicStyle.Render("↳ new topic: "+row.TopicNote))
			}
		case "assistant":
			badge := badgeStyle(row.Status).Render(app.StatusBadge(row.Status))
			header := badge
			if row.Branch != "" {
				header += " " + branchStyle.Render("["+row.Branch+"]")
			}
			push(row.ResponseID, header)
			if row.Content != "" {
				push(row.ResponseID, assistantStyle.Render(row.Content))
			}
			for _, logLine := range row.Logs {
				push(row.ResponseID, logStyle.Render(logLine))
			}
		}
		if row.CheckpointAfter != nil {
			push("", checkpointStyle.Render(fmt.Sprintf("── checkpoint (%s) ──", row.CheckpointAfter.Reason)))
		}
		push("", "")
	}
	return lines
}

// publishVisibility reports, per in-flight response, whether any of its
// rendered lines fall inside the visible window. Only changes are
// published.
func (m *Model) publishVisibility() {
	lines := m.renderTranscript()
	top, bottom := m.visibleRange(len(lines))

	visible := map[string]bool{}
	for i, line := range lines {
		if line.responseID == "" {
			continue
		}
		if _, ok := visible[line.responseID]; !ok {
			visible[line.responseID] = false
		}
		if i >= top && i < bottom {
			visible[line.responseID] = true
		}
	}
	for id, v := range visible {
		if prev, ok := m.published[id]; !ok || prev != v {
			m.application.Visibility.Set(id, v)
			m.published[id] = v
		}
	}
	for id := range m.published {
		if _, ok := visible[id]; !ok {
			delete(m.published, id)
		}
	}
}

func (m *Model) visibleRange(total int) (int, int) {
	height := m.transcriptHeight()
	bottom := total - m.scrollOffset
	if bottom > total {
		bottom = total
	}
	if bottom < 0 {
		bottom = 0
	}
	top := bottom - height
	if top < 0 {
		top = 0
	}
	return top, bottom
}

func (m *Model) View() string {
	lines := m.renderTranscript()
	top, bottom := m.visibleRange(len(lines))

	var b strings.Builder
	for _, line := range lines[top:bottom] {
		b.WriteString(line.text)
		b.WriteString("\n")
	}
	for i := bottom - top; i < m.transcriptHeight(); i++ {
		b.WriteString("\n")
	}

	if sess, ok := m.application.Store.Session(m.sessionID); ok && sess.LastError != "" {
		b.WriteString(errorBannerStyle.Render(sess.LastError))
		b.WriteString("\n")
	}

	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(statusBarStyle.Render("enter send · esc cancel · ctrl+r regenerate · ctrl+←/→ branch · ctrl+p/n history · pgup/pgdn scroll · ctrl+c quit"))
	return b.String()
}
