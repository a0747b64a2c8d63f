package tui

import (
	"strconv"

	tea "github.com/charmbracelet/bubbletea"

	"sessionsync/sdk/agent"
)

// Update handles keys, projection change signals, and reply results.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case changedMsg:
		m.snapshot()
		return m, m.waitForChange()

	case closedMsg:
		return m, tea.Quit

	case replyErrMsg:
		m.err = msg.err
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "tab":
		m.tab = (m.tab + 1) % (len(m.frame.childIDs) + 1)
		m.scroll = 0
		m.snapshot()
		return m, nil

	case "shift+tab":
		tabs := len(m.frame.childIDs) + 1
		m.tab = (m.tab + tabs - 1) % tabs
		m.scroll = 0
		m.snapshot()
		return m, nil

	case "r":
		// Manual reconnect after the retry ceiling was hit.
		if m.frame.terminal {
			m.sub.Reconnect()
		}
		return m, nil

	case "up", "k":
		m.scroll++
		return m, nil

	case "down", "j":
		if m.scroll > 0 {
			m.scroll--
		}
		return m, nil

	case "pgup":
		m.scroll += 10
		return m, nil

	case "pgdown":
		m.scroll -= 10
		if m.scroll < 0 {
			m.scroll = 0
		}
		return m, nil

	case "end", "G":
		m.scroll = 0
		return m, nil

	case "a":
		if len(m.frame.permissions) > 0 {
			return m, m.replyToPermission(m.frame.permissions[0].ID, "once")
		}
		return m, nil

	case "A":
		if len(m.frame.permissions) > 0 {
			return m, m.replyToPermission(m.frame.permissions[0].ID, "always")
		}
		return m, nil

	case "d":
		if len(m.frame.permissions) > 0 {
			return m, m.replyToPermission(m.frame.permissions[0].ID, "reject")
		}
		return m, nil

	case "esc":
		if len(m.frame.questions) > 0 {
			return m, m.replyToQuestion(m.frame.questions[0].ID, &agent.QuestionReply{Reject: true})
		}
		return m, nil
	}

	// Number keys answer the first pending question by option index.
	if len(m.frame.questions) > 0 {
		if n, err := strconv.Atoi(msg.String()); err == nil {
			q := m.frame.questions[0]
			if n >= 1 && n <= len(q.Options) {
				return m, m.replyToQuestion(q.ID, &agent.QuestionReply{Answer: q.Options[n-1]})
			}
		}
	}

	return m, nil
}
