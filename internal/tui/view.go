package tui

import (
	"fmt"
	"strings"

	"sessionsync/sdk/agent"
)

// View renders the whole viewer: tab bar, transcript, todo list, pending
// request banners, and the status line.
func (m Model) View() string {
	if m.width == 0 {
		return "Connecting..."
	}

	var s strings.Builder

	s.WriteString(m.renderTabs() + "\n")

	chrome := 2 // tab bar + status line
	banners := m.renderBanners()
	if banners != "" {
		chrome += strings.Count(banners, "\n") + 1
	}
	todos := m.renderTodos()
	if todos != "" {
		chrome += strings.Count(todos, "\n") + 1
	}

	chatHeight := m.height - chrome
	if chatHeight < 3 {
		chatHeight = 3
	}
	s.WriteString(m.renderChat(chatHeight))

	if todos != "" {
		s.WriteString(todos + "\n")
	}
	if banners != "" {
		s.WriteString(banners + "\n")
	}

	s.WriteString(m.renderStatusLine())

	return s.String()
}

func (m Model) renderTabs() string {
	title := headerStyle.Render(m.sub.SessionID())

	tabs := []string{"main"}
	for _, id := range m.frame.childIDs {
		label := id
		if st, ok := m.frame.childStatus[id]; ok && st.Kind != "idle" {
			label += " *"
		}
		tabs = append(tabs, label)
	}

	var rendered []string
	for i, label := range tabs {
		if i == m.tab {
			rendered = append(rendered, activeTabStyle.Render(label))
		} else {
			rendered = append(rendered, tabStyle.Render(label))
		}
	}

	return title + "  " + strings.Join(rendered, " ")
}

// renderChat builds the transcript and shows the last height lines, shifted
// up by the scroll offset.
func (m Model) renderChat(height int) string {
	var lines []string
	for _, entry := range m.frame.entries {
		lines = append(lines, m.renderEntry(entry)...)
		lines = append(lines, "")
	}

	if len(lines) == 0 {
		lines = []string{mutedStyle.Render("No messages yet.")}
	}

	// Clamp the scroll offset so the window stays inside the transcript.
	maxScroll := len(lines) - height
	if maxScroll < 0 {
		maxScroll = 0
	}
	scroll := m.scroll
	if scroll > maxScroll {
		scroll = maxScroll
	}

	end := len(lines) - scroll
	start := end - height
	if start < 0 {
		start = 0
	}

	var s strings.Builder
	for i := start; i < end; i++ {
		s.WriteString(lines[i] + "\n")
	}
	for i := end - start; i < height; i++ {
		s.WriteString("\n")
	}
	return s.String()
}

func (m Model) renderEntry(entry chatEntry) []string {
	var lines []string

	reverted := m.frame.revert != nil && m.tab == 0 && entry.info.ID >= m.frame.revert.MessageID

	prefix := promptStyle.Render("> ")
	if entry.info.IsAssistant() {
		prefix = responseStyle.Render("⏺ ")
	}

	if len(entry.parts) == 0 {
		lines = append(lines, prefix+mutedStyle.Render("(no content)"))
	}

	first := true
	for _, part := range entry.parts {
		if m.frame.revert != nil && m.tab == 0 && m.frame.revert.PartID != nil &&
			entry.info.ID == m.frame.revert.MessageID && part.ID >= *m.frame.revert.PartID {
			reverted = true
		}

		for _, line := range m.renderPart(part) {
			if first {
				lines = append(lines, prefix+line)
				first = false
				continue
			}
			lines = append(lines, "  "+line)
		}
	}

	if entry.info.Error != nil {
		lines = append(lines, "  "+errorStyle.Render("✗ "+entry.info.Error.Error()))
	}

	if reverted {
		for i, line := range lines {
			lines[i] = mutedStyle.Render("~ ") + line
		}
	}

	return lines
}

func (m Model) renderPart(part agent.Part) []string {
	switch part.Type {
	case agent.PartTypeText:
		return strings.Split(part.Text, "\n")

	case agent.PartTypeReasoning:
		text := part.Text
		if len(text) > 120 {
			text = text[:117] + "..."
		}
		return []string{mutedStyle.Render("(thinking) " + strings.ReplaceAll(text, "\n", " "))}

	case agent.PartTypeTool:
		status := "..."
		title := part.Tool
		if part.State != nil {
			if part.State.Title != "" {
				title = part.State.Title
			}
			switch part.State.Status {
			case "completed":
				status = "✓"
			case "error":
				status = "✗"
			}
		}
		return []string{toolStyle.Render("🔧 " + title + " " + status)}

	case agent.PartTypeFile:
		return []string{mutedStyle.Render("📄 " + part.Filename)}

	case agent.PartTypeStepStart, agent.PartTypeStepFinish, agent.PartTypeSnapshot:
		return nil

	default:
		return []string{mutedStyle.Render("[" + part.Type + "]")}
	}
}

func (m Model) renderTodos() string {
	if len(m.frame.todos) == 0 {
		return ""
	}

	var s strings.Builder
	s.WriteString(statusStyle.Render("  todos:"))
	for _, todo := range m.frame.todos {
		mark := "☐"
		switch todo.Status {
		case "completed":
			mark = "☑"
		case "in_progress":
			mark = "◐"
		case "cancelled":
			mark = "✗"
		}
		s.WriteString("\n  " + mutedStyle.Render(mark+" "+todo.Content))
	}
	return s.String()
}

func (m Model) renderBanners() string {
	var banners []string

	if len(m.frame.permissions) > 0 {
		p := m.frame.permissions[0]
		title := p.Title
		if title == "" {
			title = p.ID
		}
		banners = append(banners, bannerStyle.Render(
			fmt.Sprintf("permission: %s  [a]llow once  [A]lways  [d]eny", title)))
	}

	if len(m.frame.questions) > 0 {
		q := m.frame.questions[0]
		line := "question: " + q.Text
		for i, opt := range q.Options {
			line += fmt.Sprintf("  [%d] %s", i+1, opt)
		}
		line += "  [esc] reject"
		banners = append(banners, bannerStyle.Render(line))
	}

	return strings.Join(banners, "\n")
}

func (m Model) renderStatusLine() string {
	var parts []string

	switch {
	case m.frame.terminal:
		parts = append(parts, errorStyle.Render("disconnected ("+m.frame.streamErr+") · press r to reconnect"))
	case !m.frame.connected:
		reason := m.frame.streamErr
		if reason == "" {
			reason = "connecting"
		}
		parts = append(parts, warnStyle.Render("reconnecting: "+reason))
	default:
		parts = append(parts, statusStyle.Render("connected"))
	}

	switch m.frame.status.Kind {
	case "busy":
		parts = append(parts, responseStyle.Render("agent working..."))
	case "retry":
		parts = append(parts, warnStyle.Render(fmt.Sprintf("provider retry #%d", m.frame.status.Attempt)))
	case "error":
		parts = append(parts, errorStyle.Render("agent error"))
	}

	if m.frame.sessionErr != nil {
		parts = append(parts, errorStyle.Render(m.frame.sessionErr.Error()))
	}
	if m.frame.revert != nil {
		parts = append(parts, warnStyle.Render("reverted to "+m.frame.revert.MessageID))
	}
	if m.err != nil {
		parts = append(parts, errorStyle.Render(m.err.Error()))
	}

	parts = append(parts, statusStyle.Render("tab: sessions · q: quit"))

	return strings.Join(parts, statusStyle.Render(" · "))
}
