// Package tui is a terminal viewer for a live synced session: the chat
// transcript, pending requests, todos, child sessions, and the connection
// state, all rendered off the projection on every change signal.
package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"sessionsync/projection"
	"sessionsync/sdk/agent"
)

// changedMsg signals that the projection advanced.
type changedMsg struct{}

// closedMsg signals that the subscription shut down.
type closedMsg struct{}

// replyErrMsg carries a failed command-endpoint call.
type replyErrMsg struct{ err error }

// chatEntry is one message with its parts, copied out of the projection so
// View never touches shared state.
type chatEntry struct {
	info  agent.Message
	parts []agent.Part
}

// frame is the render snapshot taken under the subscription lock.
type frame struct {
	entries     []chatEntry
	status      projection.Status
	connected   bool
	streamErr   string
	terminal    bool
	sessionErr  *agent.MessageError
	revert      *agent.Revert
	permissions []agent.PermissionRequest
	questions   []agent.QuestionRequest
	todos       []agent.Todo
	childIDs    []string
	childStatus map[string]projection.Status
}

// Model is the viewer application model.
type Model struct {
	sub    *projection.Subscription
	client *agent.Client

	frame  frame
	tab    int // 0 = primary, 1.. = child sessions
	scroll int // lines scrolled up from the bottom of the chat

	width  int
	height int
	err    error
}

// New creates the viewer over an already started subscription. The client is
// used for permission and question replies; the subscription is the only
// source of display state.
func New(sub *projection.Subscription, client *agent.Client) Model {
	return Model{sub: sub, client: client}
}

// Init starts listening for projection changes.
func (m Model) Init() tea.Cmd {
	return m.waitForChange()
}

// waitForChange blocks on the subscription's coalesced change signal.
func (m Model) waitForChange() tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-m.sub.Updates(); !ok {
			return closedMsg{}
		}
		return changedMsg{}
	}
}

// snapshot copies everything the next render needs out of the projection.
func (m *Model) snapshot() {
	var f frame
	m.sub.Read(func(v *projection.View) {
		f.status = v.Status()
		f.connected = v.Connected()
		f.streamErr = v.StreamError()
		f.terminal = v.TerminalDisconnect()
		f.sessionErr = v.SessionError()
		f.revert = v.Revert()
		f.permissions = append(f.permissions, v.Permissions()...)
		f.questions = append(f.questions, v.Questions()...)
		f.todos = append(f.todos, v.Todos()...)
		f.childIDs = v.ChildIDs()

		f.childStatus = make(map[string]projection.Status, len(f.childIDs))
		for _, id := range f.childIDs {
			f.childStatus[id] = v.ChildStatus(id)
		}

		if m.tab > len(f.childIDs) {
			m.tab = 0
		}
		if m.tab == 0 {
			for _, info := range v.Messages() {
				f.entries = append(f.entries, chatEntry{info: info, parts: v.PartsForMessage(info.ID)})
			}
		} else {
			childID := f.childIDs[m.tab-1]
			for _, info := range v.ChildMessages(childID) {
				f.entries = append(f.entries, chatEntry{info: info, parts: v.ChildPartsForMessage(childID, info.ID)})
			}
		}
	})
	m.frame = f
}

// replyToPermission answers the given pending permission.
func (m Model) replyToPermission(id, response string) tea.Cmd {
	client, sessionID := m.client, m.sub.SessionID()
	return func() tea.Msg {
		err := client.ReplyToPermission(context.Background(), sessionID, id, &agent.PermissionReply{Response: response})
		if err != nil {
			return replyErrMsg{err: err}
		}
		return nil
	}
}

// replyToQuestion answers or rejects the given pending question.
func (m Model) replyToQuestion(id string, reply *agent.QuestionReply) tea.Cmd {
	client, sessionID := m.client, m.sub.SessionID()
	return func() tea.Msg {
		if err := client.ReplyToQuestion(context.Background(), sessionID, id, reply); err != nil {
			return replyErrMsg{err: err}
		}
		return nil
	}
}
