package projection

import (
	"sort"

	"sessionsync/sdk/agent"
)

// View serves derived reads over a State. Sorted slices are rebuilt only
// when the underlying maps have actually changed (tracked by the state's
// revision counters), since consumers query them on every update.
//
// A View is not safe for concurrent use with dispatch; the Subscription
// brokers access.
type View struct {
	s *State

	messagesBuilt bool
	messagesRev   uint64
	messages      []agent.Message

	partsRev uint64
	parts    map[string][]agent.Part

	children map[*ChildState]*childView
}

type childView struct {
	messagesBuilt bool
	messagesRev   uint64
	messages      []agent.Message

	partsRev uint64
	parts    map[string][]agent.Part
}

// NewView creates a view over a state.
func NewView(s *State) *View {
	return &View{s: s, children: make(map[*ChildState]*childView)}
}

// SessionID returns the primary session id.
func (v *View) SessionID() string { return v.s.SessionID }

// Messages returns all messages sorted ascending by creation time, with a
// stable id tie-break.
func (v *View) Messages() []agent.Message {
	if !v.messagesBuilt || v.messagesRev != v.s.messagesRev {
		v.messages = sortMessages(v.s.Messages)
		v.messagesRev = v.s.messagesRev
		v.messagesBuilt = true
	}
	return v.messages
}

// PartsForMessage returns the parts delivered for a message, sorted by part
// id. Parts that arrived before their owning message are included; a message
// id with no parts yields nil.
func (v *View) PartsForMessage(messageID string) []agent.Part {
	if v.parts == nil || v.partsRev != v.s.partsRev {
		v.parts = make(map[string][]agent.Part)
		v.partsRev = v.s.partsRev
	}
	if cached, ok := v.parts[messageID]; ok {
		return cached
	}
	sorted := sortParts(v.s.Parts[messageID])
	v.parts[messageID] = sorted
	return sorted
}

// Status returns the session activity status.
func (v *View) Status() Status { return v.s.Status }

// Connected reports whether the event stream is currently connected.
func (v *View) Connected() bool { return v.s.Connected }

// StreamError returns the last transport-level error, if any.
func (v *View) StreamError() string { return v.s.StreamError }

// TerminalDisconnect reports that automatic reconnection has given up;
// only a manual retry can recover the stream.
func (v *View) TerminalDisconnect() bool { return v.s.Terminal }

// SessionError returns the current business-level session error, if any.
func (v *View) SessionError() *agent.MessageError { return v.s.SessionError }

// Revert returns the current revert pointer, or nil.
func (v *View) Revert() *agent.Revert { return v.s.Revert }

// Permissions returns the pending permission requests in arrival order.
func (v *View) Permissions() []agent.PermissionRequest { return v.s.Permissions }

// Questions returns the pending questions in arrival order.
func (v *View) Questions() []agent.QuestionRequest { return v.s.Questions }

// Todos returns the current todo list.
func (v *View) Todos() []agent.Todo { return v.s.Todos }

// ChildIDs returns the ids of all child sessions observed so far, sorted.
func (v *View) ChildIDs() []string {
	ids := make([]string, 0, len(v.s.Children))
	for id := range v.s.Children {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ChildMessages returns a child session's messages sorted like Messages.
// Unknown child ids yield nil.
func (v *View) ChildMessages(childID string) []agent.Message {
	c, ok := v.s.Children[childID]
	if !ok {
		return nil
	}
	cv := v.childView(c)
	if !cv.messagesBuilt || cv.messagesRev != c.messagesRev {
		cv.messages = sortMessages(c.Messages)
		cv.messagesRev = c.messagesRev
		cv.messagesBuilt = true
	}
	return cv.messages
}

// ChildPartsForMessage returns a child message's parts sorted by part id.
func (v *View) ChildPartsForMessage(childID, messageID string) []agent.Part {
	c, ok := v.s.Children[childID]
	if !ok {
		return nil
	}
	cv := v.childView(c)
	if cv.parts == nil || cv.partsRev != c.partsRev {
		cv.parts = make(map[string][]agent.Part)
		cv.partsRev = c.partsRev
	}
	if cached, ok := cv.parts[messageID]; ok {
		return cached
	}
	sorted := sortParts(c.Parts[messageID])
	cv.parts[messageID] = sorted
	return sorted
}

// ChildStatus returns a child session's activity status. Unknown child ids
// report idle.
func (v *View) ChildStatus(childID string) Status {
	if c, ok := v.s.Children[childID]; ok {
		return c.Status
	}
	return Status{Kind: StatusIdle}
}

func (v *View) childView(c *ChildState) *childView {
	cv, ok := v.children[c]
	if !ok {
		cv = &childView{}
		v.children[c] = cv
	}
	return cv
}

func sortMessages(byID map[string]agent.Message) []agent.Message {
	out := make([]agent.Message, 0, len(byID))
	for _, m := range byID {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Time.Created != out[j].Time.Created {
			return out[i].Time.Created < out[j].Time.Created
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func sortParts(byID map[string]agent.Part) []agent.Part {
	if len(byID) == 0 {
		return nil
	}
	out := make([]agent.Part, 0, len(byID))
	for _, p := range byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
