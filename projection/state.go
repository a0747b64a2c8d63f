// Package projection maintains a local, incrementally-updated view of a
// remote agent session. A snapshot fetch plus an unbounded SSE event stream
// are folded into one queryable state: messages, parts, activity status,
// pending permission/question requests, todos, a revert pointer, and nested
// projections for child sessions spawned during the conversation.
//
// The pieces compose as: Decode turns raw stream envelopes into Actions,
// Apply folds Actions into State, View serves memoized derived reads, the
// Supervisor keeps exactly one live stream connection with bounded-backoff
// reconnects, and the Syncer ties them together behind a subscription
// handle. All mutation is funnelled through a single goroutine per
// subscription, which is what keeps Apply lock-free and ordered.
package projection

import "sessionsync/sdk/agent"

// StatusKind enumerates the session activity states.
type StatusKind string

const (
	// StatusIdle means the agent is not working.
	StatusIdle StatusKind = "idle"
	// StatusBusy means the agent is producing a turn.
	StatusBusy StatusKind = "busy"
	// StatusRetry means the agent hit a transient failure and is retrying.
	StatusRetry StatusKind = "retry"
	// StatusError means the last turn failed.
	StatusError StatusKind = "error"
)

// Status is the server-reported activity of the agent session. It is
// tracked independently from the stream connection state; the two are never
// conflated.
type Status struct {
	Kind    StatusKind
	Attempt int // retry attempt, set when Kind == StatusRetry
}

// statusFromWire maps the wire status object to the internal variant. A nil
// wire status means idle.
func statusFromWire(ws *agent.Status) Status {
	if ws == nil {
		return Status{Kind: StatusIdle}
	}
	switch ws.Type {
	case "busy":
		return Status{Kind: StatusBusy}
	case "retry":
		return Status{Kind: StatusRetry, Attempt: ws.Attempt}
	case "error":
		return Status{Kind: StatusError}
	default:
		return Status{Kind: StatusIdle}
	}
}

// ChildState is the nested projection kept for one child session. It is
// structurally a subset of State: messages, parts, and activity status.
type ChildState struct {
	Messages map[string]agent.Message
	Parts    map[string]map[string]agent.Part // messageID -> partID -> part

	Status Status

	messagesRev uint64
	partsRev    uint64
}

func newChildState() *ChildState {
	return &ChildState{
		Messages: make(map[string]agent.Message),
		Parts:    make(map[string]map[string]agent.Part),
		Status:   Status{Kind: StatusIdle},
	}
}

// State is the full projection for one primary session. It is owned by a
// single dispatch goroutine; readers go through View.
type State struct {
	SessionID string

	Messages map[string]agent.Message
	Parts    map[string]map[string]agent.Part // messageID -> partID -> part

	Status       Status
	Permissions  []agent.PermissionRequest
	Questions    []agent.QuestionRequest
	Todos        []agent.Todo
	Revert       *agent.Revert
	SessionError *agent.MessageError

	// Stream connection state, distinct from Status above.
	Connected   bool
	StreamError string
	Terminal    bool // retry ceiling exceeded; only manual reconnect recovers

	Children map[string]*ChildState

	// Revision counters bumped on structural change; View compares them to
	// decide when a derived cache is stale.
	messagesRev uint64
	partsRev    uint64
}

// NewState returns the initial empty projection for a session id.
func NewState(sessionID string) *State {
	return &State{
		SessionID: sessionID,
		Messages:  make(map[string]agent.Message),
		Parts:     make(map[string]map[string]agent.Part),
		Status:    Status{Kind: StatusIdle},
		Children:  make(map[string]*ChildState),
	}
}

// child returns the nested projection for a child session id, creating it on
// first use. Child projections are never destroyed individually; only a full
// reset discards them.
func (s *State) child(id string) *ChildState {
	c, ok := s.Children[id]
	if !ok {
		c = newChildState()
		s.Children[id] = c
	}
	return c
}
