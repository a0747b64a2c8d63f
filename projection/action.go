package projection

import "sessionsync/sdk/agent"

// Action is the closed set of inputs the reducer understands. Primary and
// child-scoped variants are distinct types: a frame routed to a child session
// can never reach a primary reducer branch, and vice versa.
type Action interface {
	isAction()
}

// Init seeds the projection from a hydration snapshot. It uses the same
// upsert semantics as the live stream, so it is safe to apply before, after,
// or interleaved with streamed events.
type Init struct {
	Messages []agent.MessageWithParts
}

// MessageUpserted replaces or inserts a message by id.
type MessageUpserted struct {
	Info agent.Message
}

// MessageRemoved deletes a message and all of its parts.
type MessageRemoved struct {
	MessageID string
}

// PartUpserted inserts or replaces a part by (messageID, partID). The owning
// message does not have to exist yet; the part is retained regardless.
type PartUpserted struct {
	Part agent.Part
}

// PartRemoved deletes a part by (messageID, partID). No-op if absent.
type PartRemoved struct {
	MessageID string
	PartID    string
}

// StatusChanged replaces the session activity status.
type StatusChanged struct {
	Status Status
}

// PermissionAsked adds a permission request to the pending set.
type PermissionAsked struct {
	Request agent.PermissionRequest
}

// PermissionResolved removes a pending permission by id. No-op if absent.
type PermissionResolved struct {
	ID string
}

// QuestionAsked adds a question to the pending set.
type QuestionAsked struct {
	Request agent.QuestionRequest
}

// QuestionResolved removes a pending question by id, whether it was answered
// or rejected. No-op if absent.
type QuestionResolved struct {
	ID string
}

// TodosReplaced replaces the todo list wholesale.
type TodosReplaced struct {
	Todos []agent.Todo
}

// SessionUpdated replaces (or clears) the revert pointer.
type SessionUpdated struct {
	Revert *agent.Revert
}

// SessionFailed records a business-level session error and forces the
// activity status back to idle.
type SessionFailed struct {
	Err *agent.MessageError
}

// Connected marks the stream connected and clears any stream-level error.
type Connected struct{}

// Disconnected marks the stream disconnected. Terminal means the supervisor
// gave up and will not retry without manual intervention.
type Disconnected struct {
	Reason   string
	Terminal bool
}

// Cleared resets the projection, including all child projections, to its
// initial empty state.
type Cleared struct{}

// Child-scoped analogues. ChildID keys the nested projection, which is
// created lazily on first use.

// ChildMessageUpserted replaces or inserts a message in a child projection.
type ChildMessageUpserted struct {
	ChildID string
	Info    agent.Message
}

// ChildMessageRemoved deletes a child message and its parts.
type ChildMessageRemoved struct {
	ChildID   string
	MessageID string
}

// ChildPartUpserted inserts or replaces a part in a child projection.
type ChildPartUpserted struct {
	ChildID string
	Part    agent.Part
}

// ChildPartRemoved deletes a child part. No-op if absent.
type ChildPartRemoved struct {
	ChildID   string
	MessageID string
	PartID    string
}

// ChildStatusChanged replaces a child session's activity status.
type ChildStatusChanged struct {
	ChildID string
	Status  Status
}

func (Init) isAction()                {}
func (MessageUpserted) isAction()     {}
func (MessageRemoved) isAction()      {}
func (PartUpserted) isAction()        {}
func (PartRemoved) isAction()         {}
func (StatusChanged) isAction()       {}
func (PermissionAsked) isAction()     {}
func (PermissionResolved) isAction()  {}
func (QuestionAsked) isAction()       {}
func (QuestionResolved) isAction()    {}
func (TodosReplaced) isAction()       {}
func (SessionUpdated) isAction()      {}
func (SessionFailed) isAction()       {}
func (Connected) isAction()           {}
func (Disconnected) isAction()        {}
func (Cleared) isAction()             {}
func (ChildMessageUpserted) isAction() {}
func (ChildMessageRemoved) isAction() {}
func (ChildPartUpserted) isAction()   {}
func (ChildPartRemoved) isAction()    {}
func (ChildStatusChanged) isAction()  {}
