package agent

import (
	"encoding/json"
	"fmt"
	"time"
)

// Now returns the current time as Unix milliseconds, the timestamp format
// used throughout the wire protocol.
func Now() int64 {
	return time.Now().UnixMilli()
}

// SessionTime holds session lifecycle timestamps.
type SessionTime struct {
	Created  int64  `json:"created"`
	Updated  int64  `json:"updated"`
	Archived *int64 `json:"archived,omitempty"`
}

// Revert points at the message (and optionally the part) a session has been
// rolled back to. A session carries at most one.
type Revert struct {
	MessageID string  `json:"messageID"`
	PartID    *string `json:"partID,omitempty"`
}

// Session is the server-side session record.
type Session struct {
	ID        string      `json:"id"`
	ProjectID string      `json:"projectID"`
	Directory string      `json:"directory"`
	Title     string      `json:"title"`
	Version   string      `json:"version"`
	Time      SessionTime `json:"time"`
	ParentID  *string     `json:"parentID,omitempty"`
	Revert    *Revert     `json:"revert,omitempty"`
}

// IsChild reports whether the session was spawned by another session.
func (s *Session) IsChild() bool {
	return s.ParentID != nil && *s.ParentID != ""
}

// Status describes server-reported agent activity, distinct from the state
// of the event-stream connection.
type Status struct {
	Type    string `json:"type"` // "idle", "busy", "retry", "error"
	Attempt int    `json:"attempt,omitempty"`
}

// MessageTime holds message timestamps.
type MessageTime struct {
	Created   int64  `json:"created"`
	Completed *int64 `json:"completed,omitempty"`
}

// TokenCache tracks prompt-cache token counts.
type TokenCache struct {
	Read  int `json:"read"`
	Write int `json:"write"`
}

// TokenUsage tracks token counts for an assistant message.
type TokenUsage struct {
	Input     int        `json:"input"`
	Output    int        `json:"output"`
	Reasoning int        `json:"reasoning"`
	Cache     TokenCache `json:"cache"`
}

// MessageError is the error payload attached to a failed message or carried
// by a session.error event.
type MessageError struct {
	Name    string `json:"name"`
	Message string `json:"message,omitempty"`
}

// Error implements the error interface.
func (e *MessageError) Error() string {
	if e.Message == "" {
		return e.Name
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// Message is a single conversation message. Parts are delivered separately
// and reference it by ID.
type Message struct {
	ID         string        `json:"id"`
	SessionID  string        `json:"sessionID"`
	Role       string        `json:"role"` // "user" or "assistant"
	Agent      string        `json:"agent,omitempty"`
	ModelID    string        `json:"modelID,omitempty"`
	ProviderID string        `json:"providerID,omitempty"`
	Cost       float64       `json:"cost,omitempty"`
	Tokens     *TokenUsage   `json:"tokens,omitempty"`
	Time       MessageTime   `json:"time"`
	Error      *MessageError `json:"error,omitempty"`
}

// IsAssistant reports whether the message was produced by the agent.
func (m *Message) IsAssistant() bool {
	return m.Role == "assistant"
}

// Part types observed on the wire.
const (
	PartTypeText       = "text"
	PartTypeReasoning  = "reasoning"
	PartTypeTool       = "tool"
	PartTypeFile       = "file"
	PartTypePatch      = "patch"
	PartTypeSnapshot   = "snapshot"
	PartTypeCompaction = "compaction"
	PartTypeRetry      = "retry"
	PartTypeStepStart  = "step-start"
	PartTypeStepFinish = "step-finish"
)

// TimeRange tracks when a part (or tool run) started and, once known, ended.
type TimeRange struct {
	Start int64  `json:"start"`
	End   *int64 `json:"end,omitempty"`
}

// ToolState is the lifecycle payload of a tool part.
type ToolState struct {
	Status   string         `json:"status"` // "pending", "running", "completed", "error"
	Input    map[string]any `json:"input,omitempty"`
	Output   string         `json:"output,omitempty"`
	Title    string         `json:"title,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Time     *TimeRange     `json:"time,omitempty"`
}

// Part is a typed fragment of a message. The populated fields depend on
// Type; unknown types still round-trip through ID/MessageID and are kept.
type Part struct {
	ID        string `json:"id"`
	MessageID string `json:"messageID"`
	SessionID string `json:"sessionID"`
	Type      string `json:"type"`

	Text     string     `json:"text,omitempty"`
	Tool     string     `json:"tool,omitempty"`
	CallID   string     `json:"callID,omitempty"`
	State    *ToolState `json:"state,omitempty"`
	Filename string     `json:"filename,omitempty"`
	URL      string     `json:"url,omitempty"`
	Hash     string     `json:"hash,omitempty"`
	Snapshot string     `json:"snapshot,omitempty"`

	Time   *TimeRange  `json:"time,omitempty"`
	Tokens *TokenUsage `json:"tokens,omitempty"`
	Cost   *float64    `json:"cost,omitempty"`
}

// IsText reports whether the part carries plain text content.
func (p *Part) IsText() bool {
	return p.Type == PartTypeText
}

// MessageWithParts pairs a message with the parts delivered for it.
type MessageWithParts struct {
	Info  Message `json:"info"`
	Parts []Part  `json:"parts"`
}

// Todo is one entry of a session's todo list. The list is always replaced
// wholesale, never diffed.
type Todo struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Status   string `json:"status"` // "pending", "in_progress", "completed", "cancelled"
	Priority string `json:"priority,omitempty"`
	Position int    `json:"position,omitempty"`
}

// PermissionRequest asks the user to approve a tool invocation.
type PermissionRequest struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionID"`
	MessageID string         `json:"messageID,omitempty"`
	Title     string         `json:"title,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Time      *TimeRange     `json:"time,omitempty"`
}

// QuestionRequest asks the user a free-form or multiple-choice question.
type QuestionRequest struct {
	ID        string   `json:"id"`
	SessionID string   `json:"sessionID"`
	Text      string   `json:"text"`
	Options   []string `json:"options,omitempty"`
}

// Event is the inbound stream envelope: a type tag plus a type-specific
// properties object kept raw until something decodes it.
type Event struct {
	Type       string          `json:"type"`
	Properties json.RawMessage `json:"properties"`
}

// Event types emitted on the session stream.
const (
	EventMessageUpdated     = "message.updated"
	EventMessageRemoved     = "message.removed"
	EventMessagePartUpdated = "message.part.updated"
	EventMessagePartRemoved = "message.part.removed"
	EventSessionStatus      = "session.status"
	EventSessionIdle        = "session.idle"
	EventPermissionAsked    = "permission.asked"
	EventPermissionReplied  = "permission.replied"
	EventQuestionAsked      = "question.asked"
	EventQuestionReplied    = "question.replied"
	EventQuestionRejected   = "question.rejected"
	EventTodoUpdated        = "todo.updated"
	EventSessionError       = "session.error"
	EventSessionUpdated     = "session.updated"
)

// Event property payloads.

// MessageEvent carries a full message for message.updated.
type MessageEvent struct {
	Info Message `json:"info"`
}

// MessageRemovedEvent carries the ids for message.removed.
type MessageRemovedEvent struct {
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
}

// PartEvent carries a full part for message.part.updated.
type PartEvent struct {
	Part Part `json:"part"`
}

// PartRemovedEvent carries the ids for message.part.removed.
type PartRemovedEvent struct {
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
	PartID    string `json:"partID"`
}

// StatusEvent carries the new activity status for session.status.
type StatusEvent struct {
	SessionID string  `json:"sessionID"`
	Status    *Status `json:"status,omitempty"`
}

// IdleEvent signals the session went idle.
type IdleEvent struct {
	SessionID string `json:"sessionID"`
}

// PermissionRepliedEvent removes a pending permission.
type PermissionRepliedEvent struct {
	SessionID    string `json:"sessionID"`
	PermissionID string `json:"permissionID"`
	Response     string `json:"response,omitempty"`
}

// QuestionRepliedEvent removes a pending question.
type QuestionRepliedEvent struct {
	SessionID  string `json:"sessionID"`
	QuestionID string `json:"questionID"`
	Answer     string `json:"answer,omitempty"`
}

// QuestionRejectedEvent removes a pending question without an answer.
type QuestionRejectedEvent struct {
	SessionID  string `json:"sessionID"`
	QuestionID string `json:"questionID"`
}

// TodoEvent carries the replacement todo list.
type TodoEvent struct {
	SessionID string `json:"sessionID"`
	Todos     []Todo `json:"todos"`
}

// SessionErrorEvent carries a business-level session failure.
type SessionErrorEvent struct {
	SessionID string        `json:"sessionID,omitempty"`
	Error     *MessageError `json:"error,omitempty"`
}

// SessionEvent carries the full session record for session.updated.
type SessionEvent struct {
	Info Session `json:"info"`
}

// Request/response bodies for the command endpoints.

// CreateSessionRequest creates a session.
type CreateSessionRequest struct {
	Title    *string `json:"title,omitempty"`
	ParentID *string `json:"parentID,omitempty"`
}

// TextPartInput is the text part shape accepted by the prompt endpoint.
type TextPartInput struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// PromptRequest sends a user prompt into a session.
type PromptRequest struct {
	Parts   []any   `json:"parts"`
	ModelID *string `json:"modelID,omitempty"`
}

// PermissionReply answers a pending permission request.
type PermissionReply struct {
	Response string `json:"response"` // "once", "always", "reject"
}

// QuestionReply answers a pending question.
type QuestionReply struct {
	Answer string `json:"answer,omitempty"`
	Reject bool   `json:"reject,omitempty"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// String returns a pointer to s.
func String(s string) *string {
	return &s
}

// Bool returns a pointer to b.
func Bool(b bool) *bool {
	return &b
}
