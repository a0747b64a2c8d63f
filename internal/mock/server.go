// Package mock runs a demo agent server: a snapshot endpoint plus a scripted
// per-session event stream that exercises every event the engine handles,
// including a child session spawned mid-conversation.
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/sjson"

	"sessionsync/sdk/agent"
)

const (
	demoSessionID = "ses_demo"
	childID       = "ses_demo_child"
)

type Server struct {
	port int

	mu       sync.Mutex
	sessions map[string]*agent.Session
	prompts  []string
}

func NewServer(port int) *Server {
	now := agent.Now()
	parent := demoSessionID
	return &Server{
		port: port,
		sessions: map[string]*agent.Session{
			demoSessionID: {
				ID:    demoSessionID,
				Title: "Demo conversation",
				Time:  agent.SessionTime{Created: now, Updated: now},
			},
			childID: {
				ID:       childID,
				Title:    "Research subtask",
				ParentID: &parent,
				Time:     agent.SessionTime{Created: now, Updated: now},
			},
		},
	}
}

func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/session", s.sessionsHandler)
	mux.HandleFunc("/session/", s.sessionHandler)

	addr := fmt.Sprintf(":%d", s.port)
	fmt.Printf("Mock agent server on http://localhost%s (session %s)\n", addr, demoSessionID)
	return http.ListenAndServe(addr, mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(agent.HealthResponse{Status: "ok", Version: "mock"})
}

func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	sessions := make([]agent.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, *sess)
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sessions)
}

func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/session/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "invalid session ID", http.StatusBadRequest)
		return
	}
	sessionID := parts[0]

	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	if len(parts) == 1 {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(session)
		return
	}

	switch parts[1] {
	case "message":
		s.messagesHandler(w, r, sessionID)
	case "event":
		s.eventsHandler(w, r, sessionID)
	case "abort", "permission", "question":
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(true)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// messagesHandler serves the snapshot. Grouped shape by default; ?flat=1
// answers with the flat array shape instead, so both decode paths get
// exercised against a live server.
func (s *Server) messagesHandler(w http.ResponseWriter, r *http.Request, sessionID string) {
	switch r.Method {
	case http.MethodGet:
		snapshot := seedMessages(sessionID)
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("flat") == "1" {
			flat := make([]json.RawMessage, 0, len(snapshot))
			for _, mwp := range snapshot {
				record, _ := json.Marshal(mwp.Info)
				if len(mwp.Parts) > 0 {
					partsJSON, _ := json.Marshal(mwp.Parts)
					record, _ = sjson.SetRawBytes(record, "parts", partsJSON)
				}
				flat = append(flat, record)
			}
			json.NewEncoder(w).Encode(flat)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"messages": snapshot})

	case http.MethodPost:
		var req agent.PromptRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.prompts = append(s.prompts, fmt.Sprintf("%v", req.Parts))
		s.mu.Unlock()

		msg := agent.Message{
			ID:        fmt.Sprintf("msg_user_%d", time.Now().UnixNano()),
			SessionID: sessionID,
			Role:      "user",
			Time:      agent.MessageTime{Created: agent.Now()},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(msg)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func seedMessages(sessionID string) []agent.MessageWithParts {
	base := agent.Now() - 60_000
	return []agent.MessageWithParts{
		{
			Info: agent.Message{
				ID:        "msg_seed_1",
				SessionID: sessionID,
				Role:      "user",
				Time:      agent.MessageTime{Created: base},
			},
			Parts: []agent.Part{{
				ID:        "prt_seed_1",
				MessageID: "msg_seed_1",
				SessionID: sessionID,
				Type:      agent.PartTypeText,
				Text:      "Summarize the repo layout for me.",
			}},
		},
		{
			Info: agent.Message{
				ID:        "msg_seed_2",
				SessionID: sessionID,
				Role:      "assistant",
				Time:      agent.MessageTime{Created: base + 1000},
			},
			Parts: []agent.Part{{
				ID:        "prt_seed_2",
				MessageID: "msg_seed_2",
				SessionID: sessionID,
				Type:      agent.PartTypeText,
				Text:      "The module has a wire client, a projection engine, and a terminal viewer.",
			}},
		},
	}
}

func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	playScript(r.Context(), w, flusher, sessionID)

	// Keep the stream open until the client goes away.
	<-r.Context().Done()
}

type emitter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	done    <-chan struct{}
}

// send writes one SSE frame. The payload is marshalled first, then any extra
// routing fields are spliced in, so the frames carry exactly the metadata a
// real server would attach.
func (e *emitter) send(eventType string, payload any, extra map[string]any) bool {
	select {
	case <-e.done:
		return false
	default:
	}

	props, err := json.Marshal(payload)
	if err != nil {
		return true
	}
	for key, value := range extra {
		props, _ = sjson.SetBytes(props, key, value)
	}

	envelope, _ := sjson.SetBytes([]byte(`{}`), "type", eventType)
	envelope, _ = sjson.SetRawBytes(envelope, "properties", props)

	fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", eventType, envelope)
	e.flusher.Flush()
	return true
}

func (e *emitter) pause(d time.Duration) bool {
	select {
	case <-e.done:
		return false
	case <-time.After(d):
		return true
	}
}

// playScript streams a scripted conversation covering the whole event
// taxonomy: streaming text, tool parts, a todo list, a permission and a
// question round-trip, a child session, a retry, and a revert.
func playScript(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, sessionID string) {
	e := &emitter{w: w, flusher: flusher, done: ctx.Done()}
	now := agent.Now()

	// The agent picks up a turn.
	e.send(agent.EventSessionStatus, agent.StatusEvent{SessionID: sessionID, Status: &agent.Status{Type: "busy"}}, nil)
	e.pause(200 * time.Millisecond)

	assistant := agent.Message{
		ID:        "msg_live_1",
		SessionID: sessionID,
		Role:      "assistant",
		Time:      agent.MessageTime{Created: now},
	}
	e.send(agent.EventMessageUpdated, agent.MessageEvent{Info: assistant}, nil)

	// Streaming text: the same part id, growing text.
	full := "Let me look at the build configuration before answering."
	for i := 8; ; i += 8 {
		if i > len(full) {
			i = len(full)
		}
		part := agent.Part{
			ID:        "prt_live_1",
			MessageID: assistant.ID,
			SessionID: sessionID,
			Type:      agent.PartTypeText,
			Text:      full[:i],
		}
		if !e.send(agent.EventMessagePartUpdated, agent.PartEvent{Part: part}, nil) {
			return
		}
		if i == len(full) {
			break
		}
		e.pause(80 * time.Millisecond)
	}

	// Todo list appears, then gets replaced wholesale.
	e.send(agent.EventTodoUpdated, agent.TodoEvent{SessionID: sessionID, Todos: []agent.Todo{
		{ID: "todo_1", Content: "Read build config", Status: "in_progress"},
		{ID: "todo_2", Content: "Answer the question", Status: "pending"},
	}}, nil)
	e.pause(300 * time.Millisecond)

	// Tool invocation guarded by a permission request.
	e.send(agent.EventPermissionAsked, agent.PermissionRequest{
		ID:        "perm_1",
		SessionID: sessionID,
		MessageID: assistant.ID,
		Title:     "Read go.mod",
	}, nil)
	e.pause(900 * time.Millisecond)
	e.send(agent.EventPermissionReplied, agent.PermissionRepliedEvent{
		SessionID:    sessionID,
		PermissionID: "perm_1",
		Response:     "once",
	}, nil)

	toolPart := agent.Part{
		ID:        "prt_live_2",
		MessageID: assistant.ID,
		SessionID: sessionID,
		Type:      agent.PartTypeTool,
		Tool:      "read",
		State:     &agent.ToolState{Status: "running", Title: "Reading go.mod"},
	}
	e.send(agent.EventMessagePartUpdated, agent.PartEvent{Part: toolPart}, nil)
	e.pause(400 * time.Millisecond)
	toolPart.State = &agent.ToolState{Status: "completed", Title: "Reading go.mod", Output: "module demo"}
	e.send(agent.EventMessagePartUpdated, agent.PartEvent{Part: toolPart}, nil)

	// A child session does a side investigation. Its frames carry the child
	// session id in the routing metadata.
	childMsg := agent.Message{
		ID:        "msg_child_1",
		SessionID: childID,
		Role:      "assistant",
		Time:      agent.MessageTime{Created: agent.Now()},
	}
	e.send(agent.EventSessionStatus, agent.StatusEvent{SessionID: childID, Status: &agent.Status{Type: "busy"}}, nil)
	e.send(agent.EventMessageUpdated, agent.MessageEvent{Info: childMsg}, nil)
	e.send(agent.EventMessagePartUpdated, agent.PartEvent{Part: agent.Part{
		ID:        "prt_child_1",
		MessageID: childMsg.ID,
		SessionID: childID,
		Type:      agent.PartTypeText,
		Text:      "Checked the dependency graph, nothing unusual.",
	}}, nil)
	e.pause(300 * time.Millisecond)
	e.send(agent.EventSessionIdle, agent.IdleEvent{SessionID: childID}, nil)

	// A question back to the user.
	e.send(agent.EventQuestionAsked, agent.QuestionRequest{
		ID:        "que_1",
		SessionID: sessionID,
		Text:      "Should I include test files in the summary?",
		Options:   []string{"yes", "no"},
	}, nil)
	e.pause(1200 * time.Millisecond)
	e.send(agent.EventQuestionReplied, agent.QuestionRepliedEvent{
		SessionID:  sessionID,
		QuestionID: "que_1",
		Answer:     "yes",
	}, nil)

	// Provider hiccup: a retry status, then recovery.
	e.send(agent.EventSessionStatus, agent.StatusEvent{SessionID: sessionID, Status: &agent.Status{Type: "retry", Attempt: 1}}, nil)
	e.pause(500 * time.Millisecond)
	e.send(agent.EventSessionStatus, agent.StatusEvent{SessionID: sessionID, Status: &agent.Status{Type: "busy"}}, nil)

	// The draft part is withdrawn and the final answer lands.
	e.send(agent.EventMessagePartRemoved, agent.PartRemovedEvent{
		SessionID: sessionID,
		MessageID: assistant.ID,
		PartID:    "prt_live_1",
	}, nil)
	e.send(agent.EventMessagePartUpdated, agent.PartEvent{Part: agent.Part{
		ID:        "prt_live_3",
		MessageID: assistant.ID,
		SessionID: sessionID,
		Type:      agent.PartTypeText,
		Text:      "Build config checked. The repo is a standard single-module layout with tests beside each package.",
	}}, nil)

	completed := agent.Now()
	assistant.Time.Completed = &completed
	e.send(agent.EventMessageUpdated, agent.MessageEvent{Info: assistant}, nil)

	// Revert marker set on the session record, then cleared.
	e.send(agent.EventSessionUpdated, agent.SessionEvent{Info: agent.Session{
		ID:     sessionID,
		Title:  "Demo conversation",
		Revert: &agent.Revert{MessageID: assistant.ID},
	}}, map[string]any{"isParent": true})
	e.pause(800 * time.Millisecond)
	e.send(agent.EventSessionUpdated, agent.SessionEvent{Info: agent.Session{
		ID:    sessionID,
		Title: "Demo conversation",
	}}, map[string]any{"isParent": true})

	e.send(agent.EventTodoUpdated, agent.TodoEvent{SessionID: sessionID, Todos: []agent.Todo{
		{ID: "todo_1", Content: "Read build config", Status: "completed"},
		{ID: "todo_2", Content: "Answer the question", Status: "completed"},
	}}, nil)

	e.send(agent.EventSessionIdle, agent.IdleEvent{SessionID: sessionID}, nil)
}
