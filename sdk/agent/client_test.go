package agent_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"sessionsync/sdk/agent"
)

// testServer implements the agent API surface the client talks to.
type testServer struct {
	server   *httptest.Server
	sessions map[string]*agent.Session
	messages map[string][]agent.MessageWithParts // sessionID -> snapshot
	grouped  bool                                // answer the snapshot endpoint in grouped shape
	script   map[string][]*agent.Event           // sessionID -> stream frames
	mu       sync.RWMutex

	lastPermissionReply *agent.PermissionReply
	lastQuestionReply   *agent.QuestionReply
	aborted             bool
}

func newTestServer() *testServer {
	ts := &testServer{
		sessions: make(map[string]*agent.Session),
		messages: make(map[string][]agent.MessageWithParts),
		script:   make(map[string][]*agent.Event),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", ts.handleHealth)
	mux.HandleFunc("/session", ts.handleSessions)
	mux.HandleFunc("/session/", ts.handleSession)

	ts.server = httptest.NewServer(mux)
	return ts
}

func (ts *testServer) Close() {
	ts.server.Close()
}

func (ts *testServer) URL() string {
	return ts.server.URL
}

func (ts *testServer) addSession(s *agent.Session) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.sessions[s.ID] = s
}

func (ts *testServer) setSnapshot(sessionID string, messages []agent.MessageWithParts) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.messages[sessionID] = messages
}

func (ts *testServer) setScript(sessionID string, events []*agent.Event) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.script[sessionID] = events
}

func (ts *testServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(agent.HealthResponse{Status: "ok", Version: "0.1.0"})
}

func (ts *testServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		ts.mu.RLock()
		sessions := make([]agent.Session, 0, len(ts.sessions))
		for _, sess := range ts.sessions {
			sessions = append(sessions, *sess)
		}
		ts.mu.RUnlock()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sessions)

	case http.MethodPost:
		var req agent.CreateSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		ts.mu.Lock()
		now := agent.Now()
		session := &agent.Session{
			ID:    fmt.Sprintf("ses_%d", len(ts.sessions)+1),
			Title: "New Session",
			Time:  agent.SessionTime{Created: now, Updated: now},
		}
		if req.Title != nil {
			session.Title = *req.Title
		}
		if req.ParentID != nil {
			session.ParentID = req.ParentID
		}
		ts.sessions[session.ID] = session
		ts.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(session)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (ts *testServer) handleSession(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/session/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "invalid session ID", http.StatusBadRequest)
		return
	}
	sessionID := parts[0]

	ts.mu.RLock()
	session, ok := ts.sessions[sessionID]
	ts.mu.RUnlock()
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
		ts.handleMessages(w, r, sessionID)
	case "event":
		ts.handleEvents(w, r, sessionID)
	case "abort":
		ts.mu.Lock()
		ts.aborted = true
		ts.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(true)
	case "permission":
		var reply agent.PermissionReply
		if err := json.NewDecoder(r.Body).Decode(&reply); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ts.mu.Lock()
		ts.lastPermissionReply = &reply
		ts.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(true)
	case "question":
		var reply agent.QuestionReply
		if err := json.NewDecoder(r.Body).Decode(&reply); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ts.mu.Lock()
		ts.lastQuestionReply = &reply
		ts.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(true)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (ts *testServer) handleMessages(w http.ResponseWriter, r *http.Request, sessionID string) {
	switch r.Method {
	case http.MethodGet:
		ts.mu.RLock()
		messages := ts.messages[sessionID]
		grouped := ts.grouped
		ts.mu.RUnlock()

		w.Header().Set("Content-Type", "application/json")
		if grouped {
			json.NewEncoder(w).Encode(map[string]any{"messages": messages})
			return
		}
		// Flat shape: message fields at the top level, parts inline.
		flat := make([]map[string]any, 0, len(messages))
		for _, mwp := range messages {
			infoJSON, _ := json.Marshal(mwp.Info)
			var record map[string]any
			json.Unmarshal(infoJSON, &record)
			if len(mwp.Parts) > 0 {
				record["parts"] = mwp.Parts
			}
			flat = append(flat, record)
		}
		json.NewEncoder(w).Encode(flat)

	case http.MethodPost:
		var req agent.PromptRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		msg := agent.Message{
			ID:        "msg_user_1",
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

func (ts *testServer) handleEvents(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ts.mu.RLock()
	frames := ts.script[sessionID]
	ts.mu.RUnlock()

	for _, ev := range frames {
		data, _ := json.Marshal(ev)
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, string(data))
		flusher.Flush()
	}
}

func mustRaw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestNewClient(t *testing.T) {
	t.Run("basic client creation", func(t *testing.T) {
		client := agent.NewClient("http://localhost:8000")
		if client == nil {
			t.Fatal("expected non-nil client")
		}
		if client.BaseURL() != "http://localhost:8000" {
			t.Errorf("unexpected base URL %q", client.BaseURL())
		}
	})

	t.Run("trailing slash is trimmed", func(t *testing.T) {
		client := agent.NewClient("http://localhost:8000/")
		if client.BaseURL() != "http://localhost:8000" {
			t.Errorf("unexpected base URL %q", client.BaseURL())
		}
	})

	t.Run("client with options", func(t *testing.T) {
		httpClient := &http.Client{Timeout: 10 * time.Second}
		client := agent.NewClient("http://localhost:8000",
			agent.WithHTTPClient(httpClient),
			agent.WithDirectory("/test/dir"),
			agent.WithTimeout(5*time.Second),
		)
		if client == nil {
			t.Fatal("expected non-nil client")
		}
	})
}

func TestHealth(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	client := agent.NewClient(srv.URL())
	health, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("expected status ok, got %q", health.Status)
	}
}

func TestSessions(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	client := agent.NewClient(srv.URL())
	ctx := context.Background()

	t.Run("create", func(t *testing.T) {
		session, err := client.CreateSession(ctx, &agent.CreateSessionRequest{Title: agent.String("Debug run")})
		if err != nil {
			t.Fatalf("CreateSession() error = %v", err)
		}
		if session.Title != "Debug run" {
			t.Errorf("expected title to round-trip, got %q", session.Title)
		}
		if session.IsChild() {
			t.Error("session without parent reported as child")
		}
	})

	t.Run("create child", func(t *testing.T) {
		session, err := client.CreateSession(ctx, &agent.CreateSessionRequest{ParentID: agent.String("ses_1")})
		if err != nil {
			t.Fatalf("CreateSession() error = %v", err)
		}
		if !session.IsChild() {
			t.Error("expected child session")
		}
	})

	t.Run("list", func(t *testing.T) {
		sessions, err := client.ListSessions(ctx)
		if err != nil {
			t.Fatalf("ListSessions() error = %v", err)
		}
		if len(sessions) != 2 {
			t.Errorf("expected 2 sessions, got %d", len(sessions))
		}
	})

	t.Run("get", func(t *testing.T) {
		session, err := client.GetSession(ctx, "ses_1")
		if err != nil {
			t.Fatalf("GetSession() error = %v", err)
		}
		if session.ID != "ses_1" {
			t.Errorf("expected ses_1, got %q", session.ID)
		}
	})

	t.Run("get missing surfaces HTTP status", func(t *testing.T) {
		_, err := client.GetSession(ctx, "ses_nope")
		if err == nil {
			t.Fatal("expected error for unknown session")
		}
		if !strings.Contains(err.Error(), "HTTP 404") {
			t.Errorf("expected HTTP 404 in error, got %v", err)
		}
	})
}

func TestListMessages(t *testing.T) {
	snapshot := []agent.MessageWithParts{
		{
			Info: agent.Message{
				ID:        "msg_1",
				SessionID: "ses_1",
				Role:      "user",
				Time:      agent.MessageTime{Created: 100},
			},
			Parts: []agent.Part{
				{ID: "prt_1", MessageID: "msg_1", SessionID: "ses_1", Type: agent.PartTypeText, Text: "hi"},
			},
		},
		{
			Info: agent.Message{
				ID:        "msg_2",
				SessionID: "ses_1",
				Role:      "assistant",
				Time:      agent.MessageTime{Created: 200},
			},
		},
	}

	for _, grouped := range []bool{false, true} {
		name := "flat shape"
		if grouped {
			name = "grouped shape"
		}
		t.Run(name, func(t *testing.T) {
			srv := newTestServer()
			defer srv.Close()
			srv.grouped = grouped
			srv.addSession(&agent.Session{ID: "ses_1"})
			srv.setSnapshot("ses_1", snapshot)

			client := agent.NewClient(srv.URL())
			messages, err := client.ListMessages(context.Background(), "ses_1", nil)
			if err != nil {
				t.Fatalf("ListMessages() error = %v", err)
			}
			if len(messages) != 2 {
				t.Fatalf("expected 2 messages, got %d", len(messages))
			}
			if messages[0].Info.ID != "msg_1" || messages[1].Info.ID != "msg_2" {
				t.Errorf("unexpected message ids %q, %q", messages[0].Info.ID, messages[1].Info.ID)
			}
			if len(messages[0].Parts) != 1 || messages[0].Parts[0].Text != "hi" {
				t.Errorf("inline parts not preserved: %+v", messages[0].Parts)
			}
		})
	}

	t.Run("empty snapshot", func(t *testing.T) {
		srv := newTestServer()
		defer srv.Close()
		srv.addSession(&agent.Session{ID: "ses_1"})

		client := agent.NewClient(srv.URL())
		messages, err := client.ListMessages(context.Background(), "ses_1", nil)
		if err != nil {
			t.Fatalf("ListMessages() error = %v", err)
		}
		if len(messages) != 0 {
			t.Errorf("expected no messages, got %d", len(messages))
		}
	})
}

func TestCommands(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	srv.addSession(&agent.Session{ID: "ses_1"})

	client := agent.NewClient(srv.URL())
	ctx := context.Background()

	t.Run("send message", func(t *testing.T) {
		msg, err := client.SendMessage(ctx, "ses_1", &agent.PromptRequest{
			Parts: []any{agent.TextPartInput{Type: "text", Text: "hello"}},
		})
		if err != nil {
			t.Fatalf("SendMessage() error = %v", err)
		}
		if msg.Role != "user" {
			t.Errorf("expected user message back, got role %q", msg.Role)
		}
	})

	t.Run("abort", func(t *testing.T) {
		if err := client.AbortSession(ctx, "ses_1"); err != nil {
			t.Fatalf("AbortSession() error = %v", err)
		}
		srv.mu.RLock()
		defer srv.mu.RUnlock()
		if !srv.aborted {
			t.Error("abort did not reach the server")
		}
	})

	t.Run("reply to permission", func(t *testing.T) {
		err := client.ReplyToPermission(ctx, "ses_1", "perm_1", &agent.PermissionReply{Response: "once"})
		if err != nil {
			t.Fatalf("ReplyToPermission() error = %v", err)
		}
		srv.mu.RLock()
		defer srv.mu.RUnlock()
		if srv.lastPermissionReply == nil || srv.lastPermissionReply.Response != "once" {
			t.Errorf("reply not recorded: %+v", srv.lastPermissionReply)
		}
	})

	t.Run("reply to question", func(t *testing.T) {
		err := client.ReplyToQuestion(ctx, "ses_1", "que_1", &agent.QuestionReply{Answer: "yes"})
		if err != nil {
			t.Fatalf("ReplyToQuestion() error = %v", err)
		}
		srv.mu.RLock()
		defer srv.mu.RUnlock()
		if srv.lastQuestionReply == nil || srv.lastQuestionReply.Answer != "yes" {
			t.Errorf("reply not recorded: %+v", srv.lastQuestionReply)
		}
	})
}

func TestSubscribeToSessionEvents(t *testing.T) {
	t.Run("receives scripted frames in order", func(t *testing.T) {
		srv := newTestServer()
		defer srv.Close()
		srv.addSession(&agent.Session{ID: "ses_1"})
		srv.setScript("ses_1", []*agent.Event{
			{Type: agent.EventSessionStatus, Properties: mustRaw(t, agent.StatusEvent{SessionID: "ses_1", Status: &agent.Status{Type: "busy"}})},
			{Type: agent.EventMessageUpdated, Properties: mustRaw(t, agent.MessageEvent{Info: agent.Message{ID: "msg_1", SessionID: "ses_1", Role: "assistant"}})},
			{Type: agent.EventSessionIdle, Properties: mustRaw(t, agent.IdleEvent{SessionID: "ses_1"})},
		})

		client := agent.NewClient(srv.URL())
		events, errs, err := client.SubscribeToSessionEvents(context.Background(), "ses_1")
		if err != nil {
			t.Fatalf("SubscribeToSessionEvents() error = %v", err)
		}

		var got []string
		for ev := range events {
			got = append(got, ev.Type)
		}
		want := []string{agent.EventSessionStatus, agent.EventMessageUpdated, agent.EventSessionIdle}
		if len(got) != len(want) {
			t.Fatalf("expected %d events, got %d (%v)", len(want), len(got), got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("event %d: expected %q, got %q", i, want[i], got[i])
			}
		}

		for err := range errs {
			t.Errorf("unexpected stream error: %v", err)
		}
	})

	t.Run("properties stay raw until decoded", func(t *testing.T) {
		srv := newTestServer()
		defer srv.Close()
		srv.addSession(&agent.Session{ID: "ses_1"})
		srv.setScript("ses_1", []*agent.Event{
			{Type: agent.EventTodoUpdated, Properties: mustRaw(t, agent.TodoEvent{
				SessionID: "ses_1",
				Todos:     []agent.Todo{{ID: "todo_1", Content: "write tests", Status: "in_progress"}},
			})},
		})

		client := agent.NewClient(srv.URL())
		events, _, err := client.SubscribeToSessionEvents(context.Background(), "ses_1")
		if err != nil {
			t.Fatalf("SubscribeToSessionEvents() error = %v", err)
		}

		ev := <-events
		if ev == nil {
			t.Fatal("expected an event")
		}
		var payload agent.TodoEvent
		if err := json.Unmarshal(ev.Properties, &payload); err != nil {
			t.Fatalf("unmarshal properties: %v", err)
		}
		if len(payload.Todos) != 1 || payload.Todos[0].Content != "write tests" {
			t.Errorf("unexpected payload: %+v", payload)
		}
	})

	t.Run("cancel stops the stream", func(t *testing.T) {
		srv := newTestServer()
		defer srv.Close()
		srv.addSession(&agent.Session{ID: "ses_1"})

		ctx, cancel := context.WithCancel(context.Background())
		client := agent.NewClient(srv.URL())
		events, _, err := client.SubscribeToSessionEvents(ctx, "ses_1")
		if err != nil {
			t.Fatalf("SubscribeToSessionEvents() error = %v", err)
		}
		cancel()

		select {
		case _, open := <-events:
			if open {
				// Drain; the channel must close promptly after cancel.
				for range events {
				}
			}
		case <-time.After(2 * time.Second):
			t.Fatal("event channel did not close after cancel")
		}
	})

	t.Run("HTTP error on open", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "no such session", http.StatusNotFound)
		})
		srv := httptest.NewServer(handler)
		defer srv.Close()

		client := agent.NewClient(srv.URL)
		_, _, err := client.SubscribeToSessionEvents(context.Background(), "ses_nope")
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(err.Error(), "HTTP 404") {
			t.Errorf("expected HTTP 404 in error, got %v", err)
		}
	})
}
