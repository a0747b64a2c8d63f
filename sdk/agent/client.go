// Package agent is the wire-level client for an OpenCode-compatible agent
// server: session CRUD, message snapshots, command endpoints, and the
// per-session SSE event stream.
//
// The client carries no projection state of its own; it hands raw envelopes
// to the projection package, which owns ordering and state.
//
// Example usage:
//
//	client := agent.NewClient("http://localhost:8000")
//
//	snapshot, err := client.ListMessages(ctx, sessionID, nil)
//
//	events, errs, err := client.SubscribeToSessionEvents(ctx, sessionID)
//	for event := range events {
//	    // feed into projection.Decode / projection.Apply
//	}
package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to one agent server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	directory  *string // optional directory query param
	logger     *Logger
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithDirectory sets the directory query parameter for all requests.
func WithDirectory(dir string) ClientOption {
	return func(client *Client) {
		client.directory = &dir
	}
}

// WithTimeout sets the HTTP client timeout. It does not apply to SSE
// requests, which stay open indefinitely.
func WithTimeout(d time.Duration) ClientOption {
	return func(client *Client) {
		client.httpClient.Timeout = d
	}
}

// WithLogger sets the client logger.
func WithLogger(l *Logger) ClientOption {
	return func(client *Client) {
		if l != nil {
			client.logger = l
		}
	}
}

// NewClient creates a new client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: GetLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the configured server URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// addDirectoryParam adds the directory query parameter if set.
func (c *Client) addDirectoryParam(u *url.URL) {
	if c.directory != nil {
		q := u.Query()
		q.Set("directory", *c.directory)
		u.RawQuery = q.Encode()
	}
}

// buildURL builds a URL with the directory parameter.
func (c *Client) buildURL(path string, queryParams ...map[string]string) string {
	u, _ := url.Parse(c.baseURL + path)
	c.addDirectoryParam(u)

	if len(queryParams) > 0 {
		q := u.Query()
		for _, params := range queryParams {
			for k, v := range params {
				q.Set(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	return u.String()
}

// doRequest performs an HTTP request and decodes the JSON response.
func (c *Client) doRequest(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	reqURL := c.buildURL(path)
	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	rl := c.logger.StartRequest(method, path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		rl.Error(err)
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(bodyBytes))
		rl.Error(err)
		return err
	}
	rl.Success(resp.StatusCode)

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// doSSERequest opens an SSE stream and returns envelope and error channels.
// Both channels close when the stream ends; cancel the context to stop.
func (c *Client) doSSERequest(ctx context.Context, method, path string) (<-chan *Event, <-chan error, error) {
	reqURL := c.buildURL(path)
	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Connection", "keep-alive")

	// A client without timeout; SSE connections are long-lived.
	sseClient := &http.Client{Transport: c.httpClient.Transport}
	resp, err := sseClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode >= 400 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(bodyBytes))
	}

	eventCh := make(chan *Event, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(eventCh)
		defer close(errCh)
		defer resp.Body.Close()

		reader := bufio.NewReader(resp.Body)
		var eventType string
		var dataLines []string

		for {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			default:
			}

			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF && ctx.Err() == nil {
					errCh <- err
				}
				return
			}

			line = strings.TrimSpace(line)

			if line == "" {
				// Empty line = end of event
				if eventType != "" || len(dataLines) > 0 {
					data := strings.Join(dataLines, "\n")
					if data != "" {
						var event Event
						if err := json.Unmarshal([]byte(data), &event); err != nil {
							// Data is the bare properties object
							event = Event{Type: eventType, Properties: json.RawMessage(data)}
						}
						if event.Type == "" {
							event.Type = eventType
						}
						select {
						case eventCh <- &event:
						case <-ctx.Done():
							errCh <- ctx.Err()
							return
						}
					}
					eventType = ""
					dataLines = nil
				}
				continue
			}

			if strings.HasPrefix(line, "event:") {
				eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			} else if strings.HasPrefix(line, "data:") {
				dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			}
		}
	}()

	return eventCh, errCh, nil
}

// =============================================================================
// Health
// =============================================================================

// Health checks the server health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var result HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/health", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// =============================================================================
// Sessions
// =============================================================================

// ListSessions returns all sessions.
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	var result []Session
	if err := c.doRequest(ctx, http.MethodGet, "/session", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// CreateSession creates a new session.
func (c *Client) CreateSession(ctx context.Context, req *CreateSessionRequest) (*Session, error) {
	if req == nil {
		req = &CreateSessionRequest{}
	}
	var result Session
	if err := c.doRequest(ctx, http.MethodPost, "/session", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetSession retrieves a session by ID.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var result Session
	if err := c.doRequest(ctx, http.MethodGet, "/session/"+sessionID, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// =============================================================================
// Snapshot
// =============================================================================

// ListMessages fetches the message snapshot for a session. The server may
// answer with either snapshot shape; the result is always normalized.
func (c *Client) ListMessages(ctx context.Context, sessionID string, limit *int) ([]MessageWithParts, error) {
	path := "/session/" + sessionID + "/message"
	if limit != nil {
		path = fmt.Sprintf("%s?limit=%d", path, *limit)
	}

	var result Snapshot
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Messages, nil
}

// =============================================================================
// Commands
// =============================================================================
//
// Side effects of these endpoints are only ever observed through the event
// stream; nothing here feeds the projection directly.

// SendMessage submits a prompt. The resulting assistant activity arrives via
// the session event stream.
func (c *Client) SendMessage(ctx context.Context, sessionID string, req *PromptRequest) (*Message, error) {
	var result Message
	if err := c.doRequest(ctx, http.MethodPost, "/session/"+sessionID+"/message", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// AbortSession aborts the session's current turn.
func (c *Client) AbortSession(ctx context.Context, sessionID string) error {
	var result bool
	return c.doRequest(ctx, http.MethodPost, "/session/"+sessionID+"/abort", nil, &result)
}

// ReplyToPermission answers a pending permission request.
func (c *Client) ReplyToPermission(ctx context.Context, sessionID, permissionID string, reply *PermissionReply) error {
	var result bool
	path := fmt.Sprintf("/session/%s/permission/%s", sessionID, permissionID)
	return c.doRequest(ctx, http.MethodPost, path, reply, &result)
}

// ReplyToQuestion answers or rejects a pending question.
func (c *Client) ReplyToQuestion(ctx context.Context, sessionID, questionID string, reply *QuestionReply) error {
	var result bool
	path := fmt.Sprintf("/session/%s/question/%s", sessionID, questionID)
	return c.doRequest(ctx, http.MethodPost, path, reply, &result)
}

// =============================================================================
// Events
// =============================================================================

// SubscribeToSessionEvents opens the session-scoped event stream. Events
// arrive in delivery order; reconnecting re-opens the same logical channel
// from "now" (there is no resume cursor).
func (c *Client) SubscribeToSessionEvents(ctx context.Context, sessionID string) (<-chan *Event, <-chan error, error) {
	return c.doSSERequest(ctx, http.MethodGet, "/session/"+sessionID+"/event")
}
