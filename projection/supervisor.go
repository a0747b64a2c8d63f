package projection

import (
	"context"
	"math"
	"sync"
	"time"

	"sessionsync/sdk/agent"
)

// Transport opens the session-scoped push stream. The SDK client is the
// production implementation; tests substitute stubs.
type Transport interface {
	Open(ctx context.Context, sessionID string) (<-chan *agent.Event, <-chan error, error)
}

// ClientTransport opens streams through the SDK client.
type ClientTransport struct {
	Client *agent.Client
}

// Open subscribes to the session event stream.
func (t ClientTransport) Open(ctx context.Context, sessionID string) (<-chan *agent.Event, <-chan error, error) {
	return t.Client.SubscribeToSessionEvents(ctx, sessionID)
}

// Backoff is the reconnect policy: delay for the nth consecutive failure is
// min(Base * Multiplier^(n-1), Cap); after MaxAttempts consecutive failures
// the supervisor stops retrying and surfaces a terminal disconnect.
type Backoff struct {
	Base        time.Duration
	Multiplier  float64
	Cap         time.Duration
	MaxAttempts int
}

// DefaultBackoff matches the server's recommended reconnect pacing.
var DefaultBackoff = Backoff{
	Base:        2 * time.Second,
	Multiplier:  1.5,
	Cap:         10 * time.Second,
	MaxAttempts: 15,
}

// Delay returns the wait before the given (1-based) attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(b.Base) * math.Pow(b.Multiplier, float64(attempt-1))
	if d > float64(b.Cap) {
		return b.Cap
	}
	return time.Duration(d)
}

// Supervisor owns at most one live stream connection for one session id. It
// decodes inbound frames, forwards the resulting actions, and reconnects
// with bounded exponential backoff on transport failure or a terminal
// session.error frame. Teardown is synchronous: once Close returns, no
// callback or timer can touch the mailbox again.
type Supervisor struct {
	sessionID string
	transport Transport
	backoff   Backoff
	logger    *agent.Logger
	deliver   func(Action) bool

	mu        sync.Mutex
	ctx       context.Context
	runCancel context.CancelFunc
	running   bool
	terminal  bool
	wg        sync.WaitGroup
}

func newSupervisor(sessionID string, t Transport, b Backoff, logger *agent.Logger, deliver func(Action) bool) *Supervisor {
	return &Supervisor{
		sessionID: sessionID,
		transport: t,
		backoff:   b,
		logger:    logger,
		deliver:   deliver,
	}
}

// Start launches the connect/consume/reconnect loop. The supervisor lives
// until ctx is cancelled or the retry ceiling is hit.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx
	s.launchLocked()
}

// Retry restarts a terminally-disconnected supervisor with a fresh attempt
// counter. It is a no-op while the loop is still running or after teardown.
func (s *Supervisor) Retry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || !s.terminal || s.ctx == nil || s.ctx.Err() != nil {
		return
	}
	s.terminal = false
	s.launchLocked()
}

func (s *Supervisor) launchLocked() {
	if s.running {
		return
	}
	runCtx, cancel := context.WithCancel(s.ctx)
	s.runCancel = cancel
	s.running = true
	s.wg.Add(1)
	go s.run(runCtx)
}

// Close synchronously stops the loop: it cancels the open connection and any
// pending reconnect timer, then waits for the goroutine to exit.
func (s *Supervisor) Close() {
	s.mu.Lock()
	cancel := s.runCancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Supervisor) run(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.wg.Done()
	}()

	attempts := 0
	for {
		if ctx.Err() != nil {
			return
		}

		// Each connection gets its own context so a forced reconnect (for
		// example after a session error frame) actually closes the old one.
		connCtx, connCancel := context.WithCancel(ctx)
		events, errs, err := s.transport.Open(connCtx, s.sessionID)
		if err != nil {
			connCancel()
			attempts++
			s.logger.Debug("stream open failed", "sessionID", s.sessionID, "attempt", attempts, "error", err)
			if !s.scheduleReconnect(ctx, attempts, err.Error()) {
				return
			}
			continue
		}

		attempts = 0
		s.deliver(Connected{})
		s.logger.Debug("stream connected", "sessionID", s.sessionID)

		reason, alive := s.consume(ctx, events, errs)
		connCancel()
		if !alive || ctx.Err() != nil {
			return
		}

		attempts++
		if !s.scheduleReconnect(ctx, attempts, reason) {
			return
		}
	}
}

// consume forwards decoded actions until the connection dies. A decoded
// session error is forwarded and then treated as fatal for the connection,
// even though the agent session itself may recover.
func (s *Supervisor) consume(ctx context.Context, events <-chan *agent.Event, errs <-chan error) (reason string, alive bool) {
	for {
		select {
		case <-ctx.Done():
			return "", false
		case err, ok := <-errs:
			if ok && err != nil {
				return err.Error(), true
			}
			// closed without an error: wait for the event channel to drain
			errs = nil
		case ev, ok := <-events:
			if !ok {
				return "stream closed", true
			}
			action, ok := Decode(s.sessionID, ev)
			if !ok {
				continue
			}
			if !s.deliver(action) {
				return "", false
			}
			if _, failed := action.(SessionFailed); failed {
				return "session error", true
			}
		}
	}
}

// scheduleReconnect reports the disconnect and waits out the backoff delay.
// It returns false when the loop should stop: teardown, or the retry ceiling
// was reached and the supervisor went terminal.
func (s *Supervisor) scheduleReconnect(ctx context.Context, attempt int, reason string) bool {
	if attempt >= s.backoff.MaxAttempts {
		s.logger.Warn("reconnect ceiling reached", "sessionID", s.sessionID, "attempts", attempt)
		s.mu.Lock()
		s.terminal = true
		s.mu.Unlock()
		s.deliver(Disconnected{Reason: reason, Terminal: true})
		return false
	}

	s.deliver(Disconnected{Reason: reason})

	delay := s.backoff.Delay(attempt)
	s.logger.Debug("reconnect scheduled", "sessionID", s.sessionID, "attempt", attempt, "delay", delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
