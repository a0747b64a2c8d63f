package projection

import (
	"context"
	"sync"

	"sessionsync/sdk/agent"
)

// Syncer builds subscriptions: one hydration fetch plus one supervised
// stream per active session id, folded into a private projection.
type Syncer struct {
	client    *agent.Client
	loader    Loader
	transport Transport
	backoff   Backoff
	logger    *agent.Logger
}

// SyncerOption configures a Syncer.
type SyncerOption func(*Syncer)

// WithLoader overrides the snapshot loader.
func WithLoader(l Loader) SyncerOption {
	return func(s *Syncer) { s.loader = l }
}

// WithTransport overrides the stream transport.
func WithTransport(t Transport) SyncerOption {
	return func(s *Syncer) { s.transport = t }
}

// WithBackoff overrides the reconnect policy.
func WithBackoff(b Backoff) SyncerOption {
	return func(s *Syncer) { s.backoff = b }
}

// WithLogger sets the engine logger.
func WithLogger(l *agent.Logger) SyncerOption {
	return func(s *Syncer) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSyncer creates a syncer over the given client.
func NewSyncer(client *agent.Client, opts ...SyncerOption) *Syncer {
	s := &Syncer{
		client:  client,
		backoff: DefaultBackoff,
		logger:  agent.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.loader == nil {
		s.loader = ClientLoader{Client: client}
	}
	if s.transport == nil {
		s.transport = ClientTransport{Client: client}
	}
	return s
}

// Subscription is a live, privately-owned projection of one session. All
// dispatch runs on a single goroutine (the mailbox loop); readers access the
// view through Read. Closing the subscription synchronously tears down the
// connection, timers, and the projection itself.
type Subscription struct {
	sessionID string

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state *State
	view  *View

	mailbox chan Action
	updates chan struct{}
	done    chan struct{}

	sup *Supervisor

	closeOnce sync.Once
}

// Subscribe starts syncing a session: the snapshot fetch and the stream
// connection begin concurrently, and the subscription is immediately
// readable (empty until the first dispatch lands).
func (s *Syncer) Subscribe(ctx context.Context, sessionID string) *Subscription {
	ctx, cancel := context.WithCancel(ctx)

	sub := &Subscription{
		sessionID: sessionID,
		ctx:       ctx,
		cancel:    cancel,
		state:     NewState(sessionID),
		mailbox:   make(chan Action, 128),
		updates:   make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	sub.view = NewView(sub.state)
	sub.sup = newSupervisor(sessionID, s.transport, s.backoff, s.logger, sub.deliver)

	go sub.loop()
	go hydrate(ctx, s.loader, sessionID, s.logger, sub.deliver)
	sub.sup.Start(ctx)

	return sub
}

// SessionID returns the session this subscription tracks.
func (sub *Subscription) SessionID() string { return sub.sessionID }

// Updates signals that the projection changed. Notifications are coalesced:
// a slow consumer sees at least one signal after any burst of changes. The
// channel is closed by Close.
func (sub *Subscription) Updates() <-chan struct{} { return sub.updates }

// Read runs fn with exclusive access to the view. The view must not be
// retained past fn.
func (sub *Subscription) Read(fn func(*View)) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	fn(sub.view)
}

// Dispatch injects an action directly into the mailbox, preserving the
// single-writer invariant. Intended for callers that learn something out of
// band (rare) and for tests.
func (sub *Subscription) Dispatch(a Action) bool {
	return sub.deliver(a)
}

// Reconnect manually restarts the stream after a terminal disconnect.
func (sub *Subscription) Reconnect() {
	sub.sup.Retry()
}

// Close tears the subscription down: it synchronously closes the transport
// connection, cancels any pending reconnect timer, waits for in-flight
// dispatch to finish, and clears the projection including all child
// projections. Safe to call more than once.
func (sub *Subscription) Close() {
	sub.closeOnce.Do(func() {
		sub.cancel()
		sub.sup.Close()
		<-sub.done

		sub.mu.Lock()
		Apply(sub.state, Cleared{})
		sub.mu.Unlock()

		close(sub.updates)
	})
}

// deliver queues an action, giving up when the subscription is being torn
// down. Returning false tells producers to stop.
func (sub *Subscription) deliver(a Action) bool {
	select {
	case sub.mailbox <- a:
		return true
	case <-sub.ctx.Done():
		return false
	}
}

// loop is the single writer: every action, whether from hydration, the
// supervisor, or Dispatch, is applied here in arrival order.
func (sub *Subscription) loop() {
	defer close(sub.done)
	for {
		select {
		case <-sub.ctx.Done():
			return
		case a := <-sub.mailbox:
			sub.mu.Lock()
			Apply(sub.state, a)
			sub.mu.Unlock()
			sub.notify()
		}
	}
}

// notify is a non-blocking, coalescing signal.
func (sub *Subscription) notify() {
	select {
	case sub.updates <- struct{}{}:
	default:
	}
}
