package projection

import (
	"context"

	"sessionsync/sdk/agent"
)

// Loader fetches the hydration snapshot for a session. It runs once per
// subscribe, concurrently with the stream connection; both sides use the
// same upsert semantics, so their ordering race is harmless.
type Loader interface {
	Load(ctx context.Context, sessionID string) ([]agent.MessageWithParts, error)
}

// ClientLoader loads snapshots through the SDK client.
type ClientLoader struct {
	Client *agent.Client
	Limit  *int
}

// Load fetches the message snapshot.
func (l ClientLoader) Load(ctx context.Context, sessionID string) ([]agent.MessageWithParts, error) {
	return l.Client.ListMessages(ctx, sessionID, l.Limit)
}

// hydrate fetches the snapshot and feeds it into the mailbox as an Init
// action. Failure is silent: the live stream is the long-term source of
// truth, so a failed snapshot only delays visibility.
func hydrate(ctx context.Context, loader Loader, sessionID string, logger *agent.Logger, deliver func(Action) bool) {
	messages, err := loader.Load(ctx, sessionID)
	if err != nil {
		logger.Debug("hydration failed", "sessionID", sessionID, "error", err)
		return
	}
	if len(messages) == 0 {
		return
	}
	deliver(Init{Messages: messages})
}
