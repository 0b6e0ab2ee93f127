package ports

import "context"

// EventPublisher notifies other instances about session lifecycle events.
type EventPublisher interface {
	// PublishLogout announces that a session's tokens were revoked.
	PublishLogout(ctx context.Context, subject string, tokenID string) error
}
