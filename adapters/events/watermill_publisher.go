// Package events publishes session lifecycle notifications so other
// instances can drop revoked tokens from local caches before the shared
// store catches up.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/layer-3/sigil/ports"
)

// TopicLogout carries LogoutEvent payloads.
const TopicLogout = "sigil.logout"

// LogoutEvent is the wire payload of a revocation announcement.
type LogoutEvent struct {
	Subject string    `json:"subject"`
	TokenID string    `json:"token_id"`
	At      time.Time `json:"at"`
}

// WatermillPublisher implements EventPublisher on any watermill backend.
type WatermillPublisher struct {
	publisher message.Publisher
	now       func() time.Time
}

// NewWatermillPublisher wraps an existing watermill publisher.
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{publisher: publisher, now: time.Now}
}

// PublishLogout announces that a session's tokens were revoked. The token
// ID doubles as the message UUID so redeliveries deduplicate downstream.
func (p *WatermillPublisher) PublishLogout(ctx context.Context, subject, tokenID string) error {
	payload, err := json.Marshal(LogoutEvent{Subject: subject, TokenID: tokenID, At: p.now()})
	if err != nil {
		return fmt.Errorf("marshal logout event: %w", err)
	}

	msg := message.NewMessage(tokenID, payload)
	msg.SetContext(ctx)
	if err := p.publisher.Publish(TopicLogout, msg); err != nil {
		return fmt.Errorf("publish logout event: %w", err)
	}
	return nil
}

var _ ports.EventPublisher = (*WatermillPublisher)(nil)
