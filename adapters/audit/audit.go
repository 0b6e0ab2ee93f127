// Package audit implements the AuditSink port. Sinks sit on the request
// path, so every implementation swallows its own failures: a broken trail
// must not decide an authentication.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/layer-3/sigil/core"
	"github.com/layer-3/sigil/ports"
)

// TopicAudit carries core.AuditEvent payloads for external collectors.
const TopicAudit = "sigil.audit"

// LogSink writes audit events as structured log lines.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a sink on the given logger.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "audit").Logger()}
}

func (s *LogSink) Record(_ context.Context, event core.AuditEvent) {
	ev := s.log.Info()
	if event.Outcome == core.AuditFailure {
		ev = s.log.Warn()
	}
	ev.Str("action", event.Action).
		Str("subject", event.Subject).
		Str("outcome", string(event.Outcome)).
		Str("reason", event.Reason).
		Str("origin", event.Origin).
		Str("ip", event.IP).
		Int("score", event.Score).
		Time("at", event.At).
		Msg("auth event")
}

// StreamSink publishes audit events to a watermill topic.
type StreamSink struct {
	publisher message.Publisher
	log       zerolog.Logger
}

// NewStreamSink wraps an existing watermill publisher. Publish failures
// are logged and dropped.
func NewStreamSink(publisher message.Publisher, log zerolog.Logger) *StreamSink {
	return &StreamSink{publisher: publisher, log: log}
}

func (s *StreamSink) Record(ctx context.Context, event core.AuditEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.log.Error().Err(err).Msg("marshal audit event")
		return
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.SetContext(ctx)
	if err := s.publisher.Publish(TopicAudit, msg); err != nil {
		s.log.Error().Err(err).Msg("publish audit event")
	}
}

// MultiSink fans one event out to several sinks.
type MultiSink []ports.AuditSink

func (m MultiSink) Record(ctx context.Context, event core.AuditEvent) {
	for _, s := range m {
		s.Record(ctx, event)
	}
}

// Stamp fills the event timestamp when the caller left it zero.
func Stamp(event core.AuditEvent, now time.Time) core.AuditEvent {
	if event.At.IsZero() {
		event.At = now
	}
	return event
}

var (
	_ ports.AuditSink = (*LogSink)(nil)
	_ ports.AuditSink = (*StreamSink)(nil)
	_ ports.AuditSink = (MultiSink)(nil)
)
