package core

import "time"

// AuditOutcome classifies an audited authentication event.
type AuditOutcome string

const (
	AuditSuccess AuditOutcome = "success"
	AuditFailure AuditOutcome = "failure"
)

// AuditEvent is one record of the append-only authentication trail.
// Reason is coarse (an error taxonomy code, not a message) and the event
// never contains signatures, tokens or key material.
type AuditEvent struct {
	Action  string       `json:"action"` // challenge, login, refresh, logout, validate
	Subject string       `json:"subject,omitempty"`
	Outcome AuditOutcome `json:"outcome"`
	Reason  string       `json:"reason,omitempty"`
	Origin  string       `json:"origin,omitempty"`
	IP      string       `json:"ip,omitempty"`
	Score   int          `json:"risk_score,omitempty"`
	At      time.Time    `json:"at"`
}
