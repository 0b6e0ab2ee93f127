package ports

import (
	"context"
	"time"

	"github.com/layer-3/sigil/core"
)

// ChallengeStore persists issued challenges. Implementations must make
// TryConsume atomic: under concurrent calls for the same id exactly one
// caller observes true.
type ChallengeStore interface {
	// Save persists a challenge, replacing any previous one with the same id.
	Save(ctx context.Context, challenge *core.Challenge) error

	// Get returns the challenge or core.ErrChallengeNotFound.
	Get(ctx context.Context, id string) (*core.Challenge, error)

	// TryConsume flips the consumed flag. Returns false when the challenge
	// was already consumed; core.ErrChallengeNotFound when it is absent.
	TryConsume(ctx context.Context, id string) (bool, error)

	// InvalidatePending removes unconsumed challenges for (subject, origin),
	// keeping at most one challenge outstanding per pair.
	InvalidatePending(ctx context.Context, subject, origin string) error

	// Delete removes a challenge regardless of state.
	Delete(ctx context.Context, id string) error

	// DeleteExpired drops challenges past their TTL and reports how many.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// SessionStore persists sessions created at login.
type SessionStore interface {
	// Save persists a session, replacing any previous one with the same id.
	Save(ctx context.Context, session *core.Session) error

	// Get returns the session or core.ErrSessionNotFound.
	Get(ctx context.Context, id string) (*core.Session, error)

	// Revoke marks a session revoked. Revoking an absent session returns
	// core.ErrSessionNotFound.
	Revoke(ctx context.Context, id string) error

	// DeleteExpired drops sessions whose refresh expiry has passed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// StepUpStore tracks pending step-up verifications: after a first proof at
// elevated risk, the subject must complete a second challenge before tokens
// are issued.
type StepUpStore interface {
	// SetPending records that challengeID is the required second proof for
	// the subject.
	SetPending(ctx context.Context, subject, challengeID string, ttl time.Duration) error

	// TakePending atomically fetches and clears the pending challenge id.
	// ok is false when no step-up is pending for the subject.
	TakePending(ctx context.Context, subject string) (challengeID string, ok bool, err error)
}
