package ports

import "context"

// LimitClass groups endpoints that share a rate budget.
type LimitClass string

const (
	LimitChallenge LimitClass = "challenge" // per origin/IP
	LimitVerify    LimitClass = "verify"    // per subject
	LimitRefresh   LimitClass = "refresh"   // per subject
)

// RateLimiter throttles requests per (class, key). Counters reset only on
// window rollover, never early.
type RateLimiter interface {
	// Allow reports whether the request fits the budget for class/key.
	Allow(ctx context.Context, class LimitClass, key string) (bool, error)
}

// FailureTracker escalates consecutive verification failures into a lockout.
// After the configured threshold the subject is locked for a cooldown period
// regardless of signature validity.
type FailureTracker interface {
	// RecordFailure counts a failed verification. Returns true when the
	// failure tripped the lockout.
	RecordFailure(ctx context.Context, subject string) (locked bool, err error)

	// RecordSuccess resets the consecutive-failure count.
	RecordSuccess(ctx context.Context, subject string) error

	// IsLocked reports whether the subject is in a lockout cooldown.
	IsLocked(ctx context.Context, subject string) (bool, error)
}
