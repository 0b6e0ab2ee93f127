package ports

import (
	"context"
	"time"
)

// RevocationCache is a denylist of token identifiers. Entries carry a TTL
// matching the token's natural expiry so memory is bounded by live tokens.
type RevocationCache interface {
	// Revoke marks a token id revoked for ttl.
	Revoke(ctx context.Context, tokenID, reason string, ttl time.Duration) error

	// RevokeOnce atomically marks a token id revoked. Returns false when the
	// id was already revoked; exactly one concurrent caller observes true.
	RevokeOnce(ctx context.Context, tokenID, reason string, ttl time.Duration) (bool, error)

	// IsRevoked reports whether a non-expired revocation entry exists.
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// ReplayCache records DPoP proof identifiers for replay detection, with the
// same expiry discipline as RevocationCache.
type ReplayCache interface {
	// Record stores a proof id. Returns true when the id was already seen
	// within its window (a replay). The check-and-set is atomic.
	Record(ctx context.Context, jti string, ttl time.Duration) (replay bool, err error)
}
