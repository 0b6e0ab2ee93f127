package core

import "errors"

// Authentication failures. These are surfaced at the transport boundary as
// machine-readable rejection codes and must never carry signature or key
// material.
var (
	ErrChallengeNotFound    = errors.New("challenge not found")
	ErrChallengeExpired     = errors.New("challenge has expired")
	ErrChallengeAlreadyUsed = errors.New("challenge already used")
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrInvalidAddress       = errors.New("invalid wallet address")
	ErrTokenExpired         = errors.New("token has expired")
	ErrTokenInvalid         = errors.New("invalid token")
	ErrTokenRevoked         = errors.New("token has been revoked")
	ErrSessionNotFound      = errors.New("session not found")
	ErrDPoPRequired         = errors.New("dpop proof required")
	ErrDPoPMismatch         = errors.New("dpop proof mismatch")
	ErrDPoPReplay           = errors.New("dpop proof replayed")
	ErrDPoPExpired          = errors.New("dpop proof expired")
	ErrRateLimited          = errors.New("rate limited")
	ErrRiskBlocked          = errors.New("blocked by risk policy")
	ErrStepUpRequired       = errors.New("step-up verification required")
)

// ErrStoreUnavailable marks backend faults. It is deliberately distinct from
// every authentication error above so that storage outages surface as
// retryable instead of "invalid credential".
var ErrStoreUnavailable = errors.New("store unavailable")

// IsAuthFailure reports whether err belongs to the authentication taxonomy,
// as opposed to a backend fault.
func IsAuthFailure(err error) bool {
	for _, target := range []error{
		ErrChallengeNotFound, ErrChallengeExpired, ErrChallengeAlreadyUsed,
		ErrInvalidSignature, ErrInvalidAddress,
		ErrTokenExpired, ErrTokenInvalid, ErrTokenRevoked, ErrSessionNotFound,
		ErrDPoPRequired, ErrDPoPMismatch, ErrDPoPReplay, ErrDPoPExpired,
		ErrRateLimited, ErrRiskBlocked, ErrStepUpRequired,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
