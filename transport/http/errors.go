package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/sigil/core"
)

// rejection is the machine-readable error body. It never carries signature
// or key material, only the taxonomy code.
type rejection struct {
	status int
	code   string
}

var rejections = []struct {
	err error
	rejection
}{
	{core.ErrInvalidAddress, rejection{http.StatusBadRequest, "invalid_address"}},
	{core.ErrChallengeNotFound, rejection{http.StatusUnauthorized, "challenge_not_found"}},
	{core.ErrChallengeExpired, rejection{http.StatusUnauthorized, "challenge_expired"}},
	{core.ErrChallengeAlreadyUsed, rejection{http.StatusUnauthorized, "challenge_already_used"}},
	{core.ErrInvalidSignature, rejection{http.StatusUnauthorized, "invalid_signature"}},
	{core.ErrTokenExpired, rejection{http.StatusUnauthorized, "token_expired"}},
	{core.ErrTokenInvalid, rejection{http.StatusUnauthorized, "token_invalid"}},
	{core.ErrTokenRevoked, rejection{http.StatusUnauthorized, "token_revoked"}},
	{core.ErrSessionNotFound, rejection{http.StatusUnauthorized, "session_not_found"}},
	{core.ErrDPoPRequired, rejection{http.StatusUnauthorized, "dpop_required"}},
	{core.ErrDPoPMismatch, rejection{http.StatusUnauthorized, "dpop_mismatch"}},
	{core.ErrDPoPReplay, rejection{http.StatusUnauthorized, "dpop_replay"}},
	{core.ErrDPoPExpired, rejection{http.StatusUnauthorized, "dpop_expired"}},
	{core.ErrRateLimited, rejection{http.StatusTooManyRequests, "rate_limited"}},
	{core.ErrRiskBlocked, rejection{http.StatusForbidden, "risk_blocked"}},
	{core.ErrStepUpRequired, rejection{http.StatusForbidden, "step_up_required"}},
}

// writeError maps a service error onto a status and code. Backend faults
// become a generic retryable 503 so storage internals never read as
// credential problems.
func writeError(c *gin.Context, err error) {
	if errors.Is(err, core.ErrStoreUnavailable) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily_unavailable"})
		return
	}
	for _, r := range rejections {
		if errors.Is(err, r.err) {
			c.JSON(r.status, gin.H{"error": r.code})
			return
		}
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}
