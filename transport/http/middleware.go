package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/layer-3/sigil/core"
	"github.com/layer-3/sigil/service"
)

// identityKey is the gin context key holding the authenticated identity.
const identityKey = "sigil.identity"

// requestMeta extracts the per-request observables used for rate limiting,
// auditing and risk scoring.
func requestMeta(c *gin.Context) core.RequestMeta {
	return core.RequestMeta{
		Origin:    c.GetHeader("Origin"),
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

// proofInput captures the DPoP header together with the request line the
// proof must cover. The URI is rebuilt the way the client saw it, honoring
// a forwarded proto when the service sits behind TLS termination.
func proofInput(c *gin.Context) service.ProofInput {
	proof := c.GetHeader("DPoP")
	if proof == "" {
		return service.ProofInput{}
	}

	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if fwd := c.GetHeader("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return service.ProofInput{
		Proof:  proof,
		Method: c.Request.Method,
		URI:    scheme + "://" + c.Request.Host + c.Request.URL.Path,
	}
}

// AuthGuard validates the bearer token (and its DPoP proof when the token
// is key-bound) and stores the resulting identity in the request context.
func AuthGuard(svc *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok {
			// Sender-constrained clients use the DPoP scheme per RFC 9449.
			token, ok = strings.CutPrefix(auth, "DPoP ")
		}
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
			return
		}

		identity, err := svc.ValidateAccessToken(c.Request.Context(), token, proofInput(c), requestMeta(c))
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// identityFrom returns the identity stored by AuthGuard.
func identityFrom(c *gin.Context) (*core.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil, false
	}
	id, ok := v.(*core.Identity)
	return id, ok
}

// RequestLogger emits one structured line per request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Str("ip", c.ClientIP()).
			Msg("request")
	}
}
