// Package http is the gin transport over the auth service: public
// challenge/login/refresh/logout routes and the guarded API group.
package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/sigil/core"
	"github.com/layer-3/sigil/service"
)

// AuthHandlers exposes the auth flows over HTTP.
type AuthHandlers struct {
	svc *service.AuthService
}

// NewAuthHandlers creates the handler set.
func NewAuthHandlers(svc *service.AuthService) *AuthHandlers {
	return &AuthHandlers{svc: svc}
}

type challengeResponse struct {
	ChallengeID string    `json:"challenge_id"`
	Message     string    `json:"message"`
	Nonce       string    `json:"nonce"`
	ExpiresAt   time.Time `json:"expires_at"`
	StepUp      bool      `json:"step_up,omitempty"`
}

func toChallengeResponse(ch *core.Challenge) challengeResponse {
	return challengeResponse{
		ChallengeID: ch.ID,
		Message:     ch.Message,
		Nonce:       ch.Nonce,
		ExpiresAt:   ch.ExpiresAt,
		StepUp:      ch.StepUp,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

func toTokenResponse(pair *service.TokenPair) tokenResponse {
	tokenType := "Bearer"
	if pair.Session.KeyThumbprint != "" {
		tokenType = "DPoP"
	}
	return tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    tokenType,
		ExpiresIn:    int64(pair.Session.AccessExpiry.Sub(pair.Session.IssuedAt).Seconds()),
	}
}

// Challenge issues a one-time challenge for a wallet address.
func (h *AuthHandlers) Challenge(c *gin.Context) {
	var req struct {
		Address string `json:"address" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	challenge, err := h.svc.IssueChallenge(c.Request.Context(), req.Address, requestMeta(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toChallengeResponse(challenge))
}

// Login verifies a signed challenge. At elevated risk it answers 403
// step_up_required with the second challenge the wallet must sign.
func (h *AuthHandlers) Login(c *gin.Context) {
	var req struct {
		ChallengeID string `json:"challenge_id" binding:"required"`
		Address     string `json:"address" binding:"required"`
		Signature   string `json:"signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	pair, stepUp, err := h.svc.Login(c.Request.Context(), service.LoginRequest{
		ChallengeID: req.ChallengeID,
		Address:     req.Address,
		Signature:   req.Signature,
		Proof:       proofInput(c),
		Meta:        requestMeta(c),
	})
	if err != nil {
		if errors.Is(err, core.ErrStepUpRequired) && stepUp != nil {
			c.JSON(http.StatusForbidden, gin.H{
				"error":     "step_up_required",
				"challenge": toChallengeResponse(stepUp.Challenge),
			})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTokenResponse(pair))
}

// Refresh rotates a refresh token.
func (h *AuthHandlers) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	pair, err := h.svc.Refresh(c.Request.Context(), req.RefreshToken, proofInput(c), requestMeta(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTokenResponse(pair))
}

// Logout revokes the session behind a refresh token.
func (h *AuthHandlers) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if err := h.svc.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me returns the authenticated identity.
func (h *AuthHandlers) Me(c *gin.Context) {
	id, ok := identityFrom(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address":        id.Subject,
		"session_id":     id.SessionID,
		"key_thumbprint": id.KeyThumbprint,
	})
}

// Authorize is a pure guard check for upstream proxies.
func (h *AuthHandlers) Authorize(c *gin.Context) {
	id, ok := identityFrom(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"authorized": true, "address": id.Subject})
}
