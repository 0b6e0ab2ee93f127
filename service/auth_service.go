// Package service implements the authentication flows: challenge issuance,
// signature verification with risk gating, token rotation and guard-side
// validation. Everything below it is a port; everything above it is
// transport.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/layer-3/sigil/adapters/audit"
	"github.com/layer-3/sigil/core"
	"github.com/layer-3/sigil/dpop"
	"github.com/layer-3/sigil/internal/eth"
	"github.com/layer-3/sigil/metrics"
	"github.com/layer-3/sigil/ports"
	"github.com/layer-3/sigil/risk"
)

// BindingPolicy controls how a drifted session binding (IP or user agent
// changed since login) is treated on refresh and API requests.
type BindingPolicy string

const (
	BindingHard  BindingPolicy = "hard"  // reject drifted requests
	BindingScore BindingPolicy = "score" // feed drift into the risk score
	BindingOff   BindingPolicy = "off"   // ignore drift
)

// Config carries the service-level knobs.
type Config struct {
	// Issuer is stamped into tokens and challenge messages.
	Issuer string

	ChallengeTTL time.Duration
	AccessTTL    time.Duration
	RefreshTTL   time.Duration

	// StepUpTTL bounds how long a pending step-up stays completable.
	StepUpTTL time.Duration

	// RequireDPoP rejects logins that present no proof. When false, DPoP is
	// opportunistic: a login with a proof gets a bound session.
	RequireDPoP bool

	BindingPolicy BindingPolicy
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Issuer:        "sigil",
		ChallengeTTL:  5 * time.Minute,
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    5 * 24 * time.Hour,
		StepUpTTL:     5 * time.Minute,
		BindingPolicy: BindingScore,
	}
}

// Deps are the collaborators of the AuthService. Verifier, Tokenizer and
// the stores are mandatory; DPoP, risk, events, audit and metrics may be
// left nil/zero and degrade to no-ops.
type Deps struct {
	Challenges  ports.ChallengeStore
	Sessions    ports.SessionStore
	StepUps     ports.StepUpStore
	Revocations ports.RevocationCache
	Tokenizer   ports.Tokenizer
	Verifier    *eth.Verifier
	Limiter     ports.RateLimiter
	Failures    ports.FailureTracker
	Scorer      *risk.Scorer
	Gate        *risk.Gate
	DPoP        *dpop.Validator
	Events      ports.EventPublisher
	Audit       ports.AuditSink
	Metrics     *metrics.Metrics
	Log         zerolog.Logger
}

// AuthService orchestrates the challenge-response authentication flows.
type AuthService struct {
	deps Deps
	cfg  Config
	now  func() time.Time
}

// NewAuthService wires the service. Nil optional deps are replaced with
// no-ops so call sites stay branch-free.
func NewAuthService(deps Deps, cfg Config) *AuthService {
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultConfig().Issuer
	}
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = DefaultConfig().ChallengeTTL
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultConfig().AccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultConfig().RefreshTTL
	}
	if cfg.StepUpTTL <= 0 {
		cfg.StepUpTTL = cfg.ChallengeTTL
	}
	if cfg.BindingPolicy == "" {
		cfg.BindingPolicy = BindingScore
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewUnregistered()
	}
	if deps.Audit == nil {
		deps.Audit = nopAudit{}
	}
	return &AuthService{deps: deps, cfg: cfg, now: time.Now}
}

type nopAudit struct{}

func (nopAudit) Record(context.Context, core.AuditEvent) {}

// ProofInput carries a raw DPoP proof together with the request line it
// must cover. A zero value means no proof was presented.
type ProofInput struct {
	Proof  string
	Method string
	URI    string
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	Session      *core.Session
	AccessToken  string
	RefreshToken string
}

// StepUpChallenge accompanies core.ErrStepUpRequired from Login: the
// caller must sign it and log in again to complete the elevated flow.
type StepUpChallenge struct {
	Challenge *core.Challenge
}

// IssueChallenge creates a fresh one-time challenge for the subject. Any
// unconsumed challenge for the same (subject, origin) is invalidated so at
// most one stays outstanding.
func (s *AuthService) IssueChallenge(ctx context.Context, address string, meta core.RequestMeta) (*core.Challenge, error) {
	addr, err := eth.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	subject := addr.Hex()

	if err := s.allow(ctx, ports.LimitChallenge, meta.Origin+"|"+meta.IP); err != nil {
		return nil, err
	}

	if err := s.deps.Challenges.InvalidatePending(ctx, subject, meta.Origin); err != nil {
		return nil, err
	}

	challenge, err := s.newChallenge(subject, meta.Origin, false)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Challenges.Save(ctx, challenge); err != nil {
		return nil, err
	}

	s.deps.Metrics.ChallengesIssued.Inc()
	s.audit(ctx, core.AuditEvent{
		Action: "challenge", Subject: subject, Outcome: core.AuditSuccess,
		Origin: meta.Origin, IP: meta.IP,
	})
	return challenge, nil
}

func (s *AuthService) newChallenge(subject, origin string, stepUp bool) (*core.Challenge, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	now := s.now()
	c := &core.Challenge{
		ID:        uuid.NewString(),
		Subject:   subject,
		Origin:    origin,
		Nonce:     hex.EncodeToString(nonce),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.ChallengeTTL),
		StepUp:    stepUp,
	}
	c.Message = challengeMessage(s.cfg.Issuer, c)
	return c, nil
}

// challengeMessage renders the exact byte sequence the wallet signs. The
// layout follows the sign-in-with-Ethereum convention so wallets display
// it legibly.
func challengeMessage(issuer string, c *core.Challenge) string {
	kind := "Sign-in request"
	if c.StepUp {
		kind = "Additional verification request"
	}
	return fmt.Sprintf(
		"%s wants you to sign in with your Ethereum account:\n%s\n\n%s from %s.\n\nNonce: %s\nIssued At: %s\nExpiration Time: %s",
		c.Origin, c.Subject, kind, issuer, c.Nonce,
		c.IssuedAt.UTC().Format(time.RFC3339),
		c.ExpiresAt.UTC().Format(time.RFC3339),
	)
}

// LoginRequest carries one verification attempt.
type LoginRequest struct {
	ChallengeID string
	Address     string
	Signature   string // 0x-prefixed 65-byte EIP-191 signature over the challenge message
	Proof       ProofInput
	Meta        core.RequestMeta
}

// Login verifies a signed challenge and issues a token pair. At elevated
// risk it returns core.ErrStepUpRequired together with a *StepUpChallenge
// the subject must additionally sign.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*TokenPair, *StepUpChallenge, error) {
	addr, err := eth.NormalizeAddress(req.Address)
	if err != nil {
		return nil, nil, err
	}
	subject := addr.Hex()

	fail := func(reason string, err error) (*TokenPair, *StepUpChallenge, error) {
		s.deps.Metrics.AuthAttempts.WithLabelValues("failure").Inc()
		s.deps.Metrics.AuthFailureReason.WithLabelValues(reason).Inc()
		s.audit(ctx, core.AuditEvent{
			Action: "login", Subject: subject, Outcome: core.AuditFailure,
			Reason: reason, Origin: req.Meta.Origin, IP: req.Meta.IP,
		})
		return nil, nil, err
	}

	if s.deps.Failures != nil {
		locked, err := s.deps.Failures.IsLocked(ctx, subject)
		if err != nil {
			return nil, nil, err
		}
		if locked {
			return fail("locked_out", core.ErrRateLimited)
		}
	}
	if err := s.allow(ctx, ports.LimitVerify, subject); err != nil {
		return fail("rate_limited", err)
	}

	challenge, err := s.deps.Challenges.Get(ctx, req.ChallengeID)
	if err != nil {
		return fail("challenge_not_found", err)
	}
	// An attempt against someone else's challenge reveals nothing about it.
	if challenge.Subject != subject {
		return fail("challenge_not_found", core.ErrChallengeNotFound)
	}
	if challenge.Expired(s.now()) {
		return fail("challenge_expired", core.ErrChallengeExpired)
	}
	if challenge.Consumed {
		return fail("challenge_used", core.ErrChallengeAlreadyUsed)
	}

	start := s.now()
	err = s.deps.Verifier.Verify(ctx, []byte(challenge.Message), req.Signature, addr)
	s.deps.Metrics.VerifyDuration.Observe(s.now().Sub(start).Seconds())
	if err != nil {
		if errors.Is(err, core.ErrInvalidSignature) {
			s.recordFailure(ctx, subject)
		}
		return fail("invalid_signature", err)
	}

	// Consume only after the signature holds so probing cannot burn a
	// legitimate user's challenge. The consumed record stays until the
	// sweeper prunes it at expiry, so replays keep failing as already-used
	// rather than not-found.
	ok, err := s.deps.Challenges.TryConsume(ctx, challenge.ID)
	if err != nil {
		return fail("challenge_not_found", err)
	}
	if !ok {
		return fail("challenge_used", core.ErrChallengeAlreadyUsed)
	}

	thumbprint := ""
	if req.Proof.Proof != "" && s.deps.DPoP != nil {
		thumbprint, err = s.deps.DPoP.Validate(ctx, req.Proof.Proof, req.Proof.Method, req.Proof.URI, "")
		if err != nil {
			s.observeDPoPFailure(err)
			return fail("dpop", err)
		}
	}
	if s.cfg.RequireDPoP && thumbprint == "" {
		s.observeDPoPFailure(core.ErrDPoPRequired)
		return fail("dpop", core.ErrDPoPRequired)
	}

	if challenge.StepUp {
		pendingID, pending, err := s.deps.StepUps.TakePending(ctx, subject)
		if err != nil {
			return nil, nil, err
		}
		if !pending || pendingID != challenge.ID {
			return fail("step_up_mismatch", core.ErrStepUpRequired)
		}
		// Second proof complete; the risk gate was already consulted on the
		// first leg.
		return s.issueTokens(ctx, subject, thumbprint, req.Meta, "step_up")
	}

	if s.deps.Scorer != nil && s.deps.Gate != nil {
		ev := s.deps.Scorer.Score(ctx, risk.Attempt{
			Subject:   subject,
			IP:        req.Meta.IP,
			UserAgent: req.Meta.UserAgent,
			At:        s.now(),
		})
		decision := s.deps.Gate.Decide(ev.Score)
		s.deps.Metrics.ObserveRisk(decision)

		switch decision {
		case core.RiskDeny:
			s.audit(ctx, core.AuditEvent{
				Action: "login", Subject: subject, Outcome: core.AuditFailure,
				Reason: "risk_denied", Origin: req.Meta.Origin, IP: req.Meta.IP, Score: ev.Score,
			})
			s.deps.Metrics.AuthAttempts.WithLabelValues("failure").Inc()
			s.deps.Metrics.AuthFailureReason.WithLabelValues("risk_denied").Inc()
			return nil, nil, core.ErrRiskBlocked
		case core.RiskStepUp:
			stepUp, err := s.beginStepUp(ctx, subject, req.Meta.Origin)
			if err != nil {
				return nil, nil, err
			}
			s.audit(ctx, core.AuditEvent{
				Action: "login", Subject: subject, Outcome: core.AuditFailure,
				Reason: "step_up_required", Origin: req.Meta.Origin, IP: req.Meta.IP, Score: ev.Score,
			})
			return nil, stepUp, core.ErrStepUpRequired
		}
	}

	return s.issueTokens(ctx, subject, thumbprint, req.Meta, "login")
}

// beginStepUp mints the second challenge and marks it pending. The first
// challenge is already consumed at this point, so the elevated flow cannot
// be replayed from the first signature.
func (s *AuthService) beginStepUp(ctx context.Context, subject, origin string) (*StepUpChallenge, error) {
	challenge, err := s.newChallenge(subject, origin, true)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Challenges.Save(ctx, challenge); err != nil {
		return nil, err
	}
	if err := s.deps.StepUps.SetPending(ctx, subject, challenge.ID, s.cfg.StepUpTTL); err != nil {
		return nil, err
	}
	return &StepUpChallenge{Challenge: challenge}, nil
}

func (s *AuthService) issueTokens(ctx context.Context, subject, thumbprint string, meta core.RequestMeta, grant string) (*TokenPair, *StepUpChallenge, error) {
	now := s.now()
	session := &core.Session{
		ID:            uuid.NewString(),
		Subject:       subject,
		AccessID:      uuid.NewString(),
		RefreshID:     uuid.NewString(),
		IssuedAt:      now,
		AccessExpiry:  now.Add(s.cfg.AccessTTL),
		RefreshExpiry: now.Add(s.cfg.RefreshTTL),
		KeyThumbprint: thumbprint,
		IP:            meta.IP,
		UserAgent:     meta.UserAgent,
	}

	pair, err := s.mintPair(session)
	if err != nil {
		return nil, nil, err
	}
	if err := s.deps.Sessions.Save(ctx, session); err != nil {
		return nil, nil, err
	}

	s.recordSuccess(ctx, subject)
	s.deps.Metrics.AuthAttempts.WithLabelValues("success").Inc()
	s.deps.Metrics.TokensIssued.WithLabelValues(grant).Inc()
	s.audit(ctx, core.AuditEvent{
		Action: "login", Subject: subject, Outcome: core.AuditSuccess,
		Origin: meta.Origin, IP: meta.IP,
	})
	return pair, nil, nil
}

func (s *AuthService) mintPair(session *core.Session) (*TokenPair, error) {
	access, err := s.deps.Tokenizer.AccessToken(session)
	if err != nil {
		return nil, fmt.Errorf("mint access token: %w", err)
	}
	refresh, err := s.deps.Tokenizer.RefreshToken(session)
	if err != nil {
		return nil, fmt.Errorf("mint refresh token: %w", err)
	}
	return &TokenPair{Session: session, AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh rotates a refresh token: the presented token is revoked before
// the replacement pair is minted, and exactly one concurrent presenter
// wins. A second presentation of the same token is treated as theft and
// revokes the whole session.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, proof ProofInput, meta core.RequestMeta) (*TokenPair, error) {
	view, err := s.deps.Tokenizer.ParseRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}
	subject := view.Subject

	fail := func(reason string, err error) (*TokenPair, error) {
		s.deps.Metrics.AuthFailureReason.WithLabelValues(reason).Inc()
		s.audit(ctx, core.AuditEvent{
			Action: "refresh", Subject: subject, Outcome: core.AuditFailure,
			Reason: reason, Origin: meta.Origin, IP: meta.IP,
		})
		return nil, err
	}

	if err := s.allow(ctx, ports.LimitRefresh, subject); err != nil {
		return fail("rate_limited", err)
	}

	// Revoke-before-mint. RevokeOnce arbitrates concurrent presentations:
	// the loser sees an existing entry and is handled as reuse below.
	ttl := time.Until(view.RefreshExpiry)
	if ttl < time.Hour {
		ttl = time.Hour
	}
	won, err := s.deps.Revocations.RevokeOnce(ctx, view.RefreshID, "rotated", ttl)
	if err != nil {
		return nil, err
	}
	if !won {
		// Token reuse. Kill the session so the holder of the rotated-away
		// token loses access too.
		s.revokeSession(ctx, view.ID, "refresh_reuse")
		return fail("refresh_reuse", core.ErrTokenRevoked)
	}

	session, err := s.deps.Sessions.Get(ctx, view.ID)
	if err != nil {
		return fail("session_not_found", err)
	}
	if session.Revoked {
		return fail("session_revoked", core.ErrTokenRevoked)
	}
	if session.RefreshID != view.RefreshID {
		// The token was superseded by a rotation we did not see revoked
		// (e.g. cache loss). Same punishment as reuse.
		s.revokeSession(ctx, session.ID, "refresh_stale")
		return fail("refresh_stale", core.ErrTokenRevoked)
	}

	if session.KeyThumbprint != "" {
		if s.deps.DPoP == nil {
			return fail("dpop", core.ErrDPoPRequired)
		}
		if _, err := s.deps.DPoP.Validate(ctx, proof.Proof, proof.Method, proof.URI, session.KeyThumbprint); err != nil {
			s.observeDPoPFailure(err)
			return fail("dpop", err)
		}
	}

	if err := s.checkBinding(ctx, session, meta, "refresh"); err != nil {
		return fail("binding", err)
	}
	if s.cfg.BindingPolicy == BindingScore && s.deps.Scorer != nil && s.deps.Gate != nil {
		ev := s.deps.Scorer.Score(ctx, risk.Attempt{
			Subject:        subject,
			IP:             meta.IP,
			UserAgent:      meta.UserAgent,
			At:             s.now(),
			PriorIP:        session.IP,
			PriorUserAgent: session.UserAgent,
		})
		decision := s.deps.Gate.Decide(ev.Score)
		s.deps.Metrics.ObserveRisk(decision)
		switch decision {
		case core.RiskDeny:
			return fail("risk_denied", core.ErrRiskBlocked)
		case core.RiskStepUp:
			// No signing ceremony exists on refresh; the client must go
			// through a fresh login to prove key control again.
			return fail("step_up_required", core.ErrStepUpRequired)
		}
	}

	// Rotate in place: same session id, fresh token ids and expiries.
	now := s.now()
	session.AccessID = uuid.NewString()
	session.RefreshID = uuid.NewString()
	session.IssuedAt = now
	session.AccessExpiry = now.Add(s.cfg.AccessTTL)
	session.RefreshExpiry = now.Add(s.cfg.RefreshTTL)
	session.IP = meta.IP
	session.UserAgent = meta.UserAgent

	pair, err := s.mintPair(session)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Sessions.Save(ctx, session); err != nil {
		return nil, err
	}

	s.deps.Metrics.TokensIssued.WithLabelValues("refresh").Inc()
	s.audit(ctx, core.AuditEvent{
		Action: "refresh", Subject: subject, Outcome: core.AuditSuccess,
		Origin: meta.Origin, IP: meta.IP,
	})
	return pair, nil
}

// checkBinding applies the binding policy to a drifted session.
func (s *AuthService) checkBinding(ctx context.Context, session *core.Session, meta core.RequestMeta, action string) error {
	if s.cfg.BindingPolicy != BindingHard {
		return nil
	}
	ipDrift := session.IP != "" && meta.IP != "" && session.IP != meta.IP
	uaDrift := session.UserAgent != "" && meta.UserAgent != "" && session.UserAgent != meta.UserAgent
	if ipDrift || uaDrift {
		s.deps.Log.Warn().Str("action", action).Str("session", session.ID).Msg("session binding drift rejected")
		return core.ErrRiskBlocked
	}
	return nil
}

// Logout revokes a session and both of its current tokens. Revoking an
// already-expired refresh token succeeds as a no-op.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	view, err := s.deps.Tokenizer.ParseRefreshToken(refreshToken)
	if err != nil {
		if errors.Is(err, core.ErrTokenExpired) {
			return nil
		}
		return err
	}

	s.revokeSession(ctx, view.ID, "logout")

	ttl := time.Until(view.RefreshExpiry)
	if ttl < time.Hour {
		ttl = time.Hour
	}
	if err := s.deps.Revocations.Revoke(ctx, view.RefreshID, "logout", ttl); err != nil {
		return err
	}

	if s.deps.Events != nil {
		if err := s.deps.Events.PublishLogout(ctx, view.Subject, view.RefreshID); err != nil {
			s.deps.Log.Warn().Err(err).Msg("publish logout event")
		}
	}
	s.audit(ctx, core.AuditEvent{Action: "logout", Subject: view.Subject, Outcome: core.AuditSuccess})
	return nil
}

// revokeSession marks the stored session revoked and denylists its current
// token ids. Best effort: a missing session still gets its token revoked
// by the caller.
func (s *AuthService) revokeSession(ctx context.Context, sessionID, reason string) {
	session, err := s.deps.Sessions.Get(ctx, sessionID)
	if err != nil {
		return
	}
	if err := s.deps.Sessions.Revoke(ctx, sessionID); err != nil {
		s.deps.Log.Warn().Err(err).Str("session", sessionID).Msg("revoke session")
	}
	accessTTL := time.Until(session.AccessExpiry)
	if accessTTL < time.Minute {
		accessTTL = time.Minute
	}
	refreshTTL := time.Until(session.RefreshExpiry)
	if refreshTTL < time.Hour {
		refreshTTL = time.Hour
	}
	_ = s.deps.Revocations.Revoke(ctx, session.AccessID, reason, accessTTL)
	_ = s.deps.Revocations.Revoke(ctx, session.RefreshID, reason, refreshTTL)
}

// ValidateAccessToken is the guard-side check run on every protected
// request: token signature and expiry, revocation of both the access jti
// and the refresh jti it was minted with, session liveness, and the DPoP
// proof when the token is key-bound.
func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string, proof ProofInput, meta core.RequestMeta) (*core.Identity, error) {
	view, err := s.deps.Tokenizer.ParseAccessToken(accessToken)
	if err != nil {
		return nil, err
	}

	for _, tokenID := range []string{view.AccessID, view.RefreshID} {
		if tokenID == "" {
			continue
		}
		revoked, err := s.deps.Revocations.IsRevoked(ctx, tokenID)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, core.ErrTokenRevoked
		}
	}

	session, err := s.deps.Sessions.Get(ctx, view.ID)
	if err != nil {
		return nil, err
	}
	if session.Revoked {
		return nil, core.ErrTokenRevoked
	}

	if view.KeyThumbprint != "" {
		if s.deps.DPoP == nil {
			return nil, core.ErrDPoPRequired
		}
		if _, err := s.deps.DPoP.Validate(ctx, proof.Proof, proof.Method, proof.URI, view.KeyThumbprint); err != nil {
			s.observeDPoPFailure(err)
			return nil, err
		}
	}

	if err := s.checkBinding(ctx, session, meta, "request"); err != nil {
		return nil, err
	}

	return &core.Identity{
		Subject:       view.Subject,
		SessionID:     view.ID,
		KeyThumbprint: view.KeyThumbprint,
	}, nil
}

func (s *AuthService) allow(ctx context.Context, class ports.LimitClass, key string) error {
	if s.deps.Limiter == nil {
		return nil
	}
	ok, err := s.deps.Limiter.Allow(ctx, class, key)
	if err != nil {
		return err
	}
	if !ok {
		s.deps.Metrics.RateLimited.WithLabelValues(string(class)).Inc()
		return core.ErrRateLimited
	}
	return nil
}

func (s *AuthService) recordFailure(ctx context.Context, subject string) {
	if s.deps.Failures == nil {
		return
	}
	locked, err := s.deps.Failures.RecordFailure(ctx, subject)
	if err != nil {
		s.deps.Log.Warn().Err(err).Msg("record verification failure")
		return
	}
	if locked {
		s.deps.Metrics.Lockouts.Inc()
		s.deps.Log.Warn().Str("subject", subject).Msg("subject locked out")
	}
}

func (s *AuthService) recordSuccess(ctx context.Context, subject string) {
	if s.deps.Failures == nil {
		return
	}
	if err := s.deps.Failures.RecordSuccess(ctx, subject); err != nil {
		s.deps.Log.Warn().Err(err).Msg("reset failure count")
	}
}

func (s *AuthService) observeDPoPFailure(err error) {
	reason := "mismatch"
	switch {
	case errors.Is(err, core.ErrDPoPRequired):
		reason = "required"
	case errors.Is(err, core.ErrDPoPReplay):
		reason = "replay"
	case errors.Is(err, core.ErrDPoPExpired):
		reason = "expired"
	}
	s.deps.Metrics.DPoPFailures.WithLabelValues(reason).Inc()
}

func (s *AuthService) audit(ctx context.Context, event core.AuditEvent) {
	s.deps.Audit.Record(ctx, audit.Stamp(event, s.now()))
}
