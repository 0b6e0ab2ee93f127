package dpop

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	jose "github.com/go-jose/go-jose/v4"

	"github.com/layer-3/sigil/core"
	"github.com/layer-3/sigil/ports"
)

// ValidatorConfig tunes proof validation.
type ValidatorConfig struct {
	// FreshnessWindow bounds how far the proof's iat may lie from server
	// time, in either direction. Default 60s per RFC 9449.
	FreshnessWindow time.Duration
}

// DefaultValidatorConfig returns the RFC defaults.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{FreshnessWindow: 60 * time.Second}
}

// Validator validates DPoP proofs against the current request and a replay
// cache. Safe for concurrent use.
type Validator struct {
	cfg     ValidatorConfig
	replays ports.ReplayCache
	now     func() time.Time
}

// NewValidator creates a Validator. The replay cache provides the atomic
// seen-before check for proof jtis.
func NewValidator(replays ports.ReplayCache, cfg ValidatorConfig) *Validator {
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = DefaultValidatorConfig().FreshnessWindow
	}
	return &Validator{cfg: cfg, replays: replays, now: time.Now}
}

// Validate checks a proof against the request's method and URI and, when
// boundThumbprint is non-empty, requires the embedded key to match it
// exactly. Returns the thumbprint of the proof key so callers in enrollment
// position (no binding yet) can adopt it.
//
// Order: shape and header checks, signature over the embedded JWK, htm/htu
// match, iat freshness, jti replay, thumbprint equality. Every failure is
// mapped onto the DPoP error taxonomy and fails closed.
func (v *Validator) Validate(ctx context.Context, proof, method, uri, boundThumbprint string) (string, error) {
	if proof == "" {
		return "", core.ErrDPoPRequired
	}
	if len(proof) > maxProofSize {
		return "", fmt.Errorf("proof exceeds %d bytes: %w", maxProofSize, core.ErrDPoPMismatch)
	}

	jws, err := jose.ParseSigned(proof, allowedAlgorithms)
	if err != nil {
		return "", fmt.Errorf("parse proof: %w", core.ErrDPoPMismatch)
	}
	if len(jws.Signatures) != 1 {
		return "", fmt.Errorf("proof must carry exactly one signature: %w", core.ErrDPoPMismatch)
	}

	header := jws.Signatures[0].Header
	if typ, _ := header.ExtraHeaders[jose.HeaderType].(string); typ != TypeDPoP {
		return "", fmt.Errorf("typ must be %q: %w", TypeDPoP, core.ErrDPoPMismatch)
	}

	jwk := header.JSONWebKey
	if jwk == nil || !jwk.Valid() || !jwk.IsPublic() {
		return "", fmt.Errorf("proof must embed a public jwk: %w", core.ErrDPoPMismatch)
	}

	payload, err := jws.Verify(jwk)
	if err != nil {
		return "", fmt.Errorf("proof signature: %w", core.ErrDPoPMismatch)
	}

	var claims proofClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", fmt.Errorf("proof claims: %w", core.ErrDPoPMismatch)
	}
	if claims.JTI == "" || claims.HTM == "" || claims.HTU == "" {
		return "", fmt.Errorf("jti, htm and htu are required: %w", core.ErrDPoPMismatch)
	}

	if claims.HTM != method {
		return "", fmt.Errorf("htm mismatch: %w", core.ErrDPoPMismatch)
	}

	wantURI, err := NormalizeURI(uri)
	if err != nil {
		return "", fmt.Errorf("request uri: %w", core.ErrDPoPMismatch)
	}
	gotURI, err := NormalizeURI(claims.HTU)
	if err != nil {
		return "", fmt.Errorf("htu: %w", core.ErrDPoPMismatch)
	}
	if gotURI != wantURI {
		return "", fmt.Errorf("htu mismatch: %w", core.ErrDPoPMismatch)
	}

	now := v.now()
	if claims.IAT <= 0 {
		return "", fmt.Errorf("iat must be positive: %w", core.ErrDPoPMismatch)
	}
	issued := time.Unix(claims.IAT, 0)
	window := v.cfg.FreshnessWindow
	if issued.Before(now.Add(-window)) || issued.After(now.Add(window)) {
		return "", core.ErrDPoPExpired
	}

	// Replay markers outlive the freshness window on both sides so a proof
	// can never be accepted twice, even right at the window edge.
	replay, err := v.replays.Record(ctx, claims.JTI, 2*window)
	if err != nil {
		return "", fmt.Errorf("replay cache: %w", core.ErrStoreUnavailable)
	}
	if replay {
		return "", core.ErrDPoPReplay
	}

	thumbprint, err := Thumbprint(jwk.Key)
	if err != nil {
		return "", fmt.Errorf("thumbprint: %w", core.ErrDPoPMismatch)
	}
	if boundThumbprint != "" && thumbprint != boundThumbprint {
		return "", fmt.Errorf("key not bound to token: %w", core.ErrDPoPMismatch)
	}

	return thumbprint, nil
}
