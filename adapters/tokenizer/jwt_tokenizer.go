// Package tokenizer implements the Tokenizer port with signed JWTs. The
// signing scheme is pluggable: HMAC for single-service deployments, ECDSA
// when resource servers verify tokens with a published public key.
package tokenizer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/layer-3/sigil/core"
	"github.com/layer-3/sigil/ports"
)

const (
	AudienceAccess  = "sigil:access"
	AudienceRefresh = "sigil:refresh"
)

// Signer bundles a JWT signing method with its key pair.
type Signer struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
}

// NewHS256Signer signs and verifies with a shared secret.
func NewHS256Signer(secret []byte) Signer {
	return Signer{method: jwt.SigningMethodHS256, signKey: secret, verifyKey: secret}
}

// NewES256Signer signs with the private key and verifies with its public
// half, so verification can be split out to other services.
func NewES256Signer(key *ecdsa.PrivateKey) Signer {
	return Signer{method: jwt.SigningMethodES256, signKey: key, verifyKey: &key.PublicKey}
}

// JWTTokenizer mints and parses the access/refresh token pair for a
// session.
type JWTTokenizer struct {
	signer Signer
	issuer string
	now    func() time.Time
}

// NewJWTTokenizer creates a tokenizer that stamps issuer into every token.
func NewJWTTokenizer(signer Signer, issuer string) *JWTTokenizer {
	return &JWTTokenizer{signer: signer, issuer: issuer, now: time.Now}
}

// WithClock overrides the validation time source. Tests use it to travel
// across expiry boundaries.
func (t *JWTTokenizer) WithClock(now func() time.Time) *JWTTokenizer {
	t.now = now
	return t
}

// AccessToken mints the access token for a session.
func (t *JWTTokenizer) AccessToken(session *core.Session) (string, error) {
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   session.Subject,
			ID:        session.AccessID,
			Audience:  jwt.ClaimStrings{AudienceAccess},
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(session.AccessExpiry),
		},
		SessionID: session.ID,
		RefreshID: session.RefreshID,
	}
	if session.KeyThumbprint != "" {
		claims.Confirmation = &Confirmation{JKT: session.KeyThumbprint}
	}

	signed, err := jwt.NewWithClaims(t.signer.method, claims).SignedString(t.signer.signKey)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// RefreshToken mints the refresh token for a session. Its JWT ID is the
// session's refresh ID, which is what rotation revokes.
func (t *JWTTokenizer) RefreshToken(session *core.Session) (string, error) {
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   session.Subject,
			ID:        session.RefreshID,
			Audience:  jwt.ClaimStrings{AudienceRefresh},
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(session.RefreshExpiry),
		},
		SessionID: session.ID,
	}

	signed, err := jwt.NewWithClaims(t.signer.method, claims).SignedString(t.signer.signKey)
	if err != nil {
		return "", fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies an access token and reconstructs the session
// view it carries. An access token presented as a refresh token (or vice
// versa) fails the audience check.
func (t *JWTTokenizer) ParseAccessToken(tokenStr string) (*core.Session, error) {
	var claims AccessClaims
	if err := t.parse(tokenStr, &claims, AudienceAccess); err != nil {
		return nil, err
	}

	session := &core.Session{
		ID:           claims.SessionID,
		Subject:      claims.Subject,
		AccessID:     claims.ID,
		RefreshID:    claims.RefreshID,
		IssuedAt:     claims.IssuedAt.Time,
		AccessExpiry: claims.ExpiresAt.Time,
	}
	if claims.Confirmation != nil {
		session.KeyThumbprint = claims.Confirmation.JKT
	}
	return session, nil
}

// ParseRefreshToken verifies a refresh token and reconstructs the session
// view it carries. Access expiry is not part of refresh claims and stays
// zero.
func (t *JWTTokenizer) ParseRefreshToken(tokenStr string) (*core.Session, error) {
	var claims RefreshClaims
	if err := t.parse(tokenStr, &claims, AudienceRefresh); err != nil {
		return nil, err
	}

	return &core.Session{
		ID:            claims.SessionID,
		Subject:       claims.Subject,
		RefreshID:     claims.ID,
		IssuedAt:      claims.IssuedAt.Time,
		RefreshExpiry: claims.ExpiresAt.Time,
	}, nil
}

func (t *JWTTokenizer) parse(tokenStr string, claims jwt.Claims, audience string) error {
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return t.signer.verifyKey, nil
	},
		jwt.WithValidMethods([]string{t.signer.method.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithIssuer(t.issuer),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return t.now() }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fmt.Errorf("parse token: %w", core.ErrTokenExpired)
		}
		return fmt.Errorf("parse token: %v: %w", err, core.ErrTokenInvalid)
	}
	if !token.Valid {
		return core.ErrTokenInvalid
	}
	return nil
}

var _ ports.Tokenizer = (*JWTTokenizer)(nil)
