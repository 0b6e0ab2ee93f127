package core

import "time"

// Challenge is a one-time message a wallet must sign to prove key control.
// It is persisted server-side; Consumed flips false -> true exactly once.
type Challenge struct {
	ID        string    // Unique identifier for the challenge
	Subject   string    // Wallet address being authenticated (EIP-55 checksummed)
	Origin    string    // Origin the challenge was issued for
	Nonce     string    // Random nonce embedded in the message (hex, 32 bytes)
	Message   string    // Exact byte sequence the client signs
	IssuedAt  time.Time // When the challenge was created
	ExpiresAt time.Time // When the challenge expires
	Consumed  bool      // Set atomically on successful verification
	StepUp    bool      // True when this challenge was issued as a step-up proof
}

// Expired reports whether the challenge is past its TTL at the given instant.
func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Session represents an authenticated wallet session.
type Session struct {
	ID            string    // Unique session identifier
	Subject       string    // Wallet address of the user
	AccessID      string    // jti of the current access token
	RefreshID     string    // jti of the current refresh token
	IssuedAt      time.Time // When the session was created
	AccessExpiry  time.Time // When the access token expires
	RefreshExpiry time.Time // When the refresh token expires
	KeyThumbprint string    // RFC 7638 thumbprint of the DPoP key, empty if unbound
	IP            string    // Client IP observed at login
	UserAgent     string    // Client user agent observed at login
	Revoked       bool      // Set by logout / explicit revocation
}

// Identity is the authenticated subject yielded to downstream handlers.
type Identity struct {
	Subject       string
	SessionID     string
	KeyThumbprint string
}

// RequestMeta carries per-request observables used for auditing and risk
// scoring. It never contains credentials.
type RequestMeta struct {
	Origin    string
	IP        string
	UserAgent string
}
