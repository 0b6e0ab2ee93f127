package tokenizer

import "github.com/golang-jwt/jwt/v5"

// Confirmation carries the DPoP key binding (RFC 9449 cnf claim). JKT is
// the RFC 7638 SHA-256 thumbprint of the client's proof key.
type Confirmation struct {
	JKT string `json:"jkt"`
}

// AccessClaims are the claims of an access token. SID ties the token to
// its session, RID names the refresh token it was minted alongside so a
// refresh rotation can revoke the whole pair.
type AccessClaims struct {
	jwt.RegisteredClaims
	SessionID    string        `json:"sid"`
	RefreshID    string        `json:"rid"`
	Confirmation *Confirmation `json:"cnf,omitempty"`
}

// RefreshClaims are the claims of a refresh token. The JWT ID is the
// refresh ID itself.
type RefreshClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}
