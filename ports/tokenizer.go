package ports

import "github.com/layer-3/sigil/core"

// Tokenizer converts between sessions and wire tokens. The signing scheme
// (symmetric MAC or asymmetric) is an implementation detail selected by
// configuration.
type Tokenizer interface {
	// AccessToken mints the access token for a session.
	AccessToken(session *core.Session) (string, error)

	// RefreshToken mints the refresh token for a session.
	RefreshToken(session *core.Session) (string, error)

	// ParseAccessToken verifies signature, expiry and audience and returns
	// the session view carried by the token. Expired tokens return
	// core.ErrTokenExpired, everything else malformed core.ErrTokenInvalid.
	ParseAccessToken(token string) (*core.Session, error)

	// ParseRefreshToken is the refresh-audience counterpart of
	// ParseAccessToken.
	ParseRefreshToken(token string) (*core.Session, error)
}
