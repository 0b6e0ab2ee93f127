// Package dpop implements RFC 9449 proof-of-possession validation. A proof is
// a short-lived JWS over the request method and URI, signed by the client-held
// key whose RFC 7638 thumbprint is bound into the access token. A valid proof
// demonstrates that the caller holds that key, so a stolen bearer token alone
// is useless.
package dpop

import (
	"crypto"
	"encoding/base64"
	"net/url"
	"strings"

	jose "github.com/go-jose/go-jose/v4"

	"github.com/layer-3/sigil/core"
)

const (
	// TypeDPoP is the required typ header value for proofs.
	TypeDPoP = "dpop+jwt"

	// maxProofSize bounds proof parsing against oversized inputs.
	maxProofSize = 8 * 1024
)

// allowedAlgorithms is the fixed verification allowlist. The alg header never
// selects the algorithm by itself; anything outside this list is rejected
// before signature verification.
var allowedAlgorithms = []jose.SignatureAlgorithm{jose.EdDSA, jose.ES256}

// proofClaims binds a proof to one HTTP request.
type proofClaims struct {
	JTI string `json:"jti"`
	HTM string `json:"htm"`
	HTU string `json:"htu"`
	IAT int64  `json:"iat"`
}

// Thumbprint computes the base64url RFC 7638 SHA-256 thumbprint of a public
// key. The same key always yields the same thumbprint, independent of JWK
// member ordering.
func Thumbprint(pub crypto.PublicKey) (string, error) {
	jwk := jose.JSONWebKey{Key: pub}
	sum, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(sum), nil
}

// NormalizeURI reduces a request URI to scheme://host/path for htu
// comparison: lowercased scheme and host, default ports and query/fragment
// stripped, empty path mapped to "/".
func NormalizeURI(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", core.ErrDPoPMismatch
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	switch {
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	}

	path := u.Path
	if path == "" {
		path = "/"
	}
	return scheme + "://" + host + path, nil
}
