package dpop

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"encoding/json"
	"fmt"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"
)

// Proofer generates DPoP proofs for a client-held key. The server never
// signs proofs; this lives here for the test suite and client tooling.
type Proofer struct {
	signer jose.Signer
	pub    crypto.PublicKey
	now    func() time.Time
}

// NewProofer creates a Proofer for an Ed25519 or ECDSA P-256 private key.
func NewProofer(key crypto.Signer) (*Proofer, error) {
	var alg jose.SignatureAlgorithm
	switch k := key.(type) {
	case ed25519.PrivateKey:
		alg = jose.EdDSA
	case *ecdsa.PrivateKey:
		if k.Curve != elliptic.P256() {
			return nil, fmt.Errorf("unsupported curve %s", k.Curve.Params().Name)
		}
		alg = jose.ES256
	default:
		return nil, fmt.Errorf("unsupported key type %T", key)
	}

	opts := (&jose.SignerOptions{EmbedJWK: true}).WithType(TypeDPoP)
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: alg, Key: key}, opts)
	if err != nil {
		return nil, fmt.Errorf("create signer: %w", err)
	}

	return &Proofer{signer: signer, pub: key.Public(), now: time.Now}, nil
}

// Thumbprint returns the RFC 7638 thumbprint of the proofer's public key.
func (p *Proofer) Thumbprint() (string, error) {
	return Thumbprint(p.pub)
}

// Proof signs a proof for one HTTP request.
func (p *Proofer) Proof(method, uri string) (string, error) {
	htu, err := NormalizeURI(uri)
	if err != nil {
		return "", fmt.Errorf("normalize uri: %w", err)
	}

	payload, err := json.Marshal(proofClaims{
		JTI: uuid.NewString(),
		HTM: method,
		HTU: htu,
		IAT: p.now().Unix(),
	})
	if err != nil {
		return "", err
	}

	jws, err := p.signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("sign proof: %w", err)
	}
	return jws.CompactSerialize()
}
