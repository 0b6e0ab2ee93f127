package dpop

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/sigil/core"
)

func newEd25519Proofer(t *testing.T) *Proofer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	p, err := NewProofer(priv)
	require.NoError(t, err)
	return p
}

func newTestValidator() *Validator {
	return NewValidator(NewMemoryReplayCache(0), DefaultValidatorConfig())
}

func TestValidate_Ed25519(t *testing.T) {
	p := newEd25519Proofer(t)
	v := newTestValidator()

	proof, err := p.Proof("POST", "https://auth.example.com/auth/login")
	require.NoError(t, err)

	thumb, err := v.Validate(context.Background(), proof, "POST", "https://auth.example.com/auth/login", "")
	require.NoError(t, err)

	want, err := p.Thumbprint()
	require.NoError(t, err)
	assert.Equal(t, want, thumb)
}

func TestValidate_ES256(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	p, err := NewProofer(key)
	require.NoError(t, err)
	v := newTestValidator()

	proof, err := p.Proof("GET", "https://auth.example.com/api/me")
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), proof, "GET", "https://auth.example.com/api/me", "")
	require.NoError(t, err)
}

func TestValidate_BoundThumbprint(t *testing.T) {
	p := newEd25519Proofer(t)
	v := newTestValidator()
	thumb, err := p.Thumbprint()
	require.NoError(t, err)

	proof, err := p.Proof("GET", "https://auth.example.com/api/me")
	require.NoError(t, err)
	_, err = v.Validate(context.Background(), proof, "GET", "https://auth.example.com/api/me", thumb)
	require.NoError(t, err)

	// A proof from a different key must not satisfy the binding.
	other := newEd25519Proofer(t)
	proof2, err := other.Proof("GET", "https://auth.example.com/api/me")
	require.NoError(t, err)
	_, err = v.Validate(context.Background(), proof2, "GET", "https://auth.example.com/api/me", thumb)
	assert.ErrorIs(t, err, core.ErrDPoPMismatch)
}

func TestValidate_MethodAndURIMismatch(t *testing.T) {
	p := newEd25519Proofer(t)
	v := newTestValidator()

	proof, err := p.Proof("POST", "https://auth.example.com/auth/refresh")
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), proof, "GET", "https://auth.example.com/auth/refresh", "")
	assert.ErrorIs(t, err, core.ErrDPoPMismatch)

	proof, err = p.Proof("POST", "https://auth.example.com/auth/refresh")
	require.NoError(t, err)
	_, err = v.Validate(context.Background(), proof, "POST", "https://auth.example.com/other", "")
	assert.ErrorIs(t, err, core.ErrDPoPMismatch)
}

func TestValidate_Replay(t *testing.T) {
	p := newEd25519Proofer(t)
	v := newTestValidator()

	proof, err := p.Proof("GET", "https://auth.example.com/api/me")
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), proof, "GET", "https://auth.example.com/api/me", "")
	require.NoError(t, err)

	// Same proof, same window: replay.
	_, err = v.Validate(context.Background(), proof, "GET", "https://auth.example.com/api/me", "")
	assert.ErrorIs(t, err, core.ErrDPoPReplay)

	// Same proof past the freshness window: expired, not replay.
	v.now = func() time.Time { return time.Now().Add(5 * time.Minute) }
	_, err = v.Validate(context.Background(), proof, "GET", "https://auth.example.com/api/me", "")
	assert.ErrorIs(t, err, core.ErrDPoPExpired)
}

func TestValidate_Freshness(t *testing.T) {
	p := newEd25519Proofer(t)
	v := newTestValidator()

	// Proof minted in the past, outside the window.
	p.now = func() time.Time { return time.Now().Add(-2 * time.Minute) }
	proof, err := p.Proof("GET", "https://auth.example.com/api/me")
	require.NoError(t, err)
	_, err = v.Validate(context.Background(), proof, "GET", "https://auth.example.com/api/me", "")
	assert.ErrorIs(t, err, core.ErrDPoPExpired)

	// Proof minted too far in the future.
	p.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	proof, err = p.Proof("GET", "https://auth.example.com/api/me")
	require.NoError(t, err)
	_, err = v.Validate(context.Background(), proof, "GET", "https://auth.example.com/api/me", "")
	assert.ErrorIs(t, err, core.ErrDPoPExpired)
}

func TestValidate_Malformed(t *testing.T) {
	v := newTestValidator()
	ctx := context.Background()

	_, err := v.Validate(ctx, "", "GET", "https://auth.example.com/", "")
	assert.ErrorIs(t, err, core.ErrDPoPRequired)

	_, err = v.Validate(ctx, "not.a.jws", "GET", "https://auth.example.com/", "")
	assert.ErrorIs(t, err, core.ErrDPoPMismatch)

	p := newEd25519Proofer(t)
	proof, err := p.Proof("GET", "https://auth.example.com/")
	require.NoError(t, err)
	tampered := proof[:len(proof)-6] + "AAAAAA"
	_, err = v.Validate(ctx, tampered, "GET", "https://auth.example.com/", "")
	assert.ErrorIs(t, err, core.ErrDPoPMismatch)
}

func TestNormalizeURI(t *testing.T) {
	cases := map[string]string{
		"https://Auth.Example.com:443/api/me?x=1#frag": "https://auth.example.com/api/me",
		"http://host:80":         "http://host/",
		"https://host/path":      "https://host/path",
		"https://host:8443/path": "https://host:8443/path",
	}
	for in, want := range cases {
		got, err := NormalizeURI(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := NormalizeURI("/relative/only")
	assert.Error(t, err)
}
