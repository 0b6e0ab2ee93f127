package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SIGIL_SIGNING_SECRET", "0123456789abcdef0123456789abcdef")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "sigil", cfg.Issuer)
	assert.Equal(t, 5*time.Minute, cfg.ChallengeTTL)
	assert.Equal(t, "hs256", cfg.SigningScheme)
	assert.Equal(t, "score", cfg.BindingPolicy)
	assert.Empty(t, cfg.RedisURL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SIGIL_SIGNING_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("SIGIL_LISTEN_ADDR", ":8080")
	t.Setenv("SIGIL_ACCESS_TTL", "30m")
	t.Setenv("SIGIL_BINDING_POLICY", "hard")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 30*time.Minute, cfg.AccessTTL)
	assert.Equal(t, "hard", cfg.BindingPolicy)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sigil.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"listen_addr: \":7000\"\nsigning_secret: 0123456789abcdef0123456789abcdef\nrisk_deny_threshold: 90\n",
	), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.ListenAddr)
	assert.Equal(t, 90, cfg.RiskDenyThreshold)
}

func TestLoad_Validation(t *testing.T) {
	t.Setenv("SIGIL_SIGNING_SECRET", "too-short")
	_, err := Load("")
	assert.ErrorContains(t, err, "signing_secret")

	t.Setenv("SIGIL_SIGNING_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("SIGIL_SIGNING_SCHEME", "rs512")
	_, err = Load("")
	assert.ErrorContains(t, err, "signing_scheme")

	t.Setenv("SIGIL_SIGNING_SCHEME", "es256")
	_, err = Load("")
	assert.ErrorContains(t, err, "signing_key")

	t.Setenv("SIGIL_SIGNING_SCHEME", "hs256")
	t.Setenv("SIGIL_BINDING_POLICY", "maybe")
	_, err = Load("")
	assert.ErrorContains(t, err, "binding_policy")
}
