package http

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/sigil/adapters/ratelimit"
	"github.com/layer-3/sigil/adapters/store"
	"github.com/layer-3/sigil/adapters/tokenizer"
	"github.com/layer-3/sigil/dpop"
	"github.com/layer-3/sigil/internal/eth"
	"github.com/layer-3/sigil/metrics"
	"github.com/layer-3/sigil/risk"
	"github.com/layer-3/sigil/service"
)

const testHost = "auth.test"

type testServer struct {
	router  *gin.Engine
	key     *ecdsa.PrivateKey
	subject string
}

func newTestServer(t *testing.T, mutate func(*service.Deps, *service.Config)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	key, err := gethcrypto.GenerateKey()
	require.NoError(t, err)

	deps := service.Deps{
		Challenges:  store.NewMemoryChallengeStore(),
		Sessions:    store.NewMemorySessionStore(),
		StepUps:     store.NewMemoryStepUpStore(),
		Revocations: store.NewMemoryRevocationCache(),
		Tokenizer: tokenizer.NewJWTTokenizer(
			tokenizer.NewHS256Signer([]byte("0123456789abcdef0123456789abcdef")), "sigil",
		),
		Verifier: eth.NewVerifier(4),
		Failures: ratelimit.NewMemoryFailureTracker(ratelimit.DefaultLockoutPolicy()),
		DPoP:     dpop.NewValidator(dpop.NewMemoryReplayCache(0), dpop.DefaultValidatorConfig()),
		Log:      zerolog.Nop(),
	}
	cfg := service.DefaultConfig()
	if mutate != nil {
		mutate(&deps, &cfg)
	}
	svc := service.NewAuthService(deps, cfg)

	return &testServer{
		router:  NewRouter(RouterConfig{Service: svc, Log: zerolog.Nop()}),
		key:     key,
		subject: gethcrypto.PubkeyToAddress(key.PublicKey).Hex(),
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Host = testHost
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "https://app.example.com")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	resp := map[string]any{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func (ts *testServer) challenge(t *testing.T) (id, message string) {
	t.Helper()
	w, resp := ts.do(t, http.MethodPost, "/auth/challenge", gin.H{"address": ts.subject}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return resp["challenge_id"].(string), resp["message"].(string)
}

func (ts *testServer) login(t *testing.T, headers map[string]string) (access, refresh string) {
	t.Helper()
	id, message := ts.challenge(t)
	sig, err := eth.SignPersonal([]byte(message), ts.key)
	require.NoError(t, err)

	w, resp := ts.do(t, http.MethodPost, "/auth/login", gin.H{
		"challenge_id": id, "address": ts.subject, "signature": sig,
	}, headers)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return resp["access_token"].(string), resp["refresh_token"].(string)
}

func TestChallengeEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	w, resp := ts.do(t, http.MethodPost, "/auth/challenge", gin.H{"address": ts.subject}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, resp["challenge_id"])
	assert.NotEmpty(t, resp["nonce"])
	assert.Contains(t, resp["message"], ts.subject)

	w, resp = ts.do(t, http.MethodPost, "/auth/challenge", gin.H{"address": "bogus"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_address", resp["error"])

	w, _ = ts.do(t, http.MethodPost, "/auth/challenge", gin.H{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginAndGuardedAPI(t *testing.T) {
	ts := newTestServer(t, nil)

	access, _ := ts.login(t, nil)

	w, resp := ts.do(t, http.MethodGet, "/api/me", nil, map[string]string{
		"Authorization": "Bearer " + access,
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ts.subject, resp["address"])
	assert.NotEmpty(t, resp["session_id"])

	w, resp = ts.do(t, http.MethodGet, "/api/authorize", nil, map[string]string{
		"Authorization": "Bearer " + access,
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["authorized"])

	w, resp = ts.do(t, http.MethodGet, "/api/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "missing_token", resp["error"])

	w, resp = ts.do(t, http.MethodGet, "/api/me", nil, map[string]string{
		"Authorization": "Bearer garbage",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "token_invalid", resp["error"])
}

func TestLogin_BadSignature(t *testing.T) {
	ts := newTestServer(t, nil)

	id, message := ts.challenge(t)
	otherKey, err := gethcrypto.GenerateKey()
	require.NoError(t, err)
	sig, err := eth.SignPersonal([]byte(message), otherKey)
	require.NoError(t, err)

	w, resp := ts.do(t, http.MethodPost, "/auth/login", gin.H{
		"challenge_id": id, "address": ts.subject, "signature": sig,
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_signature", resp["error"])
}

func TestRefreshEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	_, refresh := ts.login(t, nil)

	w, resp := ts.do(t, http.MethodPost, "/auth/refresh", gin.H{"refresh_token": refresh}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, resp["access_token"])
	assert.NotEqual(t, refresh, resp["refresh_token"])

	// Reusing the rotated-away token is rejected.
	w, resp = ts.do(t, http.MethodPost, "/auth/refresh", gin.H{"refresh_token": refresh}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "token_revoked", resp["error"])
}

func TestLogoutEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	access, refresh := ts.login(t, nil)

	w, _ := ts.do(t, http.MethodPost, "/auth/logout", gin.H{"refresh_token": refresh}, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp := ts.do(t, http.MethodGet, "/api/me", nil, map[string]string{
		"Authorization": "Bearer " + access,
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "token_revoked", resp["error"])
}

func TestDPoPBoundFlow(t *testing.T) {
	ts := newTestServer(t, nil)

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	proofer, err := dpop.NewProofer(priv)
	require.NoError(t, err)

	loginProof, err := proofer.Proof(http.MethodPost, "http://"+testHost+"/auth/login")
	require.NoError(t, err)
	access, _ := ts.login(t, map[string]string{"DPoP": loginProof})

	// The bound token is unusable without a proof.
	w, resp := ts.do(t, http.MethodGet, "/api/me", nil, map[string]string{
		"Authorization": "DPoP " + access,
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "dpop_required", resp["error"])

	apiProof, err := proofer.Proof(http.MethodGet, "http://"+testHost+"/api/me")
	require.NoError(t, err)
	w, resp = ts.do(t, http.MethodGet, "/api/me", nil, map[string]string{
		"Authorization": "DPoP " + access,
		"DPoP":          apiProof,
	})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, ts.subject, resp["address"])

	// Replaying the same proof trips the replay cache.
	w, resp = ts.do(t, http.MethodGet, "/api/me", nil, map[string]string{
		"Authorization": "DPoP " + access,
		"DPoP":          apiProof,
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "dpop_replay", resp["error"])
}

func TestStepUpResponse(t *testing.T) {
	ts := newTestServer(t, func(d *service.Deps, _ *service.Config) {
		cfg := risk.DefaultConfig()
		cfg.NewIPWeight = 60
		d.Scorer = risk.NewScorer(risk.NewMemoryHistory(0), cfg)
		d.Gate = risk.NewGate(cfg)
	})

	id, message := ts.challenge(t)
	sig, err := eth.SignPersonal([]byte(message), ts.key)
	require.NoError(t, err)

	w, resp := ts.do(t, http.MethodPost, "/auth/login", gin.H{
		"challenge_id": id, "address": ts.subject, "signature": sig,
	}, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "step_up_required", resp["error"])

	challenge, ok := resp["challenge"].(map[string]any)
	require.True(t, ok, "step-up response carries the second challenge")
	assert.Equal(t, true, challenge["step_up"])

	// Signing the second challenge completes the login.
	sig2, err := eth.SignPersonal([]byte(challenge["message"].(string)), ts.key)
	require.NoError(t, err)
	w, resp = ts.do(t, http.MethodPost, "/auth/login", gin.H{
		"challenge_id": challenge["challenge_id"], "address": ts.subject, "signature": sig2,
	}, nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, resp["access_token"])
}

func TestOperationalEndpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = metrics.New(reg)

	ts := newTestServer(t, nil)
	ts.router = NewRouter(RouterConfig{
		Service:  serviceFromRouterTest(t),
		Log:      zerolog.Nop(),
		Registry: reg,
	})

	w, resp := ts.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", resp["status"])

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sigil_")
}

func serviceFromRouterTest(t *testing.T) *service.AuthService {
	t.Helper()
	return service.NewAuthService(service.Deps{
		Challenges:  store.NewMemoryChallengeStore(),
		Sessions:    store.NewMemorySessionStore(),
		StepUps:     store.NewMemoryStepUpStore(),
		Revocations: store.NewMemoryRevocationCache(),
		Tokenizer: tokenizer.NewJWTTokenizer(
			tokenizer.NewHS256Signer([]byte("0123456789abcdef0123456789abcdef")), "sigil",
		),
		Verifier: eth.NewVerifier(1),
		Log:      zerolog.Nop(),
	}, service.DefaultConfig())
}
