package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/layer-3/sigil/core"
	"github.com/layer-3/sigil/ports"
)

const (
	challengePrefix      = "sigil:challenge:"
	consumedPrefix       = "sigil:challenge:consumed:"
	pendingPrefix        = "sigil:challenge:pending:"
	sessionPrefix        = "sigil:session:"
	sessionRevokedPrefix = "sigil:session:revoked:"
	revokedPrefix        = "sigil:revoked:"
	replayPrefix         = "sigil:dpop:jti:"
	stepUpPrefix         = "sigil:stepup:"
	consumedMarkerTTL    = time.Hour // outlives any sane challenge TTL
)

// RedisChallengeStore persists challenges in Redis so multiple instances
// share one challenge space. Consumption is a SETNX latch: the first setter
// wins, which preserves the one-time-use invariant across instances.
type RedisChallengeStore struct {
	client *redis.Client
}

// NewRedisChallengeStore creates a challenge store on an existing client.
func NewRedisChallengeStore(client *redis.Client) *RedisChallengeStore {
	return &RedisChallengeStore{client: client}
}

type challengeRecord struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	Origin    string    `json:"origin"`
	Nonce     string    `json:"nonce"`
	Message   string    `json:"message"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	StepUp    bool      `json:"step_up,omitempty"`
}

// Save persists the challenge with its own TTL and indexes it per pair.
func (s *RedisChallengeStore) Save(ctx context.Context, challenge *core.Challenge) error {
	payload, err := json.Marshal(challengeRecord{
		ID:        challenge.ID,
		Subject:   challenge.Subject,
		Origin:    challenge.Origin,
		Nonce:     challenge.Nonce,
		Message:   challenge.Message,
		IssuedAt:  challenge.IssuedAt,
		ExpiresAt: challenge.ExpiresAt,
		StepUp:    challenge.StepUp,
	})
	if err != nil {
		return fmt.Errorf("marshal challenge: %w", err)
	}

	ttl := time.Until(challenge.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, challengePrefix+challenge.ID, payload, ttl)
	pipe.Set(ctx, pendingPrefix+pairKey(challenge.Subject, challenge.Origin), challenge.ID, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("save challenge", err)
	}
	return nil
}

// Get loads a challenge. The consumed flag is derived from the latch key.
func (s *RedisChallengeStore) Get(ctx context.Context, id string) (*core.Challenge, error) {
	payload, err := s.client.Get(ctx, challengePrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrChallengeNotFound
	}
	if err != nil {
		return nil, storeErr("get challenge", err)
	}

	var rec challengeRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, storeErr("decode challenge", err)
	}

	consumed, err := s.client.Exists(ctx, consumedPrefix+id).Result()
	if err != nil {
		return nil, storeErr("get challenge", err)
	}

	return &core.Challenge{
		ID:        rec.ID,
		Subject:   rec.Subject,
		Origin:    rec.Origin,
		Nonce:     rec.Nonce,
		Message:   rec.Message,
		IssuedAt:  rec.IssuedAt,
		ExpiresAt: rec.ExpiresAt,
		Consumed:  consumed > 0,
		StepUp:    rec.StepUp,
	}, nil
}

// TryConsume sets the consumed latch with SETNX; exactly one caller across
// all instances observes true.
func (s *RedisChallengeStore) TryConsume(ctx context.Context, id string) (bool, error) {
	exists, err := s.client.Exists(ctx, challengePrefix+id).Result()
	if err != nil {
		return false, storeErr("consume challenge", err)
	}
	if exists == 0 {
		return false, core.ErrChallengeNotFound
	}

	ok, err := s.client.SetNX(ctx, consumedPrefix+id, "1", consumedMarkerTTL).Result()
	if err != nil {
		return false, storeErr("consume challenge", err)
	}
	return ok, nil
}

// InvalidatePending removes the outstanding challenge for (subject, origin).
func (s *RedisChallengeStore) InvalidatePending(ctx context.Context, subject, origin string) error {
	key := pendingPrefix + pairKey(subject, origin)
	id, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return storeErr("invalidate pending", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, challengePrefix+id)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("invalidate pending", err)
	}
	return nil
}

// Delete removes a challenge and its consumed latch.
func (s *RedisChallengeStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, challengePrefix+id, consumedPrefix+id).Err(); err != nil {
		return storeErr("delete challenge", err)
	}
	return nil
}

// DeleteExpired is a no-op: Redis key TTLs already reclaim expired
// challenges.
func (s *RedisChallengeStore) DeleteExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}

// RedisSessionStore persists sessions keyed by id, expiring with the
// refresh token.
type RedisSessionStore struct {
	client *redis.Client
}

// NewRedisSessionStore creates a session store on an existing client.
func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

type sessionRecord struct {
	ID            string    `json:"id"`
	Subject       string    `json:"subject"`
	AccessID      string    `json:"access_id"`
	RefreshID     string    `json:"refresh_id"`
	IssuedAt      time.Time `json:"issued_at"`
	AccessExpiry  time.Time `json:"access_expiry"`
	RefreshExpiry time.Time `json:"refresh_expiry"`
	KeyThumbprint string    `json:"jkt,omitempty"`
	IP            string    `json:"ip,omitempty"`
	UserAgent     string    `json:"user_agent,omitempty"`
	Revoked       bool      `json:"revoked"`
}

// Save persists the session until its refresh expiry.
func (s *RedisSessionStore) Save(ctx context.Context, session *core.Session) error {
	payload, err := json.Marshal(sessionRecord{
		ID:            session.ID,
		Subject:       session.Subject,
		AccessID:      session.AccessID,
		RefreshID:     session.RefreshID,
		IssuedAt:      session.IssuedAt,
		AccessExpiry:  session.AccessExpiry,
		RefreshExpiry: session.RefreshExpiry,
		KeyThumbprint: session.KeyThumbprint,
		IP:            session.IP,
		UserAgent:     session.UserAgent,
		Revoked:       session.Revoked,
	})
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ttl := time.Until(session.RefreshExpiry)
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, sessionPrefix+session.ID, payload, ttl).Err(); err != nil {
		return storeErr("save session", err)
	}
	return nil
}

// Get loads a session or returns core.ErrSessionNotFound.
func (s *RedisSessionStore) Get(ctx context.Context, id string) (*core.Session, error) {
	payload, err := s.client.Get(ctx, sessionPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrSessionNotFound
	}
	if err != nil {
		return nil, storeErr("get session", err)
	}

	var rec sessionRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, storeErr("decode session", err)
	}

	revoked, err := s.client.Exists(ctx, sessionRevokedPrefix+id).Result()
	if err != nil {
		return nil, storeErr("get session", err)
	}

	return &core.Session{
		ID:            rec.ID,
		Subject:       rec.Subject,
		AccessID:      rec.AccessID,
		RefreshID:     rec.RefreshID,
		IssuedAt:      rec.IssuedAt,
		AccessExpiry:  rec.AccessExpiry,
		RefreshExpiry: rec.RefreshExpiry,
		KeyThumbprint: rec.KeyThumbprint,
		IP:            rec.IP,
		UserAgent:     rec.UserAgent,
		Revoked:       rec.Revoked || revoked > 0,
	}, nil
}

// Revoke sets a marker key next to the session record instead of
// rewriting it: a Get-then-Save here could lose the flag to a concurrent
// rotation Save. The marker inherits the session's remaining TTL.
func (s *RedisSessionStore) Revoke(ctx context.Context, id string) error {
	ttl, err := s.client.TTL(ctx, sessionPrefix+id).Result()
	if err != nil {
		return storeErr("revoke session", err)
	}
	if ttl < 0 {
		// -2: no such key; -1: no expiry, which Save never produces.
		return core.ErrSessionNotFound
	}
	if err := s.client.Set(ctx, sessionRevokedPrefix+id, "1", ttl).Err(); err != nil {
		return storeErr("revoke session", err)
	}
	return nil
}

// DeleteExpired is a no-op: session keys expire with their refresh TTL.
func (s *RedisSessionStore) DeleteExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}

// RedisRevocationCache is the shared token denylist.
type RedisRevocationCache struct {
	client *redis.Client
}

// NewRedisRevocationCache creates a revocation cache on an existing client.
func NewRedisRevocationCache(client *redis.Client) *RedisRevocationCache {
	return &RedisRevocationCache{client: client}
}

// Revoke denylists a token id for ttl.
func (c *RedisRevocationCache) Revoke(ctx context.Context, tokenID, reason string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := c.client.Set(ctx, revokedPrefix+tokenID, reason, ttl).Err(); err != nil {
		return storeErr("revoke token", err)
	}
	return nil
}

// RevokeOnce denylists a token id with SETNX; one winner across instances.
func (c *RedisRevocationCache) RevokeOnce(ctx context.Context, tokenID, reason string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	ok, err := c.client.SetNX(ctx, revokedPrefix+tokenID, reason, ttl).Result()
	if err != nil {
		return false, storeErr("revoke token", err)
	}
	return ok, nil
}

// IsRevoked reports whether a live denylist entry exists.
func (c *RedisRevocationCache) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := c.client.Exists(ctx, revokedPrefix+tokenID).Result()
	if err != nil {
		return false, storeErr("check revocation", err)
	}
	return n > 0, nil
}

// RedisReplayCache shares DPoP proof markers across instances.
type RedisReplayCache struct {
	client *redis.Client
}

// NewRedisReplayCache creates a replay cache on an existing client.
func NewRedisReplayCache(client *redis.Client) *RedisReplayCache {
	return &RedisReplayCache{client: client}
}

// Record stores a proof id with SETNX; a lost race means replay.
func (c *RedisReplayCache) Record(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, replayPrefix+jti, "1", ttl).Result()
	if err != nil {
		return false, storeErr("record jti", err)
	}
	return !ok, nil
}

// RedisStepUpStore tracks pending step-up challenges per subject.
type RedisStepUpStore struct {
	client *redis.Client
}

// NewRedisStepUpStore creates a step-up store on an existing client.
func NewRedisStepUpStore(client *redis.Client) *RedisStepUpStore {
	return &RedisStepUpStore{client: client}
}

// SetPending records the required second-proof challenge for a subject.
func (s *RedisStepUpStore) SetPending(ctx context.Context, subject, challengeID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, stepUpPrefix+subject, challengeID, ttl).Err(); err != nil {
		return storeErr("set pending step-up", err)
	}
	return nil
}

// TakePending atomically fetches and clears the pending challenge id.
func (s *RedisStepUpStore) TakePending(ctx context.Context, subject string) (string, bool, error) {
	id, err := s.client.GetDel(ctx, stepUpPrefix+subject).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storeErr("take pending step-up", err)
	}
	return id, true, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, core.ErrStoreUnavailable)
}

// Interface guards.
var (
	_ ports.ChallengeStore  = (*RedisChallengeStore)(nil)
	_ ports.SessionStore    = (*RedisSessionStore)(nil)
	_ ports.RevocationCache = (*RedisRevocationCache)(nil)
	_ ports.ReplayCache     = (*RedisReplayCache)(nil)
	_ ports.StepUpStore     = (*RedisStepUpStore)(nil)
)
