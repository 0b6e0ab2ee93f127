package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/sigil/core"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	m, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return m, client
}

func TestRedisChallengeStore_Lifecycle(t *testing.T) {
	m, client := newTestRedis(t)
	s := NewRedisChallengeStore(client)
	ctx := context.Background()

	ch := testChallenge("c1", "0xabc", "https://app.example.com", 5*time.Minute)
	require.NoError(t, s.Save(ctx, ch))

	got, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, ch.Message, got.Message)
	assert.Equal(t, ch.Nonce, got.Nonce)
	assert.False(t, got.Consumed)

	ok, err := s.TryConsume(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.TryConsume(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err = s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, got.Consumed)

	// TTL reclaims the challenge without a sweeper.
	m.FastForward(6 * time.Minute)
	_, err = s.Get(ctx, "c1")
	assert.ErrorIs(t, err, core.ErrChallengeNotFound)
}

func TestRedisChallengeStore_InvalidatePending(t *testing.T) {
	_, client := newTestRedis(t)
	s := NewRedisChallengeStore(client)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, testChallenge("old", "0xabc", "origin", time.Minute)))
	require.NoError(t, s.InvalidatePending(ctx, "0xabc", "origin"))

	_, err := s.Get(ctx, "old")
	assert.ErrorIs(t, err, core.ErrChallengeNotFound)
}

func TestRedisSessionStore(t *testing.T) {
	m, client := newTestRedis(t)
	s := NewRedisSessionStore(client)
	ctx := context.Background()
	now := time.Now()

	sess := &core.Session{
		ID:            "s1",
		Subject:       "0xabc",
		AccessID:      "a1",
		RefreshID:     "r1",
		IssuedAt:      now,
		AccessExpiry:  now.Add(15 * time.Minute),
		RefreshExpiry: now.Add(time.Hour),
		KeyThumbprint: "thumb",
	}
	require.NoError(t, s.Save(ctx, sess))

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "thumb", got.KeyThumbprint)
	assert.False(t, got.Revoked)

	require.NoError(t, s.Revoke(ctx, "s1"))
	got, err = s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, got.Revoked)

	m.FastForward(2 * time.Hour)
	_, err = s.Get(ctx, "s1")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestRedisSessionStore_RevokeSurvivesConcurrentSave(t *testing.T) {
	_, client := newTestRedis(t)
	s := NewRedisSessionStore(client)
	ctx := context.Background()
	now := time.Now()

	sess := &core.Session{
		ID:            "s1",
		Subject:       "0xabc",
		RefreshID:     "r1",
		IssuedAt:      now,
		RefreshExpiry: now.Add(time.Hour),
	}
	require.NoError(t, s.Save(ctx, sess))
	require.NoError(t, s.Revoke(ctx, "s1"))

	// A rotation racing the revoke rewrites the record from a stale,
	// un-revoked copy. The marker key must keep the session dead.
	stale := *sess
	stale.RefreshID = "r2"
	require.NoError(t, s.Save(ctx, &stale))

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, got.Revoked)
}

func TestRedisSessionStore_RevokeMissing(t *testing.T) {
	_, client := newTestRedis(t)
	s := NewRedisSessionStore(client)

	err := s.Revoke(context.Background(), "ghost")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestRedisRevocationCache(t *testing.T) {
	m, client := newTestRedis(t)
	c := NewRedisRevocationCache(client)
	ctx := context.Background()

	first, err := c.RevokeOnce(ctx, "rt-1", "rotated", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := c.RevokeOnce(ctx, "rt-1", "rotated", time.Minute)
	require.NoError(t, err)
	assert.False(t, second)

	revoked, err := c.IsRevoked(ctx, "rt-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	// Entry lapses with the token's own expiry.
	m.FastForward(2 * time.Minute)
	revoked, err = c.IsRevoked(ctx, "rt-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRedisReplayCache(t *testing.T) {
	m, client := newTestRedis(t)
	c := NewRedisReplayCache(client)
	ctx := context.Background()

	replay, err := c.Record(ctx, "jti-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, replay)

	replay, err = c.Record(ctx, "jti-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, replay)

	m.FastForward(2 * time.Minute)
	replay, err = c.Record(ctx, "jti-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, replay)
}

func TestRedisStepUpStore(t *testing.T) {
	_, client := newTestRedis(t)
	s := NewRedisStepUpStore(client)
	ctx := context.Background()

	require.NoError(t, s.SetPending(ctx, "0xabc", "ch-2", time.Minute))

	id, ok, err := s.TakePending(ctx, "0xabc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ch-2", id)

	_, ok, err = s.TakePending(ctx, "0xabc")
	require.NoError(t, err)
	assert.False(t, ok)
}
