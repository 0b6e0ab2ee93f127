// Package store provides the persistence adapters behind the ports
// interfaces: bounded in-process implementations for single-instance
// deployments and Redis implementations for multi-instance ones. Both honor
// the same atomicity contracts, so callers depend only on the interfaces.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/sigil/core"
	"github.com/layer-3/sigil/ports"
)

// MemoryChallengeStore keeps challenges in a mutex-guarded map with a
// (subject, origin) index enforcing one outstanding challenge per pair.
type MemoryChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]*core.Challenge
	pending    map[string]string // subject|origin -> challenge id
}

// NewMemoryChallengeStore creates an empty challenge store.
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{
		challenges: make(map[string]*core.Challenge),
		pending:    make(map[string]string),
	}
}

func pairKey(subject, origin string) string {
	return subject + "|" + origin
}

// Save persists a challenge and indexes it as the pending one for its pair.
func (s *MemoryChallengeStore) Save(_ context.Context, challenge *core.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *challenge
	s.challenges[cp.ID] = &cp
	s.pending[pairKey(cp.Subject, cp.Origin)] = cp.ID
	return nil
}

// Get returns a copy of the challenge or core.ErrChallengeNotFound.
func (s *MemoryChallengeStore) Get(_ context.Context, id string) (*core.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.challenges[id]
	if !ok {
		return nil, core.ErrChallengeNotFound
	}
	cp := *ch
	return &cp, nil
}

// TryConsume atomically flips the consumed flag. The mutex makes the
// check-and-set indivisible: exactly one concurrent caller sees true.
func (s *MemoryChallengeStore) TryConsume(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.challenges[id]
	if !ok {
		return false, core.ErrChallengeNotFound
	}
	if ch.Consumed {
		return false, nil
	}
	ch.Consumed = true
	delete(s.pending, pairKey(ch.Subject, ch.Origin))
	return true, nil
}

// InvalidatePending drops the unconsumed challenge for (subject, origin).
func (s *MemoryChallengeStore) InvalidatePending(_ context.Context, subject, origin string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(subject, origin)
	if id, ok := s.pending[key]; ok {
		delete(s.challenges, id)
		delete(s.pending, key)
	}
	return nil
}

// Delete removes a challenge regardless of state.
func (s *MemoryChallengeStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.challenges[id]; ok {
		if s.pending[pairKey(ch.Subject, ch.Origin)] == id {
			delete(s.pending, pairKey(ch.Subject, ch.Origin))
		}
		delete(s.challenges, id)
	}
	return nil
}

// DeleteExpired prunes challenges past their TTL.
func (s *MemoryChallengeStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, ch := range s.challenges {
		if ch.Expired(now) {
			if s.pending[pairKey(ch.Subject, ch.Origin)] == id {
				delete(s.pending, pairKey(ch.Subject, ch.Origin))
			}
			delete(s.challenges, id)
			removed++
		}
	}
	return removed, nil
}

// MemorySessionStore keeps sessions in a mutex-guarded map.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*core.Session
}

// NewMemorySessionStore creates an empty session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*core.Session)}
}

// Save persists a session, replacing any previous state.
func (s *MemorySessionStore) Save(_ context.Context, session *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *session
	s.sessions[cp.ID] = &cp
	return nil
}

// Get returns a copy of the session or core.ErrSessionNotFound.
func (s *MemorySessionStore) Get(_ context.Context, id string) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

// Revoke marks the session revoked.
func (s *MemorySessionStore) Revoke(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return core.ErrSessionNotFound
	}
	sess.Revoked = true
	return nil
}

// DeleteExpired prunes sessions whose refresh expiry has passed.
func (s *MemorySessionStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if now.After(sess.RefreshExpiry) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// MemoryRevocationCache is the in-process token denylist. Entries expire at
// the token's own natural expiry, bounding memory by live tokens.
type MemoryRevocationCache struct {
	mu      sync.Mutex
	entries map[string]revocationEntry
	now     func() time.Time
}

type revocationEntry struct {
	reason    string
	expiresAt time.Time
}

// NewMemoryRevocationCache creates an empty revocation cache.
func NewMemoryRevocationCache() *MemoryRevocationCache {
	return &MemoryRevocationCache{
		entries: make(map[string]revocationEntry),
		now:     time.Now,
	}
}

// Revoke denylists a token id for ttl.
func (c *MemoryRevocationCache) Revoke(_ context.Context, tokenID, reason string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[tokenID] = revocationEntry{reason: reason, expiresAt: c.now().Add(ttl)}
	return nil
}

// RevokeOnce denylists a token id unless a live entry already exists. The
// mutex makes check-and-revoke indivisible, which is what gives refresh
// rotation its exactly-one-winner semantics.
func (c *MemoryRevocationCache) RevokeOnce(_ context.Context, tokenID, reason string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if entry, ok := c.entries[tokenID]; ok && entry.expiresAt.After(now) {
		return false, nil
	}
	c.entries[tokenID] = revocationEntry{reason: reason, expiresAt: now.Add(ttl)}
	return true, nil
}

// IsRevoked reports whether a live entry exists for the token id.
func (c *MemoryRevocationCache) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[tokenID]
	if !ok {
		return false, nil
	}
	return entry.expiresAt.After(c.now()), nil
}

// Sweep drops expired entries and reports how many were removed.
func (c *MemoryRevocationCache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, entry := range c.entries {
		if !entry.expiresAt.After(now) {
			delete(c.entries, id)
			removed++
		}
	}
	return removed
}

// MemoryStepUpStore tracks pending step-up challenges per subject.
type MemoryStepUpStore struct {
	mu      sync.Mutex
	pending map[string]stepUpEntry
	now     func() time.Time
}

type stepUpEntry struct {
	challengeID string
	expiresAt   time.Time
}

// NewMemoryStepUpStore creates an empty step-up store.
func NewMemoryStepUpStore() *MemoryStepUpStore {
	return &MemoryStepUpStore{pending: make(map[string]stepUpEntry), now: time.Now}
}

// SetPending records the required second-proof challenge for a subject.
func (s *MemoryStepUpStore) SetPending(_ context.Context, subject, challengeID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[subject] = stepUpEntry{challengeID: challengeID, expiresAt: s.now().Add(ttl)}
	return nil
}

// TakePending atomically fetches and clears the pending challenge id.
func (s *MemoryStepUpStore) TakePending(_ context.Context, subject string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.pending[subject]
	if !ok {
		return "", false, nil
	}
	delete(s.pending, subject)
	if !entry.expiresAt.After(s.now()) {
		return "", false, nil
	}
	return entry.challengeID, true, nil
}

// Interface guards.
var (
	_ ports.ChallengeStore  = (*MemoryChallengeStore)(nil)
	_ ports.SessionStore    = (*MemorySessionStore)(nil)
	_ ports.RevocationCache = (*MemoryRevocationCache)(nil)
	_ ports.StepUpStore     = (*MemoryStepUpStore)(nil)
)
