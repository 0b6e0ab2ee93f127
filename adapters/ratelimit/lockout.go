package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/sigil/ports"
)

// LockoutPolicy escalates consecutive verification failures into a
// cooldown: after Threshold failures within Window, the subject is locked
// for Cooldown regardless of signature validity.
type LockoutPolicy struct {
	Threshold int
	Window    time.Duration
	Cooldown  time.Duration
}

// DefaultLockoutPolicy returns the production defaults: 5 failures in 5
// minutes lock the subject for 15 minutes.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{Threshold: 5, Window: 5 * time.Minute, Cooldown: 15 * time.Minute}
}

type failureState struct {
	count       int
	windowStart time.Time
	lockedUntil time.Time
}

// MemoryFailureTracker is the in-process FailureTracker.
type MemoryFailureTracker struct {
	policy LockoutPolicy
	mu     sync.Mutex
	state  map[string]*failureState
	now    func() time.Time
}

// NewMemoryFailureTracker creates a tracker with the given policy.
func NewMemoryFailureTracker(policy LockoutPolicy) *MemoryFailureTracker {
	if policy.Threshold <= 0 {
		policy = DefaultLockoutPolicy()
	}
	return &MemoryFailureTracker{
		policy: policy,
		state:  make(map[string]*failureState),
		now:    time.Now,
	}
}

// RecordFailure counts a failure; tripping the threshold starts the
// cooldown and resets the counter.
func (t *MemoryFailureTracker) RecordFailure(_ context.Context, subject string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	st, ok := t.state[subject]
	if !ok || now.Sub(st.windowStart) > t.policy.Window {
		st = &failureState{windowStart: now}
		t.state[subject] = st
	}

	st.count++
	if st.count >= t.policy.Threshold {
		st.lockedUntil = now.Add(t.policy.Cooldown)
		st.count = 0
		st.windowStart = now
		return true, nil
	}
	return false, nil
}

// RecordSuccess clears the consecutive-failure count. An active lockout is
// not lifted early.
func (t *MemoryFailureTracker) RecordSuccess(_ context.Context, subject string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if st, ok := t.state[subject]; ok {
		st.count = 0
		if !st.lockedUntil.After(t.now()) {
			delete(t.state, subject)
		}
	}
	return nil
}

// IsLocked reports whether the subject is inside a cooldown.
func (t *MemoryFailureTracker) IsLocked(_ context.Context, subject string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.state[subject]
	if !ok {
		return false, nil
	}
	return st.lockedUntil.After(t.now()), nil
}

// Sweep drops stale state: no live lock and no failures within the window.
func (t *MemoryFailureTracker) Sweep(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for subject, st := range t.state {
		if !st.lockedUntil.After(now) && now.Sub(st.windowStart) > t.policy.Window {
			delete(t.state, subject)
			removed++
		}
	}
	return removed
}

var _ ports.FailureTracker = (*MemoryFailureTracker)(nil)
