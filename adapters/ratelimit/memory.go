// Package ratelimit implements the RateLimiter and FailureTracker ports:
// token buckets per (class, key) and a consecutive-failure lockout that
// blunts brute-force probing even though there is no password to guess.
package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/layer-3/sigil/ports"
)

// Limit is a token-bucket budget for one endpoint class.
type Limit struct {
	RPS   float64
	Burst int
}

// Limits maps endpoint classes to their budgets.
type Limits map[ports.LimitClass]Limit

// DefaultLimits returns the production defaults: challenge issuance is
// throttled harder (per origin/IP) than verification and refresh (per
// subject).
func DefaultLimits() Limits {
	return Limits{
		ports.LimitChallenge: {RPS: 0.5, Burst: 5},
		ports.LimitVerify:    {RPS: 1, Burst: 10},
		ports.LimitRefresh:   {RPS: 1, Burst: 10},
	}
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen atomic.Int64 // unix nanos, updated on every Allow
}

// MemoryLimiter keeps one token bucket per (class, key) in a sync.Map,
// lazily created on first sight of the key.
type MemoryLimiter struct {
	limits  Limits
	buckets sync.Map // class|key -> *bucket
	mu      sync.Mutex
	now     func() time.Time
}

// NewMemoryLimiter creates a limiter with the given budgets. Classes absent
// from limits are unthrottled.
func NewMemoryLimiter(limits Limits) *MemoryLimiter {
	return &MemoryLimiter{limits: limits, now: time.Now}
}

// Allow consumes one token from the bucket for (class, key).
func (l *MemoryLimiter) Allow(_ context.Context, class ports.LimitClass, key string) (bool, error) {
	limit, ok := l.limits[class]
	if !ok {
		return true, nil
	}

	id := string(class) + "|" + key
	v, ok := l.buckets.Load(id)
	if !ok {
		// Double-checked creation so two first-sighters share one bucket.
		l.mu.Lock()
		if v, ok = l.buckets.Load(id); !ok {
			v = &bucket{lim: rate.NewLimiter(rate.Limit(limit.RPS), limit.Burst)}
			l.buckets.Store(id, v)
		}
		l.mu.Unlock()
	}

	b := v.(*bucket)
	b.lastSeen.Store(l.now().UnixNano())
	return b.lim.Allow(), nil
}

// Sweep drops buckets idle longer than maxIdle so the key space stays
// bounded.
func (l *MemoryLimiter) Sweep(now time.Time, maxIdle time.Duration) int {
	cutoff := now.Add(-maxIdle).UnixNano()
	removed := 0
	l.buckets.Range(func(key, value any) bool {
		if value.(*bucket).lastSeen.Load() < cutoff {
			l.buckets.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

var _ ports.RateLimiter = (*MemoryLimiter)(nil)
