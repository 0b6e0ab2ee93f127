package dpop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultMaxEntries bounds the in-memory replay cache.
	DefaultMaxEntries = 100_000

	// maxJTILength rejects absurd proof identifiers before they are stored.
	maxJTILength = 1024
)

// ErrReplayCacheFull is returned when the cache refuses new entries.
var ErrReplayCacheFull = errors.New("replay cache full")

// MemoryReplayCache is an in-process replay cache built on sync.Map so the
// seen-before check is a single atomic LoadOrStore, never read-then-write.
type MemoryReplayCache struct {
	entries    sync.Map // jti -> *replayEntry
	entryCount atomic.Int64
	maxEntries int64
	now        func() time.Time
}

type replayEntry struct {
	expiresAt int64 // unix nanos
}

// NewMemoryReplayCache creates a replay cache holding at most maxEntries
// live markers. Zero or negative selects DefaultMaxEntries.
func NewMemoryReplayCache(maxEntries int) *MemoryReplayCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryReplayCache{maxEntries: int64(maxEntries), now: time.Now}
}

// Record stores a proof id for ttl. Returns true when the id is already
// present and unexpired. Concurrent calls for the same fresh id yield
// exactly one false.
func (c *MemoryReplayCache) Record(_ context.Context, jti string, ttl time.Duration) (bool, error) {
	if jti == "" || len(jti) > maxJTILength {
		return false, errors.New("invalid jti")
	}

	now := c.now().UnixNano()
	entry := &replayEntry{expiresAt: now + ttl.Nanoseconds()}

	existing, loaded := c.entries.LoadOrStore(jti, entry)
	if loaded {
		prev := existing.(*replayEntry)
		if prev.expiresAt > now {
			return true, nil
		}
		// Expired marker: whoever swaps it in wins, everyone else replays.
		if c.entries.CompareAndSwap(jti, existing, entry) {
			return false, nil
		}
		return true, nil
	}

	if c.entryCount.Add(1) > c.maxEntries {
		c.entries.Delete(jti)
		c.entryCount.Add(-1)
		return false, ErrReplayCacheFull
	}
	return false, nil
}

// Sweep drops expired markers and reports how many were removed. Called by
// the background sweeper; requests never pay for it.
func (c *MemoryReplayCache) Sweep(now time.Time) int {
	cutoff := now.UnixNano()
	removed := 0
	c.entries.Range(func(key, value any) bool {
		if value.(*replayEntry).expiresAt <= cutoff {
			if c.entries.CompareAndDelete(key, value) {
				c.entryCount.Add(-1)
				removed++
			}
		}
		return true
	})
	return removed
}

// Len returns the number of live markers.
func (c *MemoryReplayCache) Len() int {
	return int(c.entryCount.Load())
}
