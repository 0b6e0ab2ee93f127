package risk

import (
	"context"
	"sync"
	"time"
)

// ipRetention bounds how long a seen IP counts as known.
const ipRetention = 30 * 24 * time.Hour

type subjectHistory struct {
	ips      map[string]time.Time // ip -> last seen
	attempts []time.Time
}

// MemoryHistory is the in-process History for single-instance deployments.
type MemoryHistory struct {
	mu       sync.Mutex
	subjects map[string]*subjectHistory

	// retention bounds the attempt log per subject.
	retention time.Duration
}

// NewMemoryHistory creates an empty history. Attempts older than retention
// are pruned on write; pass 0 for a one-hour default.
func NewMemoryHistory(retention time.Duration) *MemoryHistory {
	if retention <= 0 {
		retention = time.Hour
	}
	return &MemoryHistory{
		subjects:  make(map[string]*subjectHistory),
		retention: retention,
	}
}

func (h *MemoryHistory) Observe(_ context.Context, subject, ip string, at time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	sh, ok := h.subjects[subject]
	if !ok {
		sh = &subjectHistory{ips: make(map[string]time.Time)}
		h.subjects[subject] = sh
	}
	if ip != "" {
		sh.ips[ip] = at
	}

	cutoff := at.Add(-h.retention)
	kept := sh.attempts[:0]
	for _, t := range sh.attempts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	sh.attempts = append(kept, at)
	return nil
}

func (h *MemoryHistory) KnownIP(_ context.Context, subject, ip string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sh, ok := h.subjects[subject]
	if !ok {
		return false, nil
	}
	_, seen := sh.ips[ip]
	return seen, nil
}

func (h *MemoryHistory) AttemptsSince(_ context.Context, subject string, since time.Time) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sh, ok := h.subjects[subject]
	if !ok {
		return 0, nil
	}
	n := 0
	for _, t := range sh.attempts {
		if t.After(since) {
			n++
		}
	}
	return n, nil
}

// Sweep drops subjects with no recent attempts and no IP seen within the
// retention horizon.
func (h *MemoryHistory) Sweep(now time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	removed := 0
	for subject, sh := range h.subjects {
		stale := true
		for ip, seen := range sh.ips {
			if now.Sub(seen) > ipRetention {
				delete(sh.ips, ip)
				continue
			}
			stale = false
		}
		for _, t := range sh.attempts {
			if now.Sub(t) <= h.retention {
				stale = false
				break
			}
		}
		if stale {
			delete(h.subjects, subject)
			removed++
		}
	}
	return removed
}

var _ History = (*MemoryHistory)(nil)
