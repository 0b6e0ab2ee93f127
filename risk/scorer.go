// Package risk computes an anomaly score for authentication attempts and
// gates the verify path: normal flow below the step-up threshold, a second
// signed challenge above it, outright denial above the deny threshold.
package risk

import (
	"context"
	"time"

	"github.com/layer-3/sigil/core"
)

// Config tunes the scorer's factor weights and the gate's thresholds.
// Scores are clamped to 0..100.
type Config struct {
	StepUpThreshold int // score at which a second proof is demanded
	DenyThreshold   int // score at which the attempt is rejected

	NewIPWeight        int
	VelocityWeight     int
	UnusualHourWeight  int
	BindingDriftWeight int

	// Velocity trips when the subject has made more than VelocityMax
	// verification attempts within VelocityWindow.
	VelocityWindow time.Duration
	VelocityMax    int

	// Attempts between NightStartHour and NightEndHour (UTC) count as
	// unusual-hour.
	NightStartHour int
	NightEndHour   int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		StepUpThreshold:    50,
		DenyThreshold:      85,
		NewIPWeight:        40,
		VelocityWeight:     30,
		UnusualHourWeight:  15,
		BindingDriftWeight: 15,
		VelocityWindow:     time.Minute,
		VelocityMax:        3,
		NightStartHour:     1,
		NightEndHour:       5,
	}
}

// History is the subject-level memory the scorer consults: which IPs a
// subject has authenticated from before and how often it attempted
// recently. Swappable for a distributed backend.
type History interface {
	// Observe records a verification attempt from ip.
	Observe(ctx context.Context, subject, ip string, at time.Time) error

	// KnownIP reports whether the subject authenticated from ip before.
	KnownIP(ctx context.Context, subject, ip string) (bool, error)

	// AttemptsSince counts verification attempts after since.
	AttemptsSince(ctx context.Context, subject string, since time.Time) (int, error)
}

// Attempt carries the observables of one verification attempt.
type Attempt struct {
	Subject   string
	IP        string
	UserAgent string
	At        time.Time

	// PriorIP/PriorUserAgent come from the last known session when the
	// binding policy treats drift as a risk input.
	PriorIP        string
	PriorUserAgent string
}

// Scorer turns an attempt into a scored RiskEvent.
type Scorer struct {
	cfg  Config
	hist History
}

// NewScorer creates a scorer over the given history.
func NewScorer(hist History, cfg Config) *Scorer {
	return &Scorer{cfg: cfg, hist: hist}
}

// Score evaluates the attempt and records it in the history. History
// faults degrade to a zero contribution for the affected factor instead of
// failing the login: risk scoring must never take authentication down.
func (s *Scorer) Score(ctx context.Context, a Attempt) core.RiskEvent {
	ev := core.RiskEvent{Subject: a.Subject, At: a.At}

	if a.IP != "" {
		known, err := s.hist.KnownIP(ctx, a.Subject, a.IP)
		if err == nil && !known {
			ev.Factors = append(ev.Factors, core.RiskFactorNewIP)
			ev.Score += s.cfg.NewIPWeight
		}
	}

	if s.cfg.VelocityMax > 0 {
		attempts, err := s.hist.AttemptsSince(ctx, a.Subject, a.At.Add(-s.cfg.VelocityWindow))
		if err == nil && attempts > s.cfg.VelocityMax {
			ev.Factors = append(ev.Factors, core.RiskFactorVelocity)
			ev.Score += s.cfg.VelocityWeight
		}
	}

	hour := a.At.UTC().Hour()
	if hour >= s.cfg.NightStartHour && hour < s.cfg.NightEndHour {
		ev.Factors = append(ev.Factors, core.RiskFactorUnusualHour)
		ev.Score += s.cfg.UnusualHourWeight
	}

	drifted := (a.PriorIP != "" && a.IP != "" && a.PriorIP != a.IP) ||
		(a.PriorUserAgent != "" && a.UserAgent != "" && a.PriorUserAgent != a.UserAgent)
	if drifted {
		ev.Factors = append(ev.Factors, core.RiskFactorBindingDrift)
		ev.Score += s.cfg.BindingDriftWeight
	}

	if ev.Score > 100 {
		ev.Score = 100
	}

	_ = s.hist.Observe(ctx, a.Subject, a.IP, a.At)
	return ev
}

// Gate applies the thresholds to a scored event.
type Gate struct {
	stepUp int
	deny   int
}

// NewGate creates a gate. A zero or negative deny threshold disables
// outright denial; everything above stepUp then demands a second proof.
func NewGate(cfg Config) *Gate {
	return &Gate{stepUp: cfg.StepUpThreshold, deny: cfg.DenyThreshold}
}

// Decide maps a score to a decision.
func (g *Gate) Decide(score int) core.RiskDecision {
	if g.deny > 0 && score >= g.deny {
		return core.RiskDeny
	}
	if g.stepUp > 0 && score >= g.stepUp {
		return core.RiskStepUp
	}
	return core.RiskAllow
}
