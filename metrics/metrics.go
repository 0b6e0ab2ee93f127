// Package metrics exposes the service's prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/layer-3/sigil/core"
)

// Metrics bundles every instrument the service updates. A single value is
// threaded through the constructors so tests can use private registries.
type Metrics struct {
	ChallengesIssued  prometheus.Counter
	AuthAttempts      *prometheus.CounterVec // outcome: success|failure
	AuthFailureReason *prometheus.CounterVec // reason: error code
	TokensIssued      *prometheus.CounterVec // grant: login|refresh|step_up
	RateLimited       *prometheus.CounterVec // class: challenge|verify|refresh
	Lockouts          prometheus.Counter
	RiskDecisions     *prometheus.CounterVec // decision: allow|step_up|deny
	DPoPFailures      *prometheus.CounterVec // reason: required|mismatch|replay|expired
	VerifyDuration    prometheus.Histogram
}

// New creates and registers the instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ChallengesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sigil",
			Name:      "challenges_issued_total",
			Help:      "Challenges issued.",
		}),
		AuthAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sigil",
			Name:      "auth_attempts_total",
			Help:      "Verification attempts by outcome.",
		}, []string{"outcome"}),
		AuthFailureReason: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sigil",
			Name:      "auth_failures_total",
			Help:      "Verification failures by reason.",
		}, []string{"reason"}),
		TokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sigil",
			Name:      "tokens_issued_total",
			Help:      "Token pairs minted by grant type.",
		}, []string{"grant"}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sigil",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter, by endpoint class.",
		}, []string{"class"}),
		Lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sigil",
			Name:      "lockouts_total",
			Help:      "Subjects locked out after consecutive failures.",
		}),
		RiskDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sigil",
			Name:      "risk_decisions_total",
			Help:      "Risk gate decisions.",
		}, []string{"decision"}),
		DPoPFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sigil",
			Name:      "dpop_failures_total",
			Help:      "DPoP proof rejections by reason.",
		}, []string{"reason"}),
		VerifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sigil",
			Name:      "verify_duration_seconds",
			Help:      "Wall time of signature verification.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.ChallengesIssued,
		m.AuthAttempts,
		m.AuthFailureReason,
		m.TokensIssued,
		m.RateLimited,
		m.Lockouts,
		m.RiskDecisions,
		m.DPoPFailures,
		m.VerifyDuration,
	)
	return m
}

// NewUnregistered creates the instruments on a private registry. Handy as
// a default in constructors and tests.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}

// ObserveRisk counts a gate decision.
func (m *Metrics) ObserveRisk(decision core.RiskDecision) {
	m.RiskDecisions.WithLabelValues(decision.String()).Inc()
}
