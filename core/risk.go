package core

import "time"

// RiskFactor names one observable that contributed to a risk score.
type RiskFactor string

const (
	RiskFactorNewIP        RiskFactor = "new_ip"
	RiskFactorVelocity     RiskFactor = "velocity"
	RiskFactorUnusualHour  RiskFactor = "unusual_hour"
	RiskFactorBindingDrift RiskFactor = "binding_drift"
)

// RiskEvent is a scored authentication attempt. It is consumed once by the
// step-up gate and kept only in the audit trail.
type RiskEvent struct {
	Subject string
	Factors []RiskFactor
	Score   int // 0..100
	At      time.Time
}

// RiskDecision is the gate's verdict for a scored attempt.
type RiskDecision int

const (
	RiskAllow RiskDecision = iota
	RiskStepUp
	RiskDeny
)

func (d RiskDecision) String() string {
	switch d {
	case RiskStepUp:
		return "step_up"
	case RiskDeny:
		return "deny"
	default:
		return "allow"
	}
}
