// Package eligibility decides whether a session qualifies for points.
//
// Rules are evaluated in order and the first failing rule names the reason.
// An ineligible session is still logged, with zero points.
package eligibility

import (
	"math"

	"github.com/okian/nback/internal/domain/model"
)

// Gate thresholds.
const (
	MinCompletedTrials  = 20
	MinMatchRatePercent = 20.0
	MaxMatchRatePercent = 40.0
)

// Input abstracts the session fields the gate inspects.
type Input struct {
	Status                  model.Status
	CompletedTrialCount     *int
	MatchProbabilityPercent *float64
}

// Decision is the outcome of the gate.
type Decision struct {
	Eligible bool
	Reason   model.Reason // ReasonNone when eligible
}

// Check evaluates the gate rules for in.
func Check(in Input) Decision {
	switch {
	case in.Status != model.StatusCompleted:
		return reject(model.ReasonNotCompleted)
	case in.CompletedTrialCount == nil || *in.CompletedTrialCount < MinCompletedTrials:
		return reject(model.ReasonMinTrials)
	case in.MatchProbabilityPercent == nil || !finite(*in.MatchProbabilityPercent):
		return reject(model.ReasonMissingMatchRate)
	case *in.MatchProbabilityPercent < MinMatchRatePercent || *in.MatchProbabilityPercent > MaxMatchRatePercent:
		return reject(model.ReasonMatchRateOutOfRange)
	}
	return Decision{Eligible: true}
}

// CheckReport evaluates the gate against a normalized report.
func CheckReport(r model.SessionReport) Decision {
	return Check(Input{
		Status:                  r.Status,
		CompletedTrialCount:     r.CompletedTrialCount,
		MatchProbabilityPercent: r.MatchProbabilityPercent,
	})
}

func reject(reason model.Reason) Decision {
	return Decision{Eligible: false, Reason: reason}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
