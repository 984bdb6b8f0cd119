// Package model contains domain models passed between layers.
package model

import (
	"math/big"
	"strings"
	"time"
)

// Status is the lifecycle state a client reports for a game session.
type Status string

// Known session statuses.
const (
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	// StatusTombstone soft-voids a session. It is logged like any other
	// status and excluded from every aggregate.
	StatusTombstone Status = "tombstone"
)

// ParseStatus returns the Status named by s and whether it is known.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.TrimSpace(s))
	return st, st.Valid()
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusTombstone:
		return true
	}
	return false
}

// Reason is the machine-readable code explaining why a session earned no points.
type Reason string

// Ineligibility reasons, in the order the gate evaluates them.
const (
	ReasonNone                Reason = ""
	ReasonNotCompleted        Reason = "not_completed"
	ReasonMinTrials           Reason = "min_trials"
	ReasonMissingMatchRate    Reason = "missing_match_rate"
	ReasonMatchRateOutOfRange Reason = "match_rate_out_of_range"
)

// Identity is the verified (userId, username) pair supplied by the identity provider.
type Identity struct {
	UserID   string
	Username string
}

// SessionReport is one submitted game, already normalized.
// Optional numeric fields are nil when absent or unusable.
type SessionReport struct {
	Status                  Status
	Title                   string
	Mode                    string
	DifficultyLevel         int     // n-back depth, floored; the stored value
	Depth                   float64 // depth as reported, may be fractional
	ModalityCount           int     // simultaneous stimulus channels, >= 1
	TrialIntervalMs         *float64
	CompletedTrialCount     *int
	MatchProbabilityPercent *float64
	AccuracyFraction        *float64
	ElapsedSeconds          *float64
	OccurredAt              time.Time
}

// ScoringDepth is the depth the points formula multiplies by. It is the
// reported Depth when set, else DifficultyLevel.
func (r SessionReport) ScoringDepth() float64 {
	if r.Depth > 0 {
		return r.Depth
	}
	return float64(r.DifficultyLevel)
}

// ScoredSession is an immutable row of the session log.
type ScoredSession struct {
	ID       string
	Seq      int64 // assigned by the log on append
	UserID   string
	Username string
	SessionReport
	Points   *big.Int
	Eligible bool
	Reason   Reason
}

// PointsOrZero returns the awarded points, treating nil as zero.
func (s ScoredSession) PointsOrZero() *big.Int {
	if s.Points == nil {
		return new(big.Int)
	}
	return s.Points
}

// ElapsedMinutes returns elapsedSeconds/60, or 0 when elapsed time is absent.
func (s ScoredSession) ElapsedMinutes() float64 {
	if s.ElapsedSeconds == nil {
		return 0
	}
	return *s.ElapsedSeconds / 60
}

// Ptr returns a pointer to v. Handy for optional fields.
func Ptr[T any](v T) *T {
	return &v
}
