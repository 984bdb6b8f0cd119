// Package scoring computes the point value of an eligible game session.
//
// Points grow exponentially with difficulty: every added unit of
// modalityCount x difficultyLevel doubles the base. Two fixed-point
// multipliers (scale 1000 = 1.0x) then weight the base by speed and accuracy.
// All arithmetic after the base is computed uses math/big.
package scoring

import (
	"math"
	"math/big"
)

// Fixed-point scoring constants.
const (
	// FactorScale is the fixed-point scale of SpeedFactor and AccuracyFactor.
	FactorScale = 1000

	// ReferenceIntervalMs is the trial interval that earns a neutral speed factor.
	ReferenceIntervalMs = 2500

	// MaxStimuli caps the exponent so the int conversion stays defined.
	MaxStimuli = math.MaxInt32

	minSpeedFactor    = 1000
	maxSpeedFactor    = 2000
	maxAccuracyFactor = 2000

	// combined factors are scale 1000*1000.
	combinedScale = FactorScale * FactorScale
	roundingHalf  = combinedScale / 2
)

// Input abstracts the session fields needed for scoring.
type Input struct {
	ModalityCount    int
	DifficultyLevel  float64
	TrialIntervalMs  *float64
	AccuracyFraction *float64
}

// Result contains the computed points and the intermediate terms.
type Result struct {
	StimuliCount   int
	SpeedFactor    int64
	AccuracyFactor int64
	Points         *big.Int
}

// StimuliCount returns floor(modalityCount x difficultyLevel), clamped to
// [0, MaxStimuli]. A fractional depth is floored only after the product.
func StimuliCount(modalityCount int, difficultyLevel float64) int {
	if modalityCount < 0 || math.IsNaN(difficultyLevel) || difficultyLevel < 0 {
		return 0
	}
	n := math.Floor(float64(modalityCount) * difficultyLevel)
	switch {
	case math.IsNaN(n):
		return 0
	case n >= MaxStimuli:
		return MaxStimuli
	}
	return int(n)
}

// SpeedFactor maps a trial interval to a multiplier in [1000, 2000].
// Absent, non-positive or non-finite intervals are neutral.
func SpeedFactor(trialIntervalMs *float64) int64 {
	if trialIntervalMs == nil {
		return FactorScale
	}
	t := *trialIntervalMs
	if math.IsNaN(t) || math.IsInf(t, 0) || t <= 0 {
		return FactorScale
	}
	m := float64(ReferenceIntervalMs) * FactorScale / t
	return int64(math.Round(clamp(m, minSpeedFactor, maxSpeedFactor)))
}

// AccuracyFactor maps an accuracy fraction linearly to a multiplier in [0, 2000]:
// 0.5 is neutral and 1.0 doubles. Absent or non-finite accuracy is neutral.
func AccuracyFactor(accuracyFraction *float64) int64 {
	if accuracyFraction == nil {
		return FactorScale
	}
	a := *accuracyFraction
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return FactorScale
	}
	return int64(math.Round(clamp(a, 0, 1) * maxAccuracyFactor))
}

// ComputePoints returns
//
//	floor((2^stimuli * speed * accuracy + 500000) / 1000000)
//
// which rounds half-up at the combined fixed-point scale.
func ComputePoints(modalityCount int, difficultyLevel float64, trialIntervalMs, accuracyFraction *float64) *big.Int {
	return Compute(Input{
		ModalityCount:    modalityCount,
		DifficultyLevel:  difficultyLevel,
		TrialIntervalMs:  trialIntervalMs,
		AccuracyFraction: accuracyFraction,
	}).Points
}

// Compute evaluates the points formula for in.
func Compute(in Input) Result {
	stimuli := StimuliCount(in.ModalityCount, in.DifficultyLevel)
	speed := SpeedFactor(in.TrialIntervalMs)
	accuracy := AccuracyFactor(in.AccuracyFraction)

	points := new(big.Int).Lsh(big.NewInt(1), uint(stimuli))
	points.Mul(points, big.NewInt(speed))
	points.Mul(points, big.NewInt(accuracy))
	points.Add(points, big.NewInt(roundingHalf))
	points.Quo(points, big.NewInt(combinedScale))

	return Result{
		StimuliCount:   stimuli,
		SpeedFactor:    speed,
		AccuracyFactor: accuracy,
		Points:         points,
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
