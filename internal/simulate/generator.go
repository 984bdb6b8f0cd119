package simulate

import (
	"fmt"
	"math/big"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/okian/nback/internal/adapters/identity"
	"github.com/okian/nback/internal/domain/eligibility"
	"github.com/okian/nback/internal/domain/model"
	"github.com/okian/nback/internal/domain/scoring"
)

// Session mix, in percent of generated sessions.
const (
	cancelledPercent    = 10
	fewTrialsPercent    = 10
	missingMatchPercent = 5
	outOfRangePercent   = 5
)

const tokenTTL = time.Hour

// GeneratePlayers creates n players with fresh ids and tokens signed with secret.
func GeneratePlayers(n int, secret string, now time.Time) ([]Player, error) {
	players := make([]Player, n)
	for i := range players {
		id := uuid.NewString()
		p := Player{ID: id, Username: fmt.Sprintf("sim-%s", id[:8])}
		tok, err := identity.Issue(secret, model.Identity{UserID: p.ID, Username: p.Username}, tokenTTL, now)
		if err != nil {
			return nil, fmt.Errorf("failed to mint token for player %d: %w", i, err)
		}
		p.Token = tok
		players[i] = p
	}
	return players, nil
}

// GenerateSessions plans perPlayer sessions for each player. The same seed yields the same plan.
func GenerateSessions(seed uint64, players int, perPlayer int, now time.Time) []Planned {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]Planned, 0, players*perPlayer)
	for p := range players {
		for range perPlayer {
			body := randomSession(rng, now.Add(-time.Duration(players*perPlayer-len(out))*time.Second))
			eligible, points := Expect(body)
			out = append(out, Planned{Player: p, Body: body, ExpectEligible: eligible, ExpectPoints: points})
		}
	}
	return out
}

func randomSession(rng *rand.Rand, at time.Time) SessionBody {
	match := 20 + rng.Float64()*20
	body := SessionBody{
		Status:          string(model.StatusCompleted),
		Title:           "Simulated N-Back",
		NBack:           1 + rng.IntN(4),
		Modalities:      1 + rng.IntN(3),
		TrialTimeMs:     float64(1000 + rng.IntN(2500)),
		ElapsedSeconds:  float64(60 + rng.IntN(540)),
		CompletedTrials: 20 + rng.IntN(40),
		MatchChance:     &match,
		AccuracyPercent: float64(rng.IntN(101)) / 100,
		Timestamp:       at.UTC().Format(time.RFC3339Nano),
	}

	switch roll := rng.IntN(100); {
	case roll < cancelledPercent:
		body.Status = string(model.StatusCancelled)
	case roll < cancelledPercent+fewTrialsPercent:
		body.CompletedTrials = rng.IntN(20)
	case roll < cancelledPercent+fewTrialsPercent+missingMatchPercent:
		body.MatchChance = nil
	case roll < cancelledPercent+fewTrialsPercent+missingMatchPercent+outOfRangePercent:
		high := 41 + rng.Float64()*50
		body.MatchChance = &high
	}
	return body
}

// Expect recomputes eligibility and points for body the way the engine does.
func Expect(body SessionBody) (bool, *big.Int) {
	status, _ := model.ParseStatus(body.Status)
	accuracy := body.AccuracyPercent
	trial := body.TrialTimeMs
	report := model.SessionReport{
		Status:                  status,
		ModalityCount:           body.Modalities,
		DifficultyLevel:         body.NBack,
		TrialIntervalMs:         &trial,
		CompletedTrialCount:     &body.CompletedTrials,
		MatchProbabilityPercent: body.MatchChance,
		AccuracyFraction:        &accuracy,
	}
	if !eligibility.CheckReport(report).Eligible {
		return false, new(big.Int)
	}
	res := scoring.Compute(scoring.Input{
		ModalityCount:    report.ModalityCount,
		DifficultyLevel:  report.ScoringDepth(),
		TrialIntervalMs:  report.TrialIntervalMs,
		AccuracyFraction: report.AccuracyFraction,
	})
	return true, res.Points
}

// ExpectedTotals sums expected points per player id.
func ExpectedTotals(players []Player, plan []Planned) map[string]*big.Int {
	totals := make(map[string]*big.Int, len(players))
	for _, p := range players {
		totals[p.ID] = new(big.Int)
	}
	for _, s := range plan {
		t := totals[players[s.Player].ID]
		t.Add(t, s.ExpectPoints)
	}
	return totals
}
