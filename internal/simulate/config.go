// Package simulate drives a running scoring engine over HTTP with generated
// players and sessions, then checks what the server reports against totals
// recomputed locally.
package simulate

import (
	"math/big"
	"time"
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL           string        // Base URL of the service
	Players           int           // Number of distinct players
	SessionsPerPlayer int           // Sessions submitted by each player
	Workers           int           // Number of concurrent submitters
	Rate              float64       // Submissions per second across all workers; 0 means unlimited
	Secret            string        // Shared HS256 secret used to mint player tokens
	Timeout           time.Duration // HTTP request timeout
	Seed              uint64        // Seed for session generation
	Verbose           bool          // Log every failed request
}

// Player is a generated identity with a signed token.
type Player struct {
	ID       string
	Username string
	Token    string
}

// SessionBody is the wire shape of POST /sessions.
type SessionBody struct {
	Status          string   `json:"status"`
	Title           string   `json:"title,omitempty"`
	NBack           int      `json:"nBack"`
	Modalities      int      `json:"modalities"`
	TrialTimeMs     float64  `json:"trialTimeMs"`
	ElapsedSeconds  float64  `json:"elapsedSeconds"`
	CompletedTrials int      `json:"completedTrials"`
	MatchChance     *float64 `json:"matchChance,omitempty"`
	AccuracyPercent float64  `json:"accuracyPercent"`
	Timestamp       string   `json:"timestamp"`
}

// Planned is one generated session together with what the server should answer.
type Planned struct {
	Player         int
	Body           SessionBody
	ExpectEligible bool
	ExpectPoints   *big.Int
}

// SubmitResponse mirrors the submit reply.
type SubmitResponse struct {
	OK                bool    `json:"ok"`
	SessionID         string  `json:"sessionId"`
	Points            string  `json:"points"`
	EligibleForPoints bool    `json:"eligibleForPoints"`
	Reason            *string `json:"reason"`
	Duplicate         bool    `json:"duplicate"`
}

// LeaderboardRow mirrors one leaderboard row.
type LeaderboardRow struct {
	Rank           int     `json:"rank"`
	Username       string  `json:"username"`
	UserID         *string `json:"userId"`
	TotalScore     string  `json:"totalScore"`
	TotalMinutes   float64 `json:"totalMinutes"`
	TotalGames     int     `json:"totalGames"`
	CompletedGames int     `json:"completedGames"`
	LastPlayed     string  `json:"lastPlayed"`
}

// Leaderboard mirrors the leaderboard reply.
type Leaderboard struct {
	Category string           `json:"category"`
	Rows     []LeaderboardRow `json:"rows"`
}

// RankResponse mirrors GET /rank/{userID}.
type RankResponse struct {
	UserID     string `json:"userId"`
	TotalScore string `json:"totalScore"`
	TotalGames int    `json:"totalGames"`
	Rank       string `json:"rank"`
}

// Stats holds run statistics.
type Stats struct {
	SessionsPlanned   int
	SessionsSubmitted int
	SessionsEligible  int
	SessionsFailed    int
	EligibleMismatch  int
	PointsMismatch    int
	RanksChecked      int
	StartTime         time.Time
	Duration          time.Duration
}
