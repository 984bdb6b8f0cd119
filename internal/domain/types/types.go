// Package types contains common read shapes used across the application.
package types

import (
	"math/big"
	"strings"
	"time"
)

// Category selects the primary metric a leaderboard is ordered by.
type Category string

// Leaderboard categories.
const (
	CategoryScore   Category = "score"
	CategoryMinutes Category = "minutes"
)

// ParseCategory maps free text to a Category. Unknown or empty input yields CategoryScore.
func ParseCategory(s string) Category {
	if Category(strings.ToLower(strings.TrimSpace(s))) == CategoryMinutes {
		return CategoryMinutes
	}
	return CategoryScore
}

// UserTotals aggregates one player's non-tombstone sessions.
type UserTotals struct {
	UserID         string // empty for sessions logged without an identity
	Username       string
	TotalPoints    *big.Int
	TotalMinutes   float64
	GameCount      int
	CompletedCount int
	LastPlayedAt   time.Time
}

// Points returns TotalPoints, treating nil as zero.
func (u UserTotals) Points() *big.Int {
	if u.TotalPoints == nil {
		return new(big.Int)
	}
	return u.TotalPoints
}

// Entry represents a leaderboard row.
type Entry struct {
	Rank int
	UserTotals
}
