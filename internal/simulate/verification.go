package simulate

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/okian/nback/internal/domain/rank"
)

// Verification failures.
var (
	ErrOrdering      = errors.New("leaderboard ordering violated")
	ErrTotalMismatch = errors.New("server total differs from local total")
	ErrTierMismatch  = errors.New("rank tier differs from ladder")
	ErrBadNumber     = errors.New("malformed decimal")
)

func parseTotal(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBadNumber, s)
	}
	return n, nil
}

// VerifyOrdering checks that rows follow primary desc, secondary desc, lastPlayed desc.
func VerifyOrdering(lb Leaderboard) error {
	for i := 1; i < len(lb.Rows); i++ {
		prev, cur := lb.Rows[i-1], lb.Rows[i]
		c, err := compareRows(lb.Category, prev, cur)
		if err != nil {
			return err
		}
		if c < 0 {
			return fmt.Errorf("%w: %s row %d (%s) ranks below row %d (%s)",
				ErrOrdering, lb.Category, i, prev.Username, i+1, cur.Username)
		}
		if cur.Rank != prev.Rank+1 {
			return fmt.Errorf("%w: rank %d follows %d", ErrOrdering, cur.Rank, prev.Rank)
		}
	}
	return nil
}

// compareRows returns >0 when a should rank above b, <0 when below, 0 when tied.
func compareRows(category string, a, b LeaderboardRow) (int, error) {
	sa, err := parseTotal(a.TotalScore)
	if err != nil {
		return 0, err
	}
	sb, err := parseTotal(b.TotalScore)
	if err != nil {
		return 0, err
	}
	score := sa.Cmp(sb)
	minutes := cmpFloat(a.TotalMinutes, b.TotalMinutes)

	primary, secondary := score, minutes
	if category == "minutes" {
		primary, secondary = minutes, score
	}
	if primary != 0 {
		return primary, nil
	}
	if secondary != 0 {
		return secondary, nil
	}
	ta, _ := time.Parse(time.RFC3339, a.LastPlayed)
	tb, _ := time.Parse(time.RFC3339, b.LastPlayed)
	return ta.Compare(tb), nil
}

func cmpFloat(a, b float64) int {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	}
	return 0
}

// VerifyLeaderboardTotals checks each row belonging to a known player against the local total.
func VerifyLeaderboardTotals(lb Leaderboard, expected map[string]*big.Int) error {
	for _, row := range lb.Rows {
		if row.UserID == nil {
			continue
		}
		want, ok := expected[*row.UserID]
		if !ok {
			continue
		}
		got, err := parseTotal(row.TotalScore)
		if err != nil {
			return err
		}
		if got.Cmp(want) != 0 {
			return fmt.Errorf("%w: %s has %s, want %s", ErrTotalMismatch, *row.UserID, got, want)
		}
	}
	return nil
}

// VerifyRank checks a rank reply against the local total and the ladder.
func VerifyRank(resp RankResponse, want *big.Int) error {
	got, err := parseTotal(resp.TotalScore)
	if err != nil {
		return err
	}
	if got.Cmp(want) != 0 {
		return fmt.Errorf("%w: %s has %s, want %s", ErrTotalMismatch, resp.UserID, got, want)
	}
	if tier := rank.For(got); tier.Name != resp.Rank {
		return fmt.Errorf("%w: %s is %q, ladder says %q", ErrTierMismatch, resp.UserID, resp.Rank, tier.Name)
	}
	return nil
}
