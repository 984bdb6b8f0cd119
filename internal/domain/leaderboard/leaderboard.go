// Package leaderboard folds the session log into per-player totals and orders them.
//
// The aggregator keeps no state between requests. Every leaderboard is built
// from a full pass over the log.
package leaderboard

import (
	"cmp"
	"math/big"
	"slices"
	"strings"
	"time"

	"github.com/okian/nback/internal/domain/model"
	"github.com/okian/nback/internal/domain/types"
)

// Limit bounds.
const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// ClampLimit clamps n into [1, ceiling]. A non-positive ceiling falls back to MaxLimit.
func ClampLimit(n, ceiling int) int {
	if ceiling <= 0 {
		ceiling = MaxLimit
	}
	return min(ceiling, max(1, n))
}

type group struct {
	key      string
	totals   types.UserTotals
	newestAt time.Time
	newestSq int64
	seen     bool
}

// Aggregator accumulates UserTotals from a stream of sessions.
// It is not safe for concurrent use.
type Aggregator struct {
	groups map[string]*group
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{groups: make(map[string]*group)}
}

// GroupKey returns the grouping key for s: the stable user id when present,
// otherwise the display name captured at submission time.
func GroupKey(userID, username string) string {
	if userID != "" {
		return "id:" + userID
	}
	return "name:" + strings.TrimSpace(username)
}

// Add folds s into its group. Tombstoned sessions are ignored.
func (a *Aggregator) Add(s model.ScoredSession) {
	if s.Status == model.StatusTombstone {
		return
	}
	key := GroupKey(s.UserID, s.Username)
	g, ok := a.groups[key]
	if !ok {
		g = &group{key: key, totals: types.UserTotals{UserID: s.UserID, TotalPoints: new(big.Int)}}
		a.groups[key] = g
	}

	t := &g.totals
	t.TotalPoints.Add(t.TotalPoints, s.PointsOrZero())
	t.TotalMinutes += s.ElapsedMinutes()
	t.GameCount++
	if s.Status == model.StatusCompleted {
		t.CompletedCount++
	}
	if s.OccurredAt.After(t.LastPlayedAt) {
		t.LastPlayedAt = s.OccurredAt
	}

	// The most recent session names the group; equal timestamps go to the later append.
	if !g.seen || s.OccurredAt.After(g.newestAt) || (s.OccurredAt.Equal(g.newestAt) && s.Seq >= g.newestSq) {
		g.seen = true
		g.newestAt = s.OccurredAt
		g.newestSq = s.Seq
		t.Username = s.Username
	}
}

// Len reports the number of groups seen.
func (a *Aggregator) Len() int {
	return len(a.groups)
}

// Lookup returns the totals for a user id, if any session was folded for it.
func (a *Aggregator) Lookup(userID string) (types.UserTotals, bool) {
	g, ok := a.groups[GroupKey(userID, "")]
	if !ok {
		return types.UserTotals{UserID: userID, TotalPoints: new(big.Int)}, false
	}
	return g.totals, true
}

// Top returns at most limit entries ordered for category.
func (a *Aggregator) Top(category types.Category, limit int) []types.Entry {
	keyed := make([]keyedTotals, 0, len(a.groups))
	for _, g := range a.groups {
		keyed = append(keyed, keyedTotals{key: g.key, UserTotals: g.totals})
	}
	sortKeyed(keyed, category)

	if limit < len(keyed) {
		keyed = keyed[:max(0, limit)]
	}
	out := make([]types.Entry, len(keyed))
	for i, k := range keyed {
		out[i] = types.Entry{Rank: i + 1, UserTotals: k.UserTotals}
	}
	return out
}

type keyedTotals struct {
	key string
	types.UserTotals
}

// Compare orders two totals for category: primary metric desc, secondary
// metric desc, then most recent play first. It returns 0 only when all three tie.
func Compare(category types.Category, a, b types.UserTotals) int {
	score := b.Points().Cmp(a.Points())
	minutes := cmp.Compare(b.TotalMinutes, a.TotalMinutes)

	var c int
	if category == types.CategoryMinutes {
		c = cmp.Or(minutes, score)
	} else {
		c = cmp.Or(score, minutes)
	}
	return cmp.Or(c, b.LastPlayedAt.Compare(a.LastPlayedAt))
}

func sortKeyed(rows []keyedTotals, category types.Category) {
	slices.SortFunc(rows, func(a, b keyedTotals) int {
		return cmp.Or(Compare(category, a.UserTotals, b.UserTotals), strings.Compare(a.key, b.key))
	})
}

// Build aggregates sessions and returns the top limit entries for category.
func Build(sessions []model.ScoredSession, category types.Category, limit int) []types.Entry {
	agg := NewAggregator()
	for _, s := range sessions {
		agg.Add(s)
	}
	return agg.Top(category, limit)
}
