// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/okian/nback/internal/domain/types"
)

// LeaderboardDependencies defines the interface for leaderboard operations
type LeaderboardDependencies interface {
	Leaderboard(ctx context.Context, category types.Category, limit int) ([]types.Entry, error)
	Limit(requested int, specified bool) int
}

// LeaderboardHandler handles leaderboard requests
type LeaderboardHandler struct {
	deps LeaderboardDependencies
}

// NewLeaderboardHandler creates a new leaderboard handler
func NewLeaderboardHandler(deps LeaderboardDependencies) *LeaderboardHandler {
	return &LeaderboardHandler{deps: deps}
}

type leaderboardRow struct {
	Rank           int     `json:"rank"`
	Username       string  `json:"username"`
	UserID         *string `json:"userId"`
	TotalScore     string  `json:"totalScore"`
	TotalMinutes   float64 `json:"totalMinutes"`
	TotalGames     int     `json:"totalGames"`
	CompletedGames int     `json:"completedGames"`
	LastPlayed     string  `json:"lastPlayed"`
}

type leaderboardResponse struct {
	Category types.Category   `json:"category"`
	Rows     []leaderboardRow `json:"rows"`
}

// HandleGetLeaderboard handles GET /leaderboard?category=score|minutes&limit=N requests.
// A missing or non-numeric limit falls back to the default; out-of-range limits are clamped.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"

	q := r.URL.Query()
	category := types.ParseCategory(q.Get("category"))
	n, err := strconv.Atoi(strings.TrimSpace(q.Get("limit")))
	limit := h.deps.Limit(n, err == nil)

	entries, err := h.deps.Leaderboard(r.Context(), category, limit)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}

	resp := leaderboardResponse{Category: category, Rows: make([]leaderboardRow, 0, len(entries))}
	for _, e := range entries {
		resp.Rows = append(resp.Rows, toLeaderboardRow(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

func toLeaderboardRow(e types.Entry) leaderboardRow {
	row := leaderboardRow{
		Rank:           e.Rank,
		Username:       e.Username,
		TotalScore:     e.Points().String(),
		TotalMinutes:   e.TotalMinutes,
		TotalGames:     e.GameCount,
		CompletedGames: e.CompletedCount,
		LastPlayed:     formatTime(e.LastPlayedAt),
	}
	if e.UserID != "" {
		id := e.UserID
		row.UserID = &id
	}
	return row
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
