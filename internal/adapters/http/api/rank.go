// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	service "github.com/okian/nback/internal/app"
	"github.com/okian/nback/internal/domain/rank"
)

// RankDependencies defines the interface for rank operations.
type RankDependencies interface {
	Rank(ctx context.Context, userID string) (service.RankView, error)
	Ranks() rank.Ladder
}

// RankHandler handles rank requests.
type RankHandler struct {
	deps RankDependencies
}

// NewRankHandler creates a new rank handler.
func NewRankHandler(deps RankDependencies) *RankHandler {
	return &RankHandler{deps: deps}
}

type tierView struct {
	Rank      string `json:"rank"`
	MinPoints int64  `json:"minPoints"`
	MaxPoints *int64 `json:"maxPoints"`
	Range     string `json:"range"`
}

func toTierView(t rank.Tier) tierView {
	v := tierView{Rank: t.Name, MinPoints: t.Min, Range: t.Range()}
	if !t.Unbounded {
		maxPoints := t.Max
		v.MaxPoints = &maxPoints
	}
	return v
}

type rankResponse struct {
	UserID         string  `json:"userId"`
	Username       string  `json:"username"`
	TotalScore     string  `json:"totalScore"`
	TotalMinutes   float64 `json:"totalMinutes"`
	TotalGames     int     `json:"totalGames"`
	CompletedGames int     `json:"completedGames"`
	LastPlayed     string  `json:"lastPlayed"`
	tierView
	NextRank     *string `json:"nextRank"`
	PointsToNext *string `json:"pointsToNext"`
}

// HandleGetRank handles GET /rank/{userID} requests. Unknown users get zero totals and the lowest tier.
func (h *RankHandler) HandleGetRank(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_rank"

	view, err := h.deps.Rank(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}

	t := view.Totals
	resp := rankResponse{
		UserID:         t.UserID,
		Username:       t.Username,
		TotalScore:     t.Points().String(),
		TotalMinutes:   t.TotalMinutes,
		TotalGames:     t.GameCount,
		CompletedGames: t.CompletedCount,
		LastPlayed:     formatTime(t.LastPlayedAt),
		tierView:       toTierView(view.Progress.Tier),
	}
	if next := view.Progress.Next; next != nil {
		name := next.Name
		resp.NextRank = &name
	}
	if view.Progress.PointsToNext != nil {
		pts := view.Progress.PointsToNext.String()
		resp.PointsToNext = &pts
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleGetRanks handles GET /ranks requests.
func (h *RankHandler) HandleGetRanks(w http.ResponseWriter, _ *http.Request) {
	ladder := h.deps.Ranks()
	out := make([]tierView, 0, len(ladder))
	for _, t := range ladder {
		out = append(out, toTierView(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"ranks": out})
}
