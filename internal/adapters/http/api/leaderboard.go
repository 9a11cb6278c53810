package api

import (
	"context"
	"net/http"

	"github.com/okian/arena/internal/domain/battle"
	"github.com/okian/arena/internal/domain/types"
)

// LeaderboardDependencies defines the interface for leaderboard operations.
type LeaderboardDependencies interface {
	Leaderboard(ctx context.Context, mode battle.Mode, limit int) ([]types.Entry, error)
}

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps     LeaderboardDependencies
	maxLimit int
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies, maxLimit int) *LeaderboardHandler {
	return &LeaderboardHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleGetLeaderboard handles GET /api/v1/leaderboard?battle_type=M&limit=N.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	n, err := parseLimit(r, h.maxLimit)
	if err != nil {
		writeErr(w, NewKind(op, err))
		return
	}
	var mode battle.Mode
	if raw := r.URL.Query().Get("battle_type"); raw != "" {
		if mode, err = battle.ParseMode(raw); err != nil {
			writeErr(w, Wrap(op, err))
			return
		}
	}
	entries, err := h.deps.Leaderboard(r.Context(), mode, n)
	if err != nil {
		writeErr(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
