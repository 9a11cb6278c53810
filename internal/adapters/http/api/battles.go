package api

import (
	"context"
	"net/http"

	"github.com/okian/arena/internal/domain/battle"
)

// BattleDependencies defines the battle operations.
type BattleDependencies interface {
	RunBattle(ctx context.Context, req battle.Request) (battle.Record, error)
	RecentBattles(ctx context.Context, limit int) ([]battle.Record, error)
}

// BattlesHandler handles battle requests.
type BattlesHandler struct {
	deps     BattleDependencies
	maxLimit int
}

// NewBattlesHandler creates a new battles handler.
func NewBattlesHandler(deps BattleDependencies, maxLimit int) *BattlesHandler {
	return &BattlesHandler{deps: deps, maxLimit: maxLimit}
}

// HandleCreate handles POST /api/v1/battles.
func (h *BattlesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_battle"
	var req battle.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	mode, err := battle.ParseMode(string(req.Mode))
	if err != nil {
		writeErr(w, Wrap(op, err))
		return
	}
	req.Mode = mode
	rec, err := h.deps.RunBattle(r.Context(), req)
	if err != nil {
		writeErr(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// HandleRecent handles GET /api/v1/battles/recent?limit=N.
func (h *BattlesHandler) HandleRecent(w http.ResponseWriter, r *http.Request) {
	const op = "api.recent_battles"
	limit, err := parseLimit(r, h.maxLimit)
	if err != nil {
		writeErr(w, NewKind(op, err))
		return
	}
	list, err := h.deps.RecentBattles(r.Context(), limit)
	if err != nil {
		writeErr(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, list)
}
