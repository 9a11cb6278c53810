package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/okian/arena/internal/adapters/http/auth"
	"github.com/okian/arena/internal/adapters/repository"
	service "github.com/okian/arena/internal/app"
	"github.com/okian/arena/internal/domain/model"
)

// ModelDependencies defines the model registry operations.
type ModelDependencies interface {
	RegisterModel(ctx context.Context, owner string, in service.ModelInput) (model.Model, error)
	UpdateModel(ctx context.Context, owner string, id int64, upd service.ModelUpdate) (model.Model, error)
	Model(ctx context.Context, id int64) (model.Model, error)
	ListModels(ctx context.Context, f repository.ModelFilter) ([]model.Model, error)
}

// ModelsHandler handles model requests.
type ModelsHandler struct {
	deps     ModelDependencies
	maxLimit int
}

// NewModelsHandler creates a new models handler.
func NewModelsHandler(deps ModelDependencies, maxLimit int) *ModelsHandler {
	return &ModelsHandler{deps: deps, maxLimit: maxLimit}
}

// HandleCreate handles POST /api/v1/models.
func (h *ModelsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_model"
	var in service.ModelInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeErr(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	m, err := h.deps.RegisterModel(r.Context(), auth.OwnerFrom(r.Context()), in)
	if err != nil {
		writeErr(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// HandleUpdate handles PATCH /api/v1/models/{id}.
func (h *ModelsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_model"
	id, err := parseID(r)
	if err != nil {
		writeErr(w, NewKind(op, err))
		return
	}
	var upd service.ModelUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		writeErr(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	m, err := h.deps.UpdateModel(r.Context(), auth.OwnerFrom(r.Context()), id, upd)
	if err != nil {
		writeErr(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// HandleGet handles GET /api/v1/models/{id}.
func (h *ModelsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_model"
	id, err := parseID(r)
	if err != nil {
		writeErr(w, NewKind(op, err))
		return
	}
	m, err := h.deps.Model(r.Context(), id)
	if err != nil {
		writeErr(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// HandleList handles GET /api/v1/models?model_type=T&is_active=B&offset=N&limit=N.
func (h *ModelsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_models"
	limit, err := parseLimit(r, h.maxLimit)
	if err != nil {
		writeErr(w, NewKind(op, err))
		return
	}
	q := r.URL.Query()
	f := repository.ModelFilter{Type: model.Type(q.Get("model_type")), Limit: limit}
	if raw := q.Get("offset"); raw != "" {
		if f.Offset, err = strconv.Atoi(raw); err != nil || f.Offset < 0 {
			writeErr(w, NewKind(op, ErrBadRequest))
			return
		}
	}
	if raw := q.Get("is_active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			writeErr(w, NewKind(op, ErrBadRequest))
			return
		}
		f.Active = &active
	}
	models, err := h.deps.ListModels(r.Context(), f)
	if err != nil {
		writeErr(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, models)
}
