package api

import (
	"context"
	"net/http"
	"time"

	"github.com/okian/arena/internal/adapters/http/auth"
	"github.com/okian/arena/internal/adapters/series"
	service "github.com/okian/arena/internal/app"
	"github.com/okian/arena/internal/domain/model"
)

// BenchmarkDependencies defines the benchmark operations.
type BenchmarkDependencies interface {
	RecordBenchmark(ctx context.Context, owner string, in service.BenchmarkInput) (service.Submission, error)
	Benchmarks(ctx context.Context, modelID int64, limit int) ([]model.Benchmark, error)
	Series(ctx context.Context, modelID int64, from, to time.Time, limit int) ([]series.Point, error)
}

// BenchmarksHandler handles benchmark and series requests.
type BenchmarksHandler struct {
	deps     BenchmarkDependencies
	maxLimit int
}

// NewBenchmarksHandler creates a new benchmarks handler.
func NewBenchmarksHandler(deps BenchmarkDependencies, maxLimit int) *BenchmarksHandler {
	return &BenchmarksHandler{deps: deps, maxLimit: maxLimit}
}

// HandleSubmit handles POST /api/v1/benchmarks. A replayed submission_id
// answers 200 with the stored record instead of 201.
func (h *BenchmarksHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_benchmark"
	var in service.BenchmarkInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeErr(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	sub, err := h.deps.RecordBenchmark(r.Context(), auth.OwnerFrom(r.Context()), in)
	if err != nil {
		writeErr(w, Wrap(op, err))
		return
	}
	status := http.StatusCreated
	if sub.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, sub)
}

// HandleList handles GET /api/v1/models/{id}/benchmarks?limit=N.
func (h *BenchmarksHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_benchmarks"
	id, err := parseID(r)
	if err != nil {
		writeErr(w, NewKind(op, err))
		return
	}
	limit, err := parseLimit(r, h.maxLimit)
	if err != nil {
		writeErr(w, NewKind(op, err))
		return
	}
	list, err := h.deps.Benchmarks(r.Context(), id, limit)
	if err != nil {
		writeErr(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleSeries handles GET /api/v1/models/{id}/series?from=T&to=T&limit=N.
// Times are RFC3339. Without a limit every point in range is returned, up to
// the service cap.
func (h *BenchmarksHandler) HandleSeries(w http.ResponseWriter, r *http.Request) {
	const op = "api.model_series"
	id, err := parseID(r)
	if err != nil {
		writeErr(w, NewKind(op, err))
		return
	}
	from, err := parseTime(r, "from")
	if err != nil {
		writeErr(w, NewKind(op, err))
		return
	}
	to, err := parseTime(r, "to")
	if err != nil {
		writeErr(w, NewKind(op, err))
		return
	}
	limit := 0
	if r.URL.Query().Get("limit") != "" {
		if limit, err = parseLimit(r, h.maxLimit); err != nil {
			writeErr(w, NewKind(op, err))
			return
		}
	}
	pts, err := h.deps.Series(r.Context(), id, from, to, limit)
	if err != nil {
		writeErr(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, pts)
}
