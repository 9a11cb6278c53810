package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/arena/internal/adapters/repository"
	"github.com/okian/arena/internal/adapters/series"
	service "github.com/okian/arena/internal/app"
	"github.com/okian/arena/internal/domain/battle"
	"github.com/okian/arena/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest    = errors.New("bad request")
	ErrLimitExceeded = errors.New("limit exceeded")
)

// NewKind tags kind with the failing operation.
func NewKind(op string, kind error) error {
	return fmt.Errorf("%s: %w", op, kind)
}

// WrapKind tags kind and its cause with the failing operation.
func WrapKind(op string, kind, err error) error {
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

// Wrap tags err with the failing operation.
func Wrap(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}

// statusFor maps an error to an HTTP status and a stable error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrLimitExceeded):
		return http.StatusBadRequest, "limit_exceeded"
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, model.ErrInvalidSnapshot),
		errors.Is(err, battle.ErrInvalidRequest),
		errors.Is(err, repository.ErrInvalidLimit),
		errors.Is(err, series.ErrInvalidRange):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, service.ErrNoBenchmarks):
		return http.StatusNotFound, "no_benchmarks"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, battle.ErrInsufficientData):
		return http.StatusUnprocessableEntity, "insufficient_data"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
