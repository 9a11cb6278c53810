package service

import (
	"errors"

	"github.com/okian/arena/internal/adapters/repository"
)

// Sentinel kinds for service errors.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrForbidden    = errors.New("forbidden")
	ErrNoBenchmarks = errors.New("no benchmarks")
	ErrNotStarted   = errors.New("service not started")
	ErrNotFound     = repository.ErrNotFound
	ErrConflict     = repository.ErrConflict
)
