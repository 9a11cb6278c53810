// Package repository defines the relational store for models, benchmarks
// and battles.
package repository

import (
	"context"

	"github.com/okian/arena/internal/domain/battle"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/types"
)

// ModelFilter narrows ListModels.
type ModelFilter struct {
	Type   model.Type
	Active *bool
	Offset int
	Limit  int
}

// Counts holds row counts per table.
type Counts struct {
	Models     int64
	Benchmarks int64
	Battles    int64
}

// Store provides read/write access to persisted records.
type Store interface {
	// CreateModel inserts m and returns it with id and timestamps set.
	// Returns ErrConflict if the name is taken.
	CreateModel(ctx context.Context, m model.Model) (model.Model, error)
	// UpdateModel replaces the mutable fields of an existing model.
	UpdateModel(ctx context.Context, m model.Model) (model.Model, error)
	// GetModel returns ErrNotFound for unknown ids.
	GetModel(ctx context.Context, id int64) (model.Model, error)
	ListModels(ctx context.Context, f ModelFilter) ([]model.Model, error)

	// CreateBenchmark returns ErrConflict if the submission id was stored before.
	CreateBenchmark(ctx context.Context, b model.Benchmark) (model.Benchmark, error)
	BenchmarkBySubmission(ctx context.Context, submissionID string) (model.Benchmark, error)
	// LatestBenchmark returns the most recent benchmark of a model or ErrNotFound.
	LatestBenchmark(ctx context.Context, modelID int64) (model.Benchmark, error)
	ListBenchmarks(ctx context.Context, modelID int64, limit int) ([]model.Benchmark, error)

	CreateBattle(ctx context.Context, r battle.Record) (battle.Record, error)
	RecentBattles(ctx context.Context, limit int) ([]battle.Record, error)

	// Leaderboard ranks active models by battle win rate, then battle count.
	// An empty mode counts every battle.
	Leaderboard(ctx context.Context, mode battle.Mode, limit int) ([]types.Entry, error)

	Counts(ctx context.Context) (Counts, error)
	Close() error
}
