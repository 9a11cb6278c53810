package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/arena/internal/domain/battle"
	"github.com/okian/arena/internal/domain/event"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/types"
	"github.com/okian/arena/pkg/logger"
	"github.com/okian/arena/pkg/metrics"
)

// RunBattle resolves req against the latest benchmark of each model,
// persists the result and publishes battle_result.
func (s *Service) RunBattle(ctx context.Context, req battle.Request) (battle.Record, error) {
	if req.ModelA == req.ModelB {
		metrics.RecordBattleRejected("invalid")
		return battle.Record{}, fmt.Errorf("%w: a model cannot battle itself", battle.ErrInvalidRequest)
	}

	a, snapA, err := s.contender(ctx, req.ModelA)
	if err != nil {
		return battle.Record{}, err
	}
	b, snapB, err := s.contender(ctx, req.ModelB)
	if err != nil {
		return battle.Record{}, err
	}

	out, err := s.resolver.Resolve(req, snapA, snapB)
	if err != nil {
		switch {
		case errors.Is(err, battle.ErrInsufficientData):
			metrics.RecordBattleRejected("insufficient_data")
		default:
			metrics.RecordBattleRejected("invalid")
		}
		return battle.Record{}, err
	}

	rec, err := s.store.CreateBattle(ctx, battle.NewRecord(req, out))
	if err != nil {
		return battle.Record{}, err
	}
	metrics.RecordBattleResolved(string(out.Mode), out.Result())

	if err := s.publisher.PublishBattleResolved(ctx, event.NewBattleResolved(rec.ID, a, b, out)); err != nil {
		s.logger.Warn(ctx, "battle event not published",
			logger.Int64("battle_id", rec.ID),
			logger.Error(err),
		)
	}
	return rec, nil
}

// contender loads a model and its latest snapshot.
func (s *Service) contender(ctx context.Context, id int64) (model.Model, model.Snapshot, error) {
	m, err := s.store.GetModel(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			metrics.RecordBattleRejected("not_found")
		}
		return model.Model{}, model.Snapshot{}, err
	}
	latest, err := s.store.LatestBenchmark(ctx, id)
	if errors.Is(err, ErrNotFound) {
		metrics.RecordBattleRejected("no_benchmarks")
		return model.Model{}, model.Snapshot{}, fmt.Errorf("%w: model %d", ErrNoBenchmarks, id)
	}
	if err != nil {
		return model.Model{}, model.Snapshot{}, err
	}
	return m, latest.Snapshot, nil
}

// RecentBattles returns the newest battles.
func (s *Service) RecentBattles(ctx context.Context, limit int) ([]battle.Record, error) {
	return s.store.RecentBattles(ctx, limit)
}

// Leaderboard ranks models by win rate. An empty mode counts all battles.
func (s *Service) Leaderboard(ctx context.Context, mode battle.Mode, limit int) ([]types.Entry, error) {
	return s.store.Leaderboard(ctx, mode, limit)
}
