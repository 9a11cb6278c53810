package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/arena/internal/adapters/series"
	"github.com/okian/arena/internal/domain/event"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/pkg/logger"
	"github.com/okian/arena/pkg/metrics"
)

// BenchmarkInput is one benchmark submission.
type BenchmarkInput struct {
	model.Snapshot

	SubmissionID string         `json:"submission_id,omitempty"`
	Metadata     map[string]any `json:"benchmark_metadata,omitempty"`
}

// Submission is the stored benchmark plus whether it was a replay.
type Submission struct {
	model.Benchmark

	Duplicate bool `json:"duplicate"`
}

// RecordBenchmark validates and persists a benchmark, feeds the series
// store and publishes benchmark_update. A repeated submission id returns the
// first stored benchmark without a second event.
func (s *Service) RecordBenchmark(ctx context.Context, owner string, in BenchmarkInput) (Submission, error) {
	if err := in.Snapshot.Validate(); err != nil {
		return Submission{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	m, err := s.store.GetModel(ctx, in.ModelID)
	if err != nil {
		return Submission{}, err
	}
	if err := checkOwner(owner, m); err != nil {
		return Submission{}, err
	}
	if !m.Active {
		return Submission{}, fmt.Errorf("%w: model %d is inactive", ErrInvalidInput, m.ID)
	}

	if in.SubmissionID != "" && s.deduper.SeenAndRecord(ctx, in.SubmissionID) {
		return s.replay(ctx, in.SubmissionID)
	}

	b, err := s.store.CreateBenchmark(ctx, model.Benchmark{
		Snapshot:     in.Snapshot,
		SubmissionID: in.SubmissionID,
		Metadata:     in.Metadata,
	})
	if errors.Is(err, ErrConflict) && in.SubmissionID != "" {
		// Stored before the cache window.
		return s.replay(ctx, in.SubmissionID)
	}
	if err != nil {
		if in.SubmissionID != "" {
			s.deduper.Unrecord(ctx, in.SubmissionID)
		}
		return Submission{}, err
	}
	metrics.RecordBenchmarkRecorded()

	if !s.enqueue(ctx, series.PointFrom(b)) {
		s.logger.Warn(ctx, "series point dropped",
			logger.Int64("model_id", b.ModelID),
			logger.Int64("benchmark_id", b.ID),
		)
	}

	if err := s.publisher.PublishBenchmarkRecorded(ctx, event.NewBenchmarkRecorded(m, b)); err != nil {
		s.logger.Warn(ctx, "benchmark event not published",
			logger.Int64("benchmark_id", b.ID),
			logger.Error(err),
		)
	}
	return Submission{Benchmark: b}, nil
}

func (s *Service) replay(ctx context.Context, submissionID string) (Submission, error) {
	metrics.RecordSubmissionDuplicate()
	b, err := s.store.BenchmarkBySubmission(ctx, submissionID)
	if errors.Is(err, ErrNotFound) {
		// Seen by the cache but not stored yet: a concurrent submission is in flight.
		return Submission{}, fmt.Errorf("%w: submission %s is in progress", ErrConflict, submissionID)
	}
	if err != nil {
		return Submission{}, err
	}
	s.logger.Debug(ctx, "duplicate submission", logger.String("submission_id", submissionID))
	return Submission{Benchmark: b, Duplicate: true}, nil
}

// Benchmarks returns the newest benchmarks of a model.
func (s *Service) Benchmarks(ctx context.Context, modelID int64, limit int) ([]model.Benchmark, error) {
	if _, err := s.store.GetModel(ctx, modelID); err != nil {
		return nil, err
	}
	return s.store.ListBenchmarks(ctx, modelID, limit)
}

// Series returns the metric history of a model in [from, to). A zero to
// means no upper bound.
func (s *Service) Series(ctx context.Context, modelID int64, from, to time.Time, limit int) ([]series.Point, error) {
	if _, err := s.store.GetModel(ctx, modelID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultSeriesLimit
	}
	pts, err := s.series.Range(ctx, modelID, from, to, limit)
	if errors.Is(err, series.ErrInvalidRange) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return pts, err
}
