// Package series keeps an append-only history of benchmark metrics per model.
package series

import (
	"context"
	"time"

	"github.com/okian/arena/internal/domain/model"
)

// Point is one benchmark observation of a model.
type Point struct {
	ModelID     int64                    `json:"model_id"`
	BenchmarkID int64                    `json:"benchmark_id"`
	TestName    string                   `json:"test_name"`
	Values      map[model.Metric]float64 `json:"values"`
	At          time.Time                `json:"timestamp"`
}

// PointFrom converts a stored benchmark into a series point.
func PointFrom(b model.Benchmark) Point {
	return Point{
		ModelID:     b.ModelID,
		BenchmarkID: b.ID,
		TestName:    b.TestName,
		Values:      b.Values(),
		At:          b.CreatedAt,
	}
}

// Store appends and reads points.
type Store interface {
	Append(ctx context.Context, p Point) error
	// Range returns points of a model with from <= At < to, oldest first.
	// A zero to means no upper bound. A limit of 0 means no limit.
	Range(ctx context.Context, modelID int64, from, to time.Time, limit int) ([]Point, error)
	Close() error
}
