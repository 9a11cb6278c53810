// Package battle resolves head-to-head comparisons between two models.
package battle

import (
	"encoding/json"
	"fmt"

	"github.com/okian/arena/internal/domain/model"
)

const (
	defaultMetricWeight = 1.0
	tieShare            = 0.5

	// ConfigWeights is the request config key holding per-metric weights.
	ConfigWeights = "weights"
)

// Request asks for a battle between two models.
type Request struct {
	ModelA int64          `json:"model1_id"`
	ModelB int64          `json:"model2_id"`
	Mode   Mode           `json:"battle_type"`
	Config map[string]any `json:"battle_config,omitempty"`
}

// MetricScore is the comparison of one metric.
type MetricScore struct {
	A       float64 `json:"a_value"`
	B       float64 `json:"b_value"`
	PointsA float64 `json:"a_points"`
	PointsB float64 `json:"b_points"`
	Weight  float64 `json:"weight"`
}

// Outcome is the resolved result of a battle. WinnerID is nil on a tie.
type Outcome struct {
	WinnerID *int64                       `json:"winner_id"`
	Mode     Mode                         `json:"battle_type"`
	Scores   map[model.Metric]MetricScore `json:"scores"`
	TotalA   float64                      `json:"total_score_a"`
	TotalB   float64                      `json:"total_score_b"`
}

// Result labels the outcome as "win" or "tie".
func (o Outcome) Result() string {
	if o.WinnerID == nil {
		return "tie"
	}
	return "win"
}

// Resolver computes battle outcomes.
type Resolver interface {
	Resolve(req Request, a, b model.Snapshot) (Outcome, error)
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithWeightsFromConfig sets the default comprehensive-mode weights from a
// configuration map. Non-positive weights and unknown metrics are ignored.
func WithWeightsFromConfig(weights map[string]float64) Option {
	return func(e *Engine) {
		e.weights = make(map[model.Metric]float64, len(weights))
		for name, w := range weights {
			m := model.Metric(name)
			if w > 0 && m.Known() {
				e.weights[m] = w
			}
		}
	}
}

// Engine is a stateless battle resolver. It is safe for concurrent use.
type Engine struct {
	weights map[model.Metric]float64
}

// NewEngine creates an engine with configuration options.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{weights: map[model.Metric]float64{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Resolve compares snapshot a (model A) against snapshot b (model B).
//
// Each metric of the mode present on both sides awards its weight to the
// better side, or half the weight to each side on equality. Metrics missing
// on either side are skipped. The strictly higher total wins; equal totals
// leave WinnerID nil. ErrInsufficientData is returned when no metric could
// be scored.
func (e *Engine) Resolve(req Request, a, b model.Snapshot) (Outcome, error) {
	if err := req.validate(a, b); err != nil {
		return Outcome{}, err
	}
	weights, err := e.weightsFor(req)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{Mode: req.Mode, Scores: make(map[model.Metric]MetricScore)}
	for _, m := range MetricsFor(req.Mode) {
		av, okA := a.Value(m)
		bv, okB := b.Value(m)
		if !okA || !okB {
			continue
		}
		w := weights[m]
		s := MetricScore{A: av, B: bv, Weight: w}
		switch compare(DirectionOf(m), av, bv) {
		case 1:
			s.PointsA = w
		case -1:
			s.PointsB = w
		default:
			s.PointsA = w * tieShare
			s.PointsB = w * tieShare
		}
		out.Scores[m] = s
		out.TotalA += s.PointsA
		out.TotalB += s.PointsB
	}

	if len(out.Scores) == 0 {
		return Outcome{}, fmt.Errorf("%w (mode %s)", ErrInsufficientData, req.Mode)
	}
	switch {
	case out.TotalA > out.TotalB:
		id := req.ModelA
		out.WinnerID = &id
	case out.TotalB > out.TotalA:
		id := req.ModelB
		out.WinnerID = &id
	}
	return out, nil
}

// compare returns 1 when a is better, -1 when b is better and 0 on equality.
func compare(d Direction, a, b float64) int {
	if a == b {
		return 0
	}
	better := a > b
	if d == LowerIsBetter {
		better = !better
	}
	if better {
		return 1
	}
	return -1
}

func (r Request) validate(a, b model.Snapshot) error {
	if r.ModelA == r.ModelB {
		return fmt.Errorf("%w: a model cannot battle itself", ErrInvalidRequest)
	}
	if MetricsFor(r.Mode) == nil {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, r.Mode)
	}
	if a.ModelID != r.ModelA || b.ModelID != r.ModelB {
		return fmt.Errorf("%w: snapshots do not belong to the requested models", ErrInvalidRequest)
	}
	return nil
}

// weightsFor resolves the weight of every metric in the request mode.
// Weights only change the comprehensive mode; other modes score each metric
// at the default weight.
func (e *Engine) weightsFor(r Request) (map[model.Metric]float64, error) {
	out := make(map[model.Metric]float64)
	for _, m := range MetricsFor(r.Mode) {
		out[m] = defaultMetricWeight
	}
	if r.Mode != ModeComprehensive {
		return out, nil
	}
	for m, w := range e.weights {
		out[m] = w
	}
	custom, err := requestWeights(r.Config)
	if err != nil {
		return nil, err
	}
	for m, w := range custom {
		out[m] = w
	}
	return out, nil
}

// requestWeights reads the weights entry of a request config. It accepts
// both typed maps and values decoded from JSON.
func requestWeights(cfg map[string]any) (map[model.Metric]float64, error) {
	raw, ok := cfg[ConfigWeights]
	if !ok || raw == nil {
		return nil, nil
	}
	var entries map[string]any
	switch v := raw.(type) {
	case map[string]any:
		entries = v
	case map[string]float64:
		entries = make(map[string]any, len(v))
		for k, w := range v {
			entries[k] = w
		}
	default:
		return nil, fmt.Errorf("%w: %s must be an object", ErrInvalidRequest, ConfigWeights)
	}

	out := make(map[model.Metric]float64, len(entries))
	for name, val := range entries {
		m := model.Metric(name)
		if !m.Known() {
			return nil, fmt.Errorf("%w: unknown metric %q in weights", ErrInvalidRequest, name)
		}
		w, err := toFloat(val)
		if err != nil || w <= 0 {
			return nil, fmt.Errorf("%w: weight for %s must be a positive number", ErrInvalidRequest, name)
		}
		out[m] = w
	}
	return out, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}
