// Package event defines the envelopes broadcast on the event bus.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/okian/arena/internal/domain/battle"
	"github.com/okian/arena/internal/domain/model"
)

// Kind identifies the payload carried by an envelope.
type Kind string

// Event kinds as they appear on the wire.
const (
	KindBenchmarkRecorded Kind = "benchmark_update"
	KindBattleResolved    Kind = "battle_result"
	KindModelRegistered   Kind = "model_added"
)

// Bus channels.
const (
	ChannelBenchmarks = "benchmarks"
	ChannelBattles    = "battles"
	ChannelModels     = "models"
)

// Channels returns the fixed channel set relayed to clients.
func Channels() []string {
	return []string{ChannelBenchmarks, ChannelBattles, ChannelModels}
}

// ChannelFor returns the bus channel an event kind is published on.
func ChannelFor(k Kind) (string, error) {
	switch k {
	case KindBenchmarkRecorded:
		return ChannelBenchmarks, nil
	case KindBattleResolved:
		return ChannelBattles, nil
	case KindModelRegistered:
		return ChannelModels, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, k)
	}
}

// Payload is implemented by the three event payload types only.
type Payload interface {
	Kind() Kind
	isPayload()
}

// BenchmarkRecorded is published after a benchmark is persisted.
type BenchmarkRecorded struct {
	ModelID     int64    `json:"model_id"`
	BenchmarkID int64    `json:"benchmark_id"`
	ModelName   string   `json:"model_name"`
	TestName    string   `json:"test_name"`
	Accuracy    *float64 `json:"accuracy"`
	SpeedMS     *float64 `json:"speed_ms"`
	MemoryMB    *float64 `json:"memory_mb,omitempty"`
	Throughput  *float64 `json:"throughput,omitempty"`
	LatencyP50  *float64 `json:"latency_p50,omitempty"`
	LatencyP95  *float64 `json:"latency_p95,omitempty"`
	LatencyP99  *float64 `json:"latency_p99,omitempty"`
}

// NewBenchmarkRecorded builds the payload for a persisted benchmark.
func NewBenchmarkRecorded(m model.Model, b model.Benchmark) BenchmarkRecorded {
	return BenchmarkRecorded{
		ModelID:     m.ID,
		BenchmarkID: b.ID,
		ModelName:   m.Name,
		TestName:    b.TestName,
		Accuracy:    b.Accuracy,
		SpeedMS:     b.SpeedMS,
		MemoryMB:    b.MemoryMB,
		Throughput:  b.Throughput,
		LatencyP50:  b.LatencyP50,
		LatencyP95:  b.LatencyP95,
		LatencyP99:  b.LatencyP99,
	}
}

// BattleResolved is published after a battle outcome is persisted.
type BattleResolved struct {
	BattleID int64                               `json:"battle_id"`
	Model1   model.Ref                           `json:"model1"`
	Model2   model.Ref                           `json:"model2"`
	WinnerID *int64                              `json:"winner_id"`
	Mode     battle.Mode                         `json:"battle_type"`
	Scores   map[model.Metric]battle.MetricScore `json:"scores"`
	TotalA   float64                             `json:"total_score_a"`
	TotalB   float64                             `json:"total_score_b"`
}

// NewBattleResolved builds the payload for a persisted battle.
func NewBattleResolved(id int64, a, b model.Model, out battle.Outcome) BattleResolved {
	return BattleResolved{
		BattleID: id,
		Model1:   a.Ref(),
		Model2:   b.Ref(),
		WinnerID: out.WinnerID,
		Mode:     out.Mode,
		Scores:   out.Scores,
		TotalA:   out.TotalA,
		TotalB:   out.TotalB,
	}
}

// ModelRegistered is published after a model is created.
type ModelRegistered struct {
	model.Summary
}

// Kind implements Payload.
func (BenchmarkRecorded) Kind() Kind { return KindBenchmarkRecorded }

// Kind implements Payload.
func (BattleResolved) Kind() Kind { return KindBattleResolved }

// Kind implements Payload.
func (ModelRegistered) Kind() Kind { return KindModelRegistered }

func (BenchmarkRecorded) isPayload() {}
func (BattleResolved) isPayload()    {}
func (ModelRegistered) isPayload()   {}

// Envelope wraps a payload with its kind and time of occurrence.
type Envelope struct {
	ID         string
	Kind       Kind
	OccurredAt time.Time
	Payload    Payload
}

// New wraps p in an envelope stamped with at.
func New(p Payload, at time.Time) Envelope {
	return Envelope{
		ID:         uuid.NewString(),
		Kind:       p.Kind(),
		OccurredAt: at.UTC(),
		Payload:    p,
	}
}

// Channel returns the bus channel for the envelope.
func (e Envelope) Channel() (string, error) {
	return ChannelFor(e.Kind)
}

type wireEnvelope struct {
	ID        string          `json:"id,omitempty"`
	Type      Kind            `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// MarshalJSON encodes the envelope as {"type","timestamp","data"}.
func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.Payload == nil {
		return nil, fmt.Errorf("%w: nil payload", ErrMalformedEvent)
	}
	if e.Payload.Kind() != e.Kind {
		return nil, fmt.Errorf("%w: %s carries %s", ErrMismatchedKind, e.Kind, e.Payload.Kind())
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", e.Kind, err)
	}
	return json.Marshal(wireEnvelope{ID: e.ID, Type: e.Kind, Timestamp: e.OccurredAt, Data: data})
}

// UnmarshalJSON decodes the payload into the type selected by "type".
func (e *Envelope) UnmarshalJSON(b []byte) error {
	var w wireEnvelope
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	var (
		p   Payload
		err error
	)
	switch w.Type {
	case KindBenchmarkRecorded:
		p, err = decode[BenchmarkRecorded](w.Data)
	case KindBattleResolved:
		p, err = decode[BattleResolved](w.Data)
	case KindModelRegistered:
		p, err = decode[ModelRegistered](w.Data)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, w.Type)
	}
	if err != nil {
		return fmt.Errorf("%w: %s data: %w", ErrMalformedEvent, w.Type, err)
	}
	*e = Envelope{ID: w.ID, Kind: w.Type, OccurredAt: w.Timestamp, Payload: p}
	return nil
}

func decode[T Payload](data json.RawMessage) (Payload, error) {
	var v T
	if len(data) == 0 {
		return v, errors.New("missing data")
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, err
	}
	return v, nil
}

// Encode serialises an envelope for transit.
func Encode(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses an envelope received from the bus or a client stream.
func Decode(b []byte) (Envelope, error) {
	var e Envelope
	if err := e.UnmarshalJSON(b); err != nil {
		return Envelope{}, err
	}
	return e, nil
}
