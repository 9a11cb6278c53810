package model

import (
	"fmt"
	"time"
)

// Metric names a measurement carried by a Snapshot.
type Metric string

// Known metrics. The string values match the JSON field names.
const (
	MetricAccuracy   Metric = "accuracy"
	MetricSpeedMS    Metric = "speed_ms"
	MetricMemoryMB   Metric = "memory_mb"
	MetricThroughput Metric = "throughput"
	MetricLatencyP50 Metric = "latency_p50"
	MetricLatencyP95 Metric = "latency_p95"
	MetricLatencyP99 Metric = "latency_p99"
)

// Metrics lists every known metric in a fixed order.
func Metrics() []Metric {
	return []Metric{
		MetricAccuracy,
		MetricSpeedMS,
		MetricMemoryMB,
		MetricThroughput,
		MetricLatencyP50,
		MetricLatencyP95,
		MetricLatencyP99,
	}
}

// Known reports whether m is a known metric.
func (m Metric) Known() bool {
	for _, k := range Metrics() {
		if k == m {
			return true
		}
	}
	return false
}

const maxAccuracy = 100

// Snapshot is one point-in-time set of measurements for a model. Every
// numeric field is optional.
type Snapshot struct {
	ModelID     int64     `json:"model_id"`
	TestName    string    `json:"test_name"`
	Accuracy    *float64  `json:"accuracy,omitempty"`
	SpeedMS     *float64  `json:"speed_ms,omitempty"`
	MemoryMB    *float64  `json:"memory_mb,omitempty"`
	Throughput  *float64  `json:"throughput,omitempty"`
	LatencyP50  *float64  `json:"latency_p50,omitempty"`
	LatencyP95  *float64  `json:"latency_p95,omitempty"`
	LatencyP99  *float64  `json:"latency_p99,omitempty"`
	SampleSize  *int64    `json:"test_size,omitempty"`
	TestDataset string    `json:"test_dataset,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Value returns the measurement for m and whether it is present.
func (s Snapshot) Value(m Metric) (float64, bool) {
	var p *float64
	switch m {
	case MetricAccuracy:
		p = s.Accuracy
	case MetricSpeedMS:
		p = s.SpeedMS
	case MetricMemoryMB:
		p = s.MemoryMB
	case MetricThroughput:
		p = s.Throughput
	case MetricLatencyP50:
		p = s.LatencyP50
	case MetricLatencyP95:
		p = s.LatencyP95
	case MetricLatencyP99:
		p = s.LatencyP99
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Values returns the present measurements keyed by metric.
func (s Snapshot) Values() map[Metric]float64 {
	out := make(map[Metric]float64, len(Metrics()))
	for _, m := range Metrics() {
		if v, ok := s.Value(m); ok {
			out[m] = v
		}
	}
	return out
}

// Validate checks the model id, the test name and the numeric ranges.
func (s Snapshot) Validate() error {
	if s.ModelID <= 0 {
		return fmt.Errorf("%w: model_id must be positive", ErrInvalidSnapshot)
	}
	if s.TestName == "" {
		return fmt.Errorf("%w: test_name is required", ErrInvalidSnapshot)
	}
	for _, m := range Metrics() {
		v, ok := s.Value(m)
		if !ok {
			continue
		}
		if v < 0 {
			return fmt.Errorf("%w: %s must be >= 0", ErrInvalidSnapshot, m)
		}
		if m == MetricAccuracy && v > maxAccuracy {
			return fmt.Errorf("%w: accuracy must be within [0,100]", ErrInvalidSnapshot)
		}
	}
	if s.SampleSize != nil && *s.SampleSize < 0 {
		return fmt.Errorf("%w: test_size must be >= 0", ErrInvalidSnapshot)
	}
	return nil
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
