package battle

import (
	"fmt"
	"strings"

	"github.com/okian/arena/internal/domain/model"
)

// Mode selects the metric subset used to compare two models.
type Mode string

// Battle modes.
const (
	ModeAccuracy      Mode = "accuracy"
	ModeSpeed         Mode = "speed"
	ModeEfficiency    Mode = "efficiency"
	ModeComprehensive Mode = "comprehensive"
)

// ParseMode parses a mode name case-insensitively.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if MetricsFor(m) == nil {
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, s)
	}
	return m, nil
}

// Direction tells which side of a comparison wins.
type Direction int

// Directions.
const (
	HigherIsBetter Direction = iota
	LowerIsBetter
)

// DirectionOf returns how metric m is compared.
func DirectionOf(m model.Metric) Direction {
	switch m {
	case model.MetricAccuracy, model.MetricThroughput:
		return HigherIsBetter
	default:
		return LowerIsBetter
	}
}

// MetricsFor returns the metrics scored in mode m in evaluation order, or nil
// for an unknown mode.
func MetricsFor(m Mode) []model.Metric {
	switch m {
	case ModeAccuracy:
		return []model.Metric{model.MetricAccuracy}
	case ModeSpeed:
		return []model.Metric{
			model.MetricSpeedMS,
			model.MetricLatencyP50,
			model.MetricLatencyP95,
			model.MetricLatencyP99,
		}
	case ModeEfficiency:
		return []model.Metric{model.MetricMemoryMB, model.MetricThroughput}
	case ModeComprehensive:
		return []model.Metric{
			model.MetricAccuracy,
			model.MetricSpeedMS,
			model.MetricLatencyP50,
			model.MetricLatencyP95,
			model.MetricLatencyP99,
			model.MetricMemoryMB,
			model.MetricThroughput,
		}
	default:
		return nil
	}
}
