package ledger

import (
	"time"

	"github.com/danielpatrickdp/assessment-engine/internal/catalog"
	"github.com/danielpatrickdp/assessment-engine/internal/subject"
)

// #region delta
// Delta is one signed contribution to a metric, attributable to a rule.
type Delta struct {
	Metric       string
	Amount       int
	SourceRuleID string
}

// #endregion delta

// #region event
// Event is an appended ledger row. Events are never mutated or deleted.
type Event struct {
	ID           string
	Subject      subject.Key
	Metric       string
	Delta        int
	SourceRuleID string
	CreatedAt    time.Time
}

// #endregion event

// #region bounds
// Bounds is an inclusive [Min, Max] range a metric is clamped into.
type Bounds struct {
	Min int
	Max int
}

// DefaultBounds applies to metrics without a definition.
var DefaultBounds = Bounds{Min: 0, Max: 100}

// BoundsFrom indexes definition bounds by metric code.
func BoundsFrom(defs []catalog.ScoreDefinition) map[string]Bounds {
	out := make(map[string]Bounds, len(defs))
	for _, d := range defs {
		out[d.MetricCode] = Bounds{Min: d.MinValue, Max: d.MaxValue}
	}
	return out
}

// #endregion bounds
