package catalog

import "fmt"

// #region question

// Question is one catalog question. Questions are ordered by (Part, OrderingKey).
type Question struct {
	Code        string   `yaml:"code"`
	Part        int      `yaml:"part"`
	OrderingKey int      `yaml:"order"`
	Required    bool     `yaml:"required"`
	Text        string   `yaml:"text"`
	Type        string   `yaml:"type"`
	Options     []Option `yaml:"options"`
}

// Option is a selectable answer for choice questions.
type Option struct {
	ID    string `yaml:"id"`
	Text  string `yaml:"text"`
	Value string `yaml:"value"`
}

// Before reports whether q is ordered strictly before other.
func (q Question) Before(other Question) bool {
	if q.Part != other.Part {
		return q.Part < other.Part
	}
	return q.OrderingKey < other.OrderingKey
}

// NormalizeOptions fills missing option ids as opt_{i+1} and missing values
// from the id, so every option is addressable by the caller.
func NormalizeOptions(opts []Option) []Option {
	out := make([]Option, len(opts))
	for i, o := range opts {
		if o.ID == "" {
			o.ID = fmt.Sprintf("opt_%d", i+1)
		}
		if o.Value == "" {
			o.Value = o.ID
		}
		out[i] = o
	}
	return out
}

// #endregion question

// #region score-definition

// InterpretationRange is a labelled value range; Flag marks it as flaggable.
type InterpretationRange struct {
	Min   int    `yaml:"min"`
	Max   int    `yaml:"max"`
	Label string `yaml:"label"`
	Flag  bool   `yaml:"flag"`
}

// Contains reports whether v lies in [Min, Max].
func (r InterpretationRange) Contains(v int) bool {
	return v >= r.Min && v <= r.Max
}

// Thresholds are the three ordered interpretation cut points.
type Thresholds struct {
	Low    int `yaml:"low"`
	Medium int `yaml:"medium"`
	High   int `yaml:"high"`
}

// Interpretations are the human labels for each threshold band.
type Interpretations struct {
	Low    string `yaml:"low"`
	Medium string `yaml:"medium"`
	High   string `yaml:"high"`
}

// ScoreDefinition describes one metric: bounds, thresholds and flaggable ranges.
type ScoreDefinition struct {
	MetricCode      string                `yaml:"metric"`
	Name            string                `yaml:"name"`
	MinValue        int                   `yaml:"min"`
	MaxValue        int                   `yaml:"max"`
	Thresholds      Thresholds            `yaml:"thresholds"`
	Interpretations Interpretations       `yaml:"interpretations"`
	Ranges          []InterpretationRange `yaml:"ranges"`

	maxSet bool
}

// Band names returned by Interpret.
const (
	BandLow    = "low"
	BandMedium = "medium"
	BandHigh   = "high"
)

// Interpret maps a value to its threshold band and human label: below Low is
// low, below Medium is medium, anything else is high.
func (d ScoreDefinition) Interpret(v int) (band, label string) {
	switch {
	case v < d.Thresholds.Low:
		return BandLow, d.Interpretations.Low
	case v < d.Thresholds.Medium:
		return BandMedium, d.Interpretations.Medium
	default:
		return BandHigh, d.Interpretations.High
	}
}

// #endregion score-definition

// #region score-rule

// ScoreRule maps a matching answer to a signed delta on a metric.
// Rules with a ComponentTag and no SourceQuestionCode are boost rules.
type ScoreRule struct {
	ID                 string `yaml:"id"`
	SourceQuestionCode string `yaml:"question"`
	Operator           string `yaml:"operator"`
	ComparisonValue    string `yaml:"value"`
	TargetMetric       string `yaml:"metric"`
	Delta              int    `yaml:"delta"`
	ComponentTag       string `yaml:"component"`
	Active             *bool  `yaml:"active"`
}

// IsActive treats an unset Active as true.
func (r ScoreRule) IsActive() bool {
	return r.Active == nil || *r.Active
}

// #endregion score-rule

// #region branching-rule

// Branching condition types.
const (
	ConditionScoreThreshold = "score_threshold"
	ConditionFlagExists     = "flag_exists"
	ConditionAlways         = "always"
)

// Branching action kinds.
const (
	ActionContinue            = "continue"
	ActionRouteToIntervention = "route_to_intervention"
	ActionRouteToModule       = "route_to_module"
	ActionRouteToKai          = "route_to_kai"
	ActionRouteToProtocol     = "route_to_protocol"
)

// ConditionPayload holds either a scalar (expression or flag code) or a
// structured {metric, operator, value} triple.
type ConditionPayload struct {
	Raw        string
	Structured bool
	Metric     string
	Operator   string
	Value      float64
}

// BranchingRule routes the flow when its condition matches.
type BranchingRule struct {
	ID                  string           `yaml:"id"`
	Priority            int              `yaml:"priority"`
	TriggerQuestionCode string           `yaml:"trigger_question"`
	ConditionType       string           `yaml:"condition_type"`
	Condition           ConditionPayload `yaml:"condition"`
	ActionKind          string           `yaml:"action"`
	ActionTarget        string           `yaml:"target"`
	Active              *bool            `yaml:"active"`
}

// IsActive treats an unset Active as true.
func (r BranchingRule) IsActive() bool {
	return r.Active == nil || *r.Active
}

// #endregion branching-rule

// #region module

// Module is a remedial intervention unit. TriggerCodes are the names branching
// rules may use to address it.
type Module struct {
	ID              string         `yaml:"id"`
	Title           string         `yaml:"title"`
	Goal            string         `yaml:"goal"`
	DurationMinutes int            `yaml:"duration_minutes"`
	Active          *bool          `yaml:"active"`
	TriggerCodes    []string       `yaml:"triggers"`
	Content         []ContentBlock `yaml:"content"`
}

// IsActive treats an unset Active as true.
func (m Module) IsActive() bool {
	return m.Active == nil || *m.Active
}

// ContentBlock is one ordered piece of module content.
type ContentBlock struct {
	Order int            `yaml:"order"`
	Type  string         `yaml:"type"`
	Data  map[string]any `yaml:"data"`
}

// #endregion module
