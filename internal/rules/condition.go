// Package rules compiles catalog condition data into a closed set of
// condition variants and evaluates them with a single matcher.
package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/danielpatrickdp/assessment-engine/internal/catalog"
)

// #region kind

// Kind tags a compiled condition.
type Kind int

const (
	NoMatch Kind = iota
	Equals
	GreaterThan
	LessThan
	Contains
	ScoreThreshold
	FlagExists
	Always
)

func (k Kind) String() string {
	switch k {
	case Equals:
		return "equals"
	case GreaterThan:
		return "greater_than"
	case LessThan:
		return "less_than"
	case Contains:
		return "contains"
	case ScoreThreshold:
		return "score_threshold"
	case FlagExists:
		return "flag_exists"
	case Always:
		return "always"
	default:
		return "no_match"
	}
}

// CompareOp is a numeric comparison used by score thresholds.
type CompareOp string

const (
	OpLT CompareOp = "<"
	OpLE CompareOp = "<="
	OpGT CompareOp = ">"
	OpGE CompareOp = ">="
	OpEQ CompareOp = "=="
)

// #endregion kind

// #region condition

// Condition is a compiled rule condition. Reason explains a NoMatch.
type Condition struct {
	Kind     Kind
	Value    string    // answer comparisons
	Metric   string    // score threshold
	Op       CompareOp // score threshold
	Number   float64   // score threshold
	FlagCode string    // flag exists
	Reason   string
}

// Malformed reports whether compilation failed.
func (c Condition) Malformed() bool {
	return c.Kind == NoMatch && c.Reason != ""
}

// Env is the evaluation input for Match.
type Env struct {
	Answer string
	Scores map[string]int
	Flags  map[string]struct{}
}

// #endregion condition

// #region compile

var expressionPattern = regexp.MustCompile(`(\w+)\s*([<>=!]+)\s*(\d+)`)

// AnswerCondition compiles a score-rule operator and comparison value.
func AnswerCondition(operator, value string) Condition {
	switch strings.TrimSpace(operator) {
	case "equals", "==":
		return Condition{Kind: Equals, Value: value}
	case "greater_than", ">":
		return Condition{Kind: GreaterThan, Value: value}
	case "less_than", "<":
		return Condition{Kind: LessThan, Value: value}
	case "contains":
		return Condition{Kind: Contains, Value: value}
	default:
		return Condition{Kind: NoMatch, Reason: fmt.Sprintf("unknown operator %q", operator)}
	}
}

// ThresholdCondition compiles a structured triple or a "<metric> <op> <number>" expression.
func ThresholdCondition(p catalog.ConditionPayload) Condition {
	if p.Structured {
		op, ok := parseOp(p.Operator)
		if !ok {
			return Condition{Kind: NoMatch, Reason: fmt.Sprintf("unknown operator %q", p.Operator)}
		}
		if p.Metric == "" {
			return Condition{Kind: NoMatch, Reason: "threshold without metric"}
		}
		return Condition{Kind: ScoreThreshold, Metric: p.Metric, Op: op, Number: p.Value}
	}

	m := expressionPattern.FindStringSubmatch(p.Raw)
	if m == nil {
		return Condition{Kind: NoMatch, Reason: fmt.Sprintf("invalid expression %q", p.Raw)}
	}
	op, ok := parseOp(m[2])
	if !ok {
		return Condition{Kind: NoMatch, Reason: fmt.Sprintf("unknown operator %q in %q", m[2], p.Raw)}
	}
	n, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return Condition{Kind: NoMatch, Reason: fmt.Sprintf("invalid threshold in %q", p.Raw)}
	}
	return Condition{Kind: ScoreThreshold, Metric: m[1], Op: op, Number: n}
}

// BranchCondition compiles a branching rule's condition type and payload.
func BranchCondition(conditionType string, p catalog.ConditionPayload) Condition {
	switch conditionType {
	case catalog.ConditionScoreThreshold:
		return ThresholdCondition(p)
	case catalog.ConditionFlagExists:
		if p.Raw == "" {
			return Condition{Kind: NoMatch, Reason: "flag_exists without flag code"}
		}
		return Condition{Kind: FlagExists, FlagCode: p.Raw}
	case catalog.ConditionAlways:
		return Condition{Kind: Always}
	default:
		return Condition{Kind: NoMatch, Reason: fmt.Sprintf("unknown condition type %q", conditionType)}
	}
}

func parseOp(s string) (CompareOp, bool) {
	switch s {
	case "<":
		return OpLT, true
	case "<=":
		return OpLE, true
	case ">":
		return OpGT, true
	case ">=":
		return OpGE, true
	case "==", "===":
		return OpEQ, true
	default:
		return "", false
	}
}

// #endregion compile

// #region match

// Match evaluates a compiled condition. Numeric coercion failures do not match.
func Match(c Condition, env Env) bool {
	switch c.Kind {
	case Equals:
		return env.Answer == c.Value
	case GreaterThan:
		a, b, ok := numbers(env.Answer, c.Value)
		return ok && a > b
	case LessThan:
		a, b, ok := numbers(env.Answer, c.Value)
		return ok && a < b
	case Contains:
		return strings.Contains(env.Answer, c.Value)
	case ScoreThreshold:
		return compare(float64(env.Scores[c.Metric]), c.Op, c.Number)
	case FlagExists:
		_, ok := env.Flags[c.FlagCode]
		return ok
	case Always:
		return true
	case NoMatch:
		return false
	}
	return false
}

func compare(v float64, op CompareOp, n float64) bool {
	switch op {
	case OpLT:
		return v < n
	case OpLE:
		return v <= n
	case OpGT:
		return v > n
	case OpGE:
		return v >= n
	case OpEQ:
		return v == n
	}
	return false
}

func numbers(a, b string) (float64, float64, bool) {
	x, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
	if err != nil {
		return 0, 0, false
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if err != nil {
		return 0, 0, false
	}
	return x, y, true
}

// #endregion match

// #region answer

// AnswerString coerces a submitted answer to the string form rules compare against.
// Multi-select answers are joined with commas.
func AnswerString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []string:
		return strings.Join(x, ",")
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = AnswerString(e)
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(x)
	}
}

// #endregion answer
