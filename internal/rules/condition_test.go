package rules

import (
	"testing"

	"github.com/danielpatrickdp/assessment-engine/internal/catalog"
)

func TestAnswerCondition_Operators(t *testing.T) {
	cases := []struct {
		op, value, answer string
		want              bool
	}{
		{"equals", "opt_1", "opt_1", true},
		{"==", "opt_1", "opt_2", false},
		{"greater_than", "5", "7", true},
		{">", "5", "5", false},
		{"less_than", "3", "1", true},
		{"<", "3", "abc", false},
		{"contains", "friend", "my best friend", true},
		{"contains", "friend", "nobody", false},
		{"equals", "10", "10", true},
	}
	for _, c := range cases {
		got := Match(AnswerCondition(c.op, c.value), Env{Answer: c.answer})
		if got != c.want {
			t.Errorf("%s %q vs %q: expected %v, got %v", c.op, c.value, c.answer, c.want, got)
		}
	}
}

func TestAnswerCondition_UnknownOperator(t *testing.T) {
	cond := AnswerCondition("regex", ".*")
	if cond.Kind != NoMatch {
		t.Fatalf("expected NoMatch, got %s", cond.Kind)
	}
	if !cond.Malformed() {
		t.Fatal("expected malformed reason")
	}
	if Match(cond, Env{Answer: "anything"}) {
		t.Fatal("NoMatch must never match")
	}
}

func TestThresholdCondition_Expression(t *testing.T) {
	scores := map[string]int{"emotional_awareness": 10}
	cases := []struct {
		expr string
		want bool
	}{
		{"emotional_awareness < 30", true},
		{"emotional_awareness<=10", true},
		{"emotional_awareness > 10", false},
		{"emotional_awareness >= 10", true},
		{"emotional_awareness == 10", true},
		{"emotional_awareness === 10", true},
		{"communication_skills < 1", true}, // missing metric defaults to 0
	}
	for _, c := range cases {
		cond := ThresholdCondition(catalog.ConditionPayload{Raw: c.expr})
		if cond.Kind != ScoreThreshold {
			t.Fatalf("%q: expected ScoreThreshold, got %s (%s)", c.expr, cond.Kind, cond.Reason)
		}
		if got := Match(cond, Env{Scores: scores}); got != c.want {
			t.Errorf("%q: expected %v, got %v", c.expr, c.want, got)
		}
	}
}

func TestThresholdCondition_Malformed(t *testing.T) {
	for _, expr := range []string{"", "emotional_awareness is low", "emotional_awareness != 3", "x => 4"} {
		cond := ThresholdCondition(catalog.ConditionPayload{Raw: expr})
		if cond.Kind != NoMatch || !cond.Malformed() {
			t.Errorf("%q: expected malformed NoMatch, got %+v", expr, cond)
		}
	}
}

func TestThresholdCondition_Structured(t *testing.T) {
	p := catalog.ConditionPayload{Structured: true, Metric: "communication_skills", Operator: "<=", Value: 0}
	cond := ThresholdCondition(p)
	if cond.Kind != ScoreThreshold {
		t.Fatalf("expected ScoreThreshold, got %s", cond.Kind)
	}
	if !Match(cond, Env{Scores: map[string]int{"communication_skills": 0}}) {
		t.Fatal("expected 0 <= 0 to match")
	}
	if Match(cond, Env{Scores: map[string]int{"communication_skills": 5}}) {
		t.Fatal("expected 5 <= 0 not to match")
	}

	p.Operator = "~"
	if ThresholdCondition(p).Kind != NoMatch {
		t.Fatal("expected unknown structured operator to be NoMatch")
	}
}

func TestBranchCondition_Types(t *testing.T) {
	flags := map[string]struct{}{"emotional_awareness_critical": {}}

	fe := BranchCondition(catalog.ConditionFlagExists, catalog.ConditionPayload{Raw: "emotional_awareness_critical"})
	if !Match(fe, Env{Flags: flags}) {
		t.Fatal("expected flag_exists to match present flag")
	}
	missing := BranchCondition(catalog.ConditionFlagExists, catalog.ConditionPayload{Raw: "other_flag"})
	if Match(missing, Env{Flags: flags}) {
		t.Fatal("expected flag_exists not to match absent flag")
	}
	if !Match(BranchCondition(catalog.ConditionAlways, catalog.ConditionPayload{}), Env{}) {
		t.Fatal("expected always to match")
	}
	unknown := BranchCondition("weather", catalog.ConditionPayload{Raw: "sunny"})
	if unknown.Kind != NoMatch || Match(unknown, Env{}) {
		t.Fatal("expected unknown condition type to be NoMatch")
	}
}

func TestAnswerString(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"opt_1", "opt_1"},
		{7, "7"},
		{float64(7), "7"},
		{2.5, "2.5"},
		{true, "true"},
		{[]any{"a", "b"}, "a,b"},
		{[]string{"x"}, "x"},
		{nil, ""},
	}
	for _, c := range cases {
		if got := AnswerString(c.in); got != c.want {
			t.Errorf("AnswerString(%v): expected %q, got %q", c.in, c.want, got)
		}
	}
}
