package branching

import (
	"context"
	"errors"
	"testing"

	"github.com/danielpatrickdp/assessment-engine/internal/apperr"
	"github.com/danielpatrickdp/assessment-engine/internal/catalog"
	"github.com/danielpatrickdp/assessment-engine/internal/flags"
	"github.com/danielpatrickdp/assessment-engine/internal/subject"
)

// #region helpers
type flagList struct {
	codes []string
	calls int
	err   error
}

func (f *flagList) Flags(_ context.Context, s subject.Key) ([]flags.Flag, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]flags.Flag, len(f.codes))
	for i, c := range f.codes {
		out[i] = flags.Flag{Subject: s, Code: c}
	}
	return out, nil
}

var alice = subject.Key{UserID: "u1", SessionID: "s1"}

func expr(s string) catalog.ConditionPayload { return catalog.ConditionPayload{Raw: s} }

func newEvaluator(rs []catalog.BranchingRule, fs *flagList) *Evaluator {
	return NewEvaluator(catalog.NewMemory(catalog.Document{BranchingRules: rs}), fs)
}

// #endregion helpers

func TestDecide_PriorityTieBreak(t *testing.T) {
	rs := []catalog.BranchingRule{
		{ID: "second", Priority: 2, ConditionType: "always", ActionKind: "route_to_protocol", ActionTarget: "p2"},
		{ID: "first", Priority: 1, ConditionType: "always", ActionKind: "route_to_intervention", ActionTarget: "m1"},
	}
	d, err := newEvaluator(rs, &flagList{}).Decide(context.Background(), alice, nil, "")
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.RuleID != "first" || d.StepType != StepIntervention || d.StepCode != "m1" {
		t.Fatalf("expected priority 1 action, got %+v", d)
	}
}

func TestDecide_TriggerFilter(t *testing.T) {
	rs := []catalog.BranchingRule{
		{ID: "q1only", Priority: 1, TriggerQuestionCode: "Q1", ConditionType: "always", ActionKind: "route_to_protocol", ActionTarget: "p"},
	}
	e := newEvaluator(rs, &flagList{})
	ctx := context.Background()

	d, _ := e.Decide(ctx, alice, nil, "Q2")
	if d != Fallback {
		t.Fatalf("expected fallback for other trigger, got %+v", d)
	}
	d, _ = e.Decide(ctx, alice, nil, "")
	if d != Fallback {
		t.Fatalf("expected fallback for absent trigger, got %+v", d)
	}
	d, _ = e.Decide(ctx, alice, nil, "Q1")
	if d.RuleID != "q1only" {
		t.Fatalf("expected match on Q1, got %+v", d)
	}
}

func TestDecide_ScoreThreshold(t *testing.T) {
	rs := []catalog.BranchingRule{
		{ID: "low", Priority: 1, ConditionType: "score_threshold", Condition: expr("emotional_awareness < 30"),
			ActionKind: "route_to_intervention", ActionTarget: "emotional_awareness_intro"},
	}
	e := newEvaluator(rs, &flagList{})
	ctx := context.Background()

	d, _ := e.Decide(ctx, alice, map[string]int{"emotional_awareness": 10}, "RC_001")
	if d.StepType != StepIntervention || d.StepCode != "emotional_awareness_intro" {
		t.Fatalf("expected intervention, got %+v", d)
	}
	d, _ = e.Decide(ctx, alice, map[string]int{"emotional_awareness": 30}, "RC_001")
	if d != Fallback {
		t.Fatalf("expected fallback at 30, got %+v", d)
	}
	// Missing metric is treated as 0.
	d, _ = e.Decide(ctx, alice, map[string]int{}, "RC_001")
	if d.RuleID != "low" {
		t.Fatalf("expected missing metric to match < 30, got %+v", d)
	}
}

func TestDecide_FlagExistsFetchedFresh(t *testing.T) {
	rs := []catalog.BranchingRule{
		{ID: "flagged", Priority: 1, ConditionType: "flag_exists", Condition: expr("ea_critical"),
			ActionKind: "route_to_module", ActionTarget: "m"},
	}
	fs := &flagList{}
	e := newEvaluator(rs, fs)
	ctx := context.Background()

	d, _ := e.Decide(ctx, alice, nil, "")
	if d != Fallback {
		t.Fatalf("expected fallback without flag, got %+v", d)
	}
	fs.codes = []string{"ea_critical"}
	d, _ = e.Decide(ctx, alice, nil, "")
	if d.StepType != StepIntervention {
		t.Fatalf("expected route_to_module to map to INTERVENTION, got %+v", d)
	}
	if fs.calls != 2 {
		t.Fatalf("expected flags read per evaluation, got %d", fs.calls)
	}
}

func TestDecide_MalformedSkipped(t *testing.T) {
	rs := []catalog.BranchingRule{
		{ID: "bad", Priority: 1, ConditionType: "score_threshold", Condition: expr("gibberish"), ActionKind: "route_to_protocol", ActionTarget: "x"},
		{ID: "unknown", Priority: 2, ConditionType: "moon_phase", ActionKind: "route_to_protocol", ActionTarget: "y"},
		{ID: "good", Priority: 3, ConditionType: "always", ActionKind: "route_to_protocol", ActionTarget: "z"},
	}
	d, err := newEvaluator(rs, &flagList{}).Decide(context.Background(), alice, nil, "")
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.RuleID != "good" || d.StepType != StepProtocol || d.StepCode != "z" {
		t.Fatalf("expected malformed rules skipped, got %+v", d)
	}
}

func TestDecide_ActionMapping(t *testing.T) {
	cases := []struct {
		action string
		want   StepType
		code   string
	}{
		{"route_to_intervention", StepIntervention, "t"},
		{"route_to_module", StepIntervention, "t"},
		{"route_to_kai", StepIntervention, "t"},
		{"route_to_protocol", StepProtocol, "t"},
		{"continue", StepQuestion, NextSentinel},
		{"teleport", StepQuestion, NextSentinel},
	}
	for _, c := range cases {
		rs := []catalog.BranchingRule{{ID: "r", ConditionType: "always", ActionKind: c.action, ActionTarget: "t"}}
		d, _ := newEvaluator(rs, &flagList{}).Decide(context.Background(), alice, nil, "")
		if d.StepType != c.want || d.StepCode != c.code {
			t.Errorf("%s: expected %s:%s, got %+v", c.action, c.want, c.code, d)
		}
	}
}

func TestDecide_FlagReadError(t *testing.T) {
	_, err := newEvaluator(nil, &flagList{err: errors.New("boom")}).Decide(context.Background(), alice, nil, "")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestNextQuestion(t *testing.T) {
	cat := catalog.NewMemory(catalog.Document{Questions: []catalog.Question{
		{Code: "C", Part: 1, OrderingKey: 3},
		{Code: "A", Part: 1, OrderingKey: 1},
		{Code: "B", Part: 1, OrderingKey: 2},
	}})
	ctx := context.Background()

	code, ok, err := NextQuestion(ctx, cat, "B")
	if err != nil || !ok || code != "C" {
		t.Fatalf("expected C after B, got %q ok=%v err=%v", code, ok, err)
	}
	_, ok, err = NextQuestion(ctx, cat, "C")
	if err != nil || ok {
		t.Fatalf("expected none after last, got ok=%v err=%v", ok, err)
	}
	_, _, err = NextQuestion(ctx, cat, "Z")
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected NotFound for unknown code, got %v", err)
	}
}
