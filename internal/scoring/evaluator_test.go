package scoring

import (
	"context"
	"testing"

	"github.com/danielpatrickdp/assessment-engine/internal/catalog"
)

func newEvaluator() *Evaluator {
	inactive := false
	return NewEvaluator(catalog.NewMemory(catalog.Document{
		ScoreRules: []catalog.ScoreRule{
			{ID: "a", SourceQuestionCode: "Q1", Operator: "equals", ComparisonValue: "opt_1", TargetMetric: "ea", Delta: 10},
			{ID: "b", SourceQuestionCode: "Q1", Operator: "==", ComparisonValue: "opt_1", TargetMetric: "cs", Delta: 5},
			{ID: "c", SourceQuestionCode: "Q1", Operator: "equals", ComparisonValue: "opt_2", TargetMetric: "ea", Delta: 50},
			{ID: "bad", SourceQuestionCode: "Q1", Operator: "matches", ComparisonValue: "opt_1", TargetMetric: "ea", Delta: 99},
			{ID: "off", SourceQuestionCode: "Q1", Operator: "equals", ComparisonValue: "opt_1", TargetMetric: "ea", Delta: 99, Active: &inactive},
			{ID: "gt", SourceQuestionCode: "Q2", Operator: "greater_than", ComparisonValue: "5", TargetMetric: "cs", Delta: 20},
			{ID: "lt", SourceQuestionCode: "Q2", Operator: "<", ComparisonValue: "3", TargetMetric: "cs", Delta: -5},
			{ID: "has", SourceQuestionCode: "Q3", Operator: "contains", ComparisonValue: "friend", TargetMetric: "rr", Delta: 30},
			{ID: "boost1", ComponentTag: "KAI", TargetMetric: "rr", Delta: 15},
			{ID: "boost2", ComponentTag: "KAI", TargetMetric: "ea", Delta: 5},
			{ID: "other", ComponentTag: "COACH", TargetMetric: "ea", Delta: 1},
		},
	}))
}

func TestEvaluate_AllMatchingRulesApply(t *testing.T) {
	deltas, err := newEvaluator().Evaluate(context.Background(), "Q1", "opt_1")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(deltas) != 2 {
		t.Fatalf("expected 2 deltas, got %+v", deltas)
	}
	if deltas[0].SourceRuleID != "a" || deltas[0].Amount != 10 || deltas[0].Metric != "ea" {
		t.Fatalf("unexpected first delta %+v", deltas[0])
	}
	if deltas[1].SourceRuleID != "b" {
		t.Fatalf("unexpected second delta %+v", deltas[1])
	}
}

func TestEvaluate_Numeric(t *testing.T) {
	e := newEvaluator()
	ctx := context.Background()

	high, _ := e.Evaluate(ctx, "Q2", "7")
	if len(high) != 1 || high[0].SourceRuleID != "gt" {
		t.Fatalf("expected gt, got %+v", high)
	}
	low, _ := e.Evaluate(ctx, "Q2", "1")
	if len(low) != 1 || low[0].Amount != -5 {
		t.Fatalf("expected lt, got %+v", low)
	}
	none, _ := e.Evaluate(ctx, "Q2", "not a number")
	if len(none) != 0 {
		t.Fatalf("expected no match for non-numeric answer, got %+v", none)
	}
}

func TestEvaluate_Contains(t *testing.T) {
	deltas, _ := newEvaluator().Evaluate(context.Background(), "Q3", "my best friend")
	if len(deltas) != 1 || deltas[0].Metric != "rr" {
		t.Fatalf("expected contains match, got %+v", deltas)
	}
}

func TestEvaluate_NoRules(t *testing.T) {
	deltas, err := newEvaluator().Evaluate(context.Background(), "UNKNOWN", "x")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(deltas) != 0 {
		t.Fatalf("expected zero deltas, got %+v", deltas)
	}
}

func TestBoosts_ComponentOnly(t *testing.T) {
	deltas, err := newEvaluator().Boosts(context.Background(), "KAI")
	if err != nil {
		t.Fatalf("Boosts: %v", err)
	}
	if len(deltas) != 2 {
		t.Fatalf("expected 2 boosts, got %+v", deltas)
	}
	if deltas[0].Metric != "rr" || deltas[0].Amount != 15 || deltas[0].SourceRuleID != "boost1" {
		t.Fatalf("unexpected boost %+v", deltas[0])
	}
}
