// Package scoring turns submitted answers into ledger deltas.
package scoring

import (
	"context"
	"fmt"
	"log"

	"github.com/danielpatrickdp/assessment-engine/internal/apperr"
	"github.com/danielpatrickdp/assessment-engine/internal/catalog"
	"github.com/danielpatrickdp/assessment-engine/internal/ledger"
	"github.com/danielpatrickdp/assessment-engine/internal/rules"
)

// #region evaluator
// Evaluator matches answers against a question's score rules.
type Evaluator struct {
	catalog catalog.Catalog
}

// NewEvaluator creates an evaluator over a catalog.
func NewEvaluator(cat catalog.Catalog) *Evaluator {
	return &Evaluator{catalog: cat}
}

// Evaluate returns one delta per matching rule. Every matching rule applies;
// malformed rules are logged and skipped.
func (e *Evaluator) Evaluate(ctx context.Context, questionCode, answer string) ([]ledger.Delta, error) {
	rs, err := e.catalog.ScoreRulesForQuestion(ctx, questionCode)
	if err != nil {
		return nil, fmt.Errorf("score rules for %s: %w", questionCode, err)
	}

	var deltas []ledger.Delta
	for _, r := range rs {
		cond := rules.AnswerCondition(r.Operator, r.ComparisonValue)
		if cond.Malformed() {
			log.Printf("[SCORE] skip: %v", apperr.MalformedRule(r.ID, cond.Reason))
			continue
		}
		if !rules.Match(cond, rules.Env{Answer: answer}) {
			continue
		}
		deltas = append(deltas, ledger.Delta{
			Metric:       r.TargetMetric,
			Amount:       r.Delta,
			SourceRuleID: r.ID,
		})
	}

	log.Printf("[SCORE] %s: %d/%d rules matched", questionCode, len(deltas), len(rs))
	return deltas, nil
}

// Boosts returns the unconditional deltas of every active rule tagged with component.
func (e *Evaluator) Boosts(ctx context.Context, component string) ([]ledger.Delta, error) {
	rs, err := e.catalog.ScoreRulesForComponent(ctx, component)
	if err != nil {
		return nil, fmt.Errorf("boost rules for %s: %w", component, err)
	}
	deltas := make([]ledger.Delta, 0, len(rs))
	for _, r := range rs {
		deltas = append(deltas, ledger.Delta{
			Metric:       r.TargetMetric,
			Amount:       r.Delta,
			SourceRuleID: r.ID,
		})
	}
	return deltas, nil
}

// #endregion evaluator
