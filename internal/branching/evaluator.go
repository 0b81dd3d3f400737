// Package branching picks the next step from aggregated scores and flags.
package branching

import (
	"context"
	"fmt"
	"log"

	"github.com/danielpatrickdp/assessment-engine/internal/apperr"
	"github.com/danielpatrickdp/assessment-engine/internal/catalog"
	"github.com/danielpatrickdp/assessment-engine/internal/flags"
	"github.com/danielpatrickdp/assessment-engine/internal/rules"
	"github.com/danielpatrickdp/assessment-engine/internal/subject"
)

// #region directive

// StepType is the kind of step a directive points at.
type StepType string

const (
	StepQuestion     StepType = "QUESTION"
	StepIntervention StepType = "INTERVENTION"
	StepProtocol     StepType = "PROTOCOL"
	StepComplete     StepType = "COMPLETE"
)

// NextSentinel asks the caller to advance to the next question in catalog order.
const NextSentinel = "next"

// Directive is the branching result. RuleID is empty on fallback.
type Directive struct {
	StepType StepType
	StepCode string
	RuleID   string
}

// Fallback is returned when no rule matches.
var Fallback = Directive{StepType: StepQuestion, StepCode: NextSentinel}

// #endregion directive

// #region evaluator

// FlagSource reads a subject's raised flags.
type FlagSource interface {
	Flags(ctx context.Context, s subject.Key) ([]flags.Flag, error)
}

// Evaluator applies branching rules in ascending priority.
type Evaluator struct {
	catalog catalog.Catalog
	flags   FlagSource
}

// NewEvaluator creates a branching evaluator.
func NewEvaluator(cat catalog.Catalog, fs FlagSource) *Evaluator {
	return &Evaluator{catalog: cat, flags: fs}
}

// Decide returns the action of the first matching rule. An empty trigger
// means no question triggered the evaluation, so only untriggered rules apply.
func (e *Evaluator) Decide(ctx context.Context, s subject.Key, scores map[string]int, trigger string) (Directive, error) {
	rs, err := e.catalog.BranchingRules(ctx)
	if err != nil {
		return Directive{}, fmt.Errorf("branching rules: %w", err)
	}
	raised, err := e.flags.Flags(ctx, s)
	if err != nil {
		return Directive{}, fmt.Errorf("read flags: %w", err)
	}
	env := rules.Env{Scores: scores, Flags: flags.Codes(raised)}

	for _, r := range rs {
		if r.TriggerQuestionCode != "" && r.TriggerQuestionCode != trigger {
			continue
		}
		cond := rules.BranchCondition(r.ConditionType, r.Condition)
		if cond.Malformed() {
			log.Printf("[BRANCH] skip: %v", apperr.MalformedRule(r.ID, cond.Reason))
			continue
		}
		if !rules.Match(cond, env) {
			continue
		}
		d := directiveFor(r)
		log.Printf("[BRANCH] %s: rule %s matched → %s:%s", s, r.ID, d.StepType, d.StepCode)
		return d, nil
	}
	return Fallback, nil
}

func directiveFor(r catalog.BranchingRule) Directive {
	switch r.ActionKind {
	case catalog.ActionRouteToIntervention, catalog.ActionRouteToModule, catalog.ActionRouteToKai:
		return Directive{StepType: StepIntervention, StepCode: r.ActionTarget, RuleID: r.ID}
	case catalog.ActionRouteToProtocol:
		return Directive{StepType: StepProtocol, StepCode: r.ActionTarget, RuleID: r.ID}
	default:
		return Directive{StepType: StepQuestion, StepCode: NextSentinel, RuleID: r.ID}
	}
}

// #endregion evaluator

// #region next-question

// NextQuestion returns the code of the question ordered after current.
// ok is false when current is the last question.
func NextQuestion(ctx context.Context, cat catalog.Catalog, current string) (string, bool, error) {
	q, err := cat.Question(ctx, current)
	if err != nil {
		return "", false, err
	}
	next, ok, err := cat.NextQuestion(ctx, q)
	if err != nil {
		return "", false, fmt.Errorf("next question after %s: %w", current, err)
	}
	if !ok {
		return "", false, nil
	}
	return next.Code, true, nil
}

// #endregion next-question
