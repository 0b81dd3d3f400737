package catalog

import (
	"context"
	"sort"

	"github.com/danielpatrickdp/assessment-engine/internal/apperr"
)

// #region interface

// Catalog is the read-only content store the engine consumes.
type Catalog interface {
	FirstQuestion(ctx context.Context) (Question, bool, error)
	Question(ctx context.Context, code string) (Question, error)
	NextQuestion(ctx context.Context, after Question) (Question, bool, error)
	QuestionCount(ctx context.Context) (int, error)
	ScoreDefinitions(ctx context.Context) ([]ScoreDefinition, error)
	ScoreRulesForQuestion(ctx context.Context, questionCode string) ([]ScoreRule, error)
	ScoreRulesForComponent(ctx context.Context, tag string) ([]ScoreRule, error)
	BranchingRules(ctx context.Context) ([]BranchingRule, error)
	Module(ctx context.Context, ref string) (Module, error)
	ModuleContent(ctx context.Context, moduleID string) ([]ContentBlock, error)
}

// #endregion interface

// #region memory

// Memory is an in-memory Catalog, usually built by Load or Parse.
type Memory struct {
	questions   []Question // sorted by (Part, OrderingKey)
	byCode      map[string]int
	definitions []ScoreDefinition
	scoreRules  []ScoreRule
	branching   []BranchingRule // active only, ascending priority
	modules     []Module
}

// NewMemory builds a catalog from already-validated content.
func NewMemory(doc Document) *Memory {
	m := &Memory{
		questions:   append([]Question(nil), doc.Questions...),
		byCode:      make(map[string]int, len(doc.Questions)),
		definitions: append([]ScoreDefinition(nil), doc.ScoreDefinitions...),
		scoreRules:  append([]ScoreRule(nil), doc.ScoreRules...),
		modules:     append([]Module(nil), doc.Modules...),
	}

	sort.SliceStable(m.questions, func(i, j int) bool {
		return m.questions[i].Before(m.questions[j])
	})
	for i, q := range m.questions {
		m.byCode[q.Code] = i
	}

	for _, r := range doc.BranchingRules {
		if r.IsActive() {
			m.branching = append(m.branching, r)
		}
	}
	sort.SliceStable(m.branching, func(i, j int) bool {
		return m.branching[i].Priority < m.branching[j].Priority
	})

	for i := range m.modules {
		sort.SliceStable(m.modules[i].Content, func(a, b int) bool {
			return m.modules[i].Content[a].Order < m.modules[i].Content[b].Order
		})
	}
	return m
}

// FirstQuestion returns the lowest-ordered question, if any.
func (m *Memory) FirstQuestion(_ context.Context) (Question, bool, error) {
	if len(m.questions) == 0 {
		return Question{}, false, nil
	}
	return m.questions[0], true, nil
}

// Question looks a question up by code.
func (m *Memory) Question(_ context.Context, code string) (Question, error) {
	i, ok := m.byCode[code]
	if !ok {
		return Question{}, apperr.NotFound("question", code)
	}
	return m.questions[i], nil
}

// NextQuestion returns the first question ordered strictly after the given one.
func (m *Memory) NextQuestion(_ context.Context, after Question) (Question, bool, error) {
	for _, q := range m.questions {
		if after.Before(q) {
			return q, true, nil
		}
	}
	return Question{}, false, nil
}

// QuestionCount returns the total number of questions.
func (m *Memory) QuestionCount(_ context.Context) (int, error) {
	return len(m.questions), nil
}

// ScoreDefinitions returns all metric definitions in catalog order.
func (m *Memory) ScoreDefinitions(_ context.Context) ([]ScoreDefinition, error) {
	return m.definitions, nil
}

// ScoreRulesForQuestion returns the active rules sourced from a question.
func (m *Memory) ScoreRulesForQuestion(_ context.Context, questionCode string) ([]ScoreRule, error) {
	var out []ScoreRule
	for _, r := range m.scoreRules {
		if r.IsActive() && r.SourceQuestionCode == questionCode {
			out = append(out, r)
		}
	}
	return out, nil
}

// ScoreRulesForComponent returns the active rules tagged with a component.
func (m *Memory) ScoreRulesForComponent(_ context.Context, tag string) ([]ScoreRule, error) {
	var out []ScoreRule
	for _, r := range m.scoreRules {
		if r.IsActive() && r.ComponentTag == tag {
			out = append(out, r)
		}
	}
	return out, nil
}

// BranchingRules returns active rules in ascending priority.
func (m *Memory) BranchingRules(_ context.Context) ([]BranchingRule, error) {
	return m.branching, nil
}

// Module resolves a module by id, falling back to its trigger codes.
// Inactive modules are returned; callers decide whether that matters.
func (m *Memory) Module(_ context.Context, ref string) (Module, error) {
	for _, mod := range m.modules {
		if mod.ID == ref {
			return mod, nil
		}
	}
	for _, mod := range m.modules {
		for _, t := range mod.TriggerCodes {
			if t == ref {
				return mod, nil
			}
		}
	}
	return Module{}, apperr.NotFound("module", ref)
}

// ModuleContent returns a module's content blocks ordered by Order.
func (m *Memory) ModuleContent(ctx context.Context, moduleID string) ([]ContentBlock, error) {
	mod, err := m.Module(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	return mod.Content, nil
}

// #endregion memory
