// Package flow owns the per-subject flow record and orchestrates scoring,
// flagging, branching and interventions for each request.
package flow

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/danielpatrickdp/assessment-engine/internal/apperr"
	"github.com/danielpatrickdp/assessment-engine/internal/branching"
	"github.com/danielpatrickdp/assessment-engine/internal/catalog"
	"github.com/danielpatrickdp/assessment-engine/internal/flags"
	"github.com/danielpatrickdp/assessment-engine/internal/intervention"
	"github.com/danielpatrickdp/assessment-engine/internal/ledger"
	"github.com/danielpatrickdp/assessment-engine/internal/logging"
	"github.com/danielpatrickdp/assessment-engine/internal/rules"
	"github.com/danielpatrickdp/assessment-engine/internal/scoring"
	"github.com/danielpatrickdp/assessment-engine/internal/subject"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/danielpatrickdp/assessment-engine/internal/flow"

// NoQuestionsError is reported by GetState when the catalog is empty.
const NoQuestionsError = "no questions available"

// #region store

// Store is everything the controller persists.
type Store interface {
	ledger.Store
	flags.Store
	intervention.Store

	AppendResponse(ctx context.Context, r Response) error
	CountResponses(ctx context.Context, s subject.Key) (int, error)
	HasResponse(ctx context.Context, s subject.Key, questionCode string) (bool, error)
	ScoreRegisters(ctx context.Context, s subject.Key) (map[string]int, error)
	FlowState(ctx context.Context, s subject.Key) (*State, error)
	UpsertFlowState(ctx context.Context, st State) error
	AppendFlowEvent(ctx context.Context, ev AuditEvent) error
	LogDecision(ctx context.Context, entry logging.DecisionEntry) error
}

// #endregion store

// #region controller

// Controller runs each request's pipeline sequentially within the call.
type Controller struct {
	store     Store
	catalog   catalog.Catalog
	ledger    *ledger.Ledger
	detector  *flags.Detector
	scoring   *scoring.Evaluator
	branching *branching.Evaluator
	lifecycle *intervention.Lifecycle
	opts      Options
	locks     *subjectLocks
	tracer    trace.Tracer
}

// NewController wires the engine components over one store and catalog.
func NewController(store Store, cat catalog.Catalog, opts Options) *Controller {
	opts = opts.withDefaults()
	l := ledger.New(store, cat, opts.Now)
	sc := scoring.NewEvaluator(cat)
	c := &Controller{
		store:     store,
		catalog:   cat,
		ledger:    l,
		detector:  flags.NewDetector(store, cat, opts.Now),
		scoring:   sc,
		branching: branching.NewEvaluator(cat, store),
		lifecycle: intervention.NewLifecycle(store, cat, l, sc, opts.BoostComponent, opts.BoostPolicy, opts.Now),
		opts:      opts,
		tracer:    otel.Tracer(tracerName),
	}
	if opts.SerializeSubjects {
		c.locks = newSubjectLocks()
	}
	return c
}

// Options returns the effective options.
func (c *Controller) Options() Options {
	return c.opts
}

func (c *Controller) start(ctx context.Context, op string, s subject.Key) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "flow."+op, trace.WithAttributes(
		attribute.String("subject.user_id", s.UserID),
		attribute.String("subject.session_id", s.SessionID),
		attribute.String("flow.code", c.opts.FlowCode),
	))
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (c *Controller) serialize(s subject.Key) func() {
	if c.locks == nil {
		return func() {}
	}
	return c.locks.lock(s)
}

// #endregion controller

// #region get-state

// GetState returns the subject's current step, initializing the flow on first contact.
func (c *Controller) GetState(ctx context.Context, s subject.Key) (p Progress, err error) {
	if err := s.Validate(); err != nil {
		return Progress{}, err
	}
	ctx, span := c.start(ctx, "GetState", s)
	defer func() { end(span, err) }()
	defer c.serialize(s)()

	st, err := c.ensureStarted(ctx, s)
	if err != nil {
		return Progress{}, err
	}
	if st == nil {
		log.Printf("[FLOW] %s: %s", s, NoQuestionsError)
		return Progress{StepType: StepComplete, Error: NoQuestionsError}, nil
	}
	if st.Status == StatusCompleted {
		return Progress{StepType: StepComplete, ProgressPercent: 100}, nil
	}

	pct, err := c.progress(ctx, s)
	if err != nil {
		return Progress{}, err
	}
	return Progress{StepType: st.Step.Type, StepCode: st.Step.Code, ProgressPercent: pct}, nil
}

// ensureStarted returns the flow record, creating it at the first question.
// It returns nil without error when the catalog has no questions.
func (c *Controller) ensureStarted(ctx context.Context, s subject.Key) (*State, error) {
	st, err := c.store.FlowState(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("read flow state: %w", err)
	}
	if st != nil {
		return st, nil
	}

	first, ok, err := c.catalog.FirstQuestion(ctx)
	if err != nil {
		return nil, fmt.Errorf("first question: %w", err)
	}
	if !ok {
		return nil, nil
	}

	next, ev, err := Transition(nil, Started{Subject: s, FlowCode: c.opts.FlowCode, FirstQuestion: first.Code}, c.opts.Now())
	if err != nil {
		return nil, err
	}
	if err := c.persist(ctx, next, ev); err != nil {
		return nil, err
	}
	c.logDecision(ctx, logging.DecisionEntry{
		Subject:  s,
		Trigger:  logging.TriggerStart,
		StepType: string(next.Step.Type),
		StepCode: next.Step.Code,
	})
	log.Printf("[FLOW] %s: started %s at %s", s, c.opts.FlowCode, first.Code)
	return &next, nil
}

func (c *Controller) progress(ctx context.Context, s subject.Key) (int, error) {
	total, err := c.catalog.QuestionCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("question count: %w", err)
	}
	if total == 0 {
		return 0, nil
	}
	answered, err := c.store.CountResponses(ctx, s)
	if err != nil {
		return 0, fmt.Errorf("count responses: %w", err)
	}
	pct := int(math.Round(100 * float64(answered) / float64(total)))
	if pct > 100 {
		pct = 100
	}
	return pct, nil
}

// #endregion get-state

// #region submit-answer

// SubmitAnswer records an answer, scores it, raises flags, branches and
// commits the resolved step.
func (c *Controller) SubmitAnswer(ctx context.Context, s subject.Key, questionCode string, answer any) (res Result, err error) {
	if err := s.Validate(); err != nil {
		return Result{}, err
	}
	if questionCode == "" {
		return Result{}, apperr.Validation("question_code is required")
	}
	if emptyAnswer(answer) {
		return Result{}, apperr.Validation("response_value is required")
	}
	ctx, span := c.start(ctx, "SubmitAnswer", s)
	span.SetAttributes(attribute.String("question.code", questionCode))
	defer func() { end(span, err) }()
	defer c.serialize(s)()

	if _, err := c.catalog.Question(ctx, questionCode); err != nil {
		return Result{}, err
	}
	st, err := c.ensureStarted(ctx, s)
	if err != nil {
		return Result{}, err
	}
	if st.Status == StatusCompleted {
		return Result{}, ErrFlowCompleted
	}

	value := rules.AnswerString(answer)
	if c.opts.ResubmitPolicy == ResubmitIgnore {
		answered, err := c.store.HasResponse(ctx, s, questionCode)
		if err != nil {
			return Result{}, fmt.Errorf("check response: %w", err)
		}
		if answered {
			scores, err := c.ledger.Aggregate(ctx, s)
			if err != nil {
				return Result{}, err
			}
			log.Printf("[FLOW] %s: %s already answered, ignored", s, questionCode)
			return Result{StepType: st.Step.Type, StepCode: st.Step.Code, Scores: scores}, nil
		}
	}

	if err := c.store.AppendResponse(ctx, Response{
		ID:           uuid.New().String(),
		Subject:      s,
		QuestionCode: questionCode,
		Value:        value,
		CreatedAt:    c.opts.Now(),
	}); err != nil {
		return Result{}, fmt.Errorf("append response: %w", err)
	}

	deltas, err := c.scoring.Evaluate(ctx, questionCode, value)
	if err != nil {
		return Result{}, err
	}
	if _, err := c.ledger.Append(ctx, s, deltas); err != nil {
		return Result{}, err
	}
	scores, err := c.ledger.Aggregate(ctx, s)
	if err != nil {
		return Result{}, err
	}
	raised, err := c.detector.DetectAndRaise(ctx, s, scores)
	if err != nil {
		return Result{}, err
	}
	d, err := c.branching.Decide(ctx, s, scores, questionCode)
	if err != nil {
		return Result{}, err
	}
	step, err := c.resolve(ctx, s, d, questionCode)
	if err != nil {
		return Result{}, err
	}

	if err := c.commit(ctx, st, step, logging.DecisionEntry{
		Trigger:      logging.TriggerAnswer,
		QuestionCode: questionCode,
		RuleID:       d.RuleID,
	}, scores, raised); err != nil {
		return Result{}, err
	}
	return Result{StepType: step.Type, StepCode: step.Code, RuleID: d.RuleID, Scores: scores, Flags: raised}, nil
}

// emptyAnswer reports a missing answer: nil, an empty string or an empty list.
func emptyAnswer(answer any) bool {
	switch v := answer.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []string:
		return len(v) == 0
	case []any:
		return len(v) == 0
	}
	return false
}

// #endregion submit-answer

// #region complete-intervention

// CompleteIntervention completes a module, applies its boosts and re-branches
// without a triggering question.
func (c *Controller) CompleteIntervention(ctx context.Context, s subject.Key, moduleID string) (res Result, err error) {
	if err := s.Validate(); err != nil {
		return Result{}, err
	}
	if moduleID == "" {
		return Result{}, apperr.Validation("module_id is required")
	}
	ctx, span := c.start(ctx, "CompleteIntervention", s)
	span.SetAttributes(attribute.String("module.id", moduleID))
	defer func() { end(span, err) }()
	defer c.serialize(s)()

	st, err := c.store.FlowState(ctx, s)
	if err != nil {
		return Result{}, fmt.Errorf("read flow state: %w", err)
	}
	if st == nil {
		return Result{}, apperr.NotFound("flow", s.String())
	}
	if st.Status == StatusCompleted {
		return Result{}, ErrFlowCompleted
	}

	done, err := c.lifecycle.Complete(ctx, s, moduleID)
	if err != nil {
		return Result{}, err
	}
	d, err := c.branching.Decide(ctx, s, done.Scores, "")
	if err != nil {
		return Result{}, err
	}
	step, err := c.resolve(ctx, s, d, st.LastQuestion)
	if err != nil {
		return Result{}, err
	}

	if err := c.commit(ctx, st, step, logging.DecisionEntry{
		Trigger:  logging.TriggerIntervention,
		ModuleID: moduleID,
		RuleID:   d.RuleID,
	}, done.Scores, nil); err != nil {
		return Result{}, err
	}
	return Result{StepType: step.Type, StepCode: step.Code, RuleID: d.RuleID, Scores: done.Scores}, nil
}

// #endregion complete-intervention

// #region reads

// InterventionContent returns a module's metadata and ordered content.
func (c *Controller) InterventionContent(ctx context.Context, moduleID string) (intervention.Content, error) {
	if moduleID == "" {
		return intervention.Content{}, apperr.Validation("module_id is required")
	}
	return c.lifecycle.Content(ctx, moduleID)
}

// Question returns a catalog question by code.
func (c *Controller) Question(ctx context.Context, code string) (catalog.Question, error) {
	if code == "" {
		return catalog.Question{}, apperr.Validation("question_code is required")
	}
	return c.catalog.Question(ctx, code)
}

// Scores returns the subject's persisted registers with their labels, sorted by
// metric code. A subject with no registers gets an empty list.
func (c *Controller) Scores(ctx context.Context, s subject.Key) (out []ScoreSummary, err error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	ctx, span := c.start(ctx, "Scores", s)
	defer func() { end(span, err) }()

	regs, err := c.store.ScoreRegisters(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("read score registers: %w", err)
	}
	defs, err := c.catalog.ScoreDefinitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("score definitions: %w", err)
	}
	byCode := make(map[string]catalog.ScoreDefinition, len(defs))
	for _, d := range defs {
		byCode[d.MetricCode] = d
	}

	out = make([]ScoreSummary, 0, len(regs))
	for code, v := range regs {
		sum := ScoreSummary{
			Code:           code,
			Name:           code,
			Value:          v,
			Max:            ledger.DefaultBounds.Max,
			Interpretation: UnknownInterpretation,
		}
		if d, ok := byCode[code]; ok {
			if d.Name != "" {
				sum.Name = d.Name
			}
			sum.Max = d.MaxValue
			sum.Band, sum.Interpretation = d.Interpret(v)
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// #endregion reads

// #region resolve-commit

// resolve turns a branching directive into a concrete step. "next" is
// resolved against after; an intervention target is unlocked and replaced by its module id.
func (c *Controller) resolve(ctx context.Context, s subject.Key, d branching.Directive, after string) (Step, error) {
	switch d.StepType {
	case StepIntervention:
		mod, err := c.lifecycle.Unlock(ctx, s, d.StepCode)
		if err != nil {
			return Step{}, err
		}
		return Step{Type: StepIntervention, Code: mod.ID}, nil
	case StepProtocol:
		return Step{Type: StepProtocol, Code: d.StepCode}, nil
	}

	if after == "" {
		first, ok, err := c.catalog.FirstQuestion(ctx)
		if err != nil {
			return Step{}, fmt.Errorf("first question: %w", err)
		}
		if !ok {
			return Step{Type: StepComplete}, nil
		}
		return Step{Type: StepQuestion, Code: first.Code}, nil
	}
	code, ok, err := branching.NextQuestion(ctx, c.catalog, after)
	if err != nil {
		return Step{}, err
	}
	if !ok {
		return Step{Type: StepComplete}, nil
	}
	return Step{Type: StepQuestion, Code: code}, nil
}

// commit applies the transition, persists it with its audit row and logs the decision.
func (c *Controller) commit(ctx context.Context, st *State, step Step, entry logging.DecisionEntry, scores map[string]int, raised []string) error {
	next, ev, err := Transition(st, Advanced{Step: step, Answered: entry.QuestionCode}, c.opts.Now())
	if err != nil {
		return err
	}
	if err := c.persist(ctx, next, ev); err != nil {
		return err
	}

	entry.Subject = next.Subject
	entry.StepType = string(step.Type)
	entry.StepCode = step.Code
	entry.ScoresJSON, entry.FlagsJSON = logging.Snapshot(scores, raised)
	c.logDecision(ctx, entry)

	log.Printf("[FLOW] %s: %s → %s:%s", next.Subject, entry.Trigger, step.Type, step.Code)
	return nil
}

func (c *Controller) persist(ctx context.Context, st State, ev AuditEvent) error {
	if err := c.store.UpsertFlowState(ctx, st); err != nil {
		return fmt.Errorf("upsert flow state: %w", err)
	}
	if err := c.store.AppendFlowEvent(ctx, ev); err != nil {
		return fmt.Errorf("append flow event: %w", err)
	}
	return nil
}

// logDecision failures are logged and do not fail the request.
func (c *Controller) logDecision(ctx context.Context, entry logging.DecisionEntry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = c.opts.Now()
	}
	if err := c.store.LogDecision(ctx, entry); err != nil {
		log.Printf("[FLOW] [WARN] log decision failed: %v", err)
	}
}

// #endregion resolve-commit
