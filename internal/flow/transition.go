package flow

import (
	"fmt"
	"time"

	"github.com/danielpatrickdp/assessment-engine/internal/apperr"
	"github.com/danielpatrickdp/assessment-engine/internal/subject"
)

// #region errors
var (
	// ErrFlowCompleted is returned for any transition out of a completed flow.
	ErrFlowCompleted = apperr.New(apperr.KindFlowCompleted, "flow already completed")
	// ErrNotStarted is returned when advancing a flow that has no record.
	ErrNotStarted = apperr.New(apperr.KindNotFound, "flow not started")
	// ErrAlreadyStarted is returned when starting a flow that has a record.
	ErrAlreadyStarted = apperr.New(apperr.KindValidation, "flow already started")
)

// #endregion errors

// #region events

// Event drives Transition. It is either Started or Advanced.
type Event interface {
	event()
}

// Started initializes a flow at its first question.
type Started struct {
	Subject       subject.Key
	FlowCode      string
	FirstQuestion string
}

// Advanced commits the next resolved step. Answered is the question whose
// answer produced Step; it is empty after an intervention completion.
type Advanced struct {
	Step     Step
	Answered string
}

func (Started) event()  {}
func (Advanced) event() {}

// #endregion events

// #region transition

// Transition is a pure function from the current state (nil when uninitialized)
// and an event to the next state plus its audit row.
func Transition(current *State, ev Event, now time.Time) (State, AuditEvent, error) {
	switch e := ev.(type) {
	case Started:
		if current != nil {
			return State{}, AuditEvent{}, ErrAlreadyStarted
		}
		if e.FirstQuestion == "" {
			return State{}, AuditEvent{}, apperr.Validation("first question is required")
		}
		next := State{
			Subject:      e.Subject,
			FlowCode:     e.FlowCode,
			Step:         Step{Type: StepQuestion, Code: e.FirstQuestion},
			LastQuestion: e.FirstQuestion,
			Status:       StatusInProgress,
			StartedAt:    now,
			UpdatedAt:    now,
		}
		return next, audit(next, AuditStarted, now), nil

	case Advanced:
		if current == nil {
			return State{}, AuditEvent{}, ErrNotStarted
		}
		if current.Status == StatusCompleted {
			return State{}, AuditEvent{}, ErrFlowCompleted
		}
		if err := validateStep(e.Step); err != nil {
			return State{}, AuditEvent{}, err
		}
		next := *current
		next.Step = e.Step
		next.UpdatedAt = now
		switch e.Step.Type {
		case StepQuestion:
			next.LastQuestion = e.Step.Code
		case StepIntervention, StepProtocol:
			if e.Answered != "" {
				next.LastQuestion = e.Answered
			}
		case StepComplete:
			next.Status = StatusCompleted
			next.CompletedAt = now
		}
		return next, audit(next, AuditEntered, now), nil
	}
	return State{}, AuditEvent{}, fmt.Errorf("unknown flow event %T", ev)
}

func validateStep(s Step) error {
	switch s.Type {
	case StepQuestion, StepIntervention, StepProtocol:
		if s.Code == "" {
			return apperr.Validation(fmt.Sprintf("%s step requires a code", s.Type))
		}
		return nil
	case StepComplete:
		if s.Code != "" {
			return apperr.Validation("COMPLETE step takes no code")
		}
		return nil
	default:
		return apperr.Validation(fmt.Sprintf("unknown step type %q", s.Type))
	}
}

func audit(s State, t AuditType, now time.Time) AuditEvent {
	return AuditEvent{
		Subject:   s.Subject,
		FlowCode:  s.FlowCode,
		StepType:  s.Step.Type,
		StepCode:  s.Step.Code,
		Type:      t,
		CreatedAt: now,
	}
}

// #endregion transition
