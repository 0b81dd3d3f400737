package flow

import (
	"time"

	"github.com/danielpatrickdp/assessment-engine/internal/branching"
	"github.com/danielpatrickdp/assessment-engine/internal/subject"
)

// #region step

// StepType is the closed set of step kinds.
type StepType = branching.StepType

const (
	StepQuestion     = branching.StepQuestion
	StepIntervention = branching.StepIntervention
	StepProtocol     = branching.StepProtocol
	StepComplete     = branching.StepComplete
)

// Step is a committed position in the flow. Code is empty for COMPLETE.
type Step struct {
	Type StepType
	Code string
}

// #endregion step

// #region state

// Status of a flow run.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// State is the per-subject flow record. LastQuestion is the question "next"
// resolves against after a detour: the current QUESTION step, or the answered
// question that routed the subject away.
type State struct {
	Subject      subject.Key
	FlowCode     string
	Step         Step
	LastQuestion string
	Status       Status
	StartedAt    time.Time
	CompletedAt  time.Time
	UpdatedAt    time.Time
}

// #endregion state

// #region events

// AuditType is the kind of flow audit row.
type AuditType string

const (
	AuditStarted AuditType = "started"
	AuditEntered AuditType = "entered"
)

// AuditEvent is one append-only flow_events row.
type AuditEvent struct {
	Subject   subject.Key
	FlowCode  string
	StepType  StepType
	StepCode  string
	Type      AuditType
	CreatedAt time.Time
}

// Response is one immutable answer submission.
type Response struct {
	ID           string
	Subject      subject.Key
	QuestionCode string
	Value        string
	CreatedAt    time.Time
}

// #endregion events

// #region results

// Progress is returned by GetState. Error is set when the catalog has no questions.
type Progress struct {
	StepType        StepType
	StepCode        string
	ProgressPercent int
	Error           string
}

// Result is the step directive returned after an answer or a completion.
type Result struct {
	StepType StepType
	StepCode string
	RuleID   string
	Scores   map[string]int
	Flags    []string
}

// ScoreSummary is one metric's register value joined with its definition.
// Name falls back to Code and Interpretation to UnknownInterpretation when the
// metric has no definition.
type ScoreSummary struct {
	Code           string
	Name           string
	Value          int
	Max            int
	Band           string
	Interpretation string
}

// UnknownInterpretation labels registers without a score definition.
const UnknownInterpretation = "Unknown"

// #endregion results
