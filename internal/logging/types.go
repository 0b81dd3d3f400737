package logging

import (
	"time"

	"github.com/danielpatrickdp/assessment-engine/internal/subject"
)

// #region trigger
// Trigger names what caused a flow decision.
type Trigger string

const (
	TriggerStart        Trigger = "start"
	TriggerAnswer       Trigger = "answer"
	TriggerIntervention Trigger = "intervention"
)

// #endregion trigger

// #region decision-entry
// DecisionEntry is a single row in the decision_log table: why a step was chosen.
type DecisionEntry struct {
	ID           string
	Subject      subject.Key
	Trigger      Trigger
	QuestionCode string
	ModuleID     string
	RuleID       string // empty when branching fell back
	StepType     string
	StepCode     string
	ScoresJSON   string
	FlagsJSON    string // newly raised flags only
	CreatedAt    time.Time
}

// #endregion decision-entry
