package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// #region fixture-types

// Op is a scenario step operation.
type Op string

const (
	OpState    Op = "state"
	OpAnswer   Op = "answer"
	OpComplete Op = "complete"
)

// Scenario is a scripted session replayed against an engine.
type Scenario struct {
	Description string `json:"description" yaml:"description"`
	User        string `json:"user" yaml:"user"`
	Session     string `json:"session" yaml:"session"`
	Steps       []Step `json:"steps" yaml:"steps"`
}

// Step is one request plus the outcome it should produce.
type Step struct {
	Op           Op     `json:"op" yaml:"op"`
	QuestionCode string `json:"question_code,omitempty" yaml:"question_code,omitempty"`
	Answer       any    `json:"answer,omitempty" yaml:"answer,omitempty"`
	ModuleID     string `json:"module_id,omitempty" yaml:"module_id,omitempty"`
	Expect       Expect `json:"expect" yaml:"expect"`
}

// Expect lists the checked parts of a step outcome. Zero fields are not checked,
// except StepCode which is compared whenever StepType is set.
type Expect struct {
	StepType string         `json:"step_type,omitempty" yaml:"step_type,omitempty"`
	StepCode string         `json:"step_code,omitempty" yaml:"step_code,omitempty"`
	Scores   map[string]int `json:"scores,omitempty" yaml:"scores,omitempty"`
	// Flags, when non-nil, must equal the newly raised flags exactly.
	Flags    []string `json:"flags,omitempty" yaml:"flags,omitempty"`
	Progress *int     `json:"progress,omitempty" yaml:"progress,omitempty"`
	// Error is the expected apperr kind, e.g. FLOW_COMPLETED.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadScenario reads a scenario from a .json file or from YAML otherwise.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	var sc Scenario
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &sc)
	} else {
		err = yaml.Unmarshal(data, &sc)
	}
	if err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &sc, nil
}

// Validate checks that every step names a known op and its required field.
func (sc Scenario) Validate() error {
	if len(sc.Steps) == 0 {
		return fmt.Errorf("no steps")
	}
	for i, st := range sc.Steps {
		switch st.Op {
		case OpState:
		case OpAnswer:
			if st.QuestionCode == "" {
				return fmt.Errorf("step %d: answer requires question_code", i)
			}
		case OpComplete:
			if st.ModuleID == "" {
				return fmt.Errorf("step %d: complete requires module_id", i)
			}
		default:
			return fmt.Errorf("step %d: unknown op %q", i, st.Op)
		}
	}
	return nil
}

// Marshal renders sc as YAML.
func (sc Scenario) Marshal() ([]byte, error) {
	return yaml.Marshal(sc)
}

// #endregion fixture-loader
