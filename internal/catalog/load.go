package catalog

import (
	"fmt"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// #region document

// Document is the YAML shape of a catalog file.
type Document struct {
	Questions        []Question        `yaml:"questions"`
	ScoreDefinitions []ScoreDefinition `yaml:"score_definitions"`
	ScoreRules       []ScoreRule       `yaml:"score_rules"`
	BranchingRules   []BranchingRule   `yaml:"branching_rules"`
	Modules          []Module          `yaml:"modules"`
}

// UnmarshalYAML accepts either a scalar expression/flag code or a
// {metric, operator, value} mapping.
func (p *ConditionPayload) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		p.Raw = node.Value
		return nil
	case yaml.MappingNode:
		var raw struct {
			Metric    string  `yaml:"metric"`
			ScoreCode string  `yaml:"score_code"`
			Operator  string  `yaml:"operator"`
			Value     float64 `yaml:"value"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		p.Structured = true
		p.Metric = raw.Metric
		if p.Metric == "" {
			p.Metric = raw.ScoreCode
		}
		p.Operator = raw.Operator
		p.Value = raw.Value
		return nil
	default:
		return fmt.Errorf("line %d: condition must be a string or mapping", node.Line)
	}
}

// UnmarshalYAML decodes a definition and records whether max was given.
func (d *ScoreDefinition) UnmarshalYAML(node *yaml.Node) error {
	type plain ScoreDefinition
	if err := node.Decode((*plain)(d)); err != nil {
		return err
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == "max" {
			d.maxSet = true
		}
	}
	return nil
}

// #endregion document

// #region validation-errors

// ValidationError describes one problem found in a catalog file.
type ValidationError struct {
	File    string
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.File, e.Field, e.Message)
}

// ValidationErrors aggregates catalog problems.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

// #endregion validation-errors

// #region load

// Load reads and validates a catalog YAML file.
func Load(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return parse(data, path)
}

// Parse validates catalog YAML held in memory.
func Parse(data []byte) (*Memory, error) {
	return parse(data, "")
}

func parse(data []byte, source string) (*Memory, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	applyDefaults(&doc)
	if errs := Validate(doc, source); len(errs) > 0 {
		return nil, errs
	}
	warnUnknown(doc)
	return NewMemory(doc), nil
}

// applyDefaults fills normalized option ids and a max of 100 for definitions
// that leave it unset. An unset min decodes to 0.
func applyDefaults(doc *Document) {
	for i := range doc.Questions {
		doc.Questions[i].Options = NormalizeOptions(doc.Questions[i].Options)
	}
	for i := range doc.ScoreDefinitions {
		d := &doc.ScoreDefinitions[i]
		if !d.maxSet {
			d.MaxValue = 100
		}
	}
}

// #endregion load

// #region validate

// Validate checks structural invariants. Unknown condition types and action
// kinds are not errors; they are evaluated as non-matching at runtime.
func Validate(doc Document, source string) ValidationErrors {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{File: source, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	codes := make(map[string]struct{})
	type position struct{ part, key int }
	positions := make(map[position]string)
	for i, q := range doc.Questions {
		field := fmt.Sprintf("questions[%d]", i)
		if q.Code == "" {
			add(field+".code", "is required")
			continue
		}
		if _, dup := codes[q.Code]; dup {
			add(field+".code", "duplicate question code %q", q.Code)
		}
		codes[q.Code] = struct{}{}
		pos := position{q.Part, q.OrderingKey}
		if other, dup := positions[pos]; dup {
			add(field+".order", "question %q shares part %d order %d with %q", q.Code, q.Part, q.OrderingKey, other)
		}
		positions[pos] = q.Code
	}

	metrics := make(map[string]struct{})
	for i, d := range doc.ScoreDefinitions {
		field := fmt.Sprintf("score_definitions[%d]", i)
		if d.MetricCode == "" {
			add(field+".metric", "is required")
			continue
		}
		if _, dup := metrics[d.MetricCode]; dup {
			add(field+".metric", "duplicate metric %q", d.MetricCode)
		}
		metrics[d.MetricCode] = struct{}{}
		if d.MinValue > d.MaxValue {
			add(field, "min %d exceeds max %d", d.MinValue, d.MaxValue)
		}
		for j, r := range d.Ranges {
			if r.Min > r.Max {
				add(fmt.Sprintf("%s.ranges[%d]", field, j), "min %d exceeds max %d", r.Min, r.Max)
			}
			if r.Flag && r.Label == "" {
				add(fmt.Sprintf("%s.ranges[%d].label", field, j), "flaggable range needs a label")
			}
		}
	}

	ruleIDs := make(map[string]struct{})
	for i, r := range doc.ScoreRules {
		field := fmt.Sprintf("score_rules[%d]", i)
		if r.ID == "" {
			add(field+".id", "is required")
		} else if _, dup := ruleIDs[r.ID]; dup {
			add(field+".id", "duplicate rule id %q", r.ID)
		}
		ruleIDs[r.ID] = struct{}{}
		if r.TargetMetric == "" {
			add(field+".metric", "is required")
		}
		if r.SourceQuestionCode == "" && r.ComponentTag == "" {
			add(field, "rule %q needs a question or a component", r.ID)
		}
	}

	branchIDs := make(map[string]struct{})
	for i, r := range doc.BranchingRules {
		field := fmt.Sprintf("branching_rules[%d]", i)
		if r.ID == "" {
			add(field+".id", "is required")
		} else if _, dup := branchIDs[r.ID]; dup {
			add(field+".id", "duplicate rule id %q", r.ID)
		}
		branchIDs[r.ID] = struct{}{}
	}

	moduleIDs := make(map[string]struct{})
	for i, m := range doc.Modules {
		field := fmt.Sprintf("modules[%d]", i)
		if m.ID == "" {
			add(field+".id", "is required")
			continue
		}
		if _, dup := moduleIDs[m.ID]; dup {
			add(field+".id", "duplicate module id %q", m.ID)
		}
		moduleIDs[m.ID] = struct{}{}
	}

	return errs
}

func warnUnknown(doc Document) {
	for _, r := range doc.BranchingRules {
		switch r.ConditionType {
		case ConditionScoreThreshold, ConditionFlagExists, ConditionAlways:
		default:
			log.Printf("[CATALOG] branching rule %s: unknown condition type %q, will never match", r.ID, r.ConditionType)
		}
		switch r.ActionKind {
		case ActionContinue, ActionRouteToIntervention, ActionRouteToModule, ActionRouteToKai, ActionRouteToProtocol:
		default:
			log.Printf("[CATALOG] branching rule %s: unknown action %q, treated as continue", r.ID, r.ActionKind)
		}
	}
}

// #endregion validate
