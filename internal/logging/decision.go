// Package logging persists the audit trail of flow decisions.
package logging

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/danielpatrickdp/assessment-engine/internal/subject"
	"github.com/google/uuid"
)

// #region schema
// Schema creates the decision_log table.
const Schema = `
CREATE TABLE IF NOT EXISTS decision_log (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	session_id    TEXT NOT NULL,
	trigger_type  TEXT NOT NULL,
	question_code TEXT,
	module_id     TEXT,
	rule_id       TEXT,
	step_type     TEXT NOT NULL,
	step_code     TEXT,
	scores_json   TEXT,
	flags_json    TEXT,
	created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decision_log_subject ON decision_log(user_id, session_id, created_at);
`

// #endregion schema

// #region log-decision

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// LogDecision writes a decision entry to the decision_log table.
func LogDecision(ctx context.Context, db *sql.DB, entry DecisionEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO decision_log (id, user_id, session_id, trigger_type, question_code, module_id, rule_id, step_type, step_code, scores_json, flags_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Subject.UserID,
		entry.Subject.SessionID,
		string(entry.Trigger),
		nullIfEmpty(entry.QuestionCode),
		nullIfEmpty(entry.ModuleID),
		nullIfEmpty(entry.RuleID),
		entry.StepType,
		nullIfEmpty(entry.StepCode),
		nullIfEmpty(entry.ScoresJSON),
		nullIfEmpty(entry.FlagsJSON),
		entry.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}

// #endregion log-decision

// #region list-decisions
// ListDecisions returns a subject's decisions, oldest first.
func ListDecisions(ctx context.Context, db *sql.DB, s subject.Key) ([]DecisionEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, trigger_type, question_code, module_id, rule_id, step_type, step_code, scores_json, flags_json, created_at
		 FROM decision_log WHERE user_id = ? AND session_id = ? ORDER BY created_at, rowid`,
		s.UserID, s.SessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionEntry
	for rows.Next() {
		var e DecisionEntry
		var trigger, createdStr string
		var question, module, rule, code, scores, flagsJSON sql.NullString
		if err := rows.Scan(&e.ID, &trigger, &question, &module, &rule, &e.StepType, &code, &scores, &flagsJSON, &createdStr); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		e.Subject = s
		e.Trigger = Trigger(trigger)
		e.QuestionCode = question.String
		e.ModuleID = module.String
		e.RuleID = rule.String
		e.StepCode = code.String
		e.ScoresJSON = scores.String
		e.FlagsJSON = flagsJSON.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion list-decisions

// #region helpers
// Snapshot serializes scores and newly raised flags for a decision entry.
func Snapshot(scores map[string]int, raised []string) (scoresJSON, flagsJSON string) {
	if len(scores) > 0 {
		if b, err := json.Marshal(scores); err == nil {
			scoresJSON = string(b)
		}
	}
	if len(raised) > 0 {
		if b, err := json.Marshal(raised); err == nil {
			flagsJSON = string(b)
		}
	}
	return scoresJSON, flagsJSON
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
