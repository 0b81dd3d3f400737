package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/danielpatrickdp/assessment-engine/internal/apperr"
	"github.com/danielpatrickdp/assessment-engine/internal/flow"
	"github.com/danielpatrickdp/assessment-engine/internal/logging"
	"github.com/danielpatrickdp/assessment-engine/internal/subject"
)

var _ flow.Store = (*Store)(nil)

// #region responses

// AppendResponse inserts one immutable answer submission.
func (s *Store) AppendResponse(ctx context.Context, r flow.Response) error {
	_, err := s.exec(ctx, "append response",
		`INSERT INTO responses (id, user_id, session_id, question_code, response_value, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.Subject.UserID, r.Subject.SessionID, r.QuestionCode, r.Value, formatTime(r.CreatedAt),
	)
	return err
}

// CountResponses counts every stored submission for a subject.
func (s *Store) CountResponses(ctx context.Context, sub subject.Key) (int, error) {
	var n int
	err := s.queryRow(ctx, "count responses", func(row *sql.Row) error {
		return row.Scan(&n)
	}, `SELECT COUNT(*) FROM responses WHERE user_id = ? AND session_id = ?`, sub.UserID, sub.SessionID)
	return n, err
}

// HasResponse reports whether the subject already answered questionCode.
func (s *Store) HasResponse(ctx context.Context, sub subject.Key, questionCode string) (bool, error) {
	var n int
	err := s.queryRow(ctx, "check response", func(row *sql.Row) error {
		return row.Scan(&n)
	}, `SELECT COUNT(*) FROM responses WHERE user_id = ? AND session_id = ? AND question_code = ?`,
		sub.UserID, sub.SessionID, questionCode)
	return n > 0, err
}

// ListResponses returns a subject's submissions in order.
func (s *Store) ListResponses(ctx context.Context, sub subject.Key) ([]flow.Response, error) {
	rows, err := s.query(ctx, "list responses",
		`SELECT id, question_code, response_value, created_at
		 FROM responses WHERE user_id = ? AND session_id = ? ORDER BY created_at, rowid`,
		sub.UserID, sub.SessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []flow.Response
	for rows.Next() {
		r := flow.Response{Subject: sub}
		var created string
		if err := rows.Scan(&r.ID, &r.QuestionCode, &r.Value, &created); err != nil {
			return nil, apperr.Persistence("scan response", err)
		}
		r.CreatedAt = parseTime(created)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("list responses", err)
	}
	return out, nil
}

// #endregion responses

// #region flow-state

// FlowState returns the subject's flow record, or nil if none exists.
func (s *Store) FlowState(ctx context.Context, sub subject.Key) (*flow.State, error) {
	st := flow.State{Subject: sub}
	var stepType, status, started, updated string
	var code, last, completed sql.NullString
	err := s.queryRow(ctx, "read flow state", func(row *sql.Row) error {
		return row.Scan(&st.FlowCode, &stepType, &code, &last, &status, &started, &completed, &updated)
	}, `SELECT flow_code, step_type, step_code, last_question, status, started_at, completed_at, updated_at
		FROM flow_states WHERE user_id = ? AND session_id = ?`, sub.UserID, sub.SessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st.Step = flow.Step{Type: flow.StepType(stepType), Code: code.String}
	st.LastQuestion = last.String
	st.Status = flow.Status(status)
	st.StartedAt = parseTime(started)
	if completed.Valid {
		st.CompletedAt = parseTime(completed.String)
	}
	st.UpdatedAt = parseTime(updated)
	return &st, nil
}

// UpsertFlowState creates or overwrites the subject's flow record.
func (s *Store) UpsertFlowState(ctx context.Context, st flow.State) error {
	_, err := s.exec(ctx, "upsert flow state",
		`INSERT INTO flow_states (user_id, session_id, flow_code, step_type, step_code, last_question, status, started_at, completed_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, session_id) DO UPDATE SET
			flow_code = excluded.flow_code,
			step_type = excluded.step_type,
			step_code = excluded.step_code,
			last_question = excluded.last_question,
			status = excluded.status,
			completed_at = excluded.completed_at,
			updated_at = excluded.updated_at`,
		st.Subject.UserID, st.Subject.SessionID, st.FlowCode, string(st.Step.Type),
		nullIfEmpty(st.Step.Code), nullIfEmpty(st.LastQuestion), string(st.Status),
		formatTime(st.StartedAt), nullTime(st.CompletedAt), formatTime(st.UpdatedAt),
	)
	return err
}

// AppendFlowEvent inserts one audit row.
func (s *Store) AppendFlowEvent(ctx context.Context, ev flow.AuditEvent) error {
	_, err := s.exec(ctx, "append flow event",
		`INSERT INTO flow_events (user_id, session_id, flow_code, step_type, step_code, event_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.Subject.UserID, ev.Subject.SessionID, ev.FlowCode, string(ev.StepType),
		nullIfEmpty(ev.StepCode), string(ev.Type), formatTime(ev.CreatedAt),
	)
	return err
}

// FlowEvents returns a subject's audit rows in order.
func (s *Store) FlowEvents(ctx context.Context, sub subject.Key) ([]flow.AuditEvent, error) {
	rows, err := s.query(ctx, "read flow events",
		`SELECT flow_code, step_type, step_code, event_type, created_at
		 FROM flow_events WHERE user_id = ? AND session_id = ? ORDER BY id`,
		sub.UserID, sub.SessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []flow.AuditEvent
	for rows.Next() {
		ev := flow.AuditEvent{Subject: sub}
		var stepType, evType, created string
		var code sql.NullString
		if err := rows.Scan(&ev.FlowCode, &stepType, &code, &evType, &created); err != nil {
			return nil, apperr.Persistence("scan flow event", err)
		}
		ev.StepType = flow.StepType(stepType)
		ev.StepCode = code.String
		ev.Type = flow.AuditType(evType)
		ev.CreatedAt = parseTime(created)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("read flow events", err)
	}
	return out, nil
}

// #endregion flow-state

// #region decisions

// LogDecision writes a decision entry through the logging package.
func (s *Store) LogDecision(ctx context.Context, entry logging.DecisionEntry) error {
	return s.withRetry(ctx, "log decision", func() error {
		return logging.LogDecision(ctx, s.db, entry)
	})
}

// Decisions returns a subject's decision log.
func (s *Store) Decisions(ctx context.Context, sub subject.Key) ([]logging.DecisionEntry, error) {
	out, err := logging.ListDecisions(ctx, s.db, sub)
	if err != nil {
		return nil, apperr.Persistence("list decisions", err)
	}
	return out, nil
}

// #endregion decisions
