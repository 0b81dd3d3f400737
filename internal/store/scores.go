package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/danielpatrickdp/assessment-engine/internal/apperr"
	"github.com/danielpatrickdp/assessment-engine/internal/flags"
	"github.com/danielpatrickdp/assessment-engine/internal/ledger"
	"github.com/danielpatrickdp/assessment-engine/internal/subject"
)

// #region score-events

// AppendScoreEvents inserts ledger events in one transaction.
func (s *Store) AppendScoreEvents(ctx context.Context, events []ledger.Event) error {
	if len(events) == 0 {
		return nil
	}
	return s.withRetry(ctx, "append score events", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		for _, e := range events {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO score_events (id, user_id, session_id, metric_code, delta, source_rule_id, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				e.ID, e.Subject.UserID, e.Subject.SessionID, e.Metric, e.Delta,
				nullIfEmpty(e.SourceRuleID), formatTime(e.CreatedAt),
			)
			if err != nil {
				return fmt.Errorf("insert event: %w", err)
			}
		}
		return tx.Commit()
	})
}

// ScoreEvents returns every ledger event for a subject in append order.
func (s *Store) ScoreEvents(ctx context.Context, sub subject.Key) ([]ledger.Event, error) {
	rows, err := s.query(ctx, "read score events",
		`SELECT id, metric_code, delta, source_rule_id, created_at
		 FROM score_events WHERE user_id = ? AND session_id = ? ORDER BY created_at, rowid`,
		sub.UserID, sub.SessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Event
	for rows.Next() {
		e := ledger.Event{Subject: sub}
		var rule sql.NullString
		var created string
		if err := rows.Scan(&e.ID, &e.Metric, &e.Delta, &rule, &created); err != nil {
			return nil, apperr.Persistence("scan score event", err)
		}
		e.SourceRuleID = rule.String
		e.CreatedAt = parseTime(created)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("read score events", err)
	}
	return out, nil
}

// #endregion score-events

// #region score-registers

// UpsertScoreRegisters overwrites the register value of every metric in values.
func (s *Store) UpsertScoreRegisters(ctx context.Context, sub subject.Key, values map[string]int, at time.Time) error {
	metrics := make([]string, 0, len(values))
	for m := range values {
		metrics = append(metrics, m)
	}
	sort.Strings(metrics)

	return s.withRetry(ctx, "upsert score registers", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		for _, m := range metrics {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO score_registers (user_id, session_id, metric_code, value, updated_at)
				 VALUES (?, ?, ?, ?, ?)
				 ON CONFLICT(user_id, session_id, metric_code) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
				sub.UserID, sub.SessionID, m, values[m], formatTime(at),
			)
			if err != nil {
				return fmt.Errorf("upsert register %s: %w", m, err)
			}
		}
		return tx.Commit()
	})
}

// ScoreRegisters returns the persisted register values for a subject.
func (s *Store) ScoreRegisters(ctx context.Context, sub subject.Key) (map[string]int, error) {
	rows, err := s.query(ctx, "read score registers",
		`SELECT metric_code, value FROM score_registers WHERE user_id = ? AND session_id = ?`,
		sub.UserID, sub.SessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var m string
		var v int
		if err := rows.Scan(&m, &v); err != nil {
			return nil, apperr.Persistence("scan score register", err)
		}
		out[m] = v
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("read score registers", err)
	}
	return out, nil
}

// #endregion score-registers

// #region flags

// Flags returns a subject's raised flags, oldest first.
func (s *Store) Flags(ctx context.Context, sub subject.Key) ([]flags.Flag, error) {
	rows, err := s.query(ctx, "read flags",
		`SELECT flag_code, created_at FROM flags WHERE user_id = ? AND session_id = ? ORDER BY created_at, rowid`,
		sub.UserID, sub.SessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []flags.Flag
	for rows.Next() {
		f := flags.Flag{Subject: sub}
		var created string
		if err := rows.Scan(&f.Code, &created); err != nil {
			return nil, apperr.Persistence("scan flag", err)
		}
		f.CreatedAt = parseTime(created)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("read flags", err)
	}
	return out, nil
}

// InsertFlagIfAbsent inserts f unless the subject already has that flag code.
func (s *Store) InsertFlagIfAbsent(ctx context.Context, f flags.Flag) (bool, error) {
	res, err := s.exec(ctx, "insert flag",
		`INSERT INTO flags (user_id, session_id, flag_code, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, session_id, flag_code) DO NOTHING`,
		f.Subject.UserID, f.Subject.SessionID, f.Code, formatTime(f.CreatedAt),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Persistence("insert flag", err)
	}
	return n == 1, nil
}

// #endregion flags
