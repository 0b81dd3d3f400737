package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/danielpatrickdp/assessment-engine/internal/apperr"
	"github.com/danielpatrickdp/assessment-engine/internal/intervention"
	"github.com/danielpatrickdp/assessment-engine/internal/subject"
)

// #region progress

const progressColumns = `id, module_id, unlocked, completed, unlocked_at, completed_at`

func scanProgress(sub subject.Key, scan func(dest ...any) error) (intervention.Progress, error) {
	p := intervention.Progress{Subject: sub}
	var unlocked, completed int
	var unlockedAt string
	var completedAt sql.NullString
	if err := scan(&p.ID, &p.ModuleID, &unlocked, &completed, &unlockedAt, &completedAt); err != nil {
		return intervention.Progress{}, err
	}
	p.Unlocked = unlocked == 1
	p.Completed = completed == 1
	p.UnlockedAt = parseTime(unlockedAt)
	if completedAt.Valid {
		p.CompletedAt = parseTime(completedAt.String)
	}
	return p, nil
}

// Progress returns the (subject, module) progress row, or nil if none exists.
func (s *Store) Progress(ctx context.Context, sub subject.Key, moduleID string) (*intervention.Progress, error) {
	var p intervention.Progress
	err := s.queryRow(ctx, "read progress", func(row *sql.Row) error {
		var err error
		p, err = scanProgress(sub, row.Scan)
		return err
	}, `SELECT `+progressColumns+` FROM intervention_progress WHERE user_id = ? AND session_id = ? AND module_id = ?`,
		sub.UserID, sub.SessionID, moduleID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// InsertProgressIfAbsent inserts p unless a row for (subject, module) exists.
func (s *Store) InsertProgressIfAbsent(ctx context.Context, p intervention.Progress) (bool, error) {
	res, err := s.exec(ctx, "insert progress",
		`INSERT INTO intervention_progress (id, user_id, session_id, module_id, unlocked, completed, unlocked_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, session_id, module_id) DO NOTHING`,
		p.ID, p.Subject.UserID, p.Subject.SessionID, p.ModuleID,
		boolInt(p.Unlocked), boolInt(p.Completed), formatTime(p.UnlockedAt), nullTime(p.CompletedAt),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Persistence("insert progress", err)
	}
	return n == 1, nil
}

// MarkProgressCompleted completes an uncompleted row. It reports false when the
// row is missing or was already completed, leaving the first timestamp intact.
func (s *Store) MarkProgressCompleted(ctx context.Context, sub subject.Key, moduleID string, at time.Time) (bool, error) {
	res, err := s.exec(ctx, "mark progress completed",
		`UPDATE intervention_progress SET completed = 1, completed_at = ?
		 WHERE user_id = ? AND session_id = ? AND module_id = ? AND completed = 0`,
		formatTime(at), sub.UserID, sub.SessionID, moduleID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Persistence("mark progress completed", err)
	}
	return n == 1, nil
}

// ListProgress returns every progress row for a subject.
func (s *Store) ListProgress(ctx context.Context, sub subject.Key) ([]intervention.Progress, error) {
	rows, err := s.query(ctx, "list progress",
		`SELECT `+progressColumns+` FROM intervention_progress WHERE user_id = ? AND session_id = ? ORDER BY unlocked_at, rowid`,
		sub.UserID, sub.SessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []intervention.Progress
	for rows.Next() {
		p, err := scanProgress(sub, rows.Scan)
		if err != nil {
			return nil, apperr.Persistence("scan progress", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("list progress", err)
	}
	return out, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// #endregion progress
