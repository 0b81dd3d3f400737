// Package store persists engine state in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/danielpatrickdp/assessment-engine/internal/apperr"
	"github.com/danielpatrickdp/assessment-engine/internal/logging"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS responses (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	session_id     TEXT NOT NULL,
	question_code  TEXT NOT NULL,
	response_value TEXT NOT NULL,
	created_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_responses_subject ON responses(user_id, session_id, question_code);

CREATE TABLE IF NOT EXISTS score_events (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	session_id     TEXT NOT NULL,
	metric_code    TEXT NOT NULL,
	delta          INTEGER NOT NULL,
	source_rule_id TEXT,
	created_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_score_events_subject ON score_events(user_id, session_id);

CREATE TABLE IF NOT EXISTS score_registers (
	user_id     TEXT NOT NULL,
	session_id  TEXT NOT NULL,
	metric_code TEXT NOT NULL,
	value       INTEGER NOT NULL,
	updated_at  TEXT NOT NULL,
	PRIMARY KEY (user_id, session_id, metric_code)
);

CREATE TABLE IF NOT EXISTS flags (
	user_id    TEXT NOT NULL,
	session_id TEXT NOT NULL,
	flag_code  TEXT NOT NULL,
	created_at TEXT NOT NULL,
	UNIQUE (user_id, session_id, flag_code)
);

CREATE TABLE IF NOT EXISTS flow_states (
	user_id       TEXT NOT NULL,
	session_id    TEXT NOT NULL,
	flow_code     TEXT NOT NULL,
	step_type     TEXT NOT NULL,
	step_code     TEXT,
	last_question TEXT,
	status        TEXT NOT NULL,
	started_at    TEXT NOT NULL,
	completed_at  TEXT,
	updated_at    TEXT NOT NULL,
	PRIMARY KEY (user_id, session_id)
);

CREATE TABLE IF NOT EXISTS flow_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    TEXT NOT NULL,
	session_id TEXT NOT NULL,
	flow_code  TEXT NOT NULL,
	step_type  TEXT NOT NULL,
	step_code  TEXT,
	event_type TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS intervention_progress (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	session_id   TEXT NOT NULL,
	module_id    TEXT NOT NULL,
	unlocked     INTEGER NOT NULL DEFAULT 1,
	completed    INTEGER NOT NULL DEFAULT 0,
	unlocked_at  TEXT NOT NULL,
	completed_at TEXT,
	UNIQUE (user_id, session_id, module_id)
);
`

// #endregion schema

// #region store-struct

// Options tunes a Store.
type Options struct {
	// RetryMaxElapsed bounds retries of busy/locked errors. Zero disables retry.
	RetryMaxElapsed time.Duration
}

// DefaultOptions retries busy errors for up to two seconds.
func DefaultOptions() Options {
	return Options{RetryMaxElapsed: 2 * time.Second}
}

// Store manages engine state in SQLite.
type Store struct {
	db   *sql.DB
	opts Options
}

// #endregion store-struct

// #region constructor

// NewStore opens a SQLite database with default options and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	return Open(dbPath, DefaultOptions())
}

// Open opens a SQLite database and runs migrations. ":memory:" pins a single
// connection so every query sees the same database.
func Open(dbPath string, opts Options) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if _, err := db.Exec(logging.Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate decision log: %w", err)
	}
	return &Store{db: db, opts: opts}, nil
}

// #endregion constructor

// #region close

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion close

// #region retry

// isBusy reports whether err is a transient SQLite lock error.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database table is locked")
}

// withRetry runs op, retrying busy errors with exponential backoff.
// Any failure is returned as a Persistence error naming op.
func (s *Store) withRetry(ctx context.Context, name string, op func() error) error {
	var err error
	if s.opts.RetryMaxElapsed <= 0 {
		err = op()
	} else {
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = 10 * time.Millisecond
		bo.MaxElapsedTime = s.opts.RetryMaxElapsed
		attempt := 0
		err = backoff.Retry(func() error {
			attempt++
			err := op()
			if err != nil && isBusy(err) {
				log.Printf("[STORE] %s: busy (attempt %d)", name, attempt)
				return err
			}
			if err != nil {
				return backoff.Permanent(err)
			}
			return nil
		}, backoff.WithContext(bo, ctx))
	}
	if err != nil {
		return apperr.Persistence(name, err)
	}
	return nil
}

func (s *Store) exec(ctx context.Context, name, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := s.withRetry(ctx, name, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	return res, err
}

func (s *Store) query(ctx context.Context, name, query string, args ...any) (*sql.Rows, error) {
	var rows *sql.Rows
	err := s.withRetry(ctx, name, func() error {
		var queryErr error
		rows, queryErr = s.db.QueryContext(ctx, query, args...)
		return queryErr
	})
	return rows, err
}

// queryRow runs scan against a single row. sql.ErrNoRows is returned as is.
func (s *Store) queryRow(ctx context.Context, name string, scan func(*sql.Row) error, query string, args ...any) error {
	var noRows bool
	err := s.withRetry(ctx, name, func() error {
		err := scan(s.db.QueryRowContext(ctx, query, args...))
		if err == sql.ErrNoRows {
			noRows = true
			return nil
		}
		return err
	})
	if noRows {
		return sql.ErrNoRows
	}
	return err
}

// #endregion retry

// #region helpers

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
