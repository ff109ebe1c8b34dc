// Package history keeps a sqlite journal of backup and init runs.
package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	// SQLite driver for database/sql
	_ "modernc.org/sqlite"

	"github.com/datenknoten/restic-orchestrator/internal/errors"
	"github.com/datenknoten/restic-orchestrator/internal/lifecycle"
	"github.com/datenknoten/restic-orchestrator/internal/util"
)

// FileName is the journal's name next to the config file.
const FileName = "history.db"

// maxStderr bounds how much stderr is kept per step.
const maxStderr = 4096

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		hosts INTEGER NOT NULL,
		failed_hosts INTEGER NOT NULL,
		error_text TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS steps (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		host TEXT NOT NULL,
		seq INTEGER NOT NULL,
		name TEXT NOT NULL,
		command TEXT NOT NULL,
		return_code INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		stderr TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_steps_run ON steps(run_id)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
}

// Store reads and writes the journal.
type Store struct {
	db     *sql.DB
	masker *util.Masker
}

// Option configures a Store.
type Option func(*Store)

// WithMasker hides secrets in recorded stderr and run errors. Commands are
// recorded as the lifecycle already masked them.
func WithMasker(m *util.Masker) Option {
	return func(s *Store) {
		s.masker = m
	}
}

// Open opens (creating if needed) the journal at path.
func Open(path string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrHistory,
			"Can't create the history directory",
			"Check permissions, or pass --no-history")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrHistory,
			"Can't open the history database at "+path,
			"Pass --history with another path, or --no-history")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.WrapWithCode(err, errors.ErrHistory,
			"Can't open the history database at "+path,
			"Pass --history with another path, or --no-history")
	}

	s, err := New(db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database and applies migrations.
func New(db *sql.DB, opts ...Option) (*Store, error) {
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrHistory,
				"Can't prepare the history database",
				"Delete the history file to start a fresh journal")
		}
	}
	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores one run and its reports, returning the run ID. runErr is the
// error that ended the run early, if any.
func (s *Store) Record(ctx context.Context, mode lifecycle.Mode, started time.Time, duration time.Duration,
	reports []*lifecycle.Report, runErr error) (string, error) {
	id := uuid.NewString()

	failed := 0
	for _, r := range reports {
		if r.Failed() {
			failed++
		}
	}
	errText := ""
	if runErr != nil {
		errText = s.masker.Mask(runErr.Error())
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrHistory, "Can't write run history", "")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs(id, mode, started_at, duration_ms, hosts, failed_hosts, error_text) VALUES (?,?,?,?,?,?,?)`,
		id, string(mode), started.UnixMilli(), duration.Milliseconds(), len(reports), failed, errText); err != nil {
		return "", errors.WrapWithCode(err, errors.ErrHistory, "Can't write run history", "")
	}

	for _, r := range reports {
		for i, st := range r.Steps {
			stderr := tail(s.masker.Mask(st.Result.Stderr), maxStderr)
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO steps(run_id, host, seq, name, command, return_code, skipped, duration_ms, stderr) VALUES (?,?,?,?,?,?,?,?,?)`,
				id, r.Host, i, st.Name, st.Command, st.Result.ReturnCode, boolToInt(st.Skipped), st.Duration.Milliseconds(), stderr); err != nil {
				return "", errors.WrapWithCode(err, errors.ErrHistory, "Can't write run history", "")
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", errors.WrapWithCode(err, errors.ErrHistory, "Can't write run history", "")
	}
	return id, nil
}

// tail keeps at most the last n bytes of s, starting on a rune boundary.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}

// Run summarizes one recorded run.
type Run struct {
	ID          string
	Mode        string
	Started     time.Time
	Duration    time.Duration
	Hosts       int
	FailedHosts int
	FailedSteps int
	Error       string
}

// Recent returns the latest runs, newest first. limit <= 0 means 20.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.mode, r.started_at, r.duration_ms, r.hosts, r.failed_hosts, r.error_text,
			(SELECT COUNT(*) FROM steps st WHERE st.run_id = r.id AND st.skipped = 0 AND st.return_code != 0)
		FROM runs r
		ORDER BY r.started_at DESC, r.rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrHistory, "Can't read run history", "")
	}
	defer rows.Close()

	var list []Run
	for rows.Next() {
		var r Run
		var startedMs, duration int64
		if err := rows.Scan(&r.ID, &r.Mode, &startedMs, &duration, &r.Hosts, &r.FailedHosts, &r.Error, &r.FailedSteps); err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrHistory, "Can't read run history", "")
		}
		r.Started = time.UnixMilli(startedMs)
		r.Duration = time.Duration(duration) * time.Millisecond
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrHistory, "Can't read run history", "")
	}
	return list, nil
}

// Resolve expands a run ID prefix, as printed by the history table, to the
// full run ID.
func (s *Store) Resolve(ctx context.Context, prefix string) (string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM runs WHERE substr(id, 1, ?) = ? ORDER BY started_at DESC LIMIT 2`, len(prefix), prefix)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrHistory, "Can't read run history", "")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", errors.WrapWithCode(err, errors.ErrHistory, "Can't read run history", "")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", errors.WrapWithCode(err, errors.ErrHistory, "Can't read run history", "")
	}

	switch {
	case prefix == "" || len(ids) == 0:
		return "", errors.New(errors.ErrHistory, "No run matches "+prefix,
			"List recent runs with 'restic-orchestrator history'")
	case len(ids) > 1:
		return "", errors.New(errors.ErrHistory, "More than one run matches "+prefix,
			"Use more characters of the run ID")
	}
	return ids[0], nil
}

// Step is one recorded remote command.
type Step struct {
	Host       string
	Name       string
	Command    string
	ReturnCode int
	Skipped    bool
	Duration   time.Duration
	Stderr     string
}

// Steps returns the steps of a run in execution order.
func (s *Store) Steps(ctx context.Context, runID string) ([]Step, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT host, name, command, return_code, skipped, duration_ms, stderr
		FROM steps WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrHistory, "Can't read run history", "")
	}
	defer rows.Close()

	var list []Step
	for rows.Next() {
		var (
			st       Step
			skipped  int
			duration int64
		)
		if err := rows.Scan(&st.Host, &st.Name, &st.Command, &st.ReturnCode, &skipped, &duration, &st.Stderr); err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrHistory, "Can't read run history", "")
		}
		st.Skipped = skipped != 0
		st.Duration = time.Duration(duration) * time.Millisecond
		list = append(list, st)
	}
	return list, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
