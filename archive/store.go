// Package archive stores finished agent runs in SQLite.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/martinemde/mcpagent/agentloop"
	"github.com/martinemde/mcpagent/internal/errs"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	status      TEXT NOT NULL,
	iterations  INTEGER NOT NULL,
	tool_calls  INTEGER NOT NULL,
	query       TEXT NOT NULL,
	content     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

CREATE TABLE IF NOT EXISTS messages (
	run_id         TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq            INTEGER NOT NULL,
	role           TEXT NOT NULL,
	content        TEXT NOT NULL,
	invocations    TEXT,
	correlation_id TEXT,
	is_error       INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, seq)
);
`

// Run is an archived run summary.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     agentloop.Status
	Iterations int
	ToolCalls  int
	Query      string
	Content    string
}

// Store is a SQLite-backed run archive. It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the archive at path, creating its directory.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errs.Wrap(err, errs.CodeArchiveOpenFailure, "create archive directory", "dir", dir)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeArchiveOpenFailure, "open archive", "path", path)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errs.Wrap(err, errs.CodeArchiveOpenFailure, "ping archive", "path", path)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errs.Wrap(err, errs.CodeArchiveOpenFailure, "create archive schema", "path", path)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes the run and its transcript in one transaction. Saving a run ID
// twice replaces the earlier record.
func (s *Store) Save(ctx context.Context, res *agentloop.Result) error {
	if res == nil || res.RunID == "" {
		return errs.New(errs.CodeArchiveInvalidInput, "result has no run id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(err, errs.CodeArchiveSaveFailure, "begin transaction", "run", res.RunID)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE run_id = ?`, res.RunID); err != nil {
		return errs.Wrap(err, errs.CodeArchiveSaveFailure, "clear messages", "run", res.RunID)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (id, started_at, finished_at, status, iterations, tool_calls, query, content)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, res.StartedAt.UnixMilli(), res.FinishedAt.UnixMilli(), string(res.Status),
		res.Iterations, res.ToolCalls, res.Query(), res.Content)
	if err != nil {
		return errs.Wrap(err, errs.CodeArchiveSaveFailure, "insert run", "run", res.RunID)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (run_id, seq, role, content, invocations, correlation_id, is_error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errs.Wrap(err, errs.CodeArchiveSaveFailure, "prepare message insert", "run", res.RunID)
	}
	defer stmt.Close()

	for i, m := range res.Transcript {
		var invocations sql.NullString
		if len(m.Invocations) > 0 {
			data, err := json.Marshal(m.Invocations)
			if err != nil {
				return errs.Wrap(err, errs.CodeArchiveSaveFailure, "encode invocations", "run", res.RunID, "seq", i)
			}
			invocations = sql.NullString{String: string(data), Valid: true}
		}
		correlation := sql.NullString{String: m.CorrelationID, Valid: m.CorrelationID != ""}
		if _, err := stmt.ExecContext(ctx, res.RunID, i, string(m.Role), m.Content, invocations, correlation, m.IsError); err != nil {
			return errs.Wrap(err, errs.CodeArchiveSaveFailure, "insert message", "run", res.RunID, "seq", i)
		}
	}

	if err := tx.Commit(); err != nil {
		return errs.Wrap(err, errs.CodeArchiveSaveFailure, "commit", "run", res.RunID)
	}
	s.logger.DebugContext(ctx, "archived run", "run", res.RunID, "messages", len(res.Transcript))
	return nil
}

// Get loads a run and its transcript.
func (s *Store) Get(ctx context.Context, id string) (*Run, []agentloop.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, status, iterations, tool_calls, query, content
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, errs.New(errs.CodeArchiveNotFound, "run not found", "run", id)
	}
	if err != nil {
		return nil, nil, errs.Wrap(err, errs.CodeArchiveQueryFailure, "load run", "run", id)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, invocations, correlation_id, is_error
		FROM messages WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, nil, errs.Wrap(err, errs.CodeArchiveQueryFailure, "load messages", "run", id)
	}
	defer rows.Close()

	var msgs []agentloop.Message
	for rows.Next() {
		var (
			m           agentloop.Message
			role        string
			invocations sql.NullString
			correlation sql.NullString
		)
		if err := rows.Scan(&role, &m.Content, &invocations, &correlation, &m.IsError); err != nil {
			return nil, nil, errs.Wrap(err, errs.CodeArchiveQueryFailure, "scan message", "run", id)
		}
		m.Role = agentloop.Role(role)
		m.CorrelationID = correlation.String
		if invocations.Valid {
			if err := json.Unmarshal([]byte(invocations.String), &m.Invocations); err != nil {
				return nil, nil, errs.Wrap(err, errs.CodeArchiveQueryFailure, "decode invocations", "run", id)
			}
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, errs.Wrap(err, errs.CodeArchiveQueryFailure, "iterate messages", "run", id)
	}
	return run, msgs, nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, status, iterations, tool_calls, query, content
		FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeArchiveQueryFailure, "list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, errs.Wrap(err, errs.CodeArchiveQueryFailure, "scan run")
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(err, errs.CodeArchiveQueryFailure, "iterate runs")
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r                 Run
		started, finished int64
		status            string
	)
	if err := sc.Scan(&r.ID, &started, &finished, &status, &r.Iterations, &r.ToolCalls, &r.Query, &r.Content); err != nil {
		return nil, err
	}
	r.StartedAt = time.UnixMilli(started)
	r.FinishedAt = time.UnixMilli(finished)
	r.Status = agentloop.Status(status)
	return &r, nil
}
