// Package runlog keeps an audit trail of indexing runs in PostgreSQL. The
// index itself is never persisted; only what each run did.
package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/pkg/postgres"
	"github.com/hashicorp/go-multierror"
)

const schema = `
CREATE TABLE IF NOT EXISTS index_runs (
    run_id          UUID PRIMARY KEY,
    root            TEXT NOT NULL,
    started_at      TIMESTAMPTZ NOT NULL,
    elapsed_seconds DOUBLE PRECISION NOT NULL,
    subtrees        INTEGER NOT NULL,
    files_indexed   BIGINT NOT NULL,
    files_failed    BIGINT NOT NULL,
    outcome         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS index_runs_started_at ON index_runs (started_at DESC);
CREATE TABLE IF NOT EXISTS index_run_errors (
    run_id  UUID NOT NULL REFERENCES index_runs (run_id) ON DELETE CASCADE,
    seq     INTEGER NOT NULL,
    message TEXT NOT NULL,
    PRIMARY KEY (run_id, seq)
);`

// Run is one stored indexing run.
type Run struct {
	RunID          string    `json:"run_id"`
	Root           string    `json:"root"`
	StartedAt      time.Time `json:"started_at"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	Subtrees       int       `json:"subtrees"`
	FilesIndexed   int64     `json:"files_indexed"`
	FilesFailed    int64     `json:"files_failed"`
	Outcome        string    `json:"outcome"`
	Errors         []string  `json:"errors,omitempty"`
}

// Store reads and writes index_runs.
type Store struct {
	client *postgres.Client
	logger *slog.Logger
}

func NewStore(client *postgres.Client) *Store {
	return &Store{
		client: client,
		logger: slog.Default().With("component", "runlog"),
	}
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.client.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating runlog schema: %w", err)
	}
	return nil
}

// RecordRun stores report and its file errors in one transaction.
func (s *Store) RecordRun(ctx context.Context, report *indexer.RunReport) error {
	messages := errorMessages(report.FileErrors)
	err := s.client.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO index_runs
			    (run_id, root, started_at, elapsed_seconds, subtrees, files_indexed, files_failed, outcome)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			report.RunID,
			report.Root,
			report.StartedAt.UTC(),
			report.Elapsed.Seconds(),
			report.Subtrees,
			report.FilesIndexed,
			report.FilesFailed,
			report.Outcome(),
		)
		if err != nil {
			return fmt.Errorf("inserting run %s: %w", report.RunID, err)
		}
		if len(messages) == 0 {
			return nil
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO index_run_errors (run_id, seq, message) VALUES ($1, $2, $3)`)
		if err != nil {
			return fmt.Errorf("preparing error insert: %w", err)
		}
		defer stmt.Close()
		for i, msg := range messages {
			if _, err := stmt.ExecContext(ctx, report.RunID, i, msg); err != nil {
				return fmt.Errorf("inserting error %d of run %s: %w", i, report.RunID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Debug("run recorded", "run_id", report.RunID, "errors", len(messages))
	return nil
}

// Recent returns the latest limit runs, newest first, with their errors.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.client.DB.QueryContext(ctx, `
		SELECT run_id, root, started_at, elapsed_seconds, subtrees, files_indexed, files_failed, outcome
		FROM index_runs
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0, limit)
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.RunID, &r.Root, &r.StartedAt, &r.ElapsedSeconds, &r.Subtrees, &r.FilesIndexed, &r.FilesFailed, &r.Outcome); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	for i := range runs {
		msgs, err := s.errorsFor(ctx, runs[i].RunID)
		if err != nil {
			return nil, err
		}
		runs[i].Errors = msgs
	}
	return runs, nil
}

func (s *Store) errorsFor(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.client.DB.QueryContext(ctx,
		`SELECT message FROM index_run_errors WHERE run_id = $1 ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying errors of run %s: %w", runID, err)
	}
	defer rows.Close()
	var msgs []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("scanning error of run %s: %w", runID, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// errorMessages flattens a multierror, or any single error, to strings.
func errorMessages(err error) []string {
	if err == nil {
		return nil
	}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		msgs := make([]string, 0, len(merr.Errors))
		for _, e := range merr.Errors {
			msgs = append(msgs, e.Error())
		}
		return msgs
	}
	return []string{err.Error()}
}
