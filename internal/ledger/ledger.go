// Package ledger keeps a SQLite record of runs and the lifecycle of every job
// in them, so that after a timeout or an interrupt the jobs that finished can
// be told apart from the ones that never started.
package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// State is the recorded state of a job.
type State string

const (
	StatePending    State = "pending"
	StateRunning    State = "running"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
	StateSkipped    State = "skipped"
	StateNotStarted State = "not_started"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	mode        TEXT NOT NULL,
	handlers    INTEGER NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP,
	exit_code   INTEGER,
	run_error   TEXT
);
CREATE TABLE IF NOT EXISTS jobs (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	variable    TEXT NOT NULL,
	state       TEXT NOT NULL,
	output_path TEXT NOT NULL DEFAULT '',
	error_kind  TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	updated_at  TIMESTAMP NOT NULL,
	PRIMARY KEY (run_id, variable)
);
`

// Ledger is a handle on the ledger database.
type Ledger struct {
	db *sqlx.DB
}

// Open opens or creates the ledger at path.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	db, err := sqlx.Connect("sqlite3", "file:"+path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger %s: %w", path, err)
	}
	// Pool workers report concurrently; one connection serializes writes.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Run is one recorded run.
type Run struct {
	ID         string     `db:"id"`
	Mode       string     `db:"mode"`
	Handlers   int        `db:"handlers"`
	StartedAt  time.Time  `db:"started_at"`
	FinishedAt *time.Time `db:"finished_at"`
	ExitCode   *int       `db:"exit_code"`
	RunError   *string    `db:"run_error"`
}

// Job is the recorded state of one job.
type Job struct {
	RunID      string    `db:"run_id"`
	Variable   string    `db:"variable"`
	State      State     `db:"state"`
	OutputPath string    `db:"output_path"`
	ErrorKind  string    `db:"error_kind"`
	Error      string    `db:"error"`
	DurationMS int64     `db:"duration_ms"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// StartRun records a new run and returns its ID.
func (l *Ledger) StartRun(ctx context.Context, mode string, handlers int) (string, error) {
	id := uuid.NewString()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, mode, handlers, started_at) VALUES (?, ?, ?, ?)`,
		id, mode, handlers, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to record run: %w", err)
	}
	return id, nil
}

// FinishRun records the outcome of a run.
func (l *Ledger) FinishRun(ctx context.Context, runID string, exitCode int, runErr error) error {
	var msg *string
	if runErr != nil {
		s := runErr.Error()
		msg = &s
	}
	_, err := l.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, exit_code = ?, run_error = ? WHERE id = ?`,
		time.Now().UTC(), exitCode, msg, runID)
	if err != nil {
		return fmt.Errorf("failed to record run outcome: %w", err)
	}
	return nil
}

// SetJob upserts the state of one job.
func (l *Ledger) SetJob(ctx context.Context, j Job) error {
	j.UpdatedAt = time.Now().UTC()
	_, err := l.db.NamedExecContext(ctx, `
		INSERT INTO jobs (run_id, variable, state, output_path, error_kind, error, duration_ms, updated_at)
		VALUES (:run_id, :variable, :state, :output_path, :error_kind, :error, :duration_ms, :updated_at)
		ON CONFLICT (run_id, variable) DO UPDATE SET
			state = excluded.state,
			output_path = excluded.output_path,
			error_kind = excluded.error_kind,
			error = excluded.error,
			duration_ms = excluded.duration_ms,
			updated_at = excluded.updated_at
	`, j)
	if err != nil {
		return fmt.Errorf("failed to record job %s: %w", j.Variable, err)
	}
	return nil
}

// Jobs returns the jobs of a run ordered by variable name.
func (l *Ledger) Jobs(ctx context.Context, runID string) ([]Job, error) {
	var jobs []Job
	err := l.db.SelectContext(ctx, &jobs,
		`SELECT run_id, variable, state, output_path, error_kind, error, duration_ms, updated_at
		 FROM jobs WHERE run_id = ? ORDER BY variable`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs of run %s: %w", runID, err)
	}
	return jobs, nil
}

// Runs returns the most recent runs first. A limit of zero returns all.
func (l *Ledger) Runs(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, mode, handlers, started_at, finished_at, exit_code, run_error FROM runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	var runs []Run
	if err := l.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// GetRun returns one run.
func (l *Ledger) GetRun(ctx context.Context, runID string) (*Run, error) {
	var r Run
	err := l.db.GetContext(ctx, &r,
		`SELECT id, mode, handlers, started_at, finished_at, exit_code, run_error FROM runs WHERE id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	return &r, nil
}
