package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"ecommerce-analytics-pipeline/internal/model"
)

// ErrRunNotFound is returned for unknown run ids.
var ErrRunNotFound = errors.New("run not found")

// RunSummary is one line of the run history.
type RunSummary struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Trigger   string    `json:"trigger"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RunRecord is a run with its persisted result, if finished.
type RunRecord struct {
	RunSummary
	Result *model.PipelineResult `json:"result,omitempty"`
	Errors []string              `json:"errors"`
}

// RunStore keeps pipeline run history in SQLite.
type RunStore struct {
	db *sql.DB
}

// OpenRunStore opens the run history database and creates its tables.
func OpenRunStore(ctx context.Context, path string) (*RunStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	runTable := `
	CREATE TABLE IF NOT EXISTS pipeline_runs (
		id TEXT PRIMARY KEY,
		status TEXT,
		triggered_by TEXT,
		result TEXT,
		created_at DATETIME,
		updated_at DATETIME
	);
	`
	errorTable := `
	CREATE TABLE IF NOT EXISTS run_errors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT,
		error_message TEXT,
		created_at DATETIME
	);
	`
	for _, ddl := range []string{runTable, errorTable} {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &RunStore{db: db}, nil
}

// CreateRun stores a new run in status running.
func (s *RunStore) CreateRun(ctx context.Context, runID, trigger string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, status, triggered_by, result, created_at, updated_at) VALUES (?, ?, ?, NULL, ?, ?)`,
		runID, model.StatusRunning, trigger, now, now)
	return err
}

// FinishRun stores the final result of a run together with its errors.
func (s *RunStore) FinishRun(ctx context.Context, result *model.PipelineResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `UPDATE pipeline_runs SET status = ?, result = ?, updated_at = ? WHERE id = ?`,
		result.Status, string(resultJSON), now, result.RunID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	for _, msg := range result.Errors {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_errors (run_id, error_message, created_at) VALUES (?, ?, ?)`,
			result.RunID, msg, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SaveRunError records an error that happened outside the pipeline itself.
func (s *RunStore) SaveRunError(ctx context.Context, runID string, err error) error {
	if err == nil {
		return nil
	}
	_, e := s.db.ExecContext(ctx, `INSERT INTO run_errors (run_id, error_message, created_at) VALUES (?, ?, ?)`,
		runID, err.Error(), time.Now().UTC())
	return e
}

// UpdateRunStatus updates run status.
func (s *RunStore) UpdateRunStatus(ctx context.Context, runID, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE pipeline_runs SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), runID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// ListRuns returns all runs, newest first.
func (s *RunStore) ListRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, triggered_by, created_at, updated_at FROM pipeline_runs ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.ID, &r.Status, &r.Trigger, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun fetches a run with its result and errors.
func (s *RunStore) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	var rec RunRecord
	var resultJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, status, triggered_by, result, created_at, updated_at FROM pipeline_runs WHERE id = ?`, runID).
		Scan(&rec.ID, &rec.Status, &rec.Trigger, &resultJSON, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var result model.PipelineResult
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, err
		}
		rec.Result = &result
	}

	rows, err := s.db.QueryContext(ctx, `SELECT error_message FROM run_errors WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	rec.Errors = []string{}
	for rows.Next() {
		var msg string
		if err := rows.Scan(&msg); err != nil {
			return nil, err
		}
		rec.Errors = append(rec.Errors, msg)
	}
	return &rec, rows.Err()
}

// Close closes the underlying database.
func (s *RunStore) Close() error {
	return s.db.Close()
}
