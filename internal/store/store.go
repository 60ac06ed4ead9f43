// Package store is an optional batch-run-history ledger: it persists one
// row per completed batch run (spec.md §4.3's BatchResult) to Postgres, for
// deployments that want run history to survive past the process lifetime of
// the task queue's JSON file.
//
// Kept+rewritten from internal/db/jobs.go's lib/pq query idiom
// (QueryRowContext/ExecContext/QueryContext with $N placeholders, sql.ErrNoRows
// translated to a not-found error) and internal/db/projects.go's
// encoding/json marshaling of a results column. The teacher package has no
// db.go exposing a constructor; New here follows the `db.New(url)` call
// shape implied by every teacher db/*.go file's receiver (`db *DB`
// embedding a *sql.DB and its Query/Exec methods).
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// DB wraps a Postgres connection for batch-run history.
type DB struct {
	*sql.DB
}

// New opens a Postgres connection at url and verifies it with a ping.
func New(url string) (*DB, error) {
	conn, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{conn}, nil
}

// EnsureSchema creates the batch_runs table if it does not already exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS batch_runs (
			id SERIAL PRIMARY KEY,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL,
			total_tasks INT NOT NULL,
			successful_tasks INT NOT NULL,
			failed_tasks INT NOT NULL,
			total_duration_sec DOUBLE PRECISION NOT NULL,
			throughput_tasks_per_sec DOUBLE PRECISION NOT NULL,
			peak_memory_mb INT NOT NULL,
			results JSONB NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure batch_runs schema: %w", err)
	}
	return nil
}

// RunRecord is one persisted batch run.
type RunRecord struct {
	ID                    int64
	StartedAt             time.Time
	FinishedAt            time.Time
	TotalTasks            int
	SuccessfulTasks       int
	FailedTasks           int
	TotalDurationSec      float64
	ThroughputTasksPerSec float64
	PeakMemoryMB          int
	Results               json.RawMessage
}

// RecordRun inserts one batch run's summary and per-task results.
func (db *DB) RecordRun(ctx context.Context, r RunRecord) (int64, error) {
	query := `
		INSERT INTO batch_runs (
			started_at, finished_at, total_tasks, successful_tasks, failed_tasks,
			total_duration_sec, throughput_tasks_per_sec, peak_memory_mb, results
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	var id int64
	err := db.QueryRowContext(ctx, query,
		r.StartedAt, r.FinishedAt, r.TotalTasks, r.SuccessfulTasks, r.FailedTasks,
		r.TotalDurationSec, r.ThroughputTasksPerSec, r.PeakMemoryMB, r.Results,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("record batch run: %w", err)
	}
	return id, nil
}

// GetRun fetches one batch run by id.
func (db *DB) GetRun(ctx context.Context, id int64) (*RunRecord, error) {
	query := `
		SELECT id, started_at, finished_at, total_tasks, successful_tasks, failed_tasks,
			total_duration_sec, throughput_tasks_per_sec, peak_memory_mb, results
		FROM batch_runs WHERE id = $1
	`
	r := &RunRecord{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&r.ID, &r.StartedAt, &r.FinishedAt, &r.TotalTasks, &r.SuccessfulTasks, &r.FailedTasks,
		&r.TotalDurationSec, &r.ThroughputTasksPerSec, &r.PeakMemoryMB, &r.Results,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("batch run %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get batch run %d: %w", id, err)
	}
	return r, nil
}

// ListRecentRuns returns up to limit batch runs, most recent first.
func (db *DB) ListRecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `
		SELECT id, started_at, finished_at, total_tasks, successful_tasks, failed_tasks,
			total_duration_sec, throughput_tasks_per_sec, peak_memory_mb, results
		FROM batch_runs ORDER BY finished_at DESC LIMIT $1
	`
	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list batch runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(
			&r.ID, &r.StartedAt, &r.FinishedAt, &r.TotalTasks, &r.SuccessfulTasks, &r.FailedTasks,
			&r.TotalDurationSec, &r.ThroughputTasksPerSec, &r.PeakMemoryMB, &r.Results,
		); err != nil {
			return nil, fmt.Errorf("scan batch run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, nil
}
