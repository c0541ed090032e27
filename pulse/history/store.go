// Package history persists the summaries of finished batch runs in SQLite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teranos/pulsebatch/db"
	"github.com/teranos/pulsebatch/errors"
	"github.com/teranos/pulsebatch/pulse/batch"
)

// DefaultListLimit bounds List when no limit is given
const DefaultListLimit = 20

// Run is one finished run as stored in batch_runs
type Run struct {
	ID          string         `json:"id"`
	Mode        string         `json:"mode"` // aggregate or stream
	Strategy    string         `json:"strategy"`
	BatchSize   int            `json:"batchSize"`
	Concurrency int            `json:"concurrency"`
	Retries     int            `json:"retries"`
	Input       string         `json:"input"` // where the records came from, e.g. a file path
	StartedAt   time.Time      `json:"startedAt"`
	FinishedAt  time.Time      `json:"finishedAt"`
	Summary     *batch.Summary `json:"summary"`
}

// NewRun describes a finished run of cfg that produced summary
func NewRun(summary *batch.Summary, cfg batch.Config, mode, input string, finishedAt time.Time) *Run {
	concurrency := 1
	if cfg.Parallel {
		concurrency = cfg.Concurrency
	}
	return &Run{
		ID:          summary.RunID,
		Mode:        mode,
		Strategy:    cfg.Strategy.String(),
		BatchSize:   cfg.BatchSize,
		Concurrency: concurrency,
		Retries:     cfg.Retries,
		Input:       input,
		StartedAt:   finishedAt.Add(-summary.TimeTaken),
		FinishedAt:  finishedAt,
		Summary:     summary,
	}
}

// Store handles persistence of run history
type Store struct {
	db *sql.DB
}

// NewStore creates a new history store over a migrated database
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const runColumns = `id, mode, strategy, batch_size, concurrency, retries,
	batches, total, committed_operations, failed_operations, failed_batches, retried,
	was_terminated, time_taken_seconds,
	operation_errors, batch_errors, failed_params, update_statistics,
	source_error, input, started_at, finished_at`

// Save stores a finished run. Saving the same run ID twice is an error.
func (s *Store) Save(ctx context.Context, run *Run) error {
	if run == nil || run.Summary == nil || run.ID == "" {
		return errors.New("run with an ID and summary required")
	}
	sum := run.Summary

	jsonCols, err := encodeJSON(sum.OperationErrors, sum.BatchErrors, sum.FailedParams, sum.UpdateStatistics)
	if err != nil {
		return errors.Wrapf(err, "failed to encode run %s", run.ID)
	}

	query := `INSERT INTO batch_runs (` + runColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		run.ID,
		run.Mode,
		run.Strategy,
		run.BatchSize,
		run.Concurrency,
		run.Retries,
		sum.Batches,
		sum.Total,
		sum.CommittedOperations,
		sum.FailedOperations,
		sum.FailedBatches,
		sum.Retries,
		sum.WasTerminated,
		sum.TimeTakenSeconds,
		jsonCols[0],
		jsonCols[1],
		jsonCols[2],
		jsonCols[3],
		sum.SourceError,
		run.Input,
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
	)
	if err != nil {
		return errors.Wrapf(db.Classify(err), "failed to save run %s", run.ID)
	}
	return nil
}

// Get returns the run with the given ID, or an ErrNotFound error
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM batch_runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("run %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get run %s", id)
	}
	return run, nil
}

// List returns the most recently started runs first. limit <= 0 uses DefaultListLimit.
func (s *Store) List(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM batch_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	runs := make([]*Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan run")
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate runs")
	}
	return runs, nil
}

// Delete removes a run. Deleting an unknown ID returns an ErrNotFound error.
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM batch_runs WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "failed to delete run %s", id)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check rows affected")
	}
	if n == 0 {
		return errors.NewNotFoundError("run %s", id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	run := &Run{Summary: &batch.Summary{}}
	sum := run.Summary
	var opErrs, batchErrs, failedParams, stats string

	err := sc.Scan(
		&run.ID,
		&run.Mode,
		&run.Strategy,
		&run.BatchSize,
		&run.Concurrency,
		&run.Retries,
		&sum.Batches,
		&sum.Total,
		&sum.CommittedOperations,
		&sum.FailedOperations,
		&sum.FailedBatches,
		&sum.Retries,
		&sum.WasTerminated,
		&sum.TimeTakenSeconds,
		&opErrs,
		&batchErrs,
		&failedParams,
		&stats,
		&sum.SourceError,
		&run.Input,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	sum.RunID = run.ID
	sum.TimeTaken = time.Duration(sum.TimeTakenSeconds * float64(time.Second))

	decode := []struct {
		raw  string
		dest any
		name string
	}{
		{opErrs, &sum.OperationErrors, "operation_errors"},
		{batchErrs, &sum.BatchErrors, "batch_errors"},
		{failedParams, &sum.FailedParams, "failed_params"},
		{stats, &sum.UpdateStatistics, "update_statistics"},
	}
	for _, d := range decode {
		if err := json.Unmarshal([]byte(d.raw), d.dest); err != nil {
			return nil, errors.WithDetailf(errors.Wrapf(err, "corrupt %s", d.name), "run %s", run.ID)
		}
	}
	return run, nil
}

func encodeJSON(values ...any) ([]string, error) {
	out := make([]string, len(values))
	for i, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out[i] = string(data)
	}
	return out, nil
}
