package history

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/teranos/pulsebatch/db"
	"github.com/teranos/pulsebatch/errors"
	pbtest "github.com/teranos/pulsebatch/internal/testing"
	"github.com/teranos/pulsebatch/pulse/batch"
)

func sampleRun(id string, finished time.Time) *Run {
	summary := &batch.Summary{
		RunID:               id,
		Batches:             3,
		Total:               25,
		TimeTaken:           2 * time.Second,
		TimeTakenSeconds:    2,
		CommittedOperations: 24,
		FailedOperations:    1,
		FailedBatches:       1,
		Retries:             2,
		OperationErrors:     map[string]int64{"constraint violated": 1},
		BatchErrors:         map[string]int64{},
		FailedParams:        map[string][]batch.Record{"constraint violated": {{"id": "7"}}},
		UpdateStatistics:    batch.Statistics{"rowsAffected": 24},
	}
	cfg := batch.DefaultConfig()
	cfg.BatchSize = 10
	cfg.Strategy = batch.StrategyPerRow
	cfg.Retries = 2
	return NewRun(summary, cfg, "aggregate", "people.jsonl", finished)
}

func TestNewRun(t *testing.T) {
	finished := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	run := sampleRun("run-1", finished)

	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, "per-row", run.Strategy)
	assert.Equal(t, 1, run.Concurrency, "serialized runs have one slot")
	assert.Equal(t, finished.Add(-2*time.Second), run.StartedAt)
}

func TestStoreRoundTrip(t *testing.T) {
	store := NewStore(pbtest.CreateMigratedTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(ctx, sampleRun("run-1", base)))
	require.NoError(t, store.Save(ctx, sampleRun("run-2", base.Add(time.Hour))))

	got, err := store.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "per-row", got.Strategy)
	assert.Equal(t, "people.jsonl", got.Input)
	assert.Equal(t, int64(25), got.Summary.Total)
	assert.Equal(t, int64(2), got.Summary.Retries)
	assert.Equal(t, "run-1", got.Summary.RunID)
	assert.Equal(t, 2*time.Second, got.Summary.TimeTaken)
	assert.Equal(t, map[string]int64{"constraint violated": 1}, got.Summary.OperationErrors)
	assert.Equal(t, batch.Statistics{"rowsAffected": 24}, got.Summary.UpdateStatistics)
	assert.Equal(t, "7", got.Summary.FailedParams["constraint violated"][0]["id"])
	assert.True(t, got.FinishedAt.Equal(base))

	runs, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID, "newest first")

	runs, err = store.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	err = store.Save(ctx, sampleRun("run-1", base))
	assert.Error(t, err, "run IDs are unique")
}

func TestStoreNotFound(t *testing.T) {
	store := NewStore(pbtest.CreateMigratedTestDB(t))
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))

	err = store.Delete(ctx, "missing")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestStoreDelete(t *testing.T) {
	store := NewStore(pbtest.CreateMigratedTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleRun("run-1", time.Now())))
	require.NoError(t, store.Delete(ctx, "run-1"))

	_, err := store.Get(ctx, "run-1")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestStoreSaveRejectsIncompleteRun(t *testing.T) {
	store := NewStore(nil)

	assert.Error(t, store.Save(context.Background(), nil))
	assert.Error(t, store.Save(context.Background(), &Run{ID: "x"}))
}

// --- Sqlmock Tests ---

func TestSave_Sqlmock(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	run := sampleRun("run-1", time.Now())
	mock.ExpectExec(`INSERT INTO batch_runs`).
		WithArgs(
			"run-1", "aggregate", "per-row", 10, 1, 2,
			int64(3), int64(25), int64(24), int64(1), int64(1), int64(2),
			false, 2.0,
			`{"constraint violated":1}`,
			`{}`,
			`{"constraint violated":[{"id":"7"}]}`,
			`{"rowsAffected":24}`,
			"", "people.jsonl",
			sqlmock.AnyArg(), // started_at
			sqlmock.AnyArg(), // finished_at
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, NewStore(conn).Save(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSave_SqlmockClosed(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec(`INSERT INTO batch_runs`).WillReturnError(sql.ErrConnDone)

	err = NewStore(conn).Save(context.Background(), sampleRun("run-1", time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save run run-1")
	assert.True(t, errors.Is(err, db.ErrDatabaseClosed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSave_SqlmockBusy(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec(`INSERT INTO batch_runs`).WillReturnError(sqlite3.Error{Code: sqlite3.ErrBusy})

	err = NewStore(conn).Save(context.Background(), sampleRun("run-1", time.Now()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, db.ErrDatabaseBusy))
	assert.Contains(t, errors.FlattenHints(err), "same database")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_SqlmockCorruptJSON(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "mode", "strategy", "batch_size", "concurrency", "retries",
		"batches", "total", "committed_operations", "failed_operations", "failed_batches", "retried",
		"was_terminated", "time_taken_seconds",
		"operation_errors", "batch_errors", "failed_params", "update_statistics",
		"source_error", "input", "started_at", "finished_at",
	}).AddRow(
		"run-1", "stream", "batch", 10, 4, 0,
		1, 10, 10, 0, 0, 0,
		false, 0.5,
		"{", "{}", "{}", "{}",
		"", "", now, now,
	)
	mock.ExpectQuery(`SELECT .* FROM batch_runs WHERE id = \?`).
		WithArgs("run-1").
		WillReturnRows(rows)

	_, err = NewStore(conn).Get(context.Background(), "run-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt operation_errors")
	assert.NoError(t, mock.ExpectationsWereMet())
}
