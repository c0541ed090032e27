package sqlexec

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/pulsebatch/errors"
	pbtest "github.com/teranos/pulsebatch/internal/testing"
	"github.com/teranos/pulsebatch/pulse/batch"
)

const insertPerson = `INSERT INTO people (id, name, seq) VALUES (:id, :name, :_count)`

func peopleDB(t *testing.T) *sql.DB {
	t.Helper()
	conn := pbtest.CreateTestDB(t)
	_, err := conn.Exec(`CREATE TABLE people (id INTEGER PRIMARY KEY, name TEXT NOT NULL, seq INTEGER)`)
	require.NoError(t, err)
	return conn
}

func countPeople(t *testing.T, conn *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM people`).Scan(&n))
	return n
}

func newExecutor(t *testing.T, conn *sql.DB, statement string) *Executor {
	t.Helper()
	e, err := New(conn, statement, WithLogger(zaptest.NewLogger(t).Sugar()))
	require.NoError(t, err)
	return e
}

func TestNew(t *testing.T) {
	conn := peopleDB(t)

	_, err := New(conn, "   ")
	require.Error(t, err)
	assert.True(t, errors.IsInvalidConfigError(err))

	_, err = New(nil, insertPerson)
	assert.Error(t, err)

	e := newExecutor(t, conn, insertPerson)
	assert.Equal(t, []string{"id", "name", "_count"}, e.Parameters())
}

func TestExecuteWholeBatch(t *testing.T) {
	conn := peopleDB(t)
	e := newExecutor(t, conn, insertPerson)

	stats, err := e.Execute(context.Background(), batch.Params{
		batch.DefaultBatchParam: []batch.Record{
			{"id": 1, "name": "ada"},
			{"id": 2, "name": "grace"},
			{"id": 3, "name": "edsger"},
		},
		batch.DefaultCountParam: int64(10),
	})
	require.NoError(t, err)
	assert.Equal(t, batch.Statistics{StatRowsAffected: 3, StatStatements: 3}, stats)

	rows, err := conn.Query(`SELECT seq FROM people ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()
	var seqs []int64
	for rows.Next() {
		var s int64
		require.NoError(t, rows.Scan(&s))
		seqs = append(seqs, s)
	}
	assert.Equal(t, []int64{10, 11, 12}, seqs, "count advances per record")
}

func TestExecuteWholeBatchRollsBack(t *testing.T) {
	conn := peopleDB(t)
	e := newExecutor(t, conn, insertPerson)

	_, err := e.Execute(context.Background(), batch.Params{
		batch.DefaultBatchParam: []batch.Record{
			{"id": 1, "name": "ada"},
			{"id": 1, "name": "duplicate"},
		},
		batch.DefaultCountParam: int64(0),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UNIQUE constraint failed")
	assert.Contains(t, err.Error(), "record 1 of batch")
	assert.Equal(t, 0, countPeople(t, conn), "the whole unit is rolled back")
}

func TestExecutePerRow(t *testing.T) {
	conn := peopleDB(t)
	e := newExecutor(t, conn, insertPerson)
	all := []batch.Record{{"id": 1, "name": "ada"}, {"id": 2, "name": "grace"}}

	stats, err := e.Execute(context.Background(), batch.Params{
		"id":                    2,
		"name":                  "grace",
		batch.DefaultBatchParam: all,
		batch.DefaultCountParam: int64(1),
	})
	require.NoError(t, err)
	assert.Equal(t, batch.Statistics{StatRowsAffected: 1, StatStatements: 1}, stats)

	var name string
	var seq int64
	require.NoError(t, conn.QueryRow(`SELECT name, seq FROM people WHERE id = 2`).Scan(&name, &seq))
	assert.Equal(t, "grace", name)
	assert.Equal(t, int64(1), seq)
}

func TestExecuteMissingParameterIsNull(t *testing.T) {
	conn := peopleDB(t)
	e := newExecutor(t, conn, insertPerson)

	_, err := e.Execute(context.Background(), batch.Params{"id": 1, batch.DefaultCountParam: int64(0), "other": true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOT NULL constraint failed")
}

func TestExecuteBatchAsJSON(t *testing.T) {
	conn := peopleDB(t)
	e := newExecutor(t, conn, `
		INSERT INTO people (id, name, seq)
		SELECT json_extract(value, '$.id'), json_extract(value, '$.name'), :_count
		FROM json_each(:_batch)`)

	stats, err := e.Execute(context.Background(), batch.Params{
		batch.DefaultBatchParam: []batch.Record{{"id": 7, "name": "barbara"}, {"id": 8, "name": "frances"}},
		batch.DefaultCountParam: int64(0),
	})
	require.NoError(t, err)
	assert.Equal(t, batch.Statistics{StatRowsAffected: 2, StatStatements: 1}, stats)
	assert.Equal(t, 2, countPeople(t, conn))
}

func TestExecuteCancelledContext(t *testing.T) {
	conn := peopleDB(t)
	e := newExecutor(t, conn, insertPerson)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Execute(ctx, batch.Params{"id": 1, "name": "ada"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestExecutorDrivesDispatcher(t *testing.T) {
	conn := peopleDB(t)
	e := newExecutor(t, conn, insertPerson)

	in := make([]batch.Record, 25)
	for i := range in {
		in[i] = batch.Record{"id": i + 1, "name": "p"}
	}
	in[6] = batch.Record{"id": 1, "name": "duplicate of 1"}

	cfg := batch.DefaultConfig()
	cfg.BatchSize = 10
	cfg.Strategy = batch.StrategyPerRow

	summary, err := batch.Run(context.Background(), cfg, batch.Options{Logger: zaptest.NewLogger(t).Sugar()},
		batch.SliceIterator(in), e)
	require.NoError(t, err)

	assert.Equal(t, int64(3), summary.Batches)
	assert.Equal(t, int64(24), summary.CommittedOperations)
	assert.Equal(t, int64(1), summary.FailedOperations)
	assert.Equal(t, int64(24), summary.UpdateStatistics[StatRowsAffected])
	require.Len(t, summary.OperationErrors, 1)
	for msg, n := range summary.OperationErrors {
		assert.Contains(t, msg, "constraint failed")
		assert.Equal(t, int64(1), n)
	}
	assert.Equal(t, 24, countPeople(t, conn))
}

// --- Sqlmock Tests ---

func TestExecute_SqlmockCommit(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	e, err := New(conn, `UPDATE people SET name = :name WHERE id = :id`)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE people SET name`).
		WithArgs(sql.Named("name", "ada"), sql.Named("id", int64(1))).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	stats, err := e.Execute(context.Background(), batch.Params{"id": 1, "name": "ada"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats[StatRowsAffected])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_SqlmockRollback(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	e, err := New(conn, `UPDATE people SET name = :name WHERE id = :id`)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE people SET name`).WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	_, err = e.Execute(context.Background(), batch.Params{"id": 1, "name": "ada"})
	require.Error(t, err)
	assert.Equal(t, "database is locked", errors.RootMessage(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
