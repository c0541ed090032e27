// Package sqlexec executes a SQL statement against SQLite as the unit of work
// of a batch run. Every unit of work is one transaction.
package sqlexec

import (
	"context"
	"database/sql"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/pulsebatch/errors"
	"github.com/teranos/pulsebatch/logger"
	"github.com/teranos/pulsebatch/pulse/batch"
)

// Statistics keys reported by Execute
const (
	StatRowsAffected = "rowsAffected"
	StatStatements   = "statements"
)

// Executor runs one statement per unit of work inside a transaction.
//
// When a unit carries a whole batch (only the batch and count parameters are
// set) and the statement does not refer to the batch parameter, the statement
// runs once per record of the batch, all in the same transaction, with the
// record's fields as named parameters. Otherwise it runs once with params;
// list and map values, the batch included, are bound as JSON text.
type Executor struct {
	db         *sql.DB
	statement  string
	names      []string
	batchParam string
	countParam string
	log        *zap.SugaredLogger
}

// Option configures an Executor
type Option func(*Executor)

// WithLogger sets the executor's logger
func WithLogger(log *zap.SugaredLogger) Option {
	return func(e *Executor) {
		if log != nil {
			e.log = log
		}
	}
}

// WithParams overrides the batch and count parameter names, which default to
// batch.DefaultBatchParam and batch.DefaultCountParam.
func WithParams(batchParam, countParam string) Option {
	return func(e *Executor) {
		e.batchParam = batchParam
		e.countParam = countParam
	}
}

// New prepares an executor for statement
func New(db *sql.DB, statement string, opts ...Option) (*Executor, error) {
	if db == nil {
		return nil, errors.New("sqlexec: database required")
	}
	statement = strings.TrimSpace(statement)
	if statement == "" {
		return nil, errors.NewInvalidConfigError("empty statement")
	}

	e := &Executor{
		db:         db,
		statement:  statement,
		names:      parameterNames(statement),
		batchParam: batch.DefaultBatchParam,
		countParam: batch.DefaultCountParam,
		log:        zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = logger.AddDBSymbol(e.log.Named("sqlexec"))
	return e, nil
}

// Parameters returns the named parameters the statement refers to
func (e *Executor) Parameters() []string {
	return append([]string(nil), e.names...)
}

// Execute runs the unit of work described by params in one transaction.
// Any failing statement rolls the whole unit back.
func (e *Executor) Execute(ctx context.Context, params batch.Params) (batch.Statistics, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin transaction")
	}

	stats, err := e.execute(ctx, tx, params)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = errors.WithSecondaryError(err, rbErr)
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit transaction")
	}
	return stats, nil
}

func (e *Executor) execute(ctx context.Context, tx *sql.Tx, params batch.Params) (batch.Statistics, error) {
	if records, ok := e.batchUnit(params); ok {
		return e.executeEach(ctx, tx, records, params[e.countParam])
	}

	n, err := e.exec(ctx, tx, params)
	if err != nil {
		return nil, err
	}
	return batch.Statistics{StatRowsAffected: n, StatStatements: 1}, nil
}

// batchUnit reports whether params is a whole batch to be iterated.
func (e *Executor) batchUnit(params batch.Params) ([]batch.Record, bool) {
	for _, name := range e.names {
		if name == e.batchParam {
			return nil, false
		}
	}
	for k := range params {
		if k != e.batchParam && k != e.countParam {
			return nil, false
		}
	}
	records, ok := params[e.batchParam].([]batch.Record)
	return records, ok
}

func (e *Executor) executeEach(ctx context.Context, tx *sql.Tx, records []batch.Record, count any) (batch.Statistics, error) {
	offset, _ := count.(int64)

	stats := batch.Statistics{StatRowsAffected: 0, StatStatements: 0}
	for i, rec := range records {
		params := make(map[string]any, len(rec)+1)
		for k, v := range rec {
			params[k] = v
		}
		params[e.countParam] = offset + int64(i)

		n, err := e.exec(ctx, tx, params)
		if err != nil {
			return nil, errors.Wrapf(err, "record %d of batch", i)
		}
		stats[StatRowsAffected] += n
		stats[StatStatements]++
	}
	return stats, nil
}

func (e *Executor) exec(ctx context.Context, tx *sql.Tx, params map[string]any) (int64, error) {
	args, err := namedArgs(e.names, params)
	if err != nil {
		return 0, err
	}

	result, err := tx.ExecContext(ctx, e.statement, args...)
	if err != nil {
		e.log.Debugw("Statement failed", logger.FieldError, err)
		return 0, errors.Wrap(err, "execute statement")
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "rows affected")
	}
	return n, nil
}
