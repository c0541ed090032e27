// Package batch drives statement-per-row workloads over a record iterator in
// fixed-size batches, with a bounded number of batches in flight, per-unit
// retries, cooperative termination, and aggregate or per-batch results.
//
// The caller supplies the records (Iterator) and the unit of work (Executor).
// A Dispatcher groups records into batches, hands each batch to the
// configured Strategy, and folds every outcome into a Collector:
//
//	d, err := batch.NewDispatcher(batch.DefaultConfig(), batch.Options{Logger: log})
//	if err != nil {
//	    return err // invalid configuration, nothing was admitted
//	}
//	summary := d.Run(ctx, batch.SliceIterator(records), exec)
//
// Failures of individual batches or records never abort a run; they are
// counted, grouped by root-cause message, and sampled into the result.
package batch

import (
	"context"
	"io"
	"strings"

	"github.com/teranos/pulsebatch/errors"
)

// Record is one input row.
type Record map[string]any

// Params are the bindings passed to an Executor for one unit of work.
type Params map[string]any

// Statistics is the summary a unit of work reports on success, e.g.
// {"nodesCreated": 3, "rowsAffected": 10}. Runs merge them field-wise.
type Statistics map[string]int64

// Merge adds every counter of other into s.
func (s Statistics) Merge(other Statistics) {
	for k, v := range other {
		s[k] += v
	}
}

// Clone returns an independent copy of s.
func (s Statistics) Clone() Statistics {
	out := make(Statistics, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Iterator yields input records. Next returns io.EOF once the input is exhausted.
type Iterator interface {
	Next() (Record, error)
}

// IteratorFunc adapts a function to Iterator.
type IteratorFunc func() (Record, error)

func (f IteratorFunc) Next() (Record, error) { return f() }

// SliceIterator iterates over an in-memory slice of records.
func SliceIterator(records []Record) Iterator {
	i := 0
	return IteratorFunc(func() (Record, error) {
		if i >= len(records) {
			return nil, io.EOF
		}
		rec := records[i]
		i++
		return rec, nil
	})
}

// Executor runs one unit of work. In whole-batch mode params carry the batch
// under the batch parameter; in per-row mode they carry one record's fields
// plus the batch and count parameters. Returned errors are retried.
type Executor interface {
	Execute(ctx context.Context, params Params) (Statistics, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, params Params) (Statistics, error)

func (f ExecutorFunc) Execute(ctx context.Context, params Params) (Statistics, error) {
	return f(ctx, params)
}

// Strategy selects how a batch is turned into units of work.
type Strategy int

const (
	// StrategyWholeBatch binds the whole batch to one parameter: one unit per batch.
	StrategyWholeBatch Strategy = iota
	// StrategyPerRow executes every record of the batch as its own unit.
	StrategyPerRow
)

func (s Strategy) String() string {
	switch s {
	case StrategyWholeBatch:
		return "batch"
	case StrategyPerRow:
		return "per-row"
	default:
		return "unknown"
	}
}

// StrategyFor maps the iterate-list switch onto a strategy:
// iterating the list means the executor gets the whole batch.
func StrategyFor(iterateList bool) Strategy {
	if iterateList {
		return StrategyWholeBatch
	}
	return StrategyPerRow
}

// ParseStrategy parses "batch" or "per-row".
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "batch", "whole-batch", "whole_batch":
		return StrategyWholeBatch, nil
	case "per-row", "per_row", "row":
		return StrategyPerRow, nil
	default:
		return 0, errors.NewInvalidConfigError("unknown strategy %q (want batch or per-row)", s)
	}
}
