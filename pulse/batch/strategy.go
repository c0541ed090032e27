package batch

import (
	"context"
	"time"

	"github.com/teranos/pulsebatch/logger"
)

// process executes one batch with the configured strategy. It runs on its own
// goroutine and releases the batch's slot when done.
func (r *run) process(ctx context.Context, f *future, batch Batch, offset int64) {
	start := time.Now()
	defer func() {
		f.outcome.duration = time.Since(start)
		f.cancel()
		if f.collector != r.aggregate {
			f.collector.finish()
		}
		r.inFlight.Add(-1)
		r.d.opts.Metrics.batchFinished(f.outcome)
		r.sem.Release(1)
		close(f.done)
	}()

	switch r.d.cfg.Strategy {
	case StrategyPerRow:
		f.outcome = r.runPerRow(ctx, f, batch, offset)
	default:
		f.outcome = r.runWholeBatch(ctx, f, batch, offset)
	}
}

func (r *run) retrier(c *Collector, batchNo int64) Retrier {
	return Retrier{
		Limit:      r.d.cfg.Retries,
		Backoff:    r.d.cfg.RetryBackoff,
		Terminated: r.isTerminated,
		OnRetry: func(attempt int, err error) {
			c.IncrementRetried()
			r.d.opts.Metrics.retried()
			r.logger.Debugw("Retrying unit of work",
				logger.FieldBatchNo, batchNo,
				logger.FieldAttempt, attempt,
				logger.FieldError, err,
			)
		},
	}
}

// abandonedBy reports whether err only reflects the run being terminated
// under the unit of work. Such failures are not counted.
func (r *run) abandonedBy(err error) bool {
	return isCancellation(err) && r.isTerminated()
}

// runWholeBatch binds the batch to the batch parameter and executes it as
// one unit of work. On final failure every record of the batch counts as a
// failed operation.
func (r *run) runWholeBatch(ctx context.Context, f *future, batch Batch, offset int64) batchOutcome {
	c := f.collector
	params := Params{
		r.d.cfg.BatchParam: []Record(batch),
		r.d.cfg.CountParam: offset,
	}
	size := int64(len(batch))

	stats, err := r.retrier(c, f.no).Do(ctx, func(ctx context.Context) (Statistics, error) {
		return r.exec.Execute(ctx, params)
	})

	switch {
	case err == nil:
		c.IncrementCommittedOps(size)
		c.UpdateStatistics(stats)
		return batchOutcome{committed: size}

	case r.abandonedBy(err):
		r.logger.Debugw("Batch interrupted by termination", logger.FieldBatchNo, f.no)
		return batchOutcome{abandoned: true, err: err}

	default:
		c.IncrementFailedBatches()
		c.IncrementFailedOps(size)
		c.RecordBatchError(err)
		c.AmendFailedParams(err, batch...)
		r.logger.Warnw("Batch failed",
			logger.FieldBatchNo, f.no,
			logger.FieldSize, size,
			logger.FieldError, err,
		)
		return batchOutcome{failed: size, batchFailed: true, err: err}
	}
}

// runPerRow executes each record as its own unit of work, merged with the
// batch and count parameters. A failing record is counted and the loop goes
// on; termination is polled every TerminationCheckEvery records.
func (r *run) runPerRow(ctx context.Context, f *future, batch Batch, offset int64) batchOutcome {
	c := f.collector
	rt := r.retrier(c, f.no)
	every := r.d.cfg.TerminationCheckEvery

	var out batchOutcome
	count := offset
	for i, rec := range batch {
		if i > 0 && i%every == 0 && r.isTerminated() {
			r.logger.Debugw("Per-row loop stopped by termination",
				logger.FieldBatchNo, f.no,
				"processed", i,
				logger.FieldSize, len(batch),
			)
			out.abandoned = true
			break
		}

		params := make(Params, len(rec)+2)
		for k, v := range rec {
			params[k] = v
		}
		params[r.d.cfg.BatchParam] = []Record(batch)
		params[r.d.cfg.CountParam] = count
		count++

		stats, err := rt.Do(ctx, func(ctx context.Context) (Statistics, error) {
			return r.exec.Execute(ctx, params)
		})
		if err != nil {
			if r.abandonedBy(err) {
				out.abandoned = true
				break
			}
			out.failed++
			out.err = err
			c.IncrementFailedOps(1)
			c.RecordOperationError(err)
			c.AmendFailedParams(err, rec)
			r.logger.Debugw("Record failed",
				logger.FieldBatchNo, f.no,
				"row", i,
				logger.FieldError, err,
			)
			continue
		}

		out.committed++
		c.IncrementCommittedOps(1)
		c.UpdateStatistics(stats)
	}

	if out.failed > 0 {
		out.batchFailed = true
		c.IncrementFailedBatches()
		r.logger.Warnw("Batch had failing records",
			logger.FieldBatchNo, f.no,
			"failed", out.failed,
			logger.FieldSize, len(batch),
			logger.FieldError, out.err,
		)
	}
	return out
}
