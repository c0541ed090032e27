package batch

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/teranos/pulsebatch/errors"
	"github.com/teranos/pulsebatch/logger"
	"github.com/teranos/pulsebatch/pulse"
)

const (
	modeAggregate = "aggregate"
	modeStream    = "stream"
)

// Options carries the collaborators of a Dispatcher. All fields are optional.
type Options struct {
	Logger *zap.SugaredLogger
	// Monitor is polled for termination in addition to the run's context.
	Monitor Monitor
	// Registry, when set, registers every run so it can be terminated by ID.
	Registry *Registry
	Metrics  *Metrics
	Progress pulse.ProgressEmitter
	// RunID names the run. Empty generates one.
	RunID string
}

// Dispatcher admits batches from a Source onto a bounded set of workers.
// A Dispatcher holds no per-run state and may be reused for several runs.
type Dispatcher struct {
	cfg    Config
	opts   Options
	logger pulseLogger
}

// NewDispatcher validates cfg. Configuration errors are returned here, before
// any record is read.
func NewDispatcher(cfg Config, opts Options) (*Dispatcher, error) {
	cfg = cfg.withFallbacks()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Dispatcher{
		cfg:    cfg,
		opts:   opts,
		logger: pulseLogger{logger.AddPulseSymbol(log.Named("pulse.batch"))},
	}, nil
}

// Config returns the effective configuration.
func (d *Dispatcher) Config() Config { return d.cfg }

// Run executes every batch of it and returns the aggregate summary once all
// admitted batches are resolved. It always returns a summary, even when every
// batch failed or the run was terminated.
func (d *Dispatcher) Run(ctx context.Context, it Iterator, exec Executor) *Summary {
	r := d.start(ctx, it, exec, modeAggregate)

	var pending []*future
	for {
		f := r.admit(func() bool { return true })
		if f == nil {
			break
		}
		pending = append(pending, f)
		pending = r.reap(pending)
	}

	r.logger.Debugw("Draining batches", "pending", len(pending))
	for i, f := range pending {
		r.await(f)
		r.report(f)
		pending[i] = nil
	}

	r.aggregate.finish()
	summary := r.aggregate.Result(r.id, r.terminated.Load())
	return r.finish(summary)
}

// Stream is a run in streaming mode. Receive from C until it is closed, then
// call Wait for the summary of the whole run.
type Stream struct {
	C <-chan BatchResult

	done    chan struct{}
	summary *Summary
}

// Wait blocks until the stream is finished and returns the run's summary.
// C must be drained first.
func (s *Stream) Wait() *Summary {
	<-s.done
	return s.summary
}

// Stream executes it like Run but reports each batch as it resolves, in
// submission order. Batches that finish early are held back until every
// earlier batch has been reported, so batch numbers strictly increase and
// cumulative totals never decrease.
func (d *Dispatcher) Stream(ctx context.Context, it Iterator, exec Executor) *Stream {
	r := d.start(ctx, it, exec, modeStream)

	out := make(chan BatchResult)
	s := &Stream{C: out, done: make(chan struct{})}

	// Ordered queue of submitted batches. Admission is its only writer and
	// never sends without room, so it keeps polling for termination.
	pending := make(chan *future, d.cfg.limit())
	go func() {
		defer close(pending)
		for {
			f := r.admit(func() bool { return len(pending) < cap(pending) })
			if f == nil {
				return
			}
			pending <- f
		}
	}()

	go func() {
		defer close(s.done)
		defer close(out)

		total := newSummary(r.id)
		var cumulative Totals
		for f := range pending {
			r.await(f)
			r.report(f)

			res := f.collector.Result(r.id, f.abandoned || r.terminated.Load())
			cumulative.add(res)
			total.merge(res, d.cfg.FailedParams)
			out <- BatchResult{BatchNo: f.no, Summary: *res, Cumulative: cumulative.clone()}
		}

		total.TimeTaken = time.Since(r.started)
		total.TimeTakenSeconds = total.TimeTaken.Seconds()
		total.WasTerminated = total.WasTerminated || r.terminated.Load()
		s.summary = r.finish(total)
	}()

	return s
}

// Run is a convenience wrapper: validate cfg, run in aggregate mode.
func Run(ctx context.Context, cfg Config, opts Options, it Iterator, exec Executor) (*Summary, error) {
	d, err := NewDispatcher(cfg, opts)
	if err != nil {
		return nil, err
	}
	return d.Run(ctx, it, exec), nil
}

// future is a submitted batch. outcome is written by the worker before done
// is closed; abandoned is written only by the goroutine that drains.
type future struct {
	no        int64
	size      int
	collector *Collector
	cancel    context.CancelFunc
	done      chan struct{}
	outcome   batchOutcome
	abandoned bool
}

type batchOutcome struct {
	committed   int64
	failed      int64
	batchFailed bool
	abandoned   bool
	err         error
	duration    time.Duration
}

// run is the state of one Run or Stream call.
type run struct {
	d       *Dispatcher
	id      string
	mode    string
	ctx     context.Context
	exec    Executor
	src     *Source
	sem     *semaphore.Weighted
	monitor Monitor
	logger  pulseLogger
	started time.Time

	// nil in streaming mode, where every batch gets its own collector
	aggregate *Collector

	// owned by the admission goroutine
	admitted int64
	batchNo  int64

	inFlight   atomic.Int64
	terminated atomic.Bool
}

func (d *Dispatcher) start(ctx context.Context, it Iterator, exec Executor, mode string) *run {
	id := d.opts.RunID
	var handle *Handle
	if d.opts.Registry != nil {
		handle = d.opts.Registry.Register(id)
		id = handle.ID
	}
	if id == "" {
		id = newRunID()
	}

	r := &run{
		d:       d,
		id:      id,
		mode:    mode,
		ctx:     logger.WithRunID(ctx, id),
		exec:    exec,
		src:     NewSource(it, d.cfg.BatchSize),
		sem:     semaphore.NewWeighted(d.cfg.limit()),
		logger:  d.logger.with(logger.FieldRunID, id),
		started: time.Now(),
	}
	monitors := anyMonitor{ContextMonitor(ctx), d.opts.Monitor}
	if handle != nil {
		monitors = append(monitors, handle)
	}
	r.monitor = monitors
	if mode == modeAggregate {
		r.aggregate = NewCollector(d.cfg.FailedParams)
	}

	r.logger.Starting("Run starting",
		"mode", mode,
		logger.FieldBatchSize, d.cfg.BatchSize,
		"concurrency", d.cfg.limit(),
		"strategy", d.cfg.Strategy.String(),
		logger.FieldRetries, d.cfg.Retries,
	)
	if d.cfg.Parallel {
		if warning := checkMemoryPressure(d.cfg); warning != "" {
			r.logger.Warnw(warning)
		}
	}
	if p := d.opts.Progress; p != nil {
		p.EmitStage("dispatch", fmt.Sprintf("run %s: %s batches of %d, %d in flight",
			id, d.cfg.Strategy, d.cfg.BatchSize, d.cfg.limit()))
	}
	return r
}

// isTerminated polls the termination signals. Once observed, termination is sticky.
func (r *run) isTerminated() bool {
	if r.terminated.Load() {
		return true
	}
	if r.monitor.Terminated() {
		if r.terminated.CompareAndSwap(false, true) {
			r.logger.Pulse("Termination observed", logger.FieldInFlight, r.inFlight.Load())
		}
		return true
	}
	return false
}

// admit waits for a free slot, forms the next batch and submits it. ready
// reports whether the caller can accept another pending batch. Saturation is
// handled by a short sleep and a re-check, never a blocking wait, so that
// termination is seen within one AdmitBackoff. Returns nil once admission is over.
func (r *run) admit(ready func() bool) *future {
	for {
		if r.src.Exhausted() || r.isTerminated() {
			return nil
		}
		if ready() && r.sem.TryAcquire(1) {
			break
		}
		time.Sleep(r.d.cfg.AdmitBackoff)
	}

	// The slot may have been freed by a batch that signalled termination.
	if r.isTerminated() {
		r.sem.Release(1)
		return nil
	}

	batch := r.src.Next()
	if len(batch) == 0 {
		r.sem.Release(1)
		return nil
	}

	r.batchNo++
	c := r.aggregate
	if c == nil {
		c = NewCollector(r.d.cfg.FailedParams)
	}
	size := int64(len(batch))
	offset := r.admitted
	r.admitted += size
	c.IncrementCount(size)
	c.IncrementBatches()

	ctx, cancel := context.WithCancel(r.ctx)
	f := &future{
		no:        r.batchNo,
		size:      len(batch),
		collector: c,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	r.inFlight.Add(1)
	r.d.opts.Metrics.batchStarted()
	r.logger.Debugw("Batch admitted",
		logger.FieldBatchNo, f.no,
		logger.FieldSize, f.size,
		logger.FieldInFlight, r.inFlight.Load(),
	)

	go r.process(ctx, f, batch, offset)
	return f
}

// reap reports the resolved prefix of pending and returns the rest.
func (r *run) reap(pending []*future) []*future {
	for len(pending) > 0 {
		select {
		case <-pending[0].done:
			r.report(pending[0])
			pending[0] = nil
			pending = pending[1:]
		default:
			return pending
		}
	}
	return pending
}

// await blocks until f resolves. Once termination is observed it stops
// waiting indefinitely: f is cancelled and given AbandonGrace to finish,
// after which it is abandoned.
func (r *run) await(f *future) {
	if !r.isTerminated() {
		ticker := time.NewTicker(r.d.cfg.TerminationPoll)
		defer ticker.Stop()

	wait:
		for {
			select {
			case <-f.done:
				return
			case <-r.ctx.Done():
				r.isTerminated()
				break wait
			case <-ticker.C:
				if r.isTerminated() {
					break wait
				}
			}
		}
	}

	select {
	case <-f.done:
		return
	default:
	}

	f.cancel()
	timer := time.NewTimer(r.d.cfg.AbandonGrace)
	defer timer.Stop()
	select {
	case <-f.done:
	case <-timer.C:
		f.abandoned = true
		r.logger.Warnw("Abandoning batch after termination",
			logger.FieldBatchNo, f.no,
			logger.FieldSize, f.size,
		)
	}
}

// report publishes a resolved batch to metrics and progress.
func (r *run) report(f *future) {
	if f.abandoned {
		r.d.opts.Metrics.batchResolved(batchOutcome{}, true)
		if p := r.d.opts.Progress; p != nil {
			p.EmitProgress(0, map[string]interface{}{"batch_no": f.no, "abandoned": true})
		}
		return
	}

	o := f.outcome
	r.d.opts.Metrics.batchResolved(o, false)
	if p := r.d.opts.Progress; p != nil {
		p.EmitProgress(f.size, map[string]interface{}{
			"batch_no":  f.no,
			"committed": o.committed,
			"failed":    o.failed,
			"abandoned": o.abandoned,
		})
		if o.batchFailed && o.err != nil {
			p.EmitError(fmt.Sprintf("batch %d", f.no), o.err)
		}
	}
}

func (r *run) finish(summary *Summary) *Summary {
	if err := r.src.Err(); err != nil {
		summary.SourceError = err.Error()
		summary.BatchErrors[errors.RootMessage(err)]++
		r.logger.Warnw("Input ended with an error", logger.FieldError, err, "read", r.src.Read())
	}

	if r.d.opts.Registry != nil {
		r.d.opts.Registry.Remove(r.id)
	}
	r.d.opts.Metrics.runFinished(r.mode, summary.WasTerminated)

	if p := r.d.opts.Progress; p != nil {
		p.EmitComplete(map[string]interface{}{
			"run_id":               summary.RunID,
			"batches":              summary.Batches,
			"total":                summary.Total,
			"committed_operations": summary.CommittedOperations,
			"failed_operations":    summary.FailedOperations,
			"failed_batches":       summary.FailedBatches,
			"retries":              summary.Retries,
			"was_terminated":       summary.WasTerminated,
			"time_taken_seconds":   summary.TimeTakenSeconds,
		})
	}

	r.logger.Closing("Run finished",
		"batches", summary.Batches,
		logger.FieldTotal, summary.Total,
		"committed", summary.CommittedOperations,
		"failed", summary.FailedOperations,
		"failed_batches", summary.FailedBatches,
		logger.FieldRetries, summary.Retries,
		"terminated", summary.WasTerminated,
		logger.FieldDurationMS, summary.TimeTaken.Milliseconds(),
	)
	return summary
}
