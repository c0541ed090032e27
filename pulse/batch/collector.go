package batch

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/teranos/pulsebatch/errors"
)

// Collector accumulates the counters of a run, or of a single batch in
// streaming mode. Every method is safe for concurrent use by worker tasks.
type Collector struct {
	count         atomic.Int64
	batches       atomic.Int64
	committed     atomic.Int64
	failedOps     atomic.Int64
	failedBatches atomic.Int64
	retries       atomic.Int64

	failedParamsLimit int
	started           time.Time

	mu              sync.Mutex
	finished        time.Time
	batchErrors     map[string]int64
	operationErrors map[string]int64
	failedParams    map[string][]Record
	stats           Statistics
}

// NewCollector creates an empty collector. failedParamsLimit bounds the
// records sampled per error message: negative is unlimited, zero disables.
func NewCollector(failedParamsLimit int) *Collector {
	return &Collector{
		failedParamsLimit: failedParamsLimit,
		started:           time.Now(),
		batchErrors:       map[string]int64{},
		operationErrors:   map[string]int64{},
		failedParams:      map[string][]Record{},
		stats:             Statistics{},
	}
}

// IncrementCount adds n admitted records and returns the count before the addition.
func (c *Collector) IncrementCount(n int64) int64 {
	return c.count.Add(n) - n
}

// Count returns the number of admitted records.
func (c *Collector) Count() int64 { return c.count.Load() }

func (c *Collector) IncrementBatches() { c.batches.Add(1) }
func (c *Collector) IncrementRetried() { c.retries.Add(1) }
func (c *Collector) IncrementFailedBatches() { c.failedBatches.Add(1) }
func (c *Collector) IncrementFailedOps(n int64) { c.failedOps.Add(n) }
func (c *Collector) IncrementCommittedOps(n int64) { c.committed.Add(n) }

// RecordBatchError counts a batch whose retries are exhausted under err's root message.
func (c *Collector) RecordBatchError(err error) {
	key := errors.RootMessage(err)
	c.mu.Lock()
	c.batchErrors[key]++
	c.mu.Unlock()
}

// RecordOperationError counts a failed record under err's root message.
func (c *Collector) RecordOperationError(err error) {
	key := errors.RootMessage(err)
	c.mu.Lock()
	c.operationErrors[key]++
	c.mu.Unlock()
}

// AmendFailedParams samples the records that failed with err, up to the limit per message.
func (c *Collector) AmendFailedParams(err error, records ...Record) {
	if c.failedParamsLimit == 0 || len(records) == 0 {
		return
	}
	key := errors.RootMessage(err)

	c.mu.Lock()
	defer c.mu.Unlock()

	sample := c.failedParams[key]
	for _, rec := range records {
		if c.failedParamsLimit > 0 && len(sample) >= c.failedParamsLimit {
			break
		}
		sample = append(sample, rec)
	}
	c.failedParams[key] = sample
}

// UpdateStatistics merges the statistics of a successful unit of work.
func (c *Collector) UpdateStatistics(stats Statistics) {
	if len(stats) == 0 {
		return
	}
	c.mu.Lock()
	c.stats.Merge(stats)
	c.mu.Unlock()
}

// finish stamps the end of the collector's work for TimeTaken.
func (c *Collector) finish() {
	c.mu.Lock()
	if c.finished.IsZero() {
		c.finished = time.Now()
	}
	c.mu.Unlock()
}

// Result returns a snapshot. Maps are copied, so the snapshot stays valid if
// the collector keeps changing.
func (c *Collector) Result(runID string, terminated bool) *Summary {
	s := newSummary(runID)
	s.Batches = c.batches.Load()
	s.Total = c.count.Load()
	s.CommittedOperations = c.committed.Load()
	s.FailedOperations = c.failedOps.Load()
	s.FailedBatches = c.failedBatches.Load()
	s.Retries = c.retries.Load()
	s.WasTerminated = terminated

	c.mu.Lock()
	defer c.mu.Unlock()

	end := c.finished
	if end.IsZero() {
		end = time.Now()
	}
	s.TimeTaken = end.Sub(c.started)
	s.TimeTakenSeconds = s.TimeTaken.Seconds()

	for k, v := range c.batchErrors {
		s.BatchErrors[k] = v
	}
	for k, v := range c.operationErrors {
		s.OperationErrors[k] = v
	}
	for k, v := range c.failedParams {
		s.FailedParams[k] = append([]Record(nil), v...)
	}
	s.UpdateStatistics = c.stats.Clone()
	return s
}
