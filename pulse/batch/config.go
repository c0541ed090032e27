package batch

import (
	"time"

	"github.com/teranos/pulsebatch/errors"
)

// Defaults for Config.
const (
	DefaultBatchSize             = 10000
	DefaultConcurrency           = 50
	DefaultFailedParams          = -1 // unlimited sampling
	DefaultTerminationCheckEvery = 1000
	DefaultAdmitBackoff          = 5 * time.Millisecond
	DefaultTerminationPoll       = 25 * time.Millisecond
	DefaultAbandonGrace          = 100 * time.Millisecond

	DefaultBatchParam = "_batch"
	DefaultCountParam = "_count"
)

// Config is the immutable configuration of a run.
type Config struct {
	BatchSize   int  // records per batch, > 0
	Concurrency int  // batches in flight when Parallel, > 0
	Parallel    bool // false serializes batches through a single worker
	Strategy    Strategy
	Retries     int // re-attempts per unit of work, >= 0

	// FailedParams bounds how many failing records are kept per error message.
	// Negative keeps all of them, zero disables sampling.
	FailedParams int

	// TerminationCheckEvery is how many records a per-row loop processes
	// between termination polls.
	TerminationCheckEvery int

	// AdmitBackoff is the sleep between admission attempts while the pool is saturated.
	AdmitBackoff time.Duration
	// TerminationPoll is how often a blocked drain re-checks termination.
	TerminationPoll time.Duration
	// AbandonGrace is how long a cancelled batch gets to finish before it is abandoned.
	AbandonGrace time.Duration
	// RetryBackoff is multiplied by the attempt number between retries. Zero retries immediately.
	RetryBackoff time.Duration

	BatchParam string // parameter the batch is bound to, "_batch"
	CountParam string // parameter carrying the running record count, "_count"
}

// DefaultConfig returns the defaults: batches of 10000, serialized, whole-batch,
// no retries, unlimited failed-params sampling.
func DefaultConfig() Config {
	return Config{
		BatchSize:             DefaultBatchSize,
		Concurrency:           DefaultConcurrency,
		Parallel:              false,
		Strategy:              StrategyWholeBatch,
		Retries:               0,
		FailedParams:          DefaultFailedParams,
		TerminationCheckEvery: DefaultTerminationCheckEvery,
		AdmitBackoff:          DefaultAdmitBackoff,
		TerminationPoll:       DefaultTerminationPoll,
		AbandonGrace:          DefaultAbandonGrace,
		BatchParam:            DefaultBatchParam,
		CountParam:            DefaultCountParam,
	}
}

// Validate reports the first invalid setting as an ErrInvalidConfig.
func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return errors.NewInvalidConfigError("batch_size must be > 0, got %d", c.BatchSize)
	}
	if c.Concurrency <= 0 {
		return errors.NewInvalidConfigError("concurrency must be > 0, got %d", c.Concurrency)
	}
	if c.Retries < 0 {
		return errors.NewInvalidConfigError("retries must be >= 0, got %d", c.Retries)
	}
	if c.Strategy != StrategyWholeBatch && c.Strategy != StrategyPerRow {
		return errors.NewInvalidConfigError("unknown strategy %d", int(c.Strategy))
	}
	if c.TerminationCheckEvery < 0 {
		return errors.NewInvalidConfigError("termination_check_every must be >= 0, got %d", c.TerminationCheckEvery)
	}
	if c.AdmitBackoff < 0 || c.TerminationPoll < 0 || c.AbandonGrace < 0 || c.RetryBackoff < 0 {
		return errors.NewInvalidConfigError("durations must be >= 0")
	}
	if c.BatchParam == "" || c.CountParam == "" {
		return errors.NewInvalidConfigError("batch and count parameter names cannot be empty")
	}
	if c.BatchParam == c.CountParam {
		return errors.NewInvalidConfigError("batch and count parameters must differ, both are %q", c.BatchParam)
	}
	return nil
}

// limit is the number of batches that may be in flight at once.
func (c Config) limit() int64 {
	if !c.Parallel {
		return 1
	}
	return int64(c.Concurrency)
}

// withFallbacks fills zero-valued tuning knobs so a hand-built Config behaves
// like DefaultConfig for everything the caller did not set.
func (c Config) withFallbacks() Config {
	if c.TerminationCheckEvery == 0 {
		c.TerminationCheckEvery = DefaultTerminationCheckEvery
	}
	if c.AdmitBackoff == 0 {
		c.AdmitBackoff = DefaultAdmitBackoff
	}
	if c.TerminationPoll == 0 {
		c.TerminationPoll = DefaultTerminationPoll
	}
	if c.AbandonGrace == 0 {
		c.AbandonGrace = DefaultAbandonGrace
	}
	if c.BatchParam == "" {
		c.BatchParam = DefaultBatchParam
	}
	if c.CountParam == "" {
		c.CountParam = DefaultCountParam
	}
	return c
}
