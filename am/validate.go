package am

import "github.com/teranos/pulsebatch/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Database path is optional - empty falls back to "pulsebatch.db"

	b := c.Batch
	if b.BatchSize <= 0 {
		return errors.NewInvalidConfigError("batch.batch_size must be > 0, got %d", b.BatchSize)
	}
	if b.Concurrency <= 0 {
		return errors.NewInvalidConfigError("batch.concurrency must be > 0, got %d", b.Concurrency)
	}
	if b.Retries < 0 {
		return errors.NewInvalidConfigError("batch.retries must be >= 0, got %d", b.Retries)
	}

	// failed_params: negative = unlimited, 0 = disabled, any value is valid

	// Timing knobs: 0 = engine default, negative = invalid
	if b.AdmitBackoffMS < 0 {
		return errors.NewInvalidConfigError("batch.admit_backoff_ms must be >= 0, got %d", b.AdmitBackoffMS)
	}
	if b.TerminationCheckEvery < 0 {
		return errors.NewInvalidConfigError("batch.termination_check_every must be >= 0, got %d", b.TerminationCheckEvery)
	}
	if b.RetryBackoffMS < 0 {
		return errors.NewInvalidConfigError("batch.retry_backoff_ms must be >= 0, got %d", b.RetryBackoffMS)
	}
	if b.AbandonGraceMS < 0 {
		return errors.NewInvalidConfigError("batch.abandon_grace_ms must be >= 0, got %d", b.AbandonGraceMS)
	}

	if c.Log.Verbosity < 0 {
		return errors.NewInvalidConfigError("log.verbosity must be >= 0, got %d", c.Log.Verbosity)
	}

	return nil
}
