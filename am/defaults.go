package am

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/teranos/pulsebatch/pulse/batch"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "pulsebatch.db")

	// Batch engine defaults
	v.SetDefault("batch.batch_size", batch.DefaultBatchSize)
	v.SetDefault("batch.concurrency", batch.DefaultConcurrency)
	v.SetDefault("batch.parallel", false)
	v.SetDefault("batch.retries", 0)
	v.SetDefault("batch.failed_params", batch.DefaultFailedParams)
	v.SetDefault("batch.iterate_list", true)
	v.SetDefault("batch.stream", false)
	v.SetDefault("batch.admit_backoff_ms", int(batch.DefaultAdmitBackoff/time.Millisecond))
	v.SetDefault("batch.termination_check_every", batch.DefaultTerminationCheckEvery)
	v.SetDefault("batch.retry_backoff_ms", 0)
	v.SetDefault("batch.abandon_grace_ms", int(batch.DefaultAbandonGrace/time.Millisecond))

	// Logging defaults
	v.SetDefault("log.json", false)
	v.SetDefault("log.verbosity", 0)

	// Metrics endpoint is off unless an address is configured
	v.SetDefault("metrics.addr", "")
}

// BindSensitiveEnvVars explicitly binds configuration that is commonly set per environment
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("database.path", "PULSEBATCH_DATABASE_PATH")
	v.BindEnv("metrics.addr", "PULSEBATCH_METRICS_ADDR")
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "pulsebatch.db" // Fallback default
	}
	return c.Database.Path
}

// EngineConfig converts the [batch] section into the engine's configuration.
// Zero durations fall back to the engine defaults.
func (c *Config) EngineConfig() batch.Config {
	b := c.Batch
	cfg := batch.DefaultConfig()
	cfg.BatchSize = b.BatchSize
	cfg.Concurrency = b.Concurrency
	cfg.Parallel = b.Parallel
	cfg.Strategy = batch.StrategyFor(b.IterateList)
	cfg.Retries = b.Retries
	cfg.FailedParams = b.FailedParams
	cfg.TerminationCheckEvery = b.TerminationCheckEvery
	cfg.RetryBackoff = time.Duration(b.RetryBackoffMS) * time.Millisecond
	if b.AdmitBackoffMS > 0 {
		cfg.AdmitBackoff = time.Duration(b.AdmitBackoffMS) * time.Millisecond
	}
	if b.AbandonGraceMS > 0 {
		cfg.AbandonGrace = time.Duration(b.AbandonGraceMS) * time.Millisecond
	}
	return cfg
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Batch: {Size: %d, Concurrency: %d, Parallel: %t, Retries: %d}}",
		c.Database.Path, c.Batch.BatchSize, c.Batch.Concurrency, c.Batch.Parallel, c.Batch.Retries)
}
