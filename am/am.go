package am

// Config represents the pulsebatch configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database" toml:"database" yaml:"database" json:"database"`
	Batch    BatchConfig    `mapstructure:"batch" toml:"batch" yaml:"batch" json:"batch"`
	Log      LogConfig      `mapstructure:"log" toml:"log" yaml:"log" json:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics" toml:"metrics" yaml:"metrics" json:"metrics"`
}

// DatabaseConfig configures the SQLite database holding run history
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path" yaml:"path" json:"path"`
}

// BatchConfig configures the batch engine.
// Durations are in milliseconds; 0 keeps the engine default.
type BatchConfig struct {
	// Records per batch (default: 10000)
	BatchSize int `mapstructure:"batch_size" toml:"batch_size" yaml:"batch_size" json:"batch_size"`
	// Batches in flight when parallel (default: 50)
	Concurrency int  `mapstructure:"concurrency" toml:"concurrency" yaml:"concurrency" json:"concurrency"`
	Parallel    bool `mapstructure:"parallel" toml:"parallel" yaml:"parallel" json:"parallel"`
	Retries     int  `mapstructure:"retries" toml:"retries" yaml:"retries" json:"retries"`

	// Failing records kept per error message: -1 = all, 0 = none
	FailedParams int `mapstructure:"failed_params" toml:"failed_params" yaml:"failed_params" json:"failed_params"`

	// true = one unit of work per batch, false = one per record
	IterateList bool `mapstructure:"iterate_list" toml:"iterate_list" yaml:"iterate_list" json:"iterate_list"`
	// Report every batch as it resolves instead of one summary
	Stream bool `mapstructure:"stream" toml:"stream" yaml:"stream" json:"stream"`

	AdmitBackoffMS        int `mapstructure:"admit_backoff_ms" toml:"admit_backoff_ms" yaml:"admit_backoff_ms" json:"admit_backoff_ms"`
	TerminationCheckEvery int `mapstructure:"termination_check_every" toml:"termination_check_every" yaml:"termination_check_every" json:"termination_check_every"`
	RetryBackoffMS        int `mapstructure:"retry_backoff_ms" toml:"retry_backoff_ms" yaml:"retry_backoff_ms" json:"retry_backoff_ms"`
	AbandonGraceMS        int `mapstructure:"abandon_grace_ms" toml:"abandon_grace_ms" yaml:"abandon_grace_ms" json:"abandon_grace_ms"`
}

// LogConfig configures logging
type LogConfig struct {
	JSON bool `mapstructure:"json" toml:"json" yaml:"json" json:"json"`
	// 0 = warnings only, 1 = info, 2+ = debug
	Verbosity int `mapstructure:"verbosity" toml:"verbosity" yaml:"verbosity" json:"verbosity"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Addr string `mapstructure:"addr" toml:"addr" yaml:"addr" json:"addr"` // e.g. ":9100", empty = disabled
}

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)

// ConfigFileName is the file name of every configuration layer
const ConfigFileName = "pulsebatch.toml"
