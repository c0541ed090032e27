package am

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/pulsebatch/errors"
	"github.com/teranos/pulsebatch/pulse/batch"
)

// isolate points every configuration layer at empty temp directories.
func isolate(t *testing.T) (home, project string) {
	t.Helper()
	Reset()
	t.Cleanup(Reset)

	home = t.TempDir()
	project = t.TempDir()
	t.Setenv("HOME", home)

	orig := systemConfigDir
	systemConfigDir = filepath.Join(t.TempDir(), "etc")
	t.Cleanup(func() { systemConfigDir = orig })

	t.Chdir(project)
	return home, project
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), DefaultDirPermissions))
	require.NoError(t, os.WriteFile(path, []byte(content), DefaultFilePermissions))
}

func TestLoad_Defaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, "pulsebatch.db", cfg.Database.Path)
	assert.Equal(t, 10000, cfg.Batch.BatchSize)
	assert.Equal(t, 50, cfg.Batch.Concurrency)
	assert.False(t, cfg.Batch.Parallel)
	assert.Equal(t, 0, cfg.Batch.Retries)
	assert.Equal(t, -1, cfg.Batch.FailedParams)
	assert.True(t, cfg.Batch.IterateList)
	assert.False(t, cfg.Batch.Stream)
	assert.Equal(t, 5, cfg.Batch.AdmitBackoffMS)
	assert.Equal(t, 1000, cfg.Batch.TerminationCheckEvery)
	assert.Equal(t, 100, cfg.Batch.AbandonGraceMS)
	assert.Empty(t, cfg.Metrics.Addr)
}

func TestLoad_Layers(t *testing.T) {
	home, project := isolate(t)

	writeFile(t, filepath.Join(systemConfigDir, ConfigFileName), `
[batch]
batch_size = 500
concurrency = 4
`)
	writeFile(t, filepath.Join(home, ".pulsebatch", ConfigFileName), `
[batch]
concurrency = 8
parallel = true
`)
	writeFile(t, filepath.Join(project, ConfigFileName), `
[batch]
retries = 2

[database]
path = "project.db"
`)
	t.Setenv("PULSEBATCH_BATCH_RETRIES", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Batch.BatchSize, "system layer")
	assert.Equal(t, 8, cfg.Batch.Concurrency, "user overrides system")
	assert.True(t, cfg.Batch.Parallel)
	assert.Equal(t, 5, cfg.Batch.Retries, "env overrides project")
	assert.Equal(t, "project.db", cfg.Database.Path)
	assert.Equal(t, -1, cfg.Batch.FailedParams, "untouched keys keep defaults")

	again, err := Load()
	require.NoError(t, err)
	assert.Same(t, cfg, again, "Load caches")
}

func TestLoad_ProjectConfigFoundUpwards(t *testing.T) {
	_, project := isolate(t)
	writeFile(t, filepath.Join(project, ConfigFileName), "[batch]\nbatch_size = 42\n")

	nested := filepath.Join(project, "a", "b")
	require.NoError(t, os.MkdirAll(nested, DefaultDirPermissions))
	t.Chdir(nested)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Batch.BatchSize)
}

func TestLoad_InvalidFileValue(t *testing.T) {
	_, project := isolate(t)
	writeFile(t, filepath.Join(project, ConfigFileName), "[batch]\nbatch_size = 0\n")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.IsInvalidConfigError(err))
}

func TestLoadFromFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "custom.toml")
	writeFile(t, path, `
[batch]
iterate_list = false
stream = true
retry_backoff_ms = 250

[log]
verbosity = 2
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.False(t, cfg.Batch.IterateList)
	assert.True(t, cfg.Batch.Stream)
	assert.Equal(t, 250, cfg.Batch.RetryBackoffMS)
	assert.Equal(t, 2, cfg.Log.Verbosity)
	assert.Equal(t, 10000, cfg.Batch.BatchSize, "defaults fill the rest")
	assert.Equal(t, SourceInfo{Source: SourceFile, Path: path}, ConfigSources["batch.stream"])

	_, err = LoadFromFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mod     func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"zero failed_params disables sampling", func(c *Config) { c.Batch.FailedParams = 0 }, false},
		{"zero termination check falls back", func(c *Config) { c.Batch.TerminationCheckEvery = 0 }, false},
		{"zero batch size", func(c *Config) { c.Batch.BatchSize = 0 }, true},
		{"negative concurrency", func(c *Config) { c.Batch.Concurrency = -1 }, true},
		{"negative retries", func(c *Config) { c.Batch.Retries = -1 }, true},
		{"negative admit backoff", func(c *Config) { c.Batch.AdmitBackoffMS = -1 }, true},
		{"negative retry backoff", func(c *Config) { c.Batch.RetryBackoffMS = -5 }, true},
		{"negative abandon grace", func(c *Config) { c.Batch.AbandonGraceMS = -1 }, true},
		{"negative verbosity", func(c *Config) { c.Log.Verbosity = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mod(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsInvalidConfigError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEngineConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Batch.BatchSize = 100
	cfg.Batch.Concurrency = 7
	cfg.Batch.Parallel = true
	cfg.Batch.Retries = 3
	cfg.Batch.IterateList = false
	cfg.Batch.RetryBackoffMS = 20
	cfg.Batch.AbandonGraceMS = 0

	ec := cfg.EngineConfig()

	assert.Equal(t, 100, ec.BatchSize)
	assert.Equal(t, 7, ec.Concurrency)
	assert.True(t, ec.Parallel)
	assert.Equal(t, 3, ec.Retries)
	assert.Equal(t, batch.StrategyPerRow, ec.Strategy)
	assert.Equal(t, 20*time.Millisecond, ec.RetryBackoff)
	assert.Equal(t, batch.DefaultAbandonGrace, ec.AbandonGrace, "zero keeps the engine default")
	assert.Equal(t, 5*time.Millisecond, ec.AdmitBackoff)
	assert.Equal(t, batch.DefaultBatchParam, ec.BatchParam)
	assert.NoError(t, ec.Validate())
}

func TestGetDatabasePath(t *testing.T) {
	assert.Equal(t, "pulsebatch.db", (&Config{}).GetDatabasePath())
	assert.Equal(t, "x.db", (&Config{Database: DatabaseConfig{Path: "x.db"}}).GetDatabasePath())
}
