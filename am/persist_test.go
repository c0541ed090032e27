package am

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/teranos/pulsebatch/errors"
)

func TestRender(t *testing.T) {
	cfg := Defaults()
	cfg.Batch.Concurrency = 12
	cfg.Metrics.Addr = ":9100"

	t.Run("toml", func(t *testing.T) {
		data, err := cfg.Render(FormatTOML)
		require.NoError(t, err)
		assert.Contains(t, string(data), "[batch]")

		var back Config
		require.NoError(t, toml.Unmarshal(data, &back))
		assert.Equal(t, *cfg, back)
	})

	t.Run("yaml", func(t *testing.T) {
		data, err := cfg.Render(FormatYAML)
		require.NoError(t, err)
		assert.Contains(t, string(data), "concurrency: 12")

		var back Config
		require.NoError(t, yaml.Unmarshal(data, &back))
		assert.Equal(t, *cfg, back)
	})

	t.Run("json", func(t *testing.T) {
		data, err := cfg.Render(FormatJSON)
		require.NoError(t, err)

		var back Config
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, ":9100", back.Metrics.Addr)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := cfg.Render("ini")
		require.Error(t, err)
		assert.True(t, errors.IsInvalidConfigError(err))
	})
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", ConfigFileName)

	cfg := Defaults()
	cfg.Batch.Retries = 1
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Batch.Retries)

	_, err = os.Stat(path + ".back1")
	assert.True(t, os.IsNotExist(err), "nothing to back up on first save")
}

func TestSaveRotatesBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	cfg := Defaults()

	for retries := 1; retries <= 5; retries++ {
		cfg.Batch.Retries = retries
		require.NoError(t, cfg.Save(path))
	}

	// current holds 5, backups hold the three saves before it
	for suffix, want := range map[string]int{"": 5, ".back1": 4, ".back2": 3, ".back3": 2} {
		loaded, err := LoadFromFile(path + suffix)
		require.NoError(t, err, suffix)
		assert.Equal(t, want, loaded.Batch.Retries, suffix)
	}
	_, err := os.Stat(path + ".back4")
	assert.True(t, os.IsNotExist(err))
}

func TestSaveRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	cfg := Defaults()
	cfg.Batch.BatchSize = -1

	require.Error(t, cfg.Save(path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
