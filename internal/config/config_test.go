package config

import (
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	keys := []string{KeyDataDir, KeyNERBaseURL, KeyMinScore, KeyBatchWorkers, KeyRemoveReplacement, KeyPatternFile}
	prior := map[string]any{}
	for _, k := range keys {
		prior[k] = viper.Get(k)
	}
	t.Cleanup(func() {
		for _, k := range keys {
			viper.Set(k, prior[k])
		}
	})
}

func TestLoadDefaults(t *testing.T) {
	resetViper(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultNERBaseURL, cfg.NERBaseURL)
	assert.Equal(t, DefaultMinScore, cfg.MinScore)
	assert.Equal(t, DefaultBatchWorkers, cfg.BatchWorkers)
	assert.Equal(t, DefaultRemoveSep, cfg.RemoveReplacement)
	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, filepath.Join(cfg.DataDir, "runs.db"), cfg.RunsDBPath())
}

func TestLoadOverrides(t *testing.T) {
	resetViper(t)

	dir := t.TempDir()
	viper.Set(KeyDataDir, dir)
	viper.Set(KeyNERBaseURL, "")
	viper.Set(KeyMinScore, 0.7)
	viper.Set(KeyBatchWorkers, 12)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Empty(t, cfg.NERBaseURL, "empty URL disables the statistical recognizer")
	assert.Equal(t, 0.7, cfg.MinScore)
	assert.Equal(t, 12, cfg.BatchWorkers)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
	}{
		{name: "min score above one", key: KeyMinScore, value: 1.5},
		{name: "min score negative", key: KeyMinScore, value: -0.1},
		{name: "zero workers", key: KeyBatchWorkers, value: 0},
		{name: "negative workers", key: KeyBatchWorkers, value: -2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper(t)
			viper.Set(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid configuration")
		})
	}
}

func TestEnsureDataDir(t *testing.T) {
	cfg := &Config{DataDir: filepath.Join(t.TempDir(), "nested", "state")}
	require.NoError(t, cfg.EnsureDataDir())
	require.NoError(t, cfg.EnsureDataDir(), "idempotent")
}
