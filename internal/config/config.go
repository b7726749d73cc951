// Package config holds operator-level configuration for a veil process:
// data directory, NER sidecar endpoint, detection thresholds, batch worker
// pool size. Set via env vars (VEIL_*) or config file (veil.config.yaml).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Viper keys. Each maps to an env var with the VEIL_ prefix
// (e.g. "ner_base_url" → VEIL_NER_BASE_URL) and to a YAML field
// in veil.config.yaml.
const (
	KeyDataDir           = "data_dir"
	KeyNERBaseURL        = "ner_base_url"
	KeyMinScore          = "min_score"
	KeyBatchWorkers      = "batch_workers"
	KeyRemoveReplacement = "remove_replacement"
	KeyPatternFile       = "pattern_file"
)

// Defaults.
const (
	DefaultNERBaseURL   = "http://localhost:8001"
	DefaultMinScore     = 0.5
	DefaultBatchWorkers = 4
	DefaultRemoveSep    = " "
)

// Config holds resolved operator-level configuration for a veil process.
type Config struct {
	DataDir           string  // Base directory for state (~/.veil)
	NERBaseURL        string  // NER sidecar endpoint; empty disables the statistical recognizer
	MinScore          float64 // Minimum confidence for pattern matches
	BatchWorkers      int     // Batch evaluation worker pool size
	RemoveReplacement string  // Text substituted for spans under the redact policy
	PatternFile       string  // Optional recognizer YAML overlay
}

// RunsDBPath returns the full path to the evaluation runs SQLite database.
func (c *Config) RunsDBPath() string {
	return filepath.Join(c.DataDir, "runs.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

func init() {
	viper.SetEnvPrefix("VEIL")
	viper.AutomaticEnv()
	viper.SetDefault(KeyNERBaseURL, DefaultNERBaseURL)
	viper.SetDefault(KeyMinScore, DefaultMinScore)
	viper.SetDefault(KeyBatchWorkers, DefaultBatchWorkers)
	viper.SetDefault(KeyRemoveReplacement, DefaultRemoveSep)
}

// Load reads configuration from Viper (which merges env vars, config file,
// and defaults) and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:           resolveDataDir(),
		NERBaseURL:        viper.GetString(KeyNERBaseURL),
		MinScore:          viper.GetFloat64(KeyMinScore),
		BatchWorkers:      viper.GetInt(KeyBatchWorkers),
		RemoveReplacement: viper.GetString(KeyRemoveReplacement),
		PatternFile:       viper.GetString(KeyPatternFile),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func resolveDataDir() string {
	if dir := viper.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".veil"
	}
	return filepath.Join(home, ".veil")
}

func (c *Config) validate() error {
	if c.MinScore < 0 || c.MinScore > 1 {
		return fmt.Errorf("min_score must be in [0,1] (got %g)", c.MinScore)
	}
	if c.BatchWorkers <= 0 {
		return fmt.Errorf("batch_workers must be positive (got %d)", c.BatchWorkers)
	}
	return nil
}
