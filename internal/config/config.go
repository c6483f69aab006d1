// Package config loads logguard settings from a YAML file, LOGGUARD_*
// environment variables and built-in defaults, in that order of precedence.
package config

import (
	"github.com/hed1ad/logguard/pkg/detectors"
	"github.com/hed1ad/logguard/pkg/features"
	"github.com/hed1ad/logguard/pkg/heuristics"
	"github.com/hed1ad/logguard/pkg/pipeline"
	"github.com/hed1ad/logguard/pkg/scaler"
)

// Config is the complete configuration.
type Config struct {
	Model      ModelConfig      `yaml:"model"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Heuristics HeuristicsConfig `yaml:"heuristics"`
	Artifacts  ArtifactsConfig  `yaml:"artifacts"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Report     ReportConfig     `yaml:"report"`
}

// ModelConfig holds isolation forest and training parameters.
type ModelConfig struct {
	Estimators    int     `yaml:"n_estimators"`
	MaxSamples    int     `yaml:"max_samples"`
	Contamination float64 `yaml:"contamination"`
	Seed          int64   `yaml:"seed"`
	TrainSize     int     `yaml:"train_size"`
	// Workers bounds tree construction parallelism; 0 uses GOMAXPROCS.
	Workers int `yaml:"workers"`
}

// ThresholdsConfig holds the shared feature thresholds.
type ThresholdsConfig struct {
	LargeTransferBytes int64   `yaml:"large_transfer_bytes"`
	HighRequestVolume  float64 `yaml:"high_request_volume"`
	BasicRequestLimit  float64 `yaml:"basic_request_limit"`
	StrictRequestLimit float64 `yaml:"strict_request_limit"`
	HighLoginAttempts  int     `yaml:"high_login_attempts"`
}

// HeuristicsConfig selects the labeling policy used for evaluation.
type HeuristicsConfig struct {
	Policy string `yaml:"policy"`
}

// ArtifactsConfig locates the persisted scaler and model.
type ArtifactsConfig struct {
	Dir    string `yaml:"dir"`
	Scaler string `yaml:"scaler"`
	Model  string `yaml:"model"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// File enables a rotated log file in addition to stderr.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// MetricsConfig configures batch metrics export.
type MetricsConfig struct {
	// Textfile is a node-exporter textfile path; empty disables export.
	Textfile string `yaml:"textfile"`
}

// ReportConfig configures the report store.
type ReportConfig struct {
	// SQLitePath enables the SQLite report store.
	SQLitePath string `yaml:"sqlite_path"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	det := detectors.DefaultConfig()
	th := features.DefaultThresholds()
	return &Config{
		Model: ModelConfig{
			Estimators:    det.Estimators,
			MaxSamples:    det.MaxSamples,
			Contamination: det.Contamination,
			Seed:          det.RandomSeed,
			TrainSize:     scaler.DefaultMaxRows,
		},
		Thresholds: ThresholdsConfig{
			LargeTransferBytes: th.LargeTransferBytes,
			HighRequestVolume:  th.HighRequestVolume,
			BasicRequestLimit:  th.BasicRequestLimit,
			StrictRequestLimit: th.StrictRequestLimit,
			HighLoginAttempts:  th.HighLoginAttempts,
		},
		Heuristics: HeuristicsConfig{
			Policy: string(heuristics.Strict),
		},
		Artifacts: ArtifactsConfig{
			Dir:    "models",
			Scaler: "scaler.bin",
			Model:  "model.bin",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Pipeline converts the configuration into pipeline parameters.
func (c *Config) Pipeline() (pipeline.Config, error) {
	policy, err := heuristics.ParsePolicy(c.Heuristics.Policy)
	if err != nil {
		return pipeline.Config{}, err
	}
	return pipeline.Config{
		Detector: detectors.Config{
			Estimators:    c.Model.Estimators,
			MaxSamples:    c.Model.MaxSamples,
			Contamination: c.Model.Contamination,
			RandomSeed:    c.Model.Seed,
			Workers:       c.Model.Workers,
		},
		TrainSize:  c.Model.TrainSize,
		Thresholds: features.Thresholds{
			LargeTransferBytes: c.Thresholds.LargeTransferBytes,
			HighRequestVolume:  c.Thresholds.HighRequestVolume,
			BasicRequestLimit:  c.Thresholds.BasicRequestLimit,
			StrictRequestLimit: c.Thresholds.StrictRequestLimit,
			HighLoginAttempts:  c.Thresholds.HighLoginAttempts,
		},
		Policy: policy,
	}, nil
}
