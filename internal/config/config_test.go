package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/logguard/pkg/heuristics"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 150, cfg.Model.Estimators)
	assert.Equal(t, 256, cfg.Model.MaxSamples)
	assert.Equal(t, 0.02, cfg.Model.Contamination)
	assert.Equal(t, int64(42), cfg.Model.Seed)
	assert.Equal(t, 100000, cfg.Model.TrainSize)

	assert.Equal(t, int64(10000), cfg.Thresholds.LargeTransferBytes)
	assert.Equal(t, 1000.0, cfg.Thresholds.HighRequestVolume)
	assert.Equal(t, 500.0, cfg.Thresholds.BasicRequestLimit)
	assert.Equal(t, 1000.0, cfg.Thresholds.StrictRequestLimit)
	assert.Equal(t, 5, cfg.Thresholds.HighLoginAttempts)

	assert.Equal(t, "strict", cfg.Heuristics.Policy)
	assert.Equal(t, filepath.Join("models", "scaler.bin"), cfg.ScalerPath())
	assert.Equal(t, filepath.Join("models", "model.bin"), cfg.ModelPath())
	assert.Empty(t, cfg.Validate())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		modifyFn func(*Config)
		field    string
	}{
		{"no trees", func(c *Config) { c.Model.Estimators = 0 }, "model.n_estimators"},
		{"tiny sample", func(c *Config) { c.Model.MaxSamples = 1 }, "model.max_samples"},
		{"contamination too high", func(c *Config) { c.Model.Contamination = 0.6 }, "model.contamination"},
		{"negative contamination", func(c *Config) { c.Model.Contamination = -0.1 }, "model.contamination"},
		{"negative workers", func(c *Config) { c.Model.Workers = -1 }, "model.workers"},
		{"unknown policy", func(c *Config) { c.Heuristics.Policy = "paranoid" }, "heuristics.policy"},
		{"same artifact", func(c *Config) { c.Artifacts.Model = c.Artifacts.Scaler }, "artifacts.model"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modifyFn(cfg)
			errs := cfg.Validate()
			require.Len(t, errs, 1)
			var verr *ValidationError
			require.ErrorAs(t, errs[0], &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Error(t, cfg.Check())
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	cfg, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logguard.yaml")
	content := `
model:
  n_estimators: 50
  contamination: 0.05
heuristics:
  policy: basic
logging:
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("LOGGUARD_MODEL_SEED", "7")
	t.Setenv("LOGGUARD_THRESHOLDS_LARGE_TRANSFER_BYTES", "20000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Model.Estimators)
	assert.Equal(t, 0.05, cfg.Model.Contamination)
	assert.Equal(t, 256, cfg.Model.MaxSamples)
	assert.Equal(t, int64(7), cfg.Model.Seed)
	assert.Equal(t, int64(20000), cfg.Thresholds.LargeTransferBytes)
	assert.Equal(t, "json", cfg.Logging.Format)

	pc, err := cfg.Pipeline()
	require.NoError(t, err)
	assert.Equal(t, heuristics.Basic, pc.Policy)
	assert.Equal(t, 50, pc.Detector.Estimators)
	assert.Equal(t, int64(7), pc.Detector.RandomSeed)
	assert.Equal(t, int64(20000), pc.Thresholds.LargeTransferBytes)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: [unclosed"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logguard.yaml")
	require.NoError(t, WriteDefault(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	assert.ErrorIs(t, WriteDefault(path), os.ErrExist)
}
