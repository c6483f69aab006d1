package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. LOGGUARD_MODEL_SEED.
const EnvPrefix = "LOGGUARD"

// Load reads configuration from path, when it exists, and from the
// environment. An empty path uses defaults and the environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	return unmarshal(v), nil
}

// setDefaults registers every key so that environment overrides apply even
// when the file omits it.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("model.n_estimators", d.Model.Estimators)
	v.SetDefault("model.max_samples", d.Model.MaxSamples)
	v.SetDefault("model.contamination", d.Model.Contamination)
	v.SetDefault("model.seed", d.Model.Seed)
	v.SetDefault("model.train_size", d.Model.TrainSize)
	v.SetDefault("model.workers", d.Model.Workers)

	v.SetDefault("thresholds.large_transfer_bytes", d.Thresholds.LargeTransferBytes)
	v.SetDefault("thresholds.high_request_volume", d.Thresholds.HighRequestVolume)
	v.SetDefault("thresholds.basic_request_limit", d.Thresholds.BasicRequestLimit)
	v.SetDefault("thresholds.strict_request_limit", d.Thresholds.StrictRequestLimit)
	v.SetDefault("thresholds.high_login_attempts", d.Thresholds.HighLoginAttempts)

	v.SetDefault("heuristics.policy", d.Heuristics.Policy)

	v.SetDefault("artifacts.dir", d.Artifacts.Dir)
	v.SetDefault("artifacts.scaler", d.Artifacts.Scaler)
	v.SetDefault("artifacts.model", d.Artifacts.Model)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)
	v.SetDefault("logging.compress", d.Logging.Compress)

	v.SetDefault("metrics.textfile", d.Metrics.Textfile)
	v.SetDefault("report.sqlite_path", d.Report.SQLitePath)
}

func unmarshal(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Model.Estimators = v.GetInt("model.n_estimators")
	cfg.Model.MaxSamples = v.GetInt("model.max_samples")
	cfg.Model.Contamination = v.GetFloat64("model.contamination")
	cfg.Model.Seed = v.GetInt64("model.seed")
	cfg.Model.TrainSize = v.GetInt("model.train_size")
	cfg.Model.Workers = v.GetInt("model.workers")

	cfg.Thresholds.LargeTransferBytes = v.GetInt64("thresholds.large_transfer_bytes")
	cfg.Thresholds.HighRequestVolume = v.GetFloat64("thresholds.high_request_volume")
	cfg.Thresholds.BasicRequestLimit = v.GetFloat64("thresholds.basic_request_limit")
	cfg.Thresholds.StrictRequestLimit = v.GetFloat64("thresholds.strict_request_limit")
	cfg.Thresholds.HighLoginAttempts = v.GetInt("thresholds.high_login_attempts")

	cfg.Heuristics.Policy = v.GetString("heuristics.policy")

	cfg.Artifacts.Dir = v.GetString("artifacts.dir")
	cfg.Artifacts.Scaler = v.GetString("artifacts.scaler")
	cfg.Artifacts.Model = v.GetString("artifacts.model")

	cfg.Logging.Level = v.GetString("logging.level")
	cfg.Logging.Format = v.GetString("logging.format")
	cfg.Logging.File = v.GetString("logging.file")
	cfg.Logging.MaxSizeMB = v.GetInt("logging.max_size_mb")
	cfg.Logging.MaxBackups = v.GetInt("logging.max_backups")
	cfg.Logging.MaxAgeDays = v.GetInt("logging.max_age_days")
	cfg.Logging.Compress = v.GetBool("logging.compress")

	cfg.Metrics.Textfile = v.GetString("metrics.textfile")
	cfg.Report.SQLitePath = v.GetString("report.sqlite_path")

	return cfg
}

// ScalerPath returns the scaler artifact path.
func (c *Config) ScalerPath() string {
	return filepath.Join(c.Artifacts.Dir, c.Artifacts.Scaler)
}

// ModelPath returns the model artifact path.
func (c *Config) ModelPath() string {
	return filepath.Join(c.Artifacts.Dir, c.Artifacts.Model)
}

// WriteDefault writes the default configuration as YAML to path. An
// existing file is not overwritten.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
