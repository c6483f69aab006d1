package config

import (
	"fmt"
	"strings"

	"github.com/hed1ad/logguard/pkg/heuristics"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate returns every problem found in the configuration.
func (c *Config) Validate() []error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Model.Estimators < 1 {
		add("model.n_estimators", "must be at least 1, got %d", c.Model.Estimators)
	}
	if c.Model.MaxSamples < 2 {
		add("model.max_samples", "must be at least 2, got %d", c.Model.MaxSamples)
	}
	if c.Model.Contamination < 0 || c.Model.Contamination > 0.5 {
		add("model.contamination", "must be within [0, 0.5], got %v", c.Model.Contamination)
	}
	if c.Model.TrainSize < 0 {
		add("model.train_size", "must not be negative, got %d", c.Model.TrainSize)
	}
	if c.Model.Workers < 0 {
		add("model.workers", "must not be negative, got %d", c.Model.Workers)
	}

	if c.Thresholds.LargeTransferBytes < 0 {
		add("thresholds.large_transfer_bytes", "must not be negative, got %d", c.Thresholds.LargeTransferBytes)
	}
	if c.Thresholds.HighLoginAttempts < 0 {
		add("thresholds.high_login_attempts", "must not be negative, got %d", c.Thresholds.HighLoginAttempts)
	}

	if _, err := heuristics.ParsePolicy(c.Heuristics.Policy); err != nil {
		add("heuristics.policy", "%v", err)
	}

	if c.Artifacts.Scaler == "" {
		add("artifacts.scaler", "file name is required")
	}
	if c.Artifacts.Model == "" {
		add("artifacts.model", "file name is required")
	}
	if c.Artifacts.Scaler != "" && c.Artifacts.Scaler == c.Artifacts.Model {
		add("artifacts.model", "must differ from artifacts.scaler")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("logging.level", "must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		add("logging.format", "must be console or json, got %q", c.Logging.Format)
	}

	return errs
}

// Check wraps Validate into a single error.
func (c *Config) Check() error {
	errs := c.Validate()
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}
