// Package pipeline wires feature tables through scaling, isolation forest
// scoring and explanation. Training and scoring are separate steps: a
// scoring process loads persisted state and never refits.
package pipeline

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/hed1ad/logguard/pkg/detectors"
	"github.com/hed1ad/logguard/pkg/features"
	"github.com/hed1ad/logguard/pkg/heuristics"
	"github.com/hed1ad/logguard/pkg/scaler"
)

// ErrEmptyBatch is returned by Train for a batch with no rows. Scoring an
// empty batch is not an error.
var ErrEmptyBatch = errors.New("empty batch")

// Config holds the training and scoring parameters of one deployment.
type Config struct {
	Detector detectors.Config
	// TrainSize bounds the training sample.
	TrainSize  int
	Thresholds features.Thresholds
	Policy     heuristics.Policy
}

// DefaultConfig returns the canonical configuration.
func DefaultConfig() Config {
	return Config{
		Detector:   detectors.DefaultConfig(),
		TrainSize:  scaler.DefaultMaxRows,
		Thresholds: features.DefaultThresholds(),
		Policy:     heuristics.Strict,
	}
}

// Observer receives stage timings and verdict counts.
type Observer interface {
	ObserveStage(schema, stage string, rows int, elapsed time.Duration)
	ObserveVerdicts(schema string, scored, flagged int)
}

type nopObserver struct{}

func (nopObserver) ObserveStage(string, string, int, time.Duration) {}
func (nopObserver) ObserveVerdicts(string, int, int)                {}

type options struct {
	logger   *zap.Logger
	observer Observer
}

// Option configures Train and NewScorer.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithObserver sets the metrics observer.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop(), observer: nopObserver{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// stage times fn and reports it to the observer.
func (o options) stage(schema, name string, rows int, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	o.observer.ObserveStage(schema, name, rows, elapsed)
	if err != nil {
		o.logger.Error("stage failed", zap.String("stage", name), zap.String("schema", schema), zap.Error(err))
		return err
	}
	o.logger.Debug("stage done", zap.String("stage", name), zap.Int("rows", rows), zap.Duration("elapsed", elapsed))
	return nil
}
