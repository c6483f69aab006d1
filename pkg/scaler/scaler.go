// Package scaler standardizes feature tables with statistics fit once on a
// training sample and reused unchanged for every scored batch.
package scaler

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/hed1ad/logguard/pkg/features"
)

var (
	// ErrNotFitted is returned when a nil or empty scaler is used.
	ErrNotFitted = errors.New("scaler not fitted")
	// ErrEmptySample is returned when Fit receives no rows.
	ErrEmptySample = errors.New("empty scaler sample")
)

// DefaultMaxRows bounds the number of rows Fit computes statistics from.
const DefaultMaxRows = 100000

// Scaler holds per-column mean and scale. It is immutable after Fit.
type Scaler struct {
	Schema  string
	Columns []string
	Mean    []float64
	Scale   []float64
	// Rows is the number of rows the statistics were computed from.
	Rows int
}

type fitConfig struct {
	maxRows int
	seed    int64
}

// Option configures Fit.
type Option func(*fitConfig)

// WithMaxRows sets the sample bound. Larger tables are sampled down.
func WithMaxRows(n int) Option {
	return func(c *fitConfig) {
		c.maxRows = n
	}
}

// WithSeed sets the seed used when sampling down.
func WithSeed(seed int64) Option {
	return func(c *fitConfig) {
		c.seed = seed
	}
}

// Fit computes population mean and standard deviation per column. Columns
// with zero variance get scale 1.
func Fit(t *features.Table, opts ...Option) (*Scaler, error) {
	cfg := fitConfig{maxRows: DefaultMaxRows, seed: 42}
	for _, opt := range opts {
		opt(&cfg)
	}

	if t == nil || t.Len() == 0 {
		return nil, ErrEmptySample
	}
	sample := t.Sample(cfg.maxRows, cfg.seed)

	n := sample.Schema.Len()
	s := &Scaler{
		Schema:  sample.Schema.Name,
		Columns: append([]string(nil), sample.Schema.Columns...),
		Mean:    make([]float64, n),
		Scale:   make([]float64, n),
		Rows:    sample.Len(),
	}

	col := make([]float64, sample.Len())
	for j := 0; j < n; j++ {
		for i, row := range sample.Rows {
			col[i] = row[j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 {
			std = 1
		}
		s.Mean[j] = mean
		s.Scale[j] = std
	}
	return s, nil
}

// Transform returns a standardized copy of t. The table's columns must match
// the fitted columns by name and order.
func (s *Scaler) Transform(t *features.Table) (*features.Table, error) {
	return s.apply(t, func(x, mean, scale float64) float64 {
		return (x - mean) / scale
	})
}

// InverseTransform undoes Transform.
func (s *Scaler) InverseTransform(t *features.Table) (*features.Table, error) {
	return s.apply(t, func(z, mean, scale float64) float64 {
		return z*scale + mean
	})
}

func (s *Scaler) apply(t *features.Table, fn func(v, mean, scale float64) float64) (*features.Table, error) {
	if s == nil || len(s.Columns) == 0 {
		return nil, ErrNotFitted
	}
	if err := features.CheckColumns(t.Schema.Name, s.Columns, t.Schema.Columns); err != nil {
		return nil, err
	}

	out := features.NewTable(t.Schema, t.Len())
	for _, row := range t.Rows {
		if len(row) != len(s.Columns) {
			return nil, fmt.Errorf("row has %d values, want %d: %w", len(row), len(s.Columns), features.ErrSchemaMismatch)
		}
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = fn(v, s.Mean[j], s.Scale[j])
		}
		out.Rows = append(out.Rows, scaled)
	}
	for name, col := range t.Extras {
		out.SetExtra(name, col)
	}
	return out, nil
}

// Save serializes the fitted statistics.
func (s *Scaler) Save() ([]byte, error) {
	if s == nil || len(s.Columns) == 0 {
		return nil, ErrNotFitted
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Load deserializes statistics written by Save.
func Load(data []byte) (*Scaler, error) {
	var s Scaler
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode scaler: %w", err)
	}
	if len(s.Columns) == 0 || len(s.Mean) != len(s.Columns) || len(s.Scale) != len(s.Columns) {
		return nil, fmt.Errorf("decode scaler: inconsistent state for %d columns", len(s.Columns))
	}
	return &s, nil
}
