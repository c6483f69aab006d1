// Package csv reads and writes feature tables, raw access records and
// anomaly reports as CSV files.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hed1ad/logguard/pkg/features"
)

// Reader reads a feature table. The header row is required: it must start
// with exactly the schema columns in canonical order, followed only by
// ground_truth, anomaly, reason or columns requested as extras.
type Reader struct {
	file    io.Closer
	reader  *csv.Reader
	schema  features.Schema
	headers []string
	extras  map[string]int
	line    int
}

// Option configures a CSV reader.
type Option func(*readerConfig)

type readerConfig struct {
	extras []string
	comma  rune
}

// WithExtras names auxiliary numeric columns to carry alongside the
// features. Absent extras are skipped. The default is ground_truth and
// anomaly. Named extras are also accepted after the schema columns.
func WithExtras(names ...string) Option {
	return func(c *readerConfig) {
		c.extras = names
	}
}

// WithComma sets the field delimiter.
func WithComma(r rune) Option {
	return func(c *readerConfig) {
		c.comma = r
	}
}

// NewReader reads the header from r and checks it against schema.
func NewReader(r io.Reader, schema features.Schema, opts ...Option) (*Reader, error) {
	cfg := readerConfig{
		extras: []string{features.GroundTruth, features.AnomalyColumn},
		comma:  ',',
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	cr := csv.NewReader(r)
	cr.Comma = cfg.comma
	cr.FieldsPerRecord = -1

	headers, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("read header: %w", &features.SchemaMismatchError{
			Schema: schema.Name, Missing: schema.Columns,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}

	if err := schema.CheckHeader(headers, cfg.extras...); err != nil {
		return nil, err
	}

	extras := make(map[string]int)
	for _, name := range cfg.extras {
		for i, h := range headers {
			if h == name {
				extras[name] = i
				break
			}
		}
	}

	return &Reader{
		reader:  cr,
		schema:  schema,
		headers: headers,
		extras:  extras,
		line:    1,
	}, nil
}

// Open opens filename and reads its header.
func Open(filename string, schema features.Schema, opts ...Option) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(file, schema, opts...)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	r.file = file
	return r, nil
}

// Headers returns the column headers.
func (r *Reader) Headers() []string {
	return r.headers
}

// ReadTable returns all rows. A row with a non-numeric feature value is an
// error naming its line and column.
func (r *Reader) ReadTable() (*features.Table, error) {
	table := features.NewTable(r.schema, 0)
	extras := make(map[string][]float64, len(r.extras))

	for {
		record, err := r.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		r.line++
		if err != nil {
			return nil, err
		}

		row := make([]float64, r.schema.Len())
		for j := range row {
			v, err := parseCell(record, j)
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", r.line, r.schema.Columns[j], err)
			}
			row[j] = v
		}
		table.Rows = append(table.Rows, row)

		for name, col := range r.extras {
			v, err := parseCell(record, col)
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", r.line, name, err)
			}
			extras[name] = append(extras[name], v)
		}
	}

	for name, col := range extras {
		table.SetExtra(name, col)
	}
	return table, nil
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// ReadFile reads a complete feature table from filename.
func ReadFile(filename string, schema features.Schema, opts ...Option) (*features.Table, error) {
	r, err := Open(filename, schema, opts...)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	t, err := r.ReadTable()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return t, nil
}

// parseCell converts one field to a float.
func parseCell(record []string, col int) (float64, error) {
	if col >= len(record) {
		return 0, errors.New("missing value")
	}
	val := strings.TrimSpace(record[col])
	if val == "" {
		return 0, errors.New("empty value")
	}
	return strconv.ParseFloat(val, 64)
}
