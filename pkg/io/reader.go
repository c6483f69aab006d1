// Package io defines the input and output contracts of the pipeline.
package io

import (
	"context"

	"github.com/hed1ad/logguard/pkg/features"
	"github.com/hed1ad/logguard/pkg/pipeline"
)

// RecordReader reads parsed access records from a source.
type RecordReader interface {
	// ReadRecords returns every record of the source.
	ReadRecords() ([]features.LogRecord, error)

	// Close releases resources.
	Close() error
}

// RecordStreamer delivers records one at a time until the source is
// exhausted, a read fails or ctx is done.
type RecordStreamer interface {
	Stream(ctx context.Context) (<-chan features.LogRecord, error)

	// Err returns the error that ended the stream, or nil at end of input.
	// It is valid once the channel is closed.
	Err() error
}

// TableReader reads a feature table whose columns follow a schema.
type TableReader interface {
	// ReadTable returns the complete table.
	ReadTable() (*features.Table, error)

	// Close releases resources.
	Close() error
}

// ReportWriter persists the verdicts of a scored batch.
type ReportWriter interface {
	// WriteReport outputs one scored batch.
	WriteReport(ctx context.Context, res *pipeline.Result) error

	// Close releases resources.
	Close() error
}
