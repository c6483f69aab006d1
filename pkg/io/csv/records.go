package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hed1ad/logguard/pkg/features"
)

// Raw access record columns.
const (
	ColIP        = "ip"
	ColTimestamp = "timestamp"
	ColMethod    = "method"
	ColURL       = "url"
	ColProtocol  = "protocol"
	ColStatus    = "status"
	ColBytes     = "bytes"
)

// RecordColumns is the column order written by RecordWriter.
var RecordColumns = []string{ColIP, ColTimestamp, ColMethod, ColURL, ColProtocol, ColStatus, ColBytes}

var requiredRecordColumns = []string{ColIP, ColTimestamp, ColMethod, ColURL, ColStatus, ColBytes}

// RecordReader reads raw access records. Columns are matched by header
// name; protocol is optional. Unparseable timestamps are kept as a zero
// time with the raw text preserved, so extraction can report them.
type RecordReader struct {
	file   io.Closer
	reader *csv.Reader
	col    map[string]int
	line   int
	err    error
}

// NewRecordReader reads the header from r.
func NewRecordReader(r io.Reader) (*RecordReader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	headers, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(headers))
	for i, h := range headers {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	var missing []string
	for _, c := range requiredRecordColumns {
		if _, ok := col[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, &features.SchemaMismatchError{Schema: "access record", Missing: missing}
	}
	return &RecordReader{reader: cr, col: col, line: 1}, nil
}

// OpenRecords opens a raw access record CSV file.
func OpenRecords(filename string) (*RecordReader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	r, err := NewRecordReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	r.file = file
	return r, nil
}

// ReadRecords returns all records.
func (r *RecordReader) ReadRecords() ([]features.LogRecord, error) {
	var recs []features.LogRecord
	for {
		rec, err := r.next()
		if errors.Is(err, io.EOF) {
			return recs, nil
		}
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
}

// Stream returns a channel of records for incremental processing. A
// malformed row stops the stream; Err reports it once the channel is closed.
func (r *RecordReader) Stream(ctx context.Context) (<-chan features.LogRecord, error) {
	out := make(chan features.LogRecord, 100)

	go func() {
		defer close(out)
		for {
			rec, err := r.next()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					r.err = err
				}
				return
			}
			select {
			case out <- rec:
			case <-ctx.Done():
				r.err = ctx.Err()
				return
			}
		}
	}()

	return out, nil
}

// Err returns the error that stopped Stream, or nil at end of input.
func (r *RecordReader) Err() error {
	return r.err
}

// Close releases resources.
func (r *RecordReader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

func (r *RecordReader) next() (features.LogRecord, error) {
	fields, err := r.reader.Read()
	if err != nil {
		return features.LogRecord{}, err
	}
	r.line++

	get := func(name string) string {
		i, ok := r.col[name]
		if !ok || i >= len(fields) {
			return ""
		}
		return strings.TrimSpace(fields[i])
	}

	rec := features.LogRecord{
		SourceIP: get(ColIP),
		RawTime:  get(ColTimestamp),
		Method:   get(ColMethod),
		URL:      get(ColURL),
		Protocol: get(ColProtocol),
	}
	if ts, err := features.ParseTime(rec.RawTime); err == nil {
		rec.Timestamp = ts
	}

	if rec.Status, err = atoi(get(ColStatus)); err != nil {
		return rec, fmt.Errorf("line %d column %s: %w", r.line, ColStatus, err)
	}
	bytes, err := atoi(get(ColBytes))
	if err != nil {
		return rec, fmt.Errorf("line %d column %s: %w", r.line, ColBytes, err)
	}
	rec.Bytes = int64(bytes)
	return rec, nil
}

// atoi parses an integer field. Empty and "-" read as zero; a float with no
// fraction is accepted.
func atoi(s string) (int, error) {
	if s == "" || s == "-" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return int(f), nil
}
