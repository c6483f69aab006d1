package features

import (
	"strings"
	"unicode/utf8"
)

// Thresholds is the single set of constants shared by extraction,
// heuristic labeling and explanation.
type Thresholds struct {
	// LargeTransferBytes sets large_transfer when bytes exceed it.
	LargeTransferBytes int64
	// HighRequestVolume is the requests_per_ip level named in explanations.
	HighRequestVolume float64
	// BasicRequestLimit is the requests_per_ip level of the basic policy.
	BasicRequestLimit float64
	// StrictRequestLimit is the requests_per_ip level of the strict policy.
	StrictRequestLimit float64
	// HighLoginAttempts sets high_attempts when login attempts exceed it.
	HighLoginAttempts int
}

// DefaultThresholds returns the canonical threshold set.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LargeTransferBytes: 10000,
		HighRequestVolume:  1000,
		BasicRequestLimit:  500,
		StrictRequestLimit: 1000,
		HighLoginAttempts:  5,
	}
}

// Extraction is the outcome of converting one batch.
type Extraction struct {
	// Table has exactly one row per input record, in input order.
	Table *Table
	// Errors lists records whose time features carry InvalidTime.
	Errors []*RecordError
}

// InvalidRows returns the row indices that carry record errors.
func (e *Extraction) InvalidRows() map[int]bool {
	rows := make(map[int]bool, len(e.Errors))
	for _, err := range e.Errors {
		rows[err.Index] = true
	}
	return rows
}

// Valid returns the rows without record errors. When every row is valid
// the full table is returned.
func (e *Extraction) Valid() *Table {
	if len(e.Errors) == 0 {
		return e.Table
	}
	invalid := e.InvalidRows()
	idx := make([]int, 0, e.Table.Len()-len(invalid))
	for i := range e.Table.Rows {
		if !invalid[i] {
			idx = append(idx, i)
		}
	}
	return e.Table.Subset(idx)
}

// Extractor converts batches of records into feature tables. It holds no
// state between calls.
type Extractor struct {
	thresholds Thresholds
}

// NewExtractor creates an extractor using th.
func NewExtractor(th Thresholds) *Extractor {
	return &Extractor{thresholds: th}
}

// Extract converts a batch of access records to the HTTP schema.
// requests_per_ip counts records sharing a source address within this batch
// only. Every record yields a row, but a record with an unparseable timestamp
// is left out of the counts; its own row carries the count of its valid peers.
func (x *Extractor) Extract(records []LogRecord) *Extraction {
	perIP := make(map[string]int)
	for _, r := range records {
		if !r.Timestamp.IsZero() {
			perIP[r.SourceIP]++
		}
	}

	out := &Extraction{Table: NewTable(HTTP, len(records))}
	for i, r := range records {
		hour, day := float64(InvalidTime), float64(InvalidTime)
		if r.Timestamp.IsZero() {
			out.Errors = append(out.Errors, &RecordError{
				Index: i, Field: "timestamp", Value: r.RawTime, Err: ErrUnparseableTimestamp,
			})
		} else {
			hour, day = calendar(r.Timestamp)
		}

		url := strings.ToLower(r.URL)
		out.Table.Rows = append(out.Table.Rows, []float64{
			hour,
			day,
			float64(r.Bytes),
			boolf(r.Status >= 400),
			boolf(r.Status >= 500),
			boolf(r.Bytes > x.thresholds.LargeTransferBytes),
			float64(utf8.RuneCountInString(r.URL)),
			float64(perIP[r.SourceIP]),
			boolf(strings.EqualFold(r.Method, "POST")),
			boolf(strings.EqualFold(r.Method, "GET")),
			boolf(strings.Contains(url, "exe")),
			boolf(strings.Contains(url, "admin")),
		})
	}
	return out
}

// ExtractAuth converts a batch of authentication events to the auth schema.
// Login attempts are grouped by source address within this batch; events
// with an unparseable timestamp are not counted.
func (x *Extractor) ExtractAuth(events []AuthEvent) *Extraction {
	attempts := make(map[string]int)
	for _, e := range events {
		if !e.Timestamp.IsZero() {
			attempts[e.SourceIP]++
		}
	}

	out := &Extraction{Table: NewTable(Auth, len(events))}
	for i, e := range events {
		hour, day := float64(InvalidTime), float64(InvalidTime)
		if e.Timestamp.IsZero() {
			out.Errors = append(out.Errors, &RecordError{
				Index: i, Field: "timestamp", Value: e.RawTime, Err: ErrUnparseableTimestamp,
			})
		} else {
			hour, day = calendar(e.Timestamp)
		}

		out.Table.Rows = append(out.Table.Rows, []float64{
			hour,
			day,
			boolf(!e.Success),
			boolf(attempts[e.SourceIP] > x.thresholds.HighLoginAttempts),
		})
	}
	return out
}

func boolf(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
