package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	"github.com/hed1ad/logguard/pkg/features"
	"github.com/hed1ad/logguard/pkg/pipeline"
)

// TimeLayout is the timestamp format written to raw record files.
const TimeLayout = "2006-01-02 15:04:05-07:00"

// WriteRecords writes raw access records with a header row. A record
// without a parsed timestamp is written with its raw text.
func WriteRecords(w io.Writer, recs []features.LogRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(RecordColumns); err != nil {
		return err
	}
	for _, r := range recs {
		ts := r.RawTime
		if !r.Timestamp.IsZero() {
			ts = r.Timestamp.Format(TimeLayout)
		}
		if err := cw.Write([]string{
			r.SourceIP,
			ts,
			r.Method,
			r.URL,
			r.Protocol,
			strconv.Itoa(r.Status),
			strconv.FormatInt(r.Bytes, 10),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTable writes t in canonical column order followed by its extras,
// ground_truth first and the rest by name.
func WriteTable(w io.Writer, t *features.Table) error {
	extras := extraNames(t)

	cw := csv.NewWriter(w)
	if err := cw.Write(append(slices.Clone(t.Schema.Columns), extras...)); err != nil {
		return err
	}
	record := make([]string, 0, t.Schema.Len()+len(extras))
	for i, row := range t.Rows {
		record = record[:0]
		for _, v := range row {
			record = append(record, formatFloat(v))
		}
		for _, name := range extras {
			record = append(record, formatFloat(t.Extras[name][i]))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// CreateFile creates filename and runs fn with it.
func CreateFile(filename string, fn func(io.Writer) error) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", filename, err)
	}
	return f.Close()
}

// ReportWriter writes scored batches as CSV: the feature columns, then
// ground_truth when present, then anomaly and reason.
type ReportWriter struct {
	w      io.Writer
	closer io.Closer
	header bool
}

// NewReportWriter returns a report writer on w.
func NewReportWriter(w io.Writer) *ReportWriter {
	return &ReportWriter{w: w}
}

// CreateReport creates filename for a report.
func CreateReport(filename string) (*ReportWriter, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	return &ReportWriter{w: f, closer: f}, nil
}

// WriteReport writes the rows of res. The header is written once, before
// the first batch.
func (r *ReportWriter) WriteReport(ctx context.Context, res *pipeline.Result) error {
	t := res.Table
	withTruth := res.GroundTruth != nil

	cw := csv.NewWriter(r.w)
	if !r.header {
		header := slices.Clone(t.Schema.Columns)
		if withTruth {
			header = append(header, features.GroundTruth)
		}
		header = append(header, features.AnomalyColumn, features.ReasonColumn)
		if err := cw.Write(header); err != nil {
			return err
		}
		r.header = true
	}

	for i, v := range res.Verdicts {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		record := make([]string, 0, len(t.Rows[i])+3)
		for _, x := range t.Rows[i] {
			record = append(record, formatFloat(x))
		}
		if withTruth {
			record = append(record, strconv.Itoa(res.GroundTruth[i]))
		}
		anomaly := "0"
		if v.Anomaly {
			anomaly = "1"
		}
		record = append(record, anomaly, v.Reason)
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Close releases resources.
func (r *ReportWriter) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

func extraNames(t *features.Table) []string {
	var names []string
	for name := range t.Extras {
		if _, ok := t.Extra(name); ok && name != features.GroundTruth {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	if _, ok := t.Extra(features.GroundTruth); ok {
		names = append([]string{features.GroundTruth}, names...)
	}
	return names
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
