// Package accesslog parses web server access logs in the common and
// combined formats.
package accesslog

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/hed1ad/logguard/pkg/features"
)

// TimeLayout is the bracketed timestamp layout of the access log.
const TimeLayout = "02/Jan/2006:15:04:05 -0700"

var linePattern = regexp.MustCompile(
	`(\S+) \S+ \S+ \[([^\]]+)\] "(\S+) (\S+) ([^"]+)" (\d{3}) (\S+)`,
)

// ParseLine parses one log line. ok is false when the line does not match
// the format. An unparseable timestamp leaves Timestamp zero with RawTime
// set.
func ParseLine(line string) (rec features.LogRecord, ok bool) {
	m := linePattern.FindStringSubmatch(line)
	if m == nil {
		return rec, false
	}
	status, err := strconv.Atoi(m[6])
	if err != nil {
		return rec, false
	}
	var bytes int64
	if m[7] != "-" {
		if bytes, err = strconv.ParseInt(m[7], 10, 64); err != nil {
			return rec, false
		}
	}

	rec = features.LogRecord{
		SourceIP: m[1],
		RawTime:  m[2],
		Method:   m[3],
		URL:      m[4],
		Protocol: m[5],
		Status:   status,
		Bytes:    bytes,
	}
	if ts, err := time.Parse(TimeLayout, m[2]); err == nil {
		rec.Timestamp = ts
	}
	return rec, true
}

// Reader reads access log lines from a source.
type Reader struct {
	file    io.Closer
	scanner *bufio.Scanner
	logger  *zap.Logger
	lines   int
	skipped int
	err     error
}

// Option configures a Reader.
type Option func(*Reader)

// WithLogger sets the logger used to report skipped lines.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reader) {
		r.logger = l
	}
}

// NewReader returns a reader over r.
func NewReader(r io.Reader, opts ...Option) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	rd := &Reader{scanner: sc, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(rd)
	}
	return rd
}

// Open opens an access log file.
func Open(filename string, opts ...Option) (*Reader, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	r := NewReader(f, opts...)
	r.file = f
	return r, nil
}

// ReadRecords parses every matching line. Non-matching lines are counted and
// skipped.
func (r *Reader) ReadRecords() ([]features.LogRecord, error) {
	var recs []features.LogRecord
	for {
		rec, err := r.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if r.skipped > 0 {
		r.logger.Warn("skipped unparseable access log lines",
			zap.Int("skipped", r.skipped), zap.Int("lines", r.lines))
	}
	return recs, nil
}

// Stream returns a channel of records for incremental processing. A read
// error stops the stream; Err reports it once the channel is closed.
func (r *Reader) Stream(ctx context.Context) (<-chan features.LogRecord, error) {
	out := make(chan features.LogRecord, 100)

	go func() {
		defer close(out)
		for {
			rec, err := r.next()
			if err != nil {
				if err != io.EOF {
					r.logger.Error("access log stream stopped", zap.Error(err))
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
func (r *Reader) Err() error {
	return r.err
}

// Lines returns the number of lines read so far.
func (r *Reader) Lines() int {
	return r.lines
}

// Skipped returns the number of lines that did not match the format.
func (r *Reader) Skipped() int {
	return r.skipped
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

func (r *Reader) next() (features.LogRecord, error) {
	for r.scanner.Scan() {
		r.lines++
		rec, ok := ParseLine(r.scanner.Text())
		if ok {
			return rec, nil
		}
		r.skipped++
		r.logger.Debug("access log line skipped", zap.Int("line", r.lines))
	}
	if err := r.scanner.Err(); err != nil {
		return features.LogRecord{}, fmt.Errorf("line %d: %w", r.lines+1, err)
	}
	return features.LogRecord{}, io.EOF
}
