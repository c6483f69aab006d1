package features

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnparseableTimestamp marks a record whose timestamp could not be
// turned into hour and day-of-week.
var ErrUnparseableTimestamp = errors.New("unparseable timestamp")

// LogRecord is one parsed web-server access record.
type LogRecord struct {
	SourceIP  string
	Timestamp time.Time
	// RawTime is the timestamp text as read, kept for error reporting.
	RawTime  string
	Method   string
	URL      string
	Protocol string
	Status   int
	Bytes    int64
}

// AuthEvent is one normalized authentication attempt.
type AuthEvent struct {
	Timestamp time.Time
	RawTime   string
	User      string
	SourceIP  string
	Success   bool
}

// RecordError describes a field of a single record that could not be
// converted.
type RecordError struct {
	Index int
	Field string
	Value string
	Err   error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d: %s %q: %v", e.Index, e.Field, e.Value, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// TimeLayouts are the timestamp formats accepted by ParseTime, tried in
// order.
var TimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"02/Jan/2006:15:04:05 -0700",
	"20060102150405",
}

// ParseTime parses s with the first matching layout in TimeLayouts.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range TimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrUnparseableTimestamp
}

// calendar returns the hour and the day of week, Monday = 0.
func calendar(t time.Time) (hour, day float64) {
	return float64(t.Hour()), float64((int(t.Weekday()) + 6) % 7)
}
