package features

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(ip, method, url string, status int, bytes int64) LogRecord {
	ts := time.Date(2024, time.March, 6, 14, 30, 0, 0, time.UTC) // Wednesday
	return LogRecord{
		SourceIP:  ip,
		Timestamp: ts,
		RawTime:   ts.Format(time.RFC3339),
		Method:    method,
		URL:       url,
		Status:    status,
		Bytes:     bytes,
	}
}

func TestExtractSchema(t *testing.T) {
	x := NewExtractor(DefaultThresholds())

	tests := []struct {
		name    string
		records []LogRecord
	}{
		{name: "empty batch", records: nil},
		{name: "single record", records: []LogRecord{record("10.0.0.1", "GET", "/", 200, 10)}},
		{name: "several records", records: []LogRecord{
			record("10.0.0.1", "GET", "/", 200, 10),
			record("10.0.0.2", "POST", "/login", 302, 0),
			record("10.0.0.3", "GET", "/x", 404, 7),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := x.Extract(tt.records)
			require.NotNil(t, out.Table)
			assert.NoError(t, HTTP.Check(out.Table.Schema.Columns))
			assert.Equal(t, len(tt.records), out.Table.Len())
			for _, row := range out.Table.Rows {
				assert.Len(t, row, HTTP.Len())
			}
		})
	}
}

func TestExtractRequestsPerIP(t *testing.T) {
	x := NewExtractor(DefaultThresholds())
	out := x.Extract([]LogRecord{
		record("A", "GET", "/", 200, 1),
		record("A", "GET", "/", 200, 1),
		record("B", "GET", "/", 200, 1),
	})

	counts, err := out.Table.Column(RequestsPerIP)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 2, 1}, counts)
}

func TestExtractRequestsPerIPIsBatchRelative(t *testing.T) {
	x := NewExtractor(DefaultThresholds())
	batch := []LogRecord{
		record("A", "GET", "/", 200, 1),
		record("A", "GET", "/", 200, 1),
	}

	whole, _ := x.Extract(batch).Table.Column(RequestsPerIP)
	half, _ := x.Extract(batch[:1]).Table.Column(RequestsPerIP)

	assert.Equal(t, []float64{2, 2}, whole)
	assert.Equal(t, []float64{1}, half)
}

func TestExtractDerivedFeatures(t *testing.T) {
	x := NewExtractor(DefaultThresholds())
	out := x.Extract([]LogRecord{
		record("10.0.0.9", "POST", "/Admin/Shell.EXE", 500, 60000),
		record("10.0.0.8", "GET", "/index.html", 200, 500),
	})
	require.Empty(t, out.Errors)

	attack := out.Table.Row(0)
	want := map[string]float64{
		Hour: 14, Day: 2, Bytes: 60000,
		IsError: 1, IsServerError: 1, LargeTransfer: 1,
		URLLength: 16, RequestsPerIP: 1,
		IsPost: 1, IsGet: 0, IsExe: 1, IsAdmin: 1,
	}
	for name, v := range want {
		got, ok := attack.Get(name)
		require.True(t, ok, name)
		assert.Equal(t, v, got, name)
	}

	normal := out.Table.Row(1)
	assert.False(t, normal.Flag(IsError))
	assert.False(t, normal.Flag(LargeTransfer))
	assert.True(t, normal.Flag(IsGet))
	assert.False(t, normal.Flag(IsAdmin))
}

func TestExtractLargeTransferBoundary(t *testing.T) {
	x := NewExtractor(DefaultThresholds())
	out := x.Extract([]LogRecord{
		record("a", "GET", "/", 200, 10000),
		record("b", "GET", "/", 200, 10001),
	})
	col, err := out.Table.Column(LargeTransfer)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, col)
}

func TestExtractMissingFieldsAreZero(t *testing.T) {
	x := NewExtractor(DefaultThresholds())
	rec := LogRecord{SourceIP: "10.0.0.1", Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	out := x.Extract([]LogRecord{rec})

	require.Equal(t, 1, out.Table.Len())
	assert.Empty(t, out.Errors)
	for _, name := range []string{Bytes, IsError, URLLength, IsPost, IsGet, IsExe, IsAdmin} {
		v, _ := out.Table.Row(0).Get(name)
		assert.Zero(t, v, name)
	}
}

func TestExtractUnparseableTimestamp(t *testing.T) {
	x := NewExtractor(DefaultThresholds())
	bad := LogRecord{SourceIP: "A", RawTime: "not-a-time", Method: "GET", URL: "/", Status: 200}
	out := x.Extract([]LogRecord{record("A", "GET", "/", 200, 1), bad})

	require.Equal(t, 2, out.Table.Len(), "records are never dropped")
	require.Len(t, out.Errors, 1)
	assert.True(t, errors.Is(out.Errors[0], ErrUnparseableTimestamp))
	assert.Equal(t, 1, out.Errors[0].Index)

	row := out.Table.Row(1)
	hour, _ := row.Get(Hour)
	day, _ := row.Get(Day)
	assert.Equal(t, float64(InvalidTime), hour)
	assert.Equal(t, float64(InvalidTime), day)

	rpi, _ := out.Table.Row(0).Get(RequestsPerIP)
	assert.Equal(t, 1.0, rpi, "bad record is not counted for its peers")
	rpi, _ = out.Table.Row(1).Get(RequestsPerIP)
	assert.Equal(t, 1.0, rpi, "bad record carries its valid peers' count")

	valid := out.Valid()
	assert.Equal(t, 1, valid.Len())

	// The marker survives a round trip through a file, so the rows can be
	// dropped again without the extraction errors.
	assert.Equal(t, valid.Rows, out.Table.DropInvalidTime().Rows)
	assert.Same(t, valid, valid.DropInvalidTime())
}

func TestExtractAuth(t *testing.T) {
	x := NewExtractor(DefaultThresholds())
	ts := time.Date(2024, time.March, 10, 3, 0, 0, 0, time.UTC) // Sunday
	var events []AuthEvent
	for i := 0; i < 6; i++ {
		events = append(events, AuthEvent{Timestamp: ts, SourceIP: "10.1.1.1", Success: false})
	}
	events = append(events, AuthEvent{Timestamp: ts, SourceIP: "10.1.1.2", Success: true})

	out := x.ExtractAuth(events)
	require.NoError(t, Auth.Check(out.Table.Schema.Columns))
	require.Equal(t, 7, out.Table.Len())

	assert.Equal(t, []float64{3, 6, 1, 1}, out.Table.Rows[0])
	assert.Equal(t, []float64{3, 6, 0, 0}, out.Table.Rows[6])
}

func TestExtractAuthSkipsInvalidTimeInAttempts(t *testing.T) {
	x := NewExtractor(DefaultThresholds())
	ts := time.Date(2024, time.March, 12, 9, 0, 0, 0, time.UTC)
	var events []AuthEvent
	for i := 0; i < 5; i++ {
		events = append(events, AuthEvent{Timestamp: ts, SourceIP: "10.1.1.1"})
	}
	events = append(events, AuthEvent{RawTime: "garbage", SourceIP: "10.1.1.1"})

	out := x.ExtractAuth(events)
	require.Equal(t, 6, out.Table.Len())
	require.Len(t, out.Errors, 1)
	for i, row := range out.Table.Rows {
		assert.Zero(t, row[3], "row %d: five valid attempts do not exceed the limit", i)
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in       string
		wantHour int
		wantErr  bool
	}{
		{in: "2024-01-10T13:55:36Z", wantHour: 13},
		{in: "2024-01-10 13:55:36-07:00", wantHour: 13},
		{in: "2024-01-10 08:00:00", wantHour: 8},
		{in: "10/Oct/2000:13:55:36 -0700", wantHour: 13},
		{in: "20240110215536", wantHour: 21},
		{in: "yesterday", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ts, err := ParseTime(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnparseableTimestamp)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHour, ts.Hour())
		})
	}
}
