package accesslog

import (
	"bufio"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lio "github.com/hed1ad/logguard/pkg/io"
)

var (
	_ lio.RecordReader   = (*Reader)(nil)
	_ lio.RecordStreamer = (*Reader)(nil)
)

const sample = `192.168.1.10 - - [12/Mar/2024:14:30:00 +0000] "GET /index.html HTTP/1.1" 200 512 "-" "Mozilla/5.0"
10.0.0.5 - frank [12/Mar/2024:14:31:07 +0200] "POST /admin/shell.exe HTTP/1.0" 500 -
this line is noise
10.0.0.6 - - [31/Feb/2024:99:00:00 +0000] "GET /x HTTP/1.1" 404 0
`

func TestParseLine(t *testing.T) {
	rec, ok := ParseLine(`192.168.1.10 - - [12/Mar/2024:14:30:00 +0000] "GET /index.html HTTP/1.1" 200 512`)
	require.True(t, ok)
	assert.Equal(t, "192.168.1.10", rec.SourceIP)
	assert.Equal(t, "GET", rec.Method)
	assert.Equal(t, "/index.html", rec.URL)
	assert.Equal(t, "HTTP/1.1", rec.Protocol)
	assert.Equal(t, 200, rec.Status)
	assert.Equal(t, int64(512), rec.Bytes)
	assert.True(t, rec.Timestamp.Equal(time.Date(2024, 3, 12, 14, 30, 0, 0, time.UTC)))
}

func TestParseLineRejects(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"empty", ""},
		{"no request", `1.2.3.4 - - [12/Mar/2024:14:30:00 +0000] 200 1`},
		{"short status", `1.2.3.4 - - [12/Mar/2024:14:30:00 +0000] "GET / HTTP/1.1" 20 1`},
		{"bad bytes", `1.2.3.4 - - [12/Mar/2024:14:30:00 +0000] "GET / HTTP/1.1" 200 lots`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ParseLine(tt.line)
			assert.False(t, ok)
		})
	}
}

func TestReadRecords(t *testing.T) {
	r := NewReader(strings.NewReader(sample))
	recs, err := r.ReadRecords()
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, int64(0), recs[1].Bytes, "dash bytes read as zero")
	assert.Equal(t, 500, recs[1].Status)
	assert.Equal(t, 12, recs[1].Timestamp.UTC().Hour())

	assert.True(t, recs[2].Timestamp.IsZero())
	assert.Equal(t, "31/Feb/2024:99:00:00 +0000", recs[2].RawTime)

	assert.Equal(t, 4, r.Lines())
	assert.Equal(t, 1, r.Skipped())
	assert.NoError(t, r.Close())
}

func TestStream(t *testing.T) {
	r := NewReader(strings.NewReader(sample))
	ch, err := r.Stream(context.Background())
	require.NoError(t, err)

	var urls []string
	for rec := range ch {
		urls = append(urls, rec.URL)
	}
	assert.Equal(t, []string{"/index.html", "/admin/shell.exe", "/x"}, urls)
	assert.NoError(t, r.Err())
}

func TestStreamReportsReadError(t *testing.T) {
	long := strings.Repeat("x", 2*1024*1024)
	r := NewReader(strings.NewReader(sample + long + "\n"))
	ch, err := r.Stream(context.Background())
	require.NoError(t, err)

	n := 0
	for range ch {
		n++
	}
	assert.Equal(t, 3, n)
	assert.ErrorIs(t, r.Err(), bufio.ErrTooLong)
}
