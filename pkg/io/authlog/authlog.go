// Package authlog supplies authentication events to the auth pipeline.
// Any source that yields timestamp, user, source address and outcome can
// implement Supplier.
package authlog

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"github.com/hed1ad/logguard/pkg/features"
)

// Windows security event ids for logon outcomes.
const (
	EventLogonSuccess = 4624
	EventLogonFailure = 4625
)

// Supplier yields a batch of authentication events.
type Supplier interface {
	Events(ctx context.Context) ([]features.AuthEvent, error)
}

// Static is a Supplier over an in-memory batch.
type Static []features.AuthEvent

// Events returns the batch.
func (s Static) Events(ctx context.Context) ([]features.AuthEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s, nil
}

// JSONLines reads one JSON object per line. Recognized keys:
//
//	timestamp                      string in a features.TimeLayouts layout, or unix seconds
//	user | username                account name
//	src_ip | source_ip | ip        source address
//	login_success | success        bool or 0/1
//	event_code                     4624 or 4625, used when no outcome key is present
//
// Lines that are not JSON objects are skipped. An object with no outcome is
// kept as an attempt from its source with failed_login 0, so the source's
// attempt count stays complete.
type JSONLines struct {
	r         io.Reader
	logger    *zap.Logger
	parser    fastjson.Parser
	skipped   int
	noOutcome int
}

// Option configures a JSONLines supplier.
type Option func(*JSONLines)

// WithLogger sets the logger used to report skipped lines.
func WithLogger(l *zap.Logger) Option {
	return func(j *JSONLines) {
		j.logger = l
	}
}

// NewJSONLines returns a supplier reading from r.
func NewJSONLines(r io.Reader, opts ...Option) *JSONLines {
	j := &JSONLines{r: r, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// ReadFile reads every event of a JSON-lines file.
func ReadFile(ctx context.Context, filename string, opts ...Option) ([]features.AuthEvent, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	events, err := NewJSONLines(f, opts...).Events(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return events, nil
}

// Events reads the source to the end.
func (j *JSONLines) Events(ctx context.Context) ([]features.AuthEvent, error) {
	sc := bufio.NewScanner(j.r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var events []features.AuthEvent
	line := 0
	for sc.Scan() {
		line++
		if line%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		v, err := j.parser.ParseBytes(raw)
		if err != nil || v.Type() != fastjson.TypeObject {
			j.skip(line, "not a JSON object")
			continue
		}
		ev, ok := decode(v)
		if !ok {
			j.noOutcome++
			j.logger.Debug("auth event without outcome", zap.Int("line", line))
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w", line+1, err)
	}
	if j.skipped > 0 {
		j.logger.Warn("skipped auth event lines", zap.Int("skipped", j.skipped), zap.Int("lines", line))
	}
	if j.noOutcome > 0 {
		j.logger.Warn("auth events without outcome kept as non-failures", zap.Int("events", j.noOutcome))
	}
	return events, nil
}

// Skipped returns the number of lines skipped so far.
func (j *JSONLines) Skipped() int {
	return j.skipped
}

// NoOutcome returns the number of events read without a logon outcome.
func (j *JSONLines) NoOutcome() int {
	return j.noOutcome
}

func (j *JSONLines) skip(line int, reason string) {
	j.skipped++
	j.logger.Debug("auth event line skipped", zap.Int("line", line), zap.String("reason", reason))
}

func decode(v *fastjson.Value) (features.AuthEvent, bool) {
	ev := features.AuthEvent{
		User:     firstString(v, "user", "username"),
		SourceIP: firstString(v, "src_ip", "source_ip", "ip"),
	}

	if ts := v.Get("timestamp"); ts != nil {
		switch ts.Type() {
		case fastjson.TypeString:
			ev.RawTime = string(ts.GetStringBytes())
			if t, err := features.ParseTime(ev.RawTime); err == nil {
				ev.Timestamp = t
			}
		case fastjson.TypeNumber:
			sec := ts.GetFloat64()
			ev.RawTime = strconv.FormatFloat(sec, 'f', -1, 64)
			ev.Timestamp = time.Unix(int64(sec), 0).UTC()
		}
	}

	success, ok := outcome(v)
	ev.Success = success || !ok
	return ev, ok
}

func outcome(v *fastjson.Value) (success, ok bool) {
	for _, key := range []string{"login_success", "success"} {
		f := v.Get(key)
		if f == nil {
			continue
		}
		switch f.Type() {
		case fastjson.TypeTrue:
			return true, true
		case fastjson.TypeFalse:
			return false, true
		case fastjson.TypeNumber:
			return f.GetInt() != 0, true
		}
	}
	switch v.GetInt("event_code") {
	case EventLogonSuccess:
		return true, true
	case EventLogonFailure:
		return false, true
	}
	return false, false
}

func firstString(v *fastjson.Value, keys ...string) string {
	for _, k := range keys {
		if s := v.GetStringBytes(k); len(s) > 0 {
			return string(s)
		}
	}
	return ""
}
