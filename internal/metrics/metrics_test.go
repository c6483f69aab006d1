package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/logguard/pkg/pipeline"
)

var _ pipeline.Observer = (*Recorder)(nil)

func TestRecorder(t *testing.T) {
	r := New()
	r.ObserveStage("http", "score", 105, 20*time.Millisecond)
	r.ObserveStage("http", "score", 45, 10*time.Millisecond)
	r.ObserveVerdicts("http", 150, 6)

	families, err := r.Registry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	for _, want := range []string{
		"logguard_stage_duration_seconds",
		"logguard_stage_rows_total",
		"logguard_rows_scored_total",
		"logguard_anomalies_total",
		"logguard_batch_anomaly_ratio",
		"logguard_last_run_timestamp_seconds",
	} {
		assert.True(t, names[want], want)
	}
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.ObserveStage("auth", "fit", 73, time.Second)
	r.ObserveVerdicts("auth", 73, 6)

	path := filepath.Join(t.TempDir(), "textfile", "logguard.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `logguard_stage_rows_total{schema="auth",stage="fit"} 73`)
	assert.Contains(t, text, `logguard_anomalies_total{schema="auth"} 6`)
	assert.Contains(t, text, `logguard_rows_scored_total{schema="auth"} 73`)
}

func TestZeroBatchKeepsRatio(t *testing.T) {
	r := New()
	r.ObserveVerdicts("http", 10, 5)
	r.ObserveVerdicts("http", 0, 0)

	path := filepath.Join(t.TempDir(), "m.prom")
	require.NoError(t, r.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `logguard_batch_anomaly_ratio{schema="http"} 0.5`)
}
