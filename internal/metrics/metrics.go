// Package metrics records pipeline batch metrics in a prometheus registry
// and exports them as a node-exporter textfile.
package metrics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the batch metrics of one process. It implements
// pipeline.Observer.
type Recorder struct {
	registry *prometheus.Registry

	stageDuration *prometheus.HistogramVec
	stageRows     *prometheus.CounterVec
	rowsScored    *prometheus.CounterVec
	anomalies     *prometheus.CounterVec
	anomalyRate   *prometheus.GaugeVec
	lastRun       prometheus.Gauge
}

// New creates a recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		stageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "logguard_stage_duration_seconds",
				Help:    "Pipeline stage duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4min
			},
			[]string{"schema", "stage"},
		),
		stageRows: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logguard_stage_rows_total",
				Help: "Rows processed per pipeline stage",
			},
			[]string{"schema", "stage"},
		),
		rowsScored: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logguard_rows_scored_total",
				Help: "Rows scored by the anomaly model",
			},
			[]string{"schema"},
		),
		anomalies: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logguard_anomalies_total",
				Help: "Rows flagged as anomalous",
			},
			[]string{"schema"},
		),
		anomalyRate: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "logguard_batch_anomaly_ratio",
				Help: "Share of rows flagged in the last scored batch",
			},
			[]string{"schema"},
		),
		lastRun: f.NewGauge(prometheus.GaugeOpts{
			Name: "logguard_last_run_timestamp_seconds",
			Help: "Unix time of the last completed batch",
		}),
	}
}

// ObserveStage records one pipeline stage.
func (r *Recorder) ObserveStage(schema, stage string, rows int, elapsed time.Duration) {
	r.stageDuration.WithLabelValues(schema, stage).Observe(elapsed.Seconds())
	r.stageRows.WithLabelValues(schema, stage).Add(float64(rows))
}

// ObserveVerdicts records the outcome of one scored batch.
func (r *Recorder) ObserveVerdicts(schema string, scored, flagged int) {
	r.rowsScored.WithLabelValues(schema).Add(float64(scored))
	r.anomalies.WithLabelValues(schema).Add(float64(flagged))
	if scored > 0 {
		r.anomalyRate.WithLabelValues(schema).Set(float64(flagged) / float64(scored))
	}
	r.lastRun.SetToCurrentTime()
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile atomically writes all metrics to path in the text
// exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
