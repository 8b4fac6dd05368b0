// Package metrics exports stage timings and outcomes in the Prometheus text
// format. The collectors live on a private registry so a run only reports
// its own stages, and the file is meant for node_exporter's textfile
// collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kingrea/cbuildbot/internal/pipeline"
)

const namespace = "cbuildbot"

const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Recorder is a pipeline.Listener that feeds Prometheus collectors.
type Recorder struct {
	registry      *prometheus.Registry
	stageDuration *prometheus.HistogramVec
	stageTotal    *prometheus.CounterVec
	syncRetries   prometheus.Counter
	lastSuccess   *prometheus.GaugeVec
	clock         func() time.Time
}

var _ pipeline.Listener = (*Recorder)(nil)

// New registers the collectors on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Wall time spent in each pipeline stage",
				Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600, 7200, 14400},
			},
			[]string{"stage", "outcome"},
		),
		stageTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_total",
				Help:      "Pipeline stages by outcome",
			},
			[]string{"stage", "outcome"},
		),
		syncRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_retries_total",
			Help:      "Failed source sync attempts",
		}),
		lastSuccess: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stage_last_success_timestamp_seconds",
				Help:      "Unix time a stage last finished successfully",
			},
			[]string{"stage"},
		),
		clock: time.Now,
	}
	r.registry.MustRegister(r.stageDuration, r.stageTotal, r.syncRetries, r.lastSuccess)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) StageStarted(pipeline.Stage) {}

func (r *Recorder) StageSkipped(stage pipeline.Stage, _ string) {
	r.stageTotal.WithLabelValues(string(stage), OutcomeSkipped).Inc()
}

func (r *Recorder) StageFinished(stage pipeline.Stage, elapsed time.Duration, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeFailed
	}
	r.stageTotal.WithLabelValues(string(stage), outcome).Inc()
	r.stageDuration.WithLabelValues(string(stage), outcome).Observe(elapsed.Seconds())
	if err == nil {
		r.lastSuccess.WithLabelValues(string(stage)).Set(float64(r.clock().Unix()))
	}
}

func (r *Recorder) SyncAttemptFailed(int, error, int) {
	r.syncRetries.Inc()
}

// WriteTextfile atomically writes every collected metric to path.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
