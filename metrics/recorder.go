// Package metrics records pipeline stage outcomes as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "assetpipe"

// Outcome labels a finished stage run.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Document result labels.
const (
	ResultCreated  = "created"
	ResultUpdated  = "updated"
	ResultDeleted  = "deleted"
	ResultConflict = "conflict"
	ResultFailed   = "failed"
	ResultIndexed  = "indexed"
)

// Recorder holds the pipeline metrics on its own registry.
type Recorder struct {
	registry  *prometheus.Registry
	stageRuns *prometheus.CounterVec
	documents *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewRecorder creates a Recorder with a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		stageRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_runs_total",
			Help:      "Pipeline stage runs by outcome.",
		}, []string{"stage", "outcome"}),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_total",
			Help:      "Documents handled by pipeline stages, by result.",
		}, []string{"stage", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall-clock duration of pipeline stages.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"stage"}),
	}
	r.registry.MustRegister(r.stageRuns, r.documents, r.duration)
	return r
}

// Registry exposes the registry for serving or gathering.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveStage records one finished run of a stage.
func (r *Recorder) ObserveStage(stage string, outcome Outcome, took time.Duration) {
	r.stageRuns.WithLabelValues(stage, string(outcome)).Inc()
	r.duration.WithLabelValues(stage).Observe(took.Seconds())
}

// AddDocuments adds n documents with the given result to a stage. Non-positive
// counts are ignored.
func (r *Recorder) AddDocuments(stage, result string, n int64) {
	if n <= 0 {
		return
	}
	r.documents.WithLabelValues(stage, result).Add(float64(n))
}

// WriteTextfile writes every metric to path in the text exposition format,
// replacing the file atomically.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
