package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder receives operation timings and domain counters.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
	CountMerge(t string, outcome string)
	CountVerdict(verdict string, origin string)
}

// Verdict origins.
const (
	OriginHeuristic = "heuristic"
	OriginCache     = "cache"
	OriginHuman     = "human"
)

// Merge outcomes.
const (
	MergeMerged = "merged"
	MergeDenied = "denied"
)

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}
func (noopMetrics) CountMerge(string, string)                            {}
func (noopMetrics) CountVerdict(string, string)                          {}

// PrometheusRecorder exports service metrics through client_golang.
type PrometheusRecorder struct {
	durations *prometheus.HistogramVec
	merges    *prometheus.CounterVec
	verdicts  *prometheus.CounterVec
}

// NewPrometheusRecorder registers the service collectors with reg.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	r := &PrometheusRecorder{
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "interactiondb_operation_duration_seconds",
			Help:    "Duration of service operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "status"}),
		merges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interactiondb_merges_total",
			Help: "Entity merges by type and outcome.",
		}, []string{"type", "outcome"}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interactiondb_conflict_verdicts_total",
			Help: "Conflict verdicts by verdict and origin.",
		}, []string{"verdict", "origin"}),
	}
	for _, c := range []prometheus.Collector{r.durations, r.merges, r.verdicts} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *PrometheusRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.durations.WithLabelValues(operation, status).Observe(duration.Seconds())
}

func (r *PrometheusRecorder) CountMerge(t string, outcome string) {
	r.merges.WithLabelValues(t, outcome).Inc()
}

func (r *PrometheusRecorder) CountVerdict(verdict string, origin string) {
	r.verdicts.WithLabelValues(verdict, origin).Inc()
}
