package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RunTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pipeline",
			Subsystem: "runs",
			Name:      "transitions_total",
			Help:      "Total run state transitions by target state",
		},
		[]string{"state"},
	)

	RunFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pipeline",
			Subsystem: "runs",
			Name:      "failures_total",
			Help:      "Total runs that reached FAILED",
		},
	)

	TrainingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pipeline",
			Subsystem: "runs",
			Name:      "training_duration_seconds",
			Help:      "Wall time spent in the TRAINING phase",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		},
	)

	InferenceRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pipeline",
			Subsystem: "inference",
			Name:      "requests_total",
			Help:      "Total inference requests by refusal outcome",
		},
		[]string{"refused"},
	)
)

func init() {
	prometheus.MustRegister(RunTransitions, RunFailures, TrainingDuration, InferenceRequests)
}
