// Package observability registers service-level Prometheus metrics.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	completionPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "routine_service",
		Subsystem: "persistence",
		Name:      "last_completion_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent completion record persisted to Postgres.",
	})
	completionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "routine_service",
		Subsystem: "tracker",
		Name:      "completions_total",
		Help:      "Number of completion operations, labeled single or bulk.",
	}, []string{"kind"})
	resolutionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "routine_service",
		Subsystem: "resolver",
		Name:      "resolutions_total",
		Help:      "Number of free-text resolutions by confidence tier.",
	}, []string{"confidence"})
	milestoneCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "routine_service",
		Subsystem: "tracker",
		Name:      "milestones_total",
		Help:      "Number of milestone awards enqueued, labeled by kind.",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(completionPersistGauge, completionCounter, resolutionCounter, milestoneCounter)
}

// RecordCompletionPersisted updates the persistence watermark gauge.
func RecordCompletionPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	completionPersistGauge.Set(float64(ts.Unix()))
}

// RecordCompletion counts a completion operation.
func RecordCompletion(kind string) {
	completionCounter.WithLabelValues(kind).Inc()
}

// RecordResolution counts a resolution outcome by confidence tier.
func RecordResolution(confidence string) {
	resolutionCounter.WithLabelValues(confidence).Inc()
}

// RecordMilestone counts a milestone award by kind.
func RecordMilestone(kind string) {
	milestoneCounter.WithLabelValues(kind).Inc()
}
