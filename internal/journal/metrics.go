package journal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSucceeded = "succeeded"
	outcomeFailed    = "failed"
	outcomeRejected  = "rejected"
)

var (
	submissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deardiary",
			Subsystem: "journal",
			Name:      "submissions_total",
			Help:      "Entry submissions by final outcome.",
		},
		[]string{"outcome"},
	)

	affirmationsDegradedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "deardiary",
			Subsystem: "journal",
			Name:      "affirmations_degraded_total",
			Help:      "Entries saved with an empty affirmation after generation failed.",
		},
	)

	generationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "deardiary",
			Subsystem: "journal",
			Name:      "generation_duration_seconds",
			Help:      "Latency of individual affirmation generation attempts.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	backgroundTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deardiary",
			Subsystem: "journal",
			Name:      "background_tasks_total",
			Help:      "Fire-and-forget tasks by name and outcome.",
		},
		[]string{"task", "outcome"},
	)
)
