package insights

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeRecorded       = "recorded"
	outcomeBelowThreshold = "below_threshold"
	outcomeError          = "error"

	outcomeAccepted = "accepted"
	outcomeDropped  = "dropped"
)

var (
	// recordsTotal counts Record calls.
	// Labels: outcome (recorded, below_threshold, error)
	recordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insightd",
			Subsystem: "insights",
			Name:      "records_total",
			Help:      "Total number of insight recording attempts by outcome",
		},
		[]string{"outcome"},
	)

	// eventsTotal counts published events.
	// Labels: type (recorded, deleted), result (success, error)
	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insightd",
			Subsystem: "insights",
			Name:      "events_total",
			Help:      "Total number of insight events published",
		},
		[]string{"type", "result"},
	)

	// recorderJobsTotal counts Submit calls.
	// Labels: outcome (accepted, dropped)
	recorderJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insightd",
			Subsystem: "recorder",
			Name:      "jobs_total",
			Help:      "Total number of recording jobs submitted by outcome",
		},
		[]string{"outcome"},
	)

	recorderQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "insightd",
			Subsystem: "recorder",
			Name:      "queue_depth",
			Help:      "Number of recording jobs waiting for a worker",
		},
	)

	recorderJobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "insightd",
			Subsystem: "recorder",
			Name:      "job_duration_seconds",
			Help:      "Duration of recording jobs in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func eventResult(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
