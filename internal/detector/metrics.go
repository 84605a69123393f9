package detector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSkipped = "skipped"
	outcomeNoMatch = "no_match"
	outcomeMatch   = "match"
)

var (
	// scansTotal counts Detect calls.
	// Labels: outcome (skipped, no_match, match)
	scansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insightd",
			Subsystem: "detector",
			Name:      "scans_total",
			Help:      "Total number of text scans by outcome",
		},
		[]string{"outcome"},
	)

	// detectionsTotal counts reported results.
	// Labels: pattern_type
	detectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insightd",
			Subsystem: "detector",
			Name:      "detections_total",
			Help:      "Total number of pattern detections by pattern type",
		},
		[]string{"pattern_type"},
	)

	scanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "insightd",
			Subsystem: "detector",
			Name:      "scan_duration_seconds",
			Help:      "Duration of text scans in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
	)
)
