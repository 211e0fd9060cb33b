// Package metrics exposes Prometheus instrumentation for the Argus
// ingestion and detection pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_events_ingested_total",
			Help: "Total number of events ingested",
		},
		[]string{"format"},
	)

	LinesRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_lines_rejected_total",
			Help: "Total number of log lines no parser recognized",
		},
	)

	AlertsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_alerts_generated_total",
			Help: "Total number of alerts generated",
		},
		[]string{"type", "severity"},
	)

	AlertsMerged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_alerts_merged_total",
			Help: "Total number of alert drafts merged into an existing alert",
		},
		[]string{"type"},
	)

	DetectorErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_detector_errors_total",
			Help: "Total number of detector failures",
		},
		[]string{"detector"},
	)

	DetectionCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "argus_detection_cycle_duration_seconds",
			Help:    "Time taken to run one full detection cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	DeadLetterInsertFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_dead_letter_insert_failures_total",
			Help: "Total number of dead letter insertion failures",
		},
	)
)
