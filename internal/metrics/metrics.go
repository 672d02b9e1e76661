// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "campus_knowledge"

var (
	// IngestionsTotal counts normalization attempts.
	// Labels: source_type (uploaded, authored, web-imported), outcome (success, not_found, fetch_failed, parse_failed, error)
	IngestionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "documents_total",
		Help:      "Number of ingestion attempts by source type and outcome.",
	}, []string{"source_type", "outcome"})

	IngestionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "duration_seconds",
		Help:      "Time spent normalizing a source into canonical text.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"source_type"})

	TempFiles = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "temp_files",
		Help:      "Temporary download files currently on disk.",
	})

	// ClassificationsTotal counts classified queries.
	// Labels: category, fallback (true when the classifier failed and Uncategorized was substituted)
	ClassificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "classifier",
		Name:      "queries_total",
		Help:      "Number of classified queries by category.",
	}, []string{"category", "fallback"})

	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "active",
		Help:      "Answer streams currently open.",
	})

	// StreamsTotal counts finished answer streams.
	// Labels: outcome (complete, error, cancelled, superseded)
	StreamsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "finished_total",
		Help:      "Number of finished answer streams by outcome.",
	}, []string{"outcome"})
)
