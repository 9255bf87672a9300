package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts ingestion runs.
	// Labels: result (success, error)
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdocs",
			Subsystem: "ingest",
			Name:      "runs_total",
			Help:      "Total number of ingestion runs by result",
		},
		[]string{"result"},
	)

	// FilesTotal counts loaded files.
	FilesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ragdocs",
			Subsystem: "ingest",
			Name:      "files_total",
			Help:      "Total number of files loaded",
		},
	)

	// ChunksTotal counts chunks written to the store.
	ChunksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ragdocs",
			Subsystem: "ingest",
			Name:      "chunks_total",
			Help:      "Total number of chunks written to the vector store",
		},
	)

	// RunDuration tracks end-to-end ingestion latency.
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ragdocs",
			Subsystem: "ingest",
			Name:      "run_duration_seconds",
			Help:      "Duration of ingestion runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)
)
