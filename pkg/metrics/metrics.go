// Package metrics exposes Prometheus instrumentation for extraction runs.
// All collectors are registered at init time via promauto and labeled by the
// logical object being extracted.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PagesFetched counts pages pulled from the upstream API.
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hublift_pages_fetched_total",
			Help: "Total number of API pages fetched",
		},
		[]string{"object"},
	)

	// RecordsExtracted counts raw records collected from page bodies before
	// normalization splits them into groups.
	RecordsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hublift_records_extracted_total",
			Help: "Total number of raw records extracted from API pages",
		},
		[]string{"object"},
	)

	// FlushesTotal counts intermediate buffer flushes during pagination.
	FlushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hublift_flushes_total",
			Help: "Total number of intermediate batch flushes",
		},
		[]string{"object"},
	)

	// RequestRetries counts retried page fetches.
	RequestRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hublift_request_retries_total",
			Help: "Total number of retried API requests",
		},
		[]string{"object"},
	)

	// BlobsWritten counts blobs persisted to object storage.
	BlobsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hublift_blobs_written_total",
			Help: "Total number of blobs written to object storage",
		},
		[]string{"object", "group"},
	)

	// UploadBytes counts serialized bytes handed to object storage.
	UploadBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hublift_upload_bytes_total",
			Help: "Total serialized bytes uploaded to object storage",
		},
		[]string{"object"},
	)

	// UploadDuration tracks object storage upload latency.
	UploadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hublift_upload_duration_seconds",
			Help:    "Object storage upload latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"object"},
	)

	// RunsCompleted counts finished extraction runs by outcome.
	RunsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hublift_runs_completed_total",
			Help: "Total number of completed extraction runs",
		},
		[]string{"object", "status"},
	)
)
