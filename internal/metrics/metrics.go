// Package metrics exposes the server's Prometheus counters and gauges,
// served from /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ItemsIngested counts successful item inserts, labeled by kind.
	ItemsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diskuto",
		Name:      "items_ingested_total",
		Help:      "Number of items successfully stored, by kind.",
	}, []string{"kind"})

	// BytesStored tracks the cumulative bytes written across item rows and
	// completed attachment blobs.
	BytesStored = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diskuto",
		Name:      "bytes_stored_total",
		Help:      "Cumulative bytes written to storage, by kind (item, attachment).",
	}, []string{"kind"})

	// IngestRejections counts items rejected at ingestion, by reason.
	IngestRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diskuto",
		Name:      "ingest_rejections_total",
		Help:      "Number of items rejected at ingestion, by reason.",
	}, []string{"reason"})

	// HTTPRequests counts HTTP responses by route and status code.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diskuto",
		Name:      "http_requests_total",
		Help:      "HTTP requests served, by route and status code.",
	}, []string{"route", "status"})

	// BlobStoreBytes is a gauge of total bytes currently committed to the
	// content-addressed blob store, refreshed periodically by the sweeper.
	BlobStoreBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "diskuto",
		Name:      "blob_store_bytes",
		Help:      "Total bytes currently committed to the blob store.",
	})
)
