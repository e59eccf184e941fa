// Package metrics holds the Prometheus collectors shared by the sync pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncCycles counts finished sync cycles by outcome and trigger
	SyncCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docsync_sync_cycles_total",
		Help: "Finished sync cycles by status and trigger",
	}, []string{"status", "trigger"})

	// SyncDuration tracks wall time of a sync cycle
	SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "docsync_sync_duration_seconds",
		Help:    "Sync cycle duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17min
	})

	// AnalysisAttempts counts calls to the analysis collaborator by tag
	AnalysisAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docsync_analysis_attempts_total",
		Help: "Analysis collaborator attempts by delimiter tag",
	}, []string{"tag"})

	// AnalysisFailures counts failed attempts by tag and stage (call, extract)
	AnalysisFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docsync_analysis_failures_total",
		Help: "Failed analysis attempts by delimiter tag and stage",
	}, []string{"tag", "stage"})

	// CatalogNodesWritten counts catalog rows written by reconciliation
	CatalogNodesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docsync_catalog_nodes_written_total",
		Help: "Catalog nodes written by kind (add, update, delete)",
	}, []string{"kind"})

	// QueueDropped counts access-log events lost to the overflow policy
	QueueDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docsync_access_log_dropped_total",
		Help: "Access-log events dropped on enqueue because the queue was full",
	})

	// QueueDiscarded counts access-log events left over at the shutdown deadline
	QueueDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docsync_access_log_discarded_total",
		Help: "Access-log events discarded when the drain deadline passed",
	})

	// QueueDepth reports the approximate access-log queue length
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "docsync_access_log_queue_depth",
		Help: "Approximate number of queued access-log events",
	})

	// AccessLogWriteFailures counts events the store refused
	AccessLogWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docsync_access_log_write_failures_total",
		Help: "Access-log events that failed to persist",
	})
)
