// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	// DispatchesTotal counts dispatch runs by terminal state (DONE or FAILED).
	DispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_dispatches_total",
			Help: "Total number of message dispatches by terminal state",
		},
		[]string{"state"},
	)

	// DeliveriesTotal counts per-target outcomes: delivered or skipped.
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_deliveries_total",
			Help: "Total number of delivery attempts by channel kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_dispatch_duration_seconds",
			Help:    "Duration of a full dispatch in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"state"},
	)

	DeliveryLogsPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_delivery_logs_persisted_total",
			Help: "Total number of delivery log rows committed",
		},
	)

	SubscriberCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_subscriber_cache_lookups_total",
			Help: "Subscriber cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)
)
