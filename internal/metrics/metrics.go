// Package metrics defines the Prometheus collectors shared by every
// service, ported from original_source/finpay/common/metrics.py and
// registered with promauto the way the teacher's src/metrics/prometheus.go
// does.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "payment_requests_total", Help: "Total payment requests"},
		[]string{"service"},
	)
	PaymentSuccessTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "payment_success_total", Help: "Total successful payments"},
		[]string{"service"},
	)
	PaymentFailureTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "payment_failure_total", Help: "Total failed payments"},
		[]string{"service"},
	)
	PaymentE2ESeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_e2e_seconds",
			Help:    "Payment end-to-end duration seconds from CREATED to terminal",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "terminal_state"},
	)
	EventQueueDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "event_queue_delay_seconds",
			Help:    "Event queue delay seconds between occurred_at and consume time",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "topic"},
	)
	PaymentLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_latency_seconds",
			Help:    "Per-service processing latency for one payment event",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	OutboxPendingTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{Name: "outbox_pending_total", Help: "Current count of outbox events not yet sent"},
		[]string{"service"},
	)
	OutboxOldestPendingAgeSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox event",
		},
		[]string{"service"},
	)
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "retries_total", Help: "Retry count"},
		[]string{"service", "dependency"},
	)
	DLQPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "dlq_published_total", Help: "Total DLQ events published"},
		[]string{"service", "topic", "error_type"},
	)
	DuplicateEventsSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "duplicate_events_skipped_total", Help: "Duplicate inbox events skipped"},
		[]string{"service", "topic"},
	)
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests"},
		[]string{"service", "route", "method", "status_code"},
	)
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "route", "method"},
	)
)
