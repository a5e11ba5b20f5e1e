package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UnitsReservedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serial_units_reserved_total",
		Help: "Total number of serial units moved to hold",
	})

	UnitsSoldTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serial_units_sold_total",
		Help: "Total number of serial units finalized as sold",
	})

	UnitsReleasedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serial_units_released_total",
		Help: "Total number of held serial units released back to available",
	})

	ReservationsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservations_failed_total",
		Help: "Total number of failed reservation attempts",
	}, []string{"reason"})

	ReserveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reservation_claim_latency_seconds",
		Help:    "Latency of serial unit claim operations",
		Buckets: prometheus.DefBuckets,
	})

	CartMergesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cart_merges_total",
		Help: "Total number of successful cart merges",
	})

	CartMergesFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_merges_failed_total",
		Help: "Total number of failed cart merges",
	}, []string{"reason"})

	CartMergeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cart_merge_latency_seconds",
		Help:    "Latency of lock-guarded cart merge operations",
		Buckets: prometheus.DefBuckets,
	})

	LockAcquireBusyTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lock_acquire_busy_total",
		Help: "Total number of lock acquisitions rejected because the lock was held",
	})

	ReleaseJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "release_jobs_total",
		Help: "Total number of reservation release jobs processed",
	}, []string{"outcome"})

	ReleaseJobLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "release_job_latency_seconds",
		Help:    "Latency of individual release job processing",
		Buckets: prometheus.DefBuckets,
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
