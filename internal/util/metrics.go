package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SnapshotsBuiltTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "material_snapshots_built_total",
		Help: "Total number of requirement snapshots built",
	})

	ReservationsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "material_reservations_created_total",
		Help: "Total number of lot reservations created",
	}, []string{"policy"})

	ReservationsReleasedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "material_reservations_released_total",
		Help: "Total number of lot reservations released",
	})

	ReservationShortagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "material_reservation_shortages_total",
		Help: "Total number of under-allocated requirements",
	})

	ConsumptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "material_consumptions_total",
		Help: "Total number of consumptions recorded",
	})

	ConsumptionsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "material_consumptions_failed_total",
		Help: "Total number of rejected consumption attempts",
	}, []string{"reason"})

	ReversalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "material_reversals_total",
		Help: "Total number of consumption reversals",
	})

	OverConsumptionRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "material_over_consumption_requests_total",
		Help: "Total number of over-consumption approval requests",
	})

	OverConsumptionDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "material_over_consumption_decisions_total",
		Help: "Total number of over-consumption decisions",
	}, []string{"decision"})

	AllocationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "material_allocation_latency_seconds",
		Help:    "Latency of auto-reserve allocation passes",
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
