package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProductsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agrichain_products_created_total",
		Help: "Total number of products registered",
	})

	StateTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agrichain_state_transitions_total",
		Help: "Total number of product state transitions by target state",
	}, []string{"state"})

	TransfersExecutedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agrichain_transfers_executed_total",
		Help: "Total number of executed custody transfers",
	})

	EscrowHeldTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agrichain_escrow_held_total",
		Help: "Total funds captured into escrow, in smallest currency units",
	})

	EscrowReleasedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agrichain_escrow_released_total",
		Help: "Total escrowed funds released to sellers, in smallest currency units",
	})

	EscrowRefundedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agrichain_escrow_refunded_total",
		Help: "Total escrowed funds refunded to buyers, in smallest currency units",
	})

	RatingsRecordedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agrichain_ratings_recorded_total",
		Help: "Total ratings recorded by rated role",
	}, []string{"role"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agrichain_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agrichain_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
