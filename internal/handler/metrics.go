package handler

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	checkoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "checkout_service",
			Subsystem: "orders",
			Name:      "checkouts_total",
			Help:      "Total number of checkout attempts by payment method and outcome",
		},
		[]string{"method", "outcome"},
	)

	settlementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "checkout_service",
			Subsystem: "payments",
			Name:      "settlements_total",
			Help:      "Total number of settlement notifications applied by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	callbacksRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "checkout_service",
			Subsystem: "payments",
			Name:      "callbacks_rejected_total",
			Help:      "Total number of provider callbacks rejected before any mutation",
		},
		[]string{"provider"},
	)

	stockConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "checkout_service",
			Subsystem: "orders",
			Name:      "stock_conflicts_total",
			Help:      "Total number of requests rejected due to insufficient stock",
		},
	)
)

func RegisterMetrics() {
	prometheus.MustRegister(
		checkoutsTotal,
		settlementsTotal,
		callbacksRejected,
		stockConflicts,
	)
}
