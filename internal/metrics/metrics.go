package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	availabilityChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tablero",
			Name:      "availability_checks_total",
			Help:      "Count of availability checks by result kind.",
		},
		[]string{"kind"},
	)

	allocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tablero",
			Name:      "allocations_total",
			Help:      "Count of allocation attempts by outcome.",
		},
		[]string{"outcome"},
	)

	sweepReleased = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tablero",
			Name:      "sweep_released_total",
			Help:      "Count of reservations completed by the release sweeper.",
		},
	)

	auditFindings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tablero",
			Name:      "audit_findings_total",
			Help:      "Count of conflict auditor findings by severity.",
		},
		[]string{"severity"},
	)

	storeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tablero",
			Name:      "store_errors_total",
			Help:      "Count of storage backend failures by backend and operation.",
		},
		[]string{"backend", "op"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tablero",
			Name:      "http_requests_total",
			Help:      "Count of HTTP API requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(availabilityChecks, allocations, sweepReleased, auditFindings, storeErrors, httpRequests)
	})
}

func IncAvailabilityCheck(kind string) {
	availabilityChecks.WithLabelValues(kind).Inc()
}

func IncAllocation(outcome string) {
	allocations.WithLabelValues(outcome).Inc()
}

func IncSweepReleased() {
	sweepReleased.Inc()
}

func IncAuditFinding(severity string) {
	auditFindings.WithLabelValues(severity).Inc()
}

func IncStoreError(backend, op string) {
	storeErrors.WithLabelValues(backend, op).Inc()
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
