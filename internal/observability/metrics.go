// README: Prometheus collectors for fare computation, quotes, snapshot refresh and HTTP traffic.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FaresComputedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "fleetfare", Name: "fares_computed_total", Help: "Fare computations by kind and outcome"},
		[]string{"kind", "outcome"},
	)
	FareComputeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fleetfare",
			Name:      "fare_compute_duration_seconds",
			Help:      "Fare computation latency",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
		},
		[]string{"kind"},
	)
	SurgeMultiplierApplied = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fleetfare",
		Name:      "surge_multiplier_applied",
		Help:      "Surge multiplier applied to computed fares",
		Buckets:   []float64{0.5, 1, 1.25, 1.5, 2, 2.5, 3, 4},
	})
	SnapshotRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "fleetfare", Name: "snapshot_refresh_total", Help: "Pricing snapshot refreshes by outcome"},
		[]string{"outcome"},
	)
	QuotesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "fleetfare", Name: "quotes_total", Help: "Fare quotes by operation and outcome"},
		[]string{"op", "outcome"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "fleetfare", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fleetfare",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Outcome labels a computation result for the counters above.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
