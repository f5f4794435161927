// Package metrics exposes Prometheus counters for ledger activity.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// OperationsTotal counts ledger operations by name and outcome.
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greentrace_operations_total",
			Help: "Number of ledger operations processed, by operation and status.",
		},
		[]string{"operation", "status"},
	)

	// RateLimitedTotal counts operations rejected by the rate limiter.
	RateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "greentrace_rate_limited_total",
			Help: "Number of operations rejected by the per-identity rate limiter.",
		},
	)

	// ProductsRegisteredTotal counts successful product registrations.
	ProductsRegisteredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "greentrace_products_registered_total",
			Help: "Number of products registered.",
		},
	)

	// CreditsIssuedTotal counts carbon credits minted through offset purchases.
	CreditsIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "greentrace_carbon_credits_issued_total",
			Help: "Number of carbon credits issued.",
		},
	)

	// EventsAnnouncedTotal counts ledger events announced to peers.
	EventsAnnouncedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greentrace_events_announced_total",
			Help: "Number of ledger events announced to peers, by type.",
		},
		[]string{"type"},
	)
)

// Register registers all collectors with the default registry. Call once at
// startup.
func Register() {
	prometheus.MustRegister(
		OperationsTotal,
		RateLimitedTotal,
		ProductsRegisteredTotal,
		CreditsIssuedTotal,
		EventsAnnouncedTotal,
	)
}
