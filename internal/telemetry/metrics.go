// Package telemetry exposes Prometheus counters for verification
// outcomes and DNS lookups so an embedding host can scrape authority
// engine health the same way the rest of this codebase instruments
// itself.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

var (
	VerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crypto_licensing_verifications_total",
			Help: "Total license verification attempts by outcome code.",
		},
		[]string{"code"},
	)

	DNSLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crypto_licensing_dns_lookups_total",
			Help: "Total DKIM TXT lookups by result (hit, miss, cached).",
		},
		[]string{"result"},
	)

	DependencyDepth = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crypto_licensing_dependency_depth",
			Help:    "Depth of the dependency tree walked during verification.",
			Buckets: []float64{0, 1, 2, 4, 8, 16},
		},
	)
)

// MustRegister registers all collectors in this package against reg.
// Call once at process startup.
func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(VerificationsTotal, DNSLookupsTotal, DependencyDepth)
}
