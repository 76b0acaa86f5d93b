package astro

import "github.com/prometheus/client_golang/prometheus"

// upstreamFetches counts cached-category fetches by category and outcome
// (ok|error). Proxy pass-through calls are covered by the HTTP metrics.
var upstreamFetches = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "upstream_fetch_total",
		Help: "Upstream fact category fetches by outcome.",
	},
	[]string{"category", "outcome"},
)

func init() {
	prometheus.MustRegister(upstreamFetches)
}
