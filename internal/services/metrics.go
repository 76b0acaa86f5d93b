package services

import "github.com/prometheus/client_golang/prometheus"

// profileResolves counts profile resolutions by staleness tier and outcome
// (ok, fallback, error).
var profileResolves = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "profile_resolve_total",
		Help: "Birth profile resolutions by tier and outcome.",
	},
	[]string{"tier", "outcome"},
)

// sweptRows counts rows removed by the reaper per table.
var sweptRows = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "reaper_deleted_total",
		Help: "Rows removed by the expiry sweep.",
	},
	[]string{"table"},
)

func init() {
	prometheus.MustRegister(profileResolves, sweptRows)
}
