package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(stateStoreRequestsTotal) }

var stateStoreRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "state_store_requests_total",
		Help: "Lookups against the challenge and conversation state stores.",
	},
	[]string{"store", "result"}, // e.g., store="challenge", result="hit"
)

func IncStateLookup(store, result string) {
	stateStoreRequestsTotal.WithLabelValues(norm(store), norm(result)).Inc()
}
