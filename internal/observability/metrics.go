package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgagents_http_requests_total",
			Help: "Total number of HTTP requests by route and status.",
		},
		[]string{"method", "path", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "pgagents_http_request_duration_seconds",
			Help: "HTTP request latency by route. Workflow streams stay open for the whole run.",
			// Agent runs take seconds to minutes.
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method", "path", "status"},
	)
	httpInFlightRequests = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pgagents_http_in_flight_requests",
			Help: "HTTP requests currently being served, by route.",
		},
		[]string{"path"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDurationSeconds, httpInFlightRequests)
}
