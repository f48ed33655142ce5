package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every planner metric plus the Go runtime collectors.
var Registry = prometheus.NewRegistry()

var (
	generations = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "planner_generations_total",
			Help: "Plans generated, by generation path and outcome",
		},
		[]string{"path", "outcome"},
	)
	oracleFailures = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "planner_oracle_failures_total",
			Help: "Failed oracle attempts by category",
		},
		[]string{"category"},
	)
	oracleLatency = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "planner_oracle_latency_seconds",
			Help:    "Wall time of oracle plan generation including retries",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)
	executions = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "planner_executions_total",
			Help: "Plan executions by outcome",
		},
		[]string{"outcome"},
	)
	cacheHits = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Name: "planner_plan_cache_hits_total",
			Help: "Oracle plans served from the plan cache",
		},
	)
	httpRequests = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "planner_http_requests_total",
			Help: "HTTP requests by method and status code",
		},
		[]string{"method", "status"},
	)
)

func init() {
	Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// IncGeneration counts a finished generation.
func IncGeneration(path, outcome string) {
	if path == "" {
		path = "none"
	}
	generations.WithLabelValues(path, outcome).Inc()
}

// IncOracleFailure counts one failed oracle attempt.
func IncOracleFailure(category string) {
	if category == "" {
		category = "unknown"
	}
	oracleFailures.WithLabelValues(category).Inc()
}

// ObserveOracleLatency records the duration of an oracle generation.
func ObserveOracleLatency(seconds float64) {
	oracleLatency.Observe(seconds)
}

// IncExecution counts a plan execution.
func IncExecution(outcome string) {
	executions.WithLabelValues(outcome).Inc()
}

// IncCacheHit counts a plan cache hit.
func IncCacheHit() {
	cacheHits.Inc()
}

// IncHTTPRequest counts a served HTTP request.
func IncHTTPRequest(method, status string) {
	httpRequests.WithLabelValues(method, status).Inc()
}

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
