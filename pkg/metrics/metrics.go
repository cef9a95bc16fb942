// Package metrics exposes the Prometheus registry used by serp-harvest.
// All metrics are defined in their respective packages (client, cache,
// ratelimit, pagination, normalize, enrich) to keep those packages
// self-contained; this package documents them and serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by serp-harvest.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler serves the registered metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// NewServeMux returns a mux with /metrics and a /health liveness probe.
func NewServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// Metrics Documentation
//
// Pacing Metrics (pkg/ratelimit):
//   - serp_pacer_wait_seconds (Histogram): Time spent waiting for a request token
//   - serp_pacer_throttles_total (Counter): Requests delayed by the pacer
//
// Cache Metrics (pkg/cache):
//   - serp_cache_hits_total{layer="redis"} (Counter): Cache hits by layer
//   - serp_cache_misses_total (Counter): Cache misses
//   - serp_cache_size_bytes{layer="redis"} (Gauge): Bytes read from and written to the cache
//   - serp_cache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/client):
//   - serp_requests_total{engine, status} (Counter): Search API calls by engine and HTTP status
//   - serp_request_duration_seconds{engine} (Histogram): Call duration by engine
//   - serp_errors_total{class} (Counter): Errors by class (client, auth, server, rate_limit, network, decode)
//
// Retry Metrics (pkg/client):
//   - serp_retries_total{error_class} (Counter): Retry attempts by error class
//   - serp_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - serp_retry_exhausted_total{error_class} (Counter): Pages that exhausted max attempts
//
// Pagination Metrics (pkg/pagination):
//   - serp_pages_total{outcome} (Counter): Pages by outcome (fetched, cached, failed)
//   - serp_pagination_stops_total{reason} (Counter): Runs by stop reason
//
// Result Metrics (pkg/normalize):
//   - serp_entries_total{outcome} (Counter): Raw entries by outcome (kept, duplicate, dropped)
//
// Enrichment Metrics (pkg/enrich):
//   - serp_enrich_requests_total{outcome} (Counter): Website fetches by outcome (found, none, error)
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(serp_cache_hits_total[5m])) /
//   (sum(rate(serp_cache_hits_total[5m])) + sum(rate(serp_cache_misses_total[5m])))
//
//   # Throttling by the API
//   rate(serp_requests_total{status="429"}[5m])
//
//   # Duplicate Ratio
//   rate(serp_entries_total{outcome="duplicate"}[1h]) / rate(serp_entries_total[1h])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(serp_request_duration_seconds_bucket[5m]))
