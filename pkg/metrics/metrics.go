// Package metrics provides the Prometheus registry and HTTP handler for the AWS client.
// All metrics are defined in their respective packages (client, cache, ratelimit,
// pagination) to maintain modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the AWS client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler returns the HTTP handler exposing every registered metric.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Throttle Metrics (pkg/ratelimit):
//   - aws_throttle_recent{service} (Gauge): Throttling responses inside the current window
//   - aws_throttle_blocks_total{service} (Counter): Requests blocked during a critical cooldown
//   - aws_throttle_delays_total{service} (Counter): Requests delayed in the warning window
//
// Cache Metrics (pkg/cache):
//   - aws_cache_hits_total{layer="memory|redis"} (Counter): Cache hits by layer
//   - aws_cache_misses_total (Counter): Cache misses
//   - aws_cache_entries{layer="memory"} (Gauge): Entries held in process
//   - aws_cache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/client):
//   - aws_requests_total{service, operation, status} (Counter): Requests by outcome
//   - aws_request_duration_seconds{service, operation} (Histogram): Request duration
//   - aws_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//   - aws_circuit_breaker_state{service} (Gauge): 0=closed, 1=half-open, 2=open
//
// Retry Metrics (pkg/client):
//   - aws_retries_total{error_class} (Counter): Retry attempts by error class
//   - aws_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - aws_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Pagination Metrics (pkg/pagination):
//   - pagination_pages_fetched_total{operation, outcome} (Counter): Pages fetched
//   - pagination_page_fetch_duration_seconds{operation} (Histogram): Page fetch duration
//   - pagination_page_wait_seconds{operation} (Histogram): Time the consumer blocked on a page
//   - pagination_prefetch_started_total{operation} (Counter): Next-page prefetches started
//   - pagination_prefetch_abandoned_total{operation} (Counter): Prefetches never consumed
//   - pagination_prefetch_in_flight{operation} (Gauge): Prefetch slots registered
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(aws_cache_hits_total[5m])) /
//   (sum(rate(aws_cache_hits_total[5m])) + sum(rate(aws_cache_misses_total[5m])))
//
//   # Services close to a throttle block
//   aws_throttle_recent >= 3
//
//   # Request Error Rate
//   rate(aws_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(aws_request_duration_seconds_bucket[5m]))
//
//   # Prefetch effectiveness: share of page waits under 10ms
//   sum(rate(pagination_page_wait_seconds_bucket{le="0.01"}[5m])) /
//   sum(rate(pagination_page_wait_seconds_count[5m]))
