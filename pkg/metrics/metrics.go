// Package metrics exposes the Prometheus registry the data API registers
// into. Metrics are defined next to the code that updates them (gateway,
// dispatch, retrieval, cache, redisstore) to keep packages independent;
// this package only serves them and documents the catalogue.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every package uses through promauto.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer paired with Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics HTTP handler for Gatherer.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Gateway Metrics (pkg/gateway):
//   - dataapi_gateway_calls_total{op, outcome} (Counter): Backend calls by operation and outcome
//   - dataapi_gateway_call_duration_seconds{op} (Histogram): Backend call duration including retries
//   - dataapi_gateway_retries_total{op} (Counter): Retry attempts after a transient failure
//   - dataapi_gateway_retry_backoff_seconds{op} (Histogram): Backoff slept before each retry
//   - dataapi_gateway_retry_exhausted_total{op} (Counter): Calls that used every attempt
//
// Dispatch Metrics (pkg/dispatch):
//   - dataapi_dispatch_workers (Gauge): Running workers
//   - dataapi_dispatch_queue_depth (Gauge): Units waiting for a worker
//   - dataapi_dispatch_queue_wait_seconds (Histogram): Time a unit spent queued
//   - dataapi_dispatch_unit_duration_seconds (Histogram): Unit fetch duration
//   - dataapi_dispatch_units_total{outcome} (Counter): Units by outcome
//   - dataapi_dispatch_panics_total (Counter): Recovered worker panics
//
// Retrieval Metrics (pkg/retrieval):
//   - dataapi_coordinators_active (Gauge): Requests being served
//   - dataapi_readers_yielded_total (Counter): Volumes handed to consumers
//   - dataapi_exceptions_recorded_total{kind} (Counter): Failures retained for reporting
//   - dataapi_exceptions_dropped_total (Counter): Failures dropped over the per-request cap
//   - dataapi_max_wait_expired_total (Counter): Requests aborted by the max wait
//
// Volume Info Cache Metrics (pkg/cache):
//   - dataapi_volinfo_cache_hits_total (Counter): Cache hits
//   - dataapi_volinfo_cache_misses_total (Counter): Cache misses
//   - dataapi_volinfo_cache_size_bytes (Gauge): Bytes written to the cache
//   - dataapi_volinfo_cache_errors_total{operation} (Counter): Cache operation errors
//
// Redis Store Metrics (pkg/store/redisstore):
//   - dataapi_redis_call_duration_seconds{op} (Histogram): Redis round trips by operation
//
// Example Prometheus Queries:
//
//   # Retry Rate per Operation
//   sum by (op) (rate(dataapi_gateway_retries_total[5m]))
//
//   # Failed Unit Ratio
//   sum(rate(dataapi_dispatch_units_total{outcome!="ok"}[5m])) /
//   sum(rate(dataapi_dispatch_units_total[5m]))
//
//   # Saturated Pool
//   dataapi_dispatch_queue_depth > 0
//
//   # P95 Unit Latency
//   histogram_quantile(0.95, rate(dataapi_dispatch_unit_duration_seconds_bucket[5m]))
//
//   # Volume Info Cache Hit Rate
//   sum(rate(dataapi_volinfo_cache_hits_total[5m])) /
//   (sum(rate(dataapi_volinfo_cache_hits_total[5m])) + sum(rate(dataapi_volinfo_cache_misses_total[5m])))
