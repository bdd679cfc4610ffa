package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for backend calls and retries. The op label is
// "volume_info" or the column family of a content fetch.
var (
	gatewayRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dataapi_gateway_retries_total",
		Help: "Total number of backend retry attempts by operation",
	}, []string{"op"})

	gatewayRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dataapi_gateway_retry_backoff_seconds",
		Help:    "Backoff duration before backend retries by operation",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"op"})

	gatewayRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dataapi_gateway_retry_exhausted_total",
		Help: "Total number of backend calls that exhausted their retry attempts",
	}, []string{"op"})

	gatewayCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dataapi_gateway_calls_total",
		Help: "Total number of gateway calls by operation and outcome",
	}, []string{"op", "outcome"}) // outcome: ok, not_found, repository_failure

	gatewayCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dataapi_gateway_call_duration_seconds",
		Help:    "Gateway call duration including retries",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
)
