package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks volume info cache hits
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dataapi_volinfo_cache_hits_total",
			Help: "Total number of volume info cache hits",
		},
	)

	// CacheMisses tracks volume info cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dataapi_volinfo_cache_misses_total",
			Help: "Total number of volume info cache misses",
		},
	)

	// CacheSize tracks bytes written to the cache
	CacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dataapi_volinfo_cache_size_bytes",
			Help: "Bytes written to the volume info cache",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataapi_volinfo_cache_errors_total",
			Help: "Total number of volume info cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
