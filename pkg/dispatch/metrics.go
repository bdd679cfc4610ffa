package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	poolWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dataapi_dispatch_workers",
		Help: "Number of running dispatch workers",
	})

	poolQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dataapi_dispatch_queue_depth",
		Help: "Units waiting in the dispatch queue",
	})

	poolQueueWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dataapi_dispatch_queue_wait_seconds",
		Help:    "Time units spend in the dispatch queue",
		Buckets: prometheus.DefBuckets,
	})

	poolUnitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dataapi_dispatch_unit_duration_seconds",
		Help:    "Time spent fetching one unit, including retries",
		Buckets: prometheus.DefBuckets,
	})

	poolUnitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dataapi_dispatch_units_total",
		Help: "Units processed by outcome",
	}, []string{"outcome"}) // ok, cancelled, not_found, policy_violation, repository_failure

	poolPanicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dataapi_dispatch_panics_total",
		Help: "Worker panics recovered",
	})
)
