package retrieval

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	coordinatorsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dataapi_coordinators_active",
		Help: "Requests with an open coordinator",
	})

	readersYielded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dataapi_readers_yielded_total",
		Help: "Volume readers handed to consumers",
	})

	exceptionsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dataapi_exceptions_recorded_total",
		Help: "Failures retained for reporting by kind",
	}, []string{"kind"})

	exceptionsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dataapi_exceptions_dropped_total",
		Help: "Failures dropped over the per-request report cap",
	})

	maxWaitExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dataapi_max_wait_expired_total",
		Help: "Waits for a unit result that hit the configured max wait",
	})
)
