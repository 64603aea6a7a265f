package perf

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// operationDuration observes instrumented operation latency.
	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledgerkit_operation_duration_seconds",
		Help:    "Duration of instrumented operations by operation and outcome",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "success"})
)
