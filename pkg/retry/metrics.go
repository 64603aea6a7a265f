package retry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// retriesTotal counts retry attempts by error kind.
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerkit_retries_total",
		Help: "Total number of retry attempts by error kind",
	}, []string{"error_kind"})

	// retryBackoffSeconds observes backoff sleeps by error kind.
	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledgerkit_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error kind",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_kind"})

	// retryExhaustedTotal counts operations that exhausted all attempts.
	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerkit_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error kind",
	}, []string{"error_kind"})

	// breakerTransitions counts circuit breaker state transitions.
	breakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerkit_breaker_transitions_total",
		Help: "Total number of circuit breaker state transitions by breaker and new state",
	}, []string{"breaker", "state"})

	// breakerRejectedTotal counts calls rejected while the breaker is open.
	breakerRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerkit_breaker_rejected_total",
		Help: "Total number of calls rejected by an open circuit breaker",
	}, []string{"breaker"})
)
