// Package metrics provides the centralized Prometheus metrics registry for
// the ledger runtime. All metrics are defined in their respective packages
// (cache, retry, pool, perf) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the runtime.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - ledgerkit_cache_hits_total{cache} (Counter): Cache hits by instance
//   - ledgerkit_cache_misses_total{cache} (Counter): Cache misses by instance
//   - ledgerkit_cache_evictions_total{cache} (Counter): LRU evictions
//   - ledgerkit_cache_expirations_total{cache} (Counter): TTL expirations
//   - ledgerkit_cache_stale_served_total{cache} (Counter): Stale entries served on fetch failure
//   - ledgerkit_cache_entries{cache} (Gauge): Current entry count
//   - ledgerkit_cache_redis_hits_total (Counter): Shared-tier hits
//   - ledgerkit_cache_redis_errors_total{operation} (Counter): Shared-tier errors
//
// Retry Metrics (pkg/retry):
//   - ledgerkit_retries_total{error_kind} (Counter): Retry attempts by error kind
//   - ledgerkit_retry_backoff_seconds{error_kind} (Histogram): Backoff duration by error kind
//   - ledgerkit_retry_exhausted_total{error_kind} (Counter): Operations that exhausted attempts
//   - ledgerkit_breaker_transitions_total{breaker, state} (Counter): Breaker state transitions
//   - ledgerkit_breaker_rejected_total{breaker} (Counter): Calls rejected while open
//
// Pool Metrics (pkg/pool):
//   - ledgerkit_pool_hits_total{pool} (Counter): Lookups served by an existing connection
//   - ledgerkit_pool_misses_total{pool} (Counter): Lookups that dialed
//   - ledgerkit_pool_evictions_total{pool, reason} (Counter): Evictions by reason (capacity, idle)
//   - ledgerkit_pool_connections{pool} (Gauge): Current pooled connections
//
// Operation Metrics (pkg/perf):
//   - ledgerkit_operation_duration_seconds{operation, success} (Histogram): Instrumented operation latency
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(ledgerkit_cache_hits_total[5m])) /
//   (sum(rate(ledgerkit_cache_hits_total[5m])) + sum(rate(ledgerkit_cache_misses_total[5m])))
//
//   # Breaker Opens
//   increase(ledgerkit_breaker_transitions_total{state="open"}[15m])
//
//   # Retry Exhaustion Rate
//   rate(ledgerkit_retry_exhausted_total[5m])
//
//   # P95 Operation Latency
//   histogram_quantile(0.95, rate(ledgerkit_operation_duration_seconds_bucket[5m]))
//
//   # Stale Serve Rate
//   rate(ledgerkit_cache_stale_served_total[5m])
