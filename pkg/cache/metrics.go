package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cacheHits tracks fresh cache hits by cache name.
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerkit_cache_hits_total",
			Help: "Total number of fresh cache hits",
		},
		[]string{"cache"},
	)

	// cacheMisses tracks cache misses by cache name.
	cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerkit_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	// cacheEvictions tracks LRU evictions by cache name.
	cacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerkit_cache_evictions_total",
			Help: "Total number of LRU evictions",
		},
		[]string{"cache"},
	)

	// cacheExpirations tracks TTL expirations by cache name.
	cacheExpirations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerkit_cache_expirations_total",
			Help: "Total number of TTL expirations",
		},
		[]string{"cache"},
	)

	// cacheStaleServed tracks stale values served after fetch failures.
	cacheStaleServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerkit_cache_stale_served_total",
			Help: "Total number of stale values served after fetch failures",
		},
		[]string{"cache"},
	)

	// cacheSize tracks the current entry count by cache name.
	cacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ledgerkit_cache_entries",
			Help: "Current number of cache entries",
		},
		[]string{"cache"},
	)

	// redisErrors tracks Redis tier operation errors.
	redisErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerkit_cache_redis_errors_total",
			Help: "Total number of Redis cache tier errors",
		},
		[]string{"operation"},
	)

	// redisHits tracks lookups served from the Redis tier.
	redisHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledgerkit_cache_redis_hits_total",
			Help: "Total number of lookups served from the Redis tier",
		},
	)
)
