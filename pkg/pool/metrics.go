package pool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// poolHits counts Get calls served by an existing connection.
	poolHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerkit_pool_hits_total",
		Help: "Total number of pool lookups served by an existing connection",
	}, []string{"pool"})

	// poolMisses counts Get calls that had to dial.
	poolMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerkit_pool_misses_total",
		Help: "Total number of pool lookups that created a new connection",
	}, []string{"pool"})

	// poolEvictions counts removed connections by reason (capacity, idle).
	poolEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerkit_pool_evictions_total",
		Help: "Total number of evicted pool connections by reason",
	}, []string{"pool", "reason"})

	// poolConnections tracks the current pool size.
	poolConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ledgerkit_pool_connections",
		Help: "Current number of pooled connections",
	}, []string{"pool"})
)
