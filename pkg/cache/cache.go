// Package cache provides the generic TTL/LRU cache engine used by the
// ledgerkit runtime to avoid redundant RPC calls, plus namespaced views for
// resource and analytics data and an optional Redis write-through tier for
// sharing entries across processes.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/veyra-labs/ledgerkit/internal/singleflight"
	"github.com/veyra-labs/ledgerkit/pkg/sdkerr"
)

// Config holds cache engine configuration.
type Config struct {
	// Name identifies the cache in logs and metrics.
	Name string

	// MaxSize bounds the number of entries; the least-recently-used entry is
	// evicted when an insert would exceed it.
	MaxSize int

	// DefaultTTL applies to entries stored without an explicit TTL.
	DefaultTTL time.Duration

	// SweepInterval controls the background purge of expired entries.
	// Zero disables the sweep; expiry is then enforced lazily on read only.
	SweepInterval time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		Name:          "default",
		MaxSize:       1000,
		DefaultTTL:    5 * time.Minute,
		SweepInterval: 1 * time.Minute,
	}
}

type options struct {
	coalesce bool
	logger   *zerolog.Logger
	now      func() time.Time
}

// Option customizes cache construction.
type Option func(*options)

// WithCoalescing enables single-flight coalescing of concurrent GetOrFetch
// misses for the same key. Off by default: without it, concurrent misses may
// each invoke the fetcher.
func WithCoalescing() Option {
	return func(o *options) { o.coalesce = true }
}

// WithLogger sets the cache logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = &logger }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

type entry[V any] struct {
	key         string
	value       V
	storedAt    time.Time
	ttl         time.Duration
	accessCount uint64
	lastAccess  time.Time
}

// Cache is a bounded in-memory key-value store with per-entry TTL and strict
// LRU eviction. All methods are safe for concurrent use.
type Cache[V any] struct {
	mu      sync.Mutex
	cfg     Config
	entries map[string]*list.Element
	order   *list.List // front = most recently used
	now     func() time.Time
	logger  zerolog.Logger
	flight  *singleflight.Group

	hits        uint64
	misses      uint64
	evictions   uint64
	expirations uint64

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a cache. A background sweep goroutine is started when
// cfg.SweepInterval is positive; call Close to stop it.
func New[V any](cfg Config, opts ...Option) *Cache[V] {
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultConfig().MaxSize
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultConfig().DefaultTTL
	}

	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Cache[V]{
		cfg:     cfg,
		entries: make(map[string]*list.Element),
		order:   list.New(),
		now:     o.now,
		logger:  zerolog.Nop(),
		stop:    make(chan struct{}),
	}
	if o.logger != nil {
		c.logger = o.logger.With().Str("cache", cfg.Name).Logger()
	}
	if o.coalesce {
		c.flight = singleflight.New()
	}

	if cfg.SweepInterval > 0 {
		go c.sweepLoop()
	}

	return c
}

func (c *Cache[V]) expired(e *entry[V], now time.Time) bool {
	return now.Sub(e.storedAt) > e.ttl
}

// Get returns the fresh value for key. Expired entries are treated as absent
// but kept for stale reads until the sweep or eviction removes them. A hit
// refreshes the entry's recency.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		cacheMisses.WithLabelValues(c.cfg.Name).Inc()
		return zero, false
	}

	e := el.Value.(*entry[V])
	now := c.now()
	if c.expired(e, now) {
		// Expired entries read as misses but stay in place so GetStale can
		// still serve them. The sweep and LRU eviction purge them.
		c.misses++
		cacheMisses.WithLabelValues(c.cfg.Name).Inc()
		return zero, false
	}

	e.accessCount++
	e.lastAccess = now
	c.order.MoveToFront(el)
	c.hits++
	cacheHits.WithLabelValues(c.cfg.Name).Inc()
	return e.value, true
}

// GetStale returns the value for key regardless of TTL. It does not refresh
// recency and does not count toward hit/miss stats; it exists for the
// explicit stale-read fallback path.
func (c *Cache[V]) GetStale(key string) (V, bool) {
	var zero V

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	return el.Value.(*entry[V]).value, true
}

// Set stores value under key with the default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetTTL(key, value, c.cfg.DefaultTTL)
}

// SetTTL stores value under key with an explicit TTL. The entry moves to the
// most-recently-used position; at capacity the least-recently-used entry is
// evicted first.
func (c *Cache[V]) SetTTL(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry[V])
		e.value = value
		e.storedAt = now
		e.ttl = ttl
		e.lastAccess = now
		c.order.MoveToFront(el)
		return
	}

	if len(c.entries) >= c.cfg.MaxSize {
		c.evictLRULocked()
	}

	el := c.order.PushFront(&entry[V]{
		key:        key,
		value:      value,
		storedAt:   now,
		ttl:        ttl,
		lastAccess: now,
	})
	c.entries[key] = el
	cacheSize.WithLabelValues(c.cfg.Name).Set(float64(len(c.entries)))
}

// Has reports whether a fresh entry exists for key without touching recency
// or stats.
func (c *Cache[V]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return false
	}
	return !c.expired(el.Value.(*entry[V]), c.now())
}

// Delete removes the entry for key, reporting whether one existed.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeLocked(el)
	return true
}

// Clear removes all entries.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.order.Init()
	cacheSize.WithLabelValues(c.cfg.Name).Set(0)
}

// Invalidate removes every entry whose key matches pred and returns the
// number removed.
func (c *Cache[V]) Invalidate(pred func(key string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, el := range c.entries {
		if pred(key) {
			c.removeLocked(el)
			removed++
		}
	}
	return removed
}

// GetOrFetch returns the fresh cached value for key or invokes fetcher on a
// miss, storing the result with the default TTL.
//
// On fetcher failure a stale cached value is returned instead when one
// exists, even if expired; otherwise the classified error propagates. This
// is the stale-while-revalidate-on-failure policy: serving old data beats
// failing when the network misbehaves.
func (c *Cache[V]) GetOrFetch(ctx context.Context, key string, fetcher func(context.Context) (V, error)) (V, error) {
	return c.GetOrFetchTTL(ctx, key, c.cfg.DefaultTTL, fetcher)
}

// GetOrFetchTTL is GetOrFetch with an explicit TTL for the stored result.
func (c *Cache[V]) GetOrFetchTTL(ctx context.Context, key string, ttl time.Duration, fetcher func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	if c.flight == nil {
		return c.fetchAndStore(ctx, key, ttl, fetcher)
	}

	v, err, _ := c.flight.Do(key, func() (any, error) {
		return c.fetchAndStore(ctx, key, ttl, fetcher)
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

func (c *Cache[V]) fetchAndStore(ctx context.Context, key string, ttl time.Duration, fetcher func(context.Context) (V, error)) (V, error) {
	v, err := fetcher(ctx)
	if err != nil {
		if stale, ok := c.GetStale(key); ok {
			cacheStaleServed.WithLabelValues(c.cfg.Name).Inc()
			c.logger.Warn().
				Str("key", key).
				Err(err).
				Msg("Fetch failed, serving stale cache entry")
			return stale, nil
		}
		var zero V
		return zero, sdkerr.Classify(err, "cache_fetch")
	}

	c.SetTTL(key, v, ttl)
	return v, nil
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits        uint64
	Misses      uint64
	HitRate     float64
	Size        int
	Evictions   uint64
	Expirations uint64
}

// Stats returns current cache statistics.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Hits:        c.hits,
		Misses:      c.misses,
		Size:        len(c.entries),
		Evictions:   c.evictions,
		Expirations: c.expirations,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// Close stops the background sweep. Idempotent.
func (c *Cache[V]) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache[V]) removeLocked(el *list.Element) {
	e := el.Value.(*entry[V])
	delete(c.entries, e.key)
	c.order.Remove(el)
	cacheSize.WithLabelValues(c.cfg.Name).Set(float64(len(c.entries)))
}

func (c *Cache[V]) evictLRULocked() {
	el := c.order.Back()
	if el == nil {
		return
	}
	e := el.Value.(*entry[V])
	c.removeLocked(el)
	c.evictions++
	cacheEvictions.WithLabelValues(c.cfg.Name).Inc()
	c.logger.Debug().
		Str("key", e.key).
		Uint64("access_count", e.accessCount).
		Msg("Evicted least-recently-used entry")
}

func (c *Cache[V]) sweepLoop() {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

// sweep proactively purges expired entries so memory stays bounded even for
// keys that are never re-read.
func (c *Cache[V]) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	purged := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if c.expired(el.Value.(*entry[V]), now) {
			c.removeLocked(el)
			c.expirations++
			cacheExpirations.WithLabelValues(c.cfg.Name).Inc()
			purged++
		}
		el = prev
	}

	if purged > 0 {
		c.logger.Debug().
			Int("purged", purged).
			Int("remaining", len(c.entries)).
			Msg("Sweep purged expired entries")
	}
}
