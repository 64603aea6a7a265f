// Package pool keeps one reusable connection per ledger endpoint. Entries
// are created lazily through a caller-supplied factory, evicted by age when
// the pool is full, and swept out by a background loop once idle too long.
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/veyra-labs/ledgerkit/pkg/sdkerr"
)

// Config holds connection pool configuration.
type Config struct {
	// Name labels the pool in logs and metrics.
	Name string

	// MaxConnections caps the number of distinct endpoints kept warm.
	MaxConnections int

	// MaxIdleTime is how long an unused connection survives before the
	// sweep removes it.
	MaxIdleTime time.Duration

	// SweepInterval is how often idle connections are collected.
	SweepInterval time.Duration

	// ActiveWindow is the recency window within which a connection counts
	// as active in Stats.
	ActiveWindow time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		Name:           "default",
		MaxConnections: 10,
		MaxIdleTime:    5 * time.Minute,
		SweepInterval:  time.Minute,
		ActiveWindow:   time.Minute,
	}
}

// Option customizes pool construction.
type Option[C any] func(*Pool[C])

// WithClock overrides the pool's time source, for tests.
func WithClock[C any](now func() time.Time) Option[C] {
	return func(p *Pool[C]) { p.now = now }
}

// WithCloser registers a disposer invoked for every connection the pool
// removes. Without one, removed connections are simply dropped.
func WithCloser[C any](closeFn func(C)) Option[C] {
	return func(p *Pool[C]) { p.closeFn = closeFn }
}

// WithLogger overrides the pool's logger.
func WithLogger[C any](logger zerolog.Logger) Option[C] {
	return func(p *Pool[C]) { p.logger = logger }
}

// entry is one pooled connection with its usage bookkeeping.
type entry[C any] struct {
	conn         C
	createdAt    time.Time
	lastUsedAt   time.Time
	requestCount int64
	totalRespns  time.Duration
}

// EndpointStats is the per-endpoint slice of a pool snapshot.
type EndpointStats struct {
	CreatedAt       time.Time
	LastUsedAt      time.Time
	RequestCount    int64
	AvgResponseTime time.Duration
}

// Stats is a point-in-time snapshot of the pool. Observability only; never
// used to gate correctness.
type Stats struct {
	TotalConnections  int
	ActiveConnections int
	IdleConnections   int
	AvgResponseTime   time.Duration
	Endpoints         map[string]EndpointStats
}

// Pool is a keyed connection pool. C is the opaque connection handle type.
// Safe for concurrent use.
type Pool[C any] struct {
	cfg     Config
	now     func() time.Time
	closeFn func(C)
	logger  zerolog.Logger

	mu      sync.Mutex
	entries map[string]*entry[C]

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a connection pool and starts its idle sweep loop.
func New[C any](cfg Config, opts ...Option[C]) *Pool[C] {
	if cfg.Name == "" {
		cfg.Name = DefaultConfig().Name
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = DefaultConfig().MaxConnections
	}
	if cfg.MaxIdleTime <= 0 {
		cfg.MaxIdleTime = DefaultConfig().MaxIdleTime
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig().SweepInterval
	}
	if cfg.ActiveWindow <= 0 {
		cfg.ActiveWindow = DefaultConfig().ActiveWindow
	}

	p := &Pool[C]{
		cfg:     cfg,
		now:     time.Now,
		logger:  log.With().Str("component", "pool").Str("pool", cfg.Name).Logger(),
		entries: make(map[string]*entry[C]),
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	go p.sweepLoop()
	return p
}

// Get returns the connection for key, creating it through factory on first
// use. At capacity, the connection with the oldest creation time is evicted
// to make room. Eviction is by age, not recency; long-lived endpoints stay
// warm.
func (p *Pool[C]) Get(ctx context.Context, key string, factory func(ctx context.Context) (C, error)) (C, error) {
	var zero C
	if err := ctx.Err(); err != nil {
		return zero, sdkerr.Classify(err)
	}

	p.mu.Lock()
	if e, ok := p.entries[key]; ok {
		e.lastUsedAt = p.now()
		conn := e.conn
		p.mu.Unlock()
		poolHits.WithLabelValues(p.cfg.Name).Inc()
		return conn, nil
	}
	p.mu.Unlock()

	// The factory dials outside the lock; a slow endpoint must not block
	// unrelated Get calls.
	poolMisses.WithLabelValues(p.cfg.Name).Inc()
	conn, err := factory(ctx)
	if err != nil {
		return zero, sdkerr.Classify(err, "pool_connect")
	}

	p.mu.Lock()
	if e, ok := p.entries[key]; ok {
		// Lost the race to a concurrent Get for the same key. Keep the
		// established entry and discard ours.
		e.lastUsedAt = p.now()
		existing := e.conn
		p.mu.Unlock()
		if p.closeFn != nil {
			p.closeFn(conn)
		}
		return existing, nil
	}

	var evicted []C
	for len(p.entries) >= p.cfg.MaxConnections {
		if c, ok := p.evictOldestLocked(); ok {
			evicted = append(evicted, c)
		} else {
			break
		}
	}

	now := p.now()
	p.entries[key] = &entry[C]{
		conn:       conn,
		createdAt:  now,
		lastUsedAt: now,
	}
	poolConnections.WithLabelValues(p.cfg.Name).Set(float64(len(p.entries)))
	p.mu.Unlock()

	for _, c := range evicted {
		if p.closeFn != nil {
			p.closeFn(c)
		}
	}

	p.logger.Debug().Str("endpoint", key).Msg("Connection established")
	return conn, nil
}

// evictOldestLocked removes the entry with the oldest creation time.
// Caller holds p.mu.
func (p *Pool[C]) evictOldestLocked() (C, bool) {
	var zero C
	var oldestKey string
	var oldest time.Time

	for key, e := range p.entries {
		if oldestKey == "" || e.createdAt.Before(oldest) {
			oldestKey = key
			oldest = e.createdAt
		}
	}
	if oldestKey == "" {
		return zero, false
	}

	conn := p.entries[oldestKey].conn
	delete(p.entries, oldestKey)
	poolEvictions.WithLabelValues(p.cfg.Name, "capacity").Inc()
	p.logger.Debug().Str("endpoint", oldestKey).Msg("Evicted oldest connection")
	return conn, true
}

// RecordRequest folds one request's response time into the endpoint's stats
// and refreshes its recency. Unknown keys are ignored; the connection may
// have been evicted between Get and the response.
func (p *Pool[C]) RecordRequest(key string, responseTime time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[key]
	if !ok {
		return
	}
	e.lastUsedAt = p.now()
	e.requestCount++
	e.totalRespns += responseTime
}

// Remove drops the connection for key, if present.
func (p *Pool[C]) Remove(key string) {
	p.mu.Lock()
	e, ok := p.entries[key]
	if ok {
		delete(p.entries, key)
		poolConnections.WithLabelValues(p.cfg.Name).Set(float64(len(p.entries)))
	}
	p.mu.Unlock()

	if ok && p.closeFn != nil {
		p.closeFn(e.conn)
	}
}

// Stats returns a snapshot of pool usage. A connection is active when it was
// used within the active window; the rest are idle.
func (p *Pool[C]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	s := Stats{Endpoints: make(map[string]EndpointStats, len(p.entries))}
	var totalRequests int64
	var totalResponse time.Duration

	s.TotalConnections = len(p.entries)
	for key, e := range p.entries {
		if now.Sub(e.lastUsedAt) <= p.cfg.ActiveWindow {
			s.ActiveConnections++
		} else {
			s.IdleConnections++
		}
		totalRequests += e.requestCount
		totalResponse += e.totalRespns

		es := EndpointStats{
			CreatedAt:    e.createdAt,
			LastUsedAt:   e.lastUsedAt,
			RequestCount: e.requestCount,
		}
		if e.requestCount > 0 {
			es.AvgResponseTime = e.totalRespns / time.Duration(e.requestCount)
		}
		s.Endpoints[key] = es
	}
	if totalRequests > 0 {
		s.AvgResponseTime = totalResponse / time.Duration(totalRequests)
	}
	return s
}

// Close stops the sweep loop and disposes every pooled connection. Safe to
// call more than once.
func (p *Pool[C]) Close() {
	p.stopOnce.Do(func() { close(p.stop) })

	p.mu.Lock()
	entries := p.entries
	p.entries = make(map[string]*entry[C])
	poolConnections.WithLabelValues(p.cfg.Name).Set(0)
	p.mu.Unlock()

	if p.closeFn != nil {
		for _, e := range entries {
			p.closeFn(e.conn)
		}
	}
}

func (p *Pool[C]) sweepLoop() {
	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.sweep()
		case <-p.stop:
			return
		}
	}
}

// sweep removes connections idle longer than MaxIdleTime, regardless of
// pool pressure.
func (p *Pool[C]) sweep() {
	cutoff := p.now().Add(-p.cfg.MaxIdleTime)

	p.mu.Lock()
	var swept []C
	for key, e := range p.entries {
		if e.lastUsedAt.Before(cutoff) {
			swept = append(swept, e.conn)
			delete(p.entries, key)
			poolEvictions.WithLabelValues(p.cfg.Name, "idle").Inc()
		}
	}
	n := len(swept)
	poolConnections.WithLabelValues(p.cfg.Name).Set(float64(len(p.entries)))
	p.mu.Unlock()

	if p.closeFn != nil {
		for _, c := range swept {
			p.closeFn(c)
		}
	}
	if n > 0 {
		p.logger.Debug().Int("count", n).Msg("Swept idle connections")
	}
}
