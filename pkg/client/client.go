// Package client ties the runtime together: cached reads with stale
// fallback, retries behind a circuit breaker, pooled connections per
// endpoint, and optional performance instrumentation. Callers supply the
// transport; this package owns everything around it.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/veyra-labs/ledgerkit/pkg/accounts"
	"github.com/veyra-labs/ledgerkit/pkg/cache"
	"github.com/veyra-labs/ledgerkit/pkg/perf"
	"github.com/veyra-labs/ledgerkit/pkg/pool"
	"github.com/veyra-labs/ledgerkit/pkg/quota"
	"github.com/veyra-labs/ledgerkit/pkg/retry"
	"github.com/veyra-labs/ledgerkit/pkg/sdkerr"
)

// FetchFunc executes one transport call on a pooled connection and returns
// the raw response payload.
type FetchFunc[C any] func(ctx context.Context, conn C) ([]byte, error)

// BatchFetchFunc fetches one batch of records: up to limit records starting
// at offset.
type BatchFetchFunc[C any] func(ctx context.Context, conn C, offset, limit int) ([][]byte, error)

// Config holds the client configuration.
type Config struct {
	// DefaultEndpoint is the pool key used when a request names none.
	DefaultEndpoint string

	// Redis optionally backs the cache with a shared second tier.
	Redis *redis.Client

	// Cache configures the local resource cache.
	Cache cache.Config

	// Pool configures the connection pool.
	Pool pool.Config

	// Retry is the retry profile applied to every fetch.
	Retry retry.Options

	// Breaker configures the circuit breaker guarding the endpoint.
	Breaker retry.BreakerConfig

	// MaxResponseBytes caps one response payload, for batch planning.
	MaxResponseBytes int

	// EnableMonitor turns on per-operation performance recording.
	EnableMonitor bool

	// EnableQuota gates requests on the shared quota state. Requires Redis.
	EnableQuota bool
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		DefaultEndpoint:  "primary",
		Cache:            cache.DefaultConfig(),
		Pool:             pool.DefaultConfig(),
		Retry:            retry.Default(),
		Breaker:          retry.DefaultBreakerConfig(),
		MaxResponseBytes: accounts.DefaultMaxResponseBytes,
		EnableMonitor:    true,
	}
}

// Request identifies one resource read.
type Request struct {
	// Endpoint is the pool key; empty uses the configured default.
	Endpoint string

	// Type is the resource type, e.g. "agent".
	Type string

	// ID is the resource identifier.
	ID string

	// Filters narrow the read and namespace the cache entry.
	Filters map[string]string

	// TTL overrides the cache default when positive.
	TTL time.Duration
}

// BulkRequest identifies one batched population read.
type BulkRequest struct {
	// Endpoint is the pool key; empty uses the configured default.
	Endpoint string

	// Type is the record type being fetched.
	Type accounts.RecordType

	// Count is the estimated population size.
	Count int
}

// Stats is a point-in-time snapshot across the client's subsystems.
type Stats struct {
	Cache   cache.Stats
	Pool    pool.Stats
	Breaker string
}

// Client is the resilience runtime around a caller-supplied transport.
// C is the connection handle type produced by the dialer.
type Client[C any] struct {
	cfg    Config
	dialer func(ctx context.Context, endpoint string) (C, error)

	resources *cache.ResourceCache[[]byte]
	pool      *pool.Pool[C]
	breaker   *retry.Breaker
	monitor   *perf.Monitor
	quota     *quota.Tracker
	logger    zerolog.Logger
}

// New creates a client. The dialer establishes one connection per endpoint
// key on demand; the pool owns its lifecycle afterwards.
func New[C any](cfg Config, dialer func(ctx context.Context, endpoint string) (C, error)) (*Client[C], error) {
	if dialer == nil {
		return nil, fmt.Errorf("dialer is required")
	}
	if cfg.DefaultEndpoint == "" {
		cfg.DefaultEndpoint = DefaultConfig().DefaultEndpoint
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = accounts.DefaultMaxResponseBytes
	}

	logger := log.With().Str("component", "ledger-client").Logger()

	var store *cache.RedisStore
	if cfg.Redis != nil {
		store = cache.NewRedisStore(cfg.Redis, "ledgerkit")
		logger.Info().Msg("Redis cache tier attached")
	}

	c := &Client[C]{
		cfg:       cfg,
		dialer:    dialer,
		resources: cache.NewResourceCache[[]byte](cfg.Cache, store),
		pool:      pool.New[C](cfg.Pool),
		breaker:   retry.NewBreaker("ledger", cfg.Breaker),
		logger:    logger,
	}
	if cfg.EnableMonitor {
		c.monitor = perf.NewMonitor(perf.DefaultConfig())
	}
	if cfg.EnableQuota {
		if cfg.Redis == nil {
			return nil, fmt.Errorf("quota gating requires a redis client")
		}
		c.quota = quota.NewTracker(cfg.Redis, logger)
	}

	logger.Info().
		Str("endpoint", cfg.DefaultEndpoint).
		Bool("redis", store != nil).
		Msg("Client initialized")
	return c, nil
}

// FetchResource reads one resource through the full pipeline: local cache,
// optional Redis tier, then the transport under retry and circuit breaking.
// A fetch failure with a stale cached value serves the stale value instead
// of the error.
func (c *Client[C]) FetchResource(ctx context.Context, req Request, fetch FetchFunc[C]) ([]byte, error) {
	if req.Type == "" || req.ID == "" {
		return nil, sdkerr.NewValidation("request type and id are required")
	}

	var timer *perf.Timer
	if c.monitor != nil {
		timer = c.monitor.StartTimer("fetch_"+req.Type, map[string]string{"id": req.ID})
	}

	v, err := c.resources.GetOrFetch(ctx, req.Type, req.ID, req.Filters, func(ctx context.Context) ([]byte, error) {
		return c.execute(ctx, req.Endpoint, fetch)
	})

	if timer != nil {
		timer.End(err == nil)
	}
	return v, err
}

// FetchBulk reads a record population in batches sized to fit the response
// payload limit. Batches run sequentially; a failed batch aborts the read
// and returns what the error classifier made of it.
func (c *Client[C]) FetchBulk(ctx context.Context, req BulkRequest, fetch BatchFetchFunc[C]) ([][]byte, error) {
	plan, err := accounts.PlanBatches(req.Type, req.Count, c.cfg.MaxResponseBytes)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("record_type", string(req.Type)).
		Int("count", req.Count).
		Int("batch_size", plan.BatchSize).
		Int("calls", plan.Calls).
		Msg("Planned bulk fetch")

	out := make([][]byte, 0, req.Count)
	for call := 0; call < plan.Calls; call++ {
		offset := call * plan.BatchSize
		limit := plan.BatchSize
		if remaining := req.Count - offset; remaining < limit {
			limit = remaining
		}

		batch, err := c.executeBatch(ctx, req.Endpoint, offset, limit, fetch)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

// gate applies the pre-flight checks shared by every transport call: the
// shared quota, then the circuit breaker. A quota read failure is logged
// and ignored; the quota is advisory, Redis being down must not take the
// client with it.
func (c *Client[C]) gate(ctx context.Context, endpoint string) error {
	if c.quota != nil {
		allowed, err := c.quota.ShouldAllow(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Quota check failed, proceeding without gate")
		} else if !allowed {
			return sdkerr.NewRateLimit("shared request budget exhausted", 0)
		}
	}

	if !c.breaker.Allow() {
		e := sdkerr.Wrap(sdkerr.KindGeneric, "circuit breaker open for ledger", retry.ErrBreakerOpen)
		return e.WithDetails(map[string]string{"endpoint": endpoint})
	}
	return nil
}

// recordOutcome feeds one transport outcome to the breaker and, for rate
// limit errors, the shared quota.
func (c *Client[C]) recordOutcome(ctx context.Context, err error) {
	if err == nil {
		c.breaker.RecordSuccess()
		return
	}
	c.breaker.RecordFailure()

	var sdkErr *sdkerr.Error
	if c.quota != nil && errors.As(err, &sdkErr) && sdkErr.Kind == sdkerr.KindRateLimit {
		if qerr := c.quota.RecordRateLimit(ctx, sdkErr); qerr != nil {
			c.logger.Warn().Err(qerr).Msg("Failed to record rate limit in quota")
		}
	}
}

// execute runs one transport call under the quota gate, the breaker, the
// retry profile, and the connection pool.
func (c *Client[C]) execute(ctx context.Context, endpoint string, fetch FetchFunc[C]) ([]byte, error) {
	endpoint = c.endpointOr(endpoint)

	if err := c.gate(ctx, endpoint); err != nil {
		return nil, err
	}

	out, err := retry.DoValue(ctx, c.cfg.Retry, func(ctx context.Context) ([]byte, error) {
		conn, err := c.pool.Get(ctx, endpoint, func(ctx context.Context) (C, error) {
			return c.dialer(ctx, endpoint)
		})
		if err != nil {
			return nil, err
		}

		start := time.Now()
		b, err := fetch(ctx, conn)
		c.pool.RecordRequest(endpoint, time.Since(start))
		return b, err
	})

	c.recordOutcome(ctx, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client[C]) executeBatch(ctx context.Context, endpoint string, offset, limit int, fetch BatchFetchFunc[C]) ([][]byte, error) {
	endpoint = c.endpointOr(endpoint)

	if err := c.gate(ctx, endpoint); err != nil {
		return nil, err
	}

	out, err := retry.DoValue(ctx, c.cfg.Retry, func(ctx context.Context) ([][]byte, error) {
		conn, err := c.pool.Get(ctx, endpoint, func(ctx context.Context) (C, error) {
			return c.dialer(ctx, endpoint)
		})
		if err != nil {
			return nil, err
		}

		start := time.Now()
		b, err := fetch(ctx, conn, offset, limit)
		c.pool.RecordRequest(endpoint, time.Since(start))
		return b, err
	})

	c.recordOutcome(ctx, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client[C]) endpointOr(endpoint string) string {
	if endpoint == "" {
		return c.cfg.DefaultEndpoint
	}
	return endpoint
}

// Invalidate drops every cached entry of a resource type from the local
// tier and returns the number removed.
func (c *Client[C]) Invalidate(resourceType string) int {
	return c.resources.Invalidate(resourceType)
}

// InvalidateID drops one cached resource.
func (c *Client[C]) InvalidateID(ctx context.Context, resourceType, id string, filters map[string]string) {
	c.resources.InvalidateID(ctx, resourceType, id, filters)
}

// Stats snapshots the client's subsystems.
func (c *Client[C]) Stats() Stats {
	return Stats{
		Cache:   c.resources.Stats(),
		Pool:    c.pool.Stats(),
		Breaker: c.breaker.State().String(),
	}
}

// OperationStats aggregates recorded timings for one operation. Returns
// zero stats when the monitor is disabled.
func (c *Client[C]) OperationStats(operation string, timeframe time.Duration) perf.Stats {
	if c.monitor == nil {
		return perf.Stats{}
	}
	return c.monitor.Stats(operation, timeframe)
}

// HealthCheck dials the default endpoint through the breaker. An open
// breaker fails the check immediately.
func (c *Client[C]) HealthCheck(ctx context.Context) error {
	return c.breaker.Do(ctx, func(ctx context.Context) error {
		_, err := c.pool.Get(ctx, c.cfg.DefaultEndpoint, func(ctx context.Context) (C, error) {
			return c.dialer(ctx, c.cfg.DefaultEndpoint)
		})
		return err
	})
}

// Close releases the cache and pool. The client must not be used after
// Close.
func (c *Client[C]) Close() {
	c.resources.Close()
	c.pool.Close()
	c.logger.Info().Msg("Client closed")
}
