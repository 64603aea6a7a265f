package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ResourceCache is a namespaced view over the cache engine for ledger
// resource records. It composes deterministic keys from (resource type,
// identifier, filter set) and optionally writes through to a shared Redis
// tier so sibling processes can reuse fetched records.
type ResourceCache[V any] struct {
	cache  *Cache[V]
	store  *RedisStore
	ttl    time.Duration
	logger zerolog.Logger
}

// NewResourceCache creates a resource cache. store may be nil to run purely
// in-memory.
func NewResourceCache[V any](cfg Config, store *RedisStore, opts ...Option) *ResourceCache[V] {
	if cfg.Name == "" || cfg.Name == "default" {
		cfg.Name = "resources"
	}
	return &ResourceCache[V]{
		cache:  New[V](cfg, opts...),
		store:  store,
		ttl:    cfg.DefaultTTL,
		logger: zerolog.Nop(),
	}
}

func (r *ResourceCache[V]) key(resource, id string, filters map[string]string) string {
	return Key{
		Namespace: "resource",
		Resource:  resource,
		ID:        id,
		Filters:   filters,
	}.String()
}

// Get returns the fresh locally cached record, if any.
func (r *ResourceCache[V]) Get(resource, id string, filters map[string]string) (V, bool) {
	return r.cache.Get(r.key(resource, id, filters))
}

// Set stores a record under its composed key.
func (r *ResourceCache[V]) Set(resource, id string, filters map[string]string, value V) {
	key := r.key(resource, id, filters)
	r.cache.Set(key, value)
	r.writeThrough(context.Background(), key, value)
}

// GetOrFetch returns the cached record for (resource, id, filters) or fetches
// it. On a local miss the Redis tier is consulted before the fetcher; fetched
// records are written through to both tiers.
func (r *ResourceCache[V]) GetOrFetch(ctx context.Context, resource, id string, filters map[string]string, fetcher func(context.Context) (V, error)) (V, error) {
	key := r.key(resource, id, filters)

	return r.cache.GetOrFetch(ctx, key, func(ctx context.Context) (V, error) {
		if r.store != nil {
			if data, err := r.store.Get(ctx, key); err == nil {
				var v V
				if err := json.Unmarshal(data, &v); err == nil {
					return v, nil
				}
				// Corrupt shared entry: drop it and fall through to the fetcher.
				_ = r.store.Delete(ctx, key)
			}
		}

		v, err := fetcher(ctx)
		if err != nil {
			var zero V
			return zero, err
		}

		r.writeThrough(ctx, key, v)
		return v, nil
	})
}

func (r *ResourceCache[V]) writeThrough(ctx context.Context, key string, v V) {
	if r.store == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := r.store.Set(ctx, key, data, r.ttl); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("Redis write-through failed")
	}
}

// Invalidate removes all cached entries for a resource type and returns the
// number removed from the local tier.
func (r *ResourceCache[V]) Invalidate(resource string) int {
	prefix := Key{Namespace: "resource", Resource: resource}.String() + ":"
	exact := Key{Namespace: "resource", Resource: resource}.String()
	return r.cache.Invalidate(func(key string) bool {
		return key == exact || strings.HasPrefix(key, prefix)
	})
}

// InvalidateID removes the cached entry for one record.
func (r *ResourceCache[V]) InvalidateID(ctx context.Context, resource, id string, filters map[string]string) {
	key := r.key(resource, id, filters)
	r.cache.Delete(key)
	if r.store != nil {
		_ = r.store.Delete(ctx, key)
	}
}

// Stats returns local tier statistics.
func (r *ResourceCache[V]) Stats() Stats {
	return r.cache.Stats()
}

// Close stops the underlying sweep.
func (r *ResourceCache[V]) Close() {
	r.cache.Close()
}

// AnalyticsCache is a namespaced view for derived analytics results, which
// tolerate much shorter TTLs than resource records.
type AnalyticsCache[V any] struct {
	cache *Cache[V]
}

// NewAnalyticsCache creates an analytics cache.
func NewAnalyticsCache[V any](cfg Config, opts ...Option) *AnalyticsCache[V] {
	if cfg.Name == "" || cfg.Name == "default" {
		cfg.Name = "analytics"
	}
	return &AnalyticsCache[V]{cache: New[V](cfg, opts...)}
}

func (a *AnalyticsCache[V]) key(metric string, params map[string]string) string {
	return Key{
		Namespace: "analytics",
		Resource:  metric,
		Filters:   params,
	}.String()
}

// GetOrFetch returns the cached analytics result for (metric, params) or
// computes it via fetcher.
func (a *AnalyticsCache[V]) GetOrFetch(ctx context.Context, metric string, params map[string]string, fetcher func(context.Context) (V, error)) (V, error) {
	return a.cache.GetOrFetch(ctx, a.key(metric, params), fetcher)
}

// Invalidate removes all cached results for a metric.
func (a *AnalyticsCache[V]) Invalidate(metric string) int {
	prefix := Key{Namespace: "analytics", Resource: metric}.String()
	return a.cache.Invalidate(func(key string) bool {
		return strings.HasPrefix(key, prefix)
	})
}

// Stats returns cache statistics.
func (a *AnalyticsCache[V]) Stats() Stats {
	return a.cache.Stats()
}

// Close stops the underlying sweep.
func (a *AnalyticsCache[V]) Close() {
	a.cache.Close()
}
