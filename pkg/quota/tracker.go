package quota

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/veyra-labs/ledgerkit/pkg/sdkerr"
)

var (
	quotaRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledgerkit_quota_remaining",
		Help: "Remaining request budget in the current window",
	})

	quotaBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledgerkit_quota_blocks_total",
		Help: "Total number of requests blocked due to critical quota",
	})

	quotaThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledgerkit_quota_throttles_total",
		Help: "Total number of requests throttled due to low quota",
	})
)

// throttleDelay is the pause applied per request while in the warning band.
const throttleDelay = time.Second

// Tracker gates requests on the shared quota state in Redis.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewTracker creates a quota tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
	}
}

// GetState retrieves the current quota state from Redis. A missing state
// reads as healthy; the first rate limit response populates it.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	remaining, err := t.redis.Get(ctx, RedisKeyRemaining).Int()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get quota remaining: %w", err)
	}

	resetTimestamp, err := t.redis.Get(ctx, RedisKeyResetAt).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get quota reset: %w", err)
	}

	lastUpdateStr, err := t.redis.Get(ctx, RedisKeyLastUpdate).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get quota last update: %w", err)
	}

	if err == redis.Nil {
		t.logger.Debug().Msg("No quota state in Redis, assuming healthy")
		return &State{
			Remaining:  100,
			ResetAt:    time.Now().Add(60 * time.Second),
			LastUpdate: time.Now(),
			Healthy:    true,
		}, nil
	}

	var lastUpdate time.Time
	if lastUpdateStr != "" {
		if err := json.Unmarshal([]byte(lastUpdateStr), &lastUpdate); err != nil {
			return nil, fmt.Errorf("parse quota last update: %w", err)
		}
	}

	state := &State{
		Remaining:  remaining,
		ResetAt:    time.Unix(resetTimestamp, 0),
		LastUpdate: lastUpdate,
	}
	state.UpdateHealth()
	return state, nil
}

// Update writes a fresh budget observation to Redis. Call it when the
// endpoint reports its remaining budget.
func (t *Tracker) Update(ctx context.Context, remaining int, resetIn time.Duration) error {
	now := time.Now()
	state := &State{
		Remaining:  remaining,
		ResetAt:    now.Add(resetIn),
		LastUpdate: now,
	}
	state.UpdateHealth()

	lastUpdateJSON, err := json.Marshal(state.LastUpdate)
	if err != nil {
		return fmt.Errorf("marshal quota last update: %w", err)
	}

	pipe := t.redis.Pipeline()
	pipe.Set(ctx, RedisKeyRemaining, remaining, 0)
	pipe.Set(ctx, RedisKeyResetAt, state.ResetAt.Unix(), 0)
	pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store quota state in redis: %w", err)
	}

	quotaRemaining.Set(float64(remaining))

	logEvent := t.logger.Info().
		Int("remaining", remaining).
		Time("reset_at", state.ResetAt).
		Bool("healthy", state.Healthy)
	if state.NeedsBlock() {
		logEvent = t.logger.Error()
		logEvent.Msg("Quota critical, requests will be blocked")
	} else if state.NeedsThrottling() {
		logEvent = t.logger.Warn()
		logEvent.Msg("Quota low, requests will be throttled")
	} else {
		logEvent.Msg("Quota state updated")
	}
	return nil
}

// RecordRateLimit folds one observed rate limit error into the shared
// state: the budget is exhausted until the server-suggested wait elapses.
func (t *Tracker) RecordRateLimit(ctx context.Context, err *sdkerr.Error) error {
	if err == nil || err.Kind != sdkerr.KindRateLimit {
		return nil
	}

	resetIn := err.RetryAfter
	if resetIn <= 0 {
		resetIn = 60 * time.Second
	}
	return t.Update(ctx, 0, resetIn)
}

// ShouldAllow reports whether a request may proceed under the current
// quota. Critical quota blocks; the warning band throttles by pausing
// before allowing.
func (t *Tracker) ShouldAllow(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get quota state: %w", err)
	}

	if state.NeedsBlock() && state.TimeUntilReset() > 0 {
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Dur("wait", state.TimeUntilReset()).
			Msg("Quota critical, blocking request")
		quotaBlocksTotal.Inc()
		return false, nil
	}

	if state.NeedsThrottling() {
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Msg("Quota low, throttling request")
		quotaThrottlesTotal.Inc()

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(throttleDelay):
		}
	}

	return true, nil
}
