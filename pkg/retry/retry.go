// Package retry wraps operations against the ledger endpoint with
// exponential backoff, jitter, per-attempt timeouts, and circuit breaking.
// Retry eligibility is decided by the error taxonomy's retryable bit.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/veyra-labs/ledgerkit/pkg/sdkerr"
)

// Options configures one retry loop.
type Options struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the computed backoff.
	MaxDelay time.Duration

	// BackoffFactor is the exponential growth factor between retries.
	BackoffFactor float64

	// Jitter randomizes each delay by up to +50% to avoid synchronized
	// retry storms.
	Jitter bool

	// AttemptTimeout bounds each individual attempt. Zero means the attempt
	// runs under the caller's context only.
	AttemptTimeout time.Duration

	// RetryIf decides whether a classified error is retried. Defaults to the
	// error's Retryable bit.
	RetryIf func(err *sdkerr.Error, attempt int) bool

	// OnRetry is invoked before each retry sleep.
	OnRetry func(err *sdkerr.Error, attempt int)
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 500 * time.Millisecond
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 30 * time.Second
	}
	if o.BackoffFactor <= 1 {
		o.BackoffFactor = 2.0
	}
	if o.RetryIf == nil {
		o.RetryIf = DefaultRetryIf
	}
	return o
}

// DefaultRetryIf retries exactly the kinds the taxonomy marks retryable
// (Network, Rpc, Timeout, RateLimit).
func DefaultRetryIf(err *sdkerr.Error, _ int) bool {
	return err.Retryable
}

// Do executes op with retries according to opts.
func Do(ctx context.Context, opts Options, op func(context.Context) error) error {
	_, err := DoValue(ctx, opts, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue executes op with retries and returns its result.
//
// Each attempt runs under an optional per-attempt timeout. Failures are
// classified, checked against RetryIf, and retried after an exponential
// backoff; a RateLimit error carrying a server-suggested wait uses that wait
// as a floor over the computed delay. When attempts are exhausted the last
// classified error is returned as-is so callers can still inspect its kind.
func DoValue[T any](ctx context.Context, opts Options, op func(context.Context) (T, error)) (T, error) {
	opts = opts.withDefaults()

	var zero T
	var lastErr *sdkerr.Error

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, sdkerr.Classify(err)
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if opts.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, opts.AttemptTimeout)
		}
		v, err := op(attemptCtx)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			if attempt > 1 {
				log.Debug().
					Int("attempt", attempt).
					Msg("Operation succeeded after retry")
			}
			return v, nil
		}

		lastErr = sdkerr.Classify(err)

		if !opts.RetryIf(lastErr, attempt) {
			return zero, lastErr
		}
		if attempt >= opts.MaxAttempts {
			break
		}

		delay := opts.delayFor(attempt)
		if lastErr.Kind == sdkerr.KindRateLimit && lastErr.RetryAfter > delay {
			delay = lastErr.RetryAfter
		}

		if opts.OnRetry != nil {
			opts.OnRetry(lastErr, attempt)
		}

		retriesTotal.WithLabelValues(string(lastErr.Kind)).Inc()
		retryBackoffSeconds.WithLabelValues(string(lastErr.Kind)).Observe(delay.Seconds())
		log.Debug().
			Str("error_kind", string(lastErr.Kind)).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Retrying after backoff")

		select {
		case <-ctx.Done():
			return zero, sdkerr.Classify(ctx.Err())
		case <-time.After(delay):
		}
	}

	retryExhaustedTotal.WithLabelValues(string(lastErr.Kind)).Inc()
	log.Warn().
		Str("error_kind", string(lastErr.Kind)).
		Int("max_attempts", opts.MaxAttempts).
		Msg("Retry attempts exhausted")

	return zero, lastErr
}

// delayFor computes min(MaxDelay, BaseDelay * BackoffFactor^(attempt-1)),
// optionally randomized upward by up to 50%.
func (o Options) delayFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// Overflow guard.
	if attempt > 30 {
		attempt = 30
	}

	d := float64(o.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= o.BackoffFactor
	}
	if d < 0 || d > float64(o.MaxDelay) {
		d = float64(o.MaxDelay)
	}

	if o.Jitter {
		d += d * 0.5 * rand.Float64()
		if d > float64(o.MaxDelay) {
			d = float64(o.MaxDelay)
		}
	}

	return time.Duration(d)
}
