package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/veyra-labs/ledgerkit/pkg/sdkerr"
)

// ErrBreakerOpen is the sentinel wrapped by errors returned while the
// circuit breaker rejects calls. It is distinct from the underlying network
// error the breaker protects against; check it with errors.Is.
var ErrBreakerOpen = errors.New("circuit breaker open")

// State is the circuit breaker state.
type State int32

const (
	// StateClosed lets all calls through.
	StateClosed State = iota

	// StateOpen fails all calls fast without touching the network.
	StateOpen

	// StateHalfOpen lets exactly one trial call through after the reset
	// timeout; its outcome decides the next state.
	StateHalfOpen
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds circuit breaker configuration.
type BreakerConfig struct {
	// Threshold is the number of consecutive failures that opens the breaker.
	Threshold int

	// ResetTimeout is how long the breaker stays open before allowing a
	// half-open trial call.
	ResetTimeout time.Duration
}

// DefaultBreakerConfig returns a safe default configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Threshold:    5,
		ResetTimeout: 30 * time.Second,
	}
}

// BreakerOption customizes breaker construction.
type BreakerOption func(*Breaker)

// WithBreakerClock overrides the breaker's time source, for tests.
func WithBreakerClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) { b.now = now }
}

// Breaker is a circuit breaker guarding one operation family. One instance
// per family, owned by whichever long-lived object constructs it. All state
// is managed with atomics so it is safe under concurrent calls.
type Breaker struct {
	name string
	cfg  BreakerConfig
	now  func() time.Time

	state       int32
	failures    int32
	lastFailure int64 // unix nanos
}

// NewBreaker creates a closed breaker for the named operation family.
func NewBreaker(name string, cfg BreakerConfig, opts ...BreakerOption) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultBreakerConfig().Threshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultBreakerConfig().ResetTimeout
	}

	b := &Breaker{
		name: name,
		cfg:  cfg,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Allow reports whether a call may proceed. While open, it transitions to
// half-open once the reset timeout elapsed; only the caller winning that
// transition is let through, so exactly one trial call runs.
func (b *Breaker) Allow() bool {
	switch State(atomic.LoadInt32(&b.state)) {
	case StateClosed:
		return true
	case StateOpen:
		last := atomic.LoadInt64(&b.lastFailure)
		if b.now().UnixNano()-last >= int64(b.cfg.ResetTimeout) {
			if atomic.CompareAndSwapInt32(&b.state, int32(StateOpen), int32(StateHalfOpen)) {
				breakerTransitions.WithLabelValues(b.name, StateHalfOpen.String()).Inc()
				return true
			}
		}
		return false
	case StateHalfOpen:
		// The trial call is already in flight.
		return false
	default:
		return false
	}
}

// RecordSuccess resets the failure count; a half-open trial success closes
// the breaker.
func (b *Breaker) RecordSuccess() {
	prev := State(atomic.SwapInt32(&b.state, int32(StateClosed)))
	atomic.StoreInt32(&b.failures, 0)
	if prev != StateClosed {
		breakerTransitions.WithLabelValues(b.name, StateClosed.String()).Inc()
	}
}

// RecordFailure counts a failure; reaching the threshold while closed, or
// any half-open trial failure, opens the breaker.
func (b *Breaker) RecordFailure() {
	atomic.StoreInt64(&b.lastFailure, b.now().UnixNano())

	switch State(atomic.LoadInt32(&b.state)) {
	case StateClosed:
		if atomic.AddInt32(&b.failures, 1) >= int32(b.cfg.Threshold) {
			if atomic.CompareAndSwapInt32(&b.state, int32(StateClosed), int32(StateOpen)) {
				breakerTransitions.WithLabelValues(b.name, StateOpen.String()).Inc()
			}
		}
	case StateHalfOpen:
		atomic.AddInt32(&b.failures, 1)
		if atomic.CompareAndSwapInt32(&b.state, int32(StateHalfOpen), int32(StateOpen)) {
			breakerTransitions.WithLabelValues(b.name, StateOpen.String()).Inc()
		}
	case StateOpen:
		// Already open; only the failure timestamp moves.
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	return State(atomic.LoadInt32(&b.state))
}

// Do runs op under the breaker. While open it fails immediately with a
// non-retryable error wrapping ErrBreakerOpen, without invoking op.
func (b *Breaker) Do(ctx context.Context, op func(context.Context) error) error {
	if !b.Allow() {
		breakerRejectedTotal.WithLabelValues(b.name).Inc()
		e := sdkerr.Wrap(sdkerr.KindGeneric, "circuit breaker open for "+b.name, ErrBreakerOpen)
		return e.WithDetails(map[string]string{"breaker": b.name})
	}

	if err := op(ctx); err != nil {
		b.RecordFailure()
		return sdkerr.Classify(err, b.name)
	}

	b.RecordSuccess()
	return nil
}
