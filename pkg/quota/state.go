// Package quota tracks the ledger endpoint's shared request budget. The
// state lives in Redis so every process talking to the same endpoint backs
// off together instead of each discovering the limit on its own.
package quota

import (
	"time"
)

// Redis keys for quota state storage.
const (
	RedisKeyRemaining  = "ledgerkit:quota:remaining"
	RedisKeyResetAt    = "ledgerkit:quota:reset_at"
	RedisKeyLastUpdate = "ledgerkit:quota:last_update"
)

// Thresholds for quota decisions.
const (
	// ThresholdCritical blocks all requests when the remaining budget falls
	// below this value. Stopping early avoids a hard ban from the endpoint.
	ThresholdCritical = 5

	// ThresholdWarning throttles requests when the remaining budget falls
	// below this value.
	ThresholdWarning = 20

	// ThresholdHealthy indicates normal operation with no restrictions.
	ThresholdHealthy = 50
)

// State is the current shared quota state.
type State struct {
	// Remaining is the request budget left in the current window.
	Remaining int `json:"remaining"`

	// ResetAt is when the budget window resets.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was last written. Used to detect stale
	// state.
	LastUpdate time.Time `json:"last_update"`

	// Healthy is true when Remaining is at or above ThresholdHealthy.
	Healthy bool `json:"healthy"`
}

// IsStale reports whether the state is older than maxAge.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsBlock reports whether requests should be blocked outright.
func (s *State) NeedsBlock() bool {
	return s.Remaining < ThresholdCritical
}

// NeedsThrottling reports whether requests should be slowed down.
func (s *State) NeedsThrottling() bool {
	return s.Remaining < ThresholdWarning && !s.NeedsBlock()
}

// TimeUntilReset returns the duration until the budget window resets, or 0
// when the reset time has passed.
func (s *State) TimeUntilReset() time.Duration {
	d := time.Until(s.ResetAt)
	if d < 0 {
		return 0
	}
	return d
}

// UpdateHealth recomputes the Healthy flag from Remaining.
func (s *State) UpdateHealth() {
	s.Healthy = s.Remaining >= ThresholdHealthy
}
