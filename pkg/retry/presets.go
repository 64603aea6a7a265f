package retry

import "time"

// Preset profiles per operation class. Callers pick a profile by operation
// category instead of hand-tuning every call site.

// Default is the balanced profile for ordinary operations.
func Default() Options {
	return Options{
		MaxAttempts:    3,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       30 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         true,
		AttemptTimeout: 30 * time.Second,
	}
}

// FastRead suits latency-sensitive reads where giving up quickly and serving
// stale cache beats waiting.
func FastRead() Options {
	return Options{
		MaxAttempts:    2,
		BaseDelay:      100 * time.Millisecond,
		MaxDelay:       2 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         true,
		AttemptTimeout: 5 * time.Second,
	}
}

// CriticalWrite suits state-changing operations that must land: more
// attempts, longer delays, generous timeout.
func CriticalWrite() Options {
	return Options{
		MaxAttempts:    5,
		BaseDelay:      1 * time.Second,
		MaxDelay:       60 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         true,
		AttemptTimeout: 60 * time.Second,
	}
}
