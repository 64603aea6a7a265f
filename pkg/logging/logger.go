// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it. Every component
// logger derived via NewLogger inherits this configuration.
func Setup(cfg Config) zerolog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	var out io.Writer = cfg.Output
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: time.RFC3339}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return log.Logger
}

// parseLevel converts LogLevel to zerolog.Level. Unknown or empty levels
// fall back to Info.
func parseLevel(level LogLevel) zerolog.Level {
	s := strings.ToLower(string(level))
	if s == "warning" {
		s = "warn"
	}
	l, err := zerolog.ParseLevel(s)
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

// NewLogger derives a component-scoped logger from the global one. The
// component field is how runtime subsystems (cache, retry, pool, quota,
// client) are told apart in aggregated output.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache operations (hit/miss, key, TTL, stale fallback)
//   - Retry flow (attempt number, backoff duration)
//   - Pool churn (connection established, evicted, swept)
//
// Info: Normal operation events
//   - Client startup/shutdown
//   - Circuit breaker recovery (half-open trial succeeded)
//   - Redis tier attached/detached
//
// Warn: Warning conditions that don't prevent operation
//   - Retry attempts exhausted (stale data may still serve)
//   - Rate limit responses from the ledger endpoint
//   - Redis tier errors (falling back to local cache)
//
// Error: Error conditions requiring attention
//   - Failed operations after retries and stale fallback
//   - Circuit breaker opened
//   - Configuration errors
//
// Context Fields:
//   - endpoint: ledger endpoint key
//   - operation: logical operation name
//   - error_kind: taxonomy kind (network, rpc, rate_limit, ...)
//   - attempt: retry attempt number
//   - backoff: computed backoff duration
//   - cache: cache instance name
//   - breaker: circuit breaker name
//   - ttl: cache entry TTL
