package sdkerr

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// classifyRule matches error text against the signals of one kind.
// Rules are evaluated in order; the first match wins. The order is part of
// the contract: a message containing both "network" and "timeout" terms
// classifies as Network because the network rule comes first.
type classifyRule struct {
	kind  Kind
	match func(msg string) bool
}

// containsAny reports whether msg contains any of the given lowercase terms.
func containsAny(msg string, terms ...string) bool {
	for _, t := range terms {
		if strings.Contains(msg, t) {
			return true
		}
	}
	return false
}

// classifyRules is the ordered rule table. Each rule is unit-tested
// individually; precedence between overlapping signals is explicit here
// rather than implicit in caller behavior.
var classifyRules = []classifyRule{
	{KindNetwork, func(m string) bool {
		return containsAny(m,
			"econnreset", "econnrefused", "ehostunreach",
			"connection refused", "connection reset", "connection closed",
			"no such host", "broken pipe", "unreachable", "network", "fetch failed")
	}},
	{KindRPC, func(m string) bool {
		return containsAny(m, "rpc error", "jsonrpc", "rpc call", "method not found", "node is behind")
	}},
	{KindRateLimit, func(m string) bool {
		return containsAny(m, "429", "rate limit", "too many requests")
	}},
	{KindAccountNotFound, func(m string) bool {
		return strings.Contains(m, "account") &&
			containsAny(m, "not found", "does not exist", "could not find")
	}},
	{KindInvalidAccountData, func(m string) bool {
		return containsAny(m, "deserialize", "discriminator", "invalid account data", "failed to decode")
	}},
	{KindTimeout, func(m string) bool {
		return containsAny(m, "timeout", "timed out", "deadline exceeded")
	}},
	{KindValidation, func(m string) bool {
		return containsAny(m, "validation", "invalid input", "invalid argument", "invalid param")
	}},
}

// Classify converts an opaque error into a tagged *Error.
//
// Classification is best-effort text sniffing: ambiguous messages fall
// through to the Generic, non-retryable bucket, so callers must not assume
// unknown-origin errors are retryable. Typed checks (context errors,
// net.Error) run before the text rules. An optional context string is
// attached as a detail field.
func Classify(err error, contexts ...string) *Error {
	if err == nil {
		return nil
	}

	// Already classified: passthrough, never re-wrap.
	var sdkErr *Error
	if errors.As(err, &sdkErr) {
		return sdkErr
	}

	classified := classifyTyped(err)
	if classified == nil {
		msg := strings.ToLower(err.Error())
		for _, rule := range classifyRules {
			if rule.match(msg) {
				classified = classifyText(rule.kind, err)
				break
			}
		}
	}
	if classified == nil {
		classified = Wrap(KindGeneric, "unclassified error", err)
	}

	if len(contexts) > 0 && contexts[0] != "" {
		classified = classified.WithDetails(map[string]string{"operation": contexts[0]})
	}
	return classified
}

// classifyTyped handles errors with a known Go type before any text sniffing.
func classifyTyped(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeout("deadline exceeded", err)
	}
	if errors.Is(err, context.Canceled) {
		// Cancellation is surfaced as a timeout kind but is not retryable:
		// the caller gave up on purpose.
		e := NewTimeout("operation canceled", err)
		e.Retryable = false
		return e
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewTimeout("network operation timed out", err)
		}
		return NewNetwork("network operation failed", err)
	}
	return nil
}

// classifyText builds the tagged error for a text-rule match.
func classifyText(kind Kind, err error) *Error {
	switch kind {
	case KindRateLimit:
		return &Error{
			Kind:       KindRateLimit,
			Message:    "request was rate limited",
			Retryable:  true,
			Cause:      err,
			Timestamp:  time.Now(),
			RetryAfter: parseRetryAfter(err.Error()),
		}
	case KindAccountNotFound:
		return Wrap(KindAccountNotFound, "account not found", err)
	default:
		return Wrap(kind, "classified from error text", err)
	}
}

// parseRetryAfter extracts a "retry after Ns" hint from an error message.
// Returns 0 when no hint is present or it cannot be parsed.
func parseRetryAfter(msg string) time.Duration {
	lower := strings.ToLower(msg)
	idx := strings.Index(lower, "retry after ")
	if idx < 0 {
		return 0
	}
	rest := lower[idx+len("retry after "):]
	end := 0
	for end < len(rest) && (rest[end] >= '0' && rest[end] <= '9' || rest[end] == '.') {
		end++
	}
	if end == 0 {
		return 0
	}
	// Accept a unit suffix the way servers commonly phrase it.
	unit := time.Second
	if strings.HasPrefix(rest[end:], "ms") {
		unit = time.Millisecond
	}
	var secs float64
	for i := 0; i < end; i++ {
		if rest[i] == '.' {
			frac := 0.1
			for j := i + 1; j < end; j++ {
				secs += float64(rest[j]-'0') * frac
				frac /= 10
			}
			break
		}
		secs = secs*10 + float64(rest[i]-'0')
	}
	d := time.Duration(secs * float64(unit))
	if d < 0 || d > time.Hour {
		return 0
	}
	return d
}
