// Package sdkerr defines the error taxonomy shared by every ledgerkit
// component. Errors carry a kind, a retryable flag, and optional structured
// details; the Retryable bit is the single source of truth the retry engine
// consults for retry eligibility.
package sdkerr

import (
	"fmt"
	"time"
)

// Kind classifies an error into one of the runtime's error families.
type Kind string

const (
	// KindNetwork covers connection failures, unreachable hosts, and
	// transport-level faults.
	KindNetwork Kind = "network"

	// KindRPC covers protocol-level failures reported by the ledger endpoint.
	KindRPC Kind = "rpc"

	// KindAccountNotFound indicates the requested ledger account does not exist.
	KindAccountNotFound Kind = "account_not_found"

	// KindInvalidAccountData indicates account data could not be deserialized.
	KindInvalidAccountData Kind = "invalid_account_data"

	// KindValidation covers invalid caller-supplied input.
	KindValidation Kind = "validation"

	// KindTimeout covers deadline and timeout failures.
	KindTimeout Kind = "timeout"

	// KindRateLimit indicates the endpoint rejected the request due to rate
	// limiting, optionally with a server-suggested wait.
	KindRateLimit Kind = "rate_limit"

	// KindInsufficientData indicates not enough data was available to complete
	// an operation (analytics windows, batch estimates).
	KindInsufficientData Kind = "insufficient_data"

	// KindGeneric is the conservative fallback for errors of unknown origin.
	KindGeneric Kind = "generic"
)

// retryableByKind is the canonical retry eligibility per kind.
var retryableByKind = map[Kind]bool{
	KindNetwork:            true,
	KindRPC:                true,
	KindTimeout:            true,
	KindRateLimit:          true,
	KindAccountNotFound:    false,
	KindInvalidAccountData: false,
	KindValidation:         false,
	KindInsufficientData:   false,
	KindGeneric:            false,
}

// userMessages maps kinds to short human-readable strings. Display only,
// never used for decision logic.
var userMessages = map[Kind]string{
	KindNetwork:            "Network connection failed. Check your connection and try again.",
	KindRPC:                "The ledger endpoint returned an error. Please try again.",
	KindAccountNotFound:    "The requested account was not found.",
	KindInvalidAccountData: "The account data could not be read.",
	KindValidation:         "The request contains invalid input.",
	KindTimeout:            "The operation timed out. Please try again.",
	KindRateLimit:          "Too many requests. Please wait before retrying.",
	KindInsufficientData:   "Not enough data is available for this operation.",
	KindGeneric:            "An unexpected error occurred.",
}

// Error is the tagged error variant propagated by all runtime components.
// Immutable after construction.
type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
	Details   map[string]string
	Cause     error
	Timestamp time.Time

	// RetryAfter is a server-suggested wait, set only on rate limit errors.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches errors by kind, so errors.Is(err, &Error{Kind: KindTimeout})
// works across wrapping.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// UserMessage returns a short human-readable string for the error's kind.
func (e *Error) UserMessage() string {
	if msg, ok := userMessages[e.Kind]; ok {
		return msg
	}
	return userMessages[KindGeneric]
}

// New constructs an error of the given kind with the canonical retryable bit.
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:      kind,
		Message:   message,
		Retryable: retryableByKind[kind],
		Timestamp: time.Now(),
	}
}

// Newf is New with fmt.Sprintf formatting.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap constructs an error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	e := New(kind, message)
	e.Cause = cause
	return e
}

// WithDetails returns a copy of the error carrying additional detail fields.
// The receiver is not mutated.
func (e *Error) WithDetails(details map[string]string) *Error {
	c := *e
	merged := make(map[string]string, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	c.Details = merged
	return &c
}

// NewNetwork constructs a retryable network error.
func NewNetwork(message string, cause error) *Error {
	return Wrap(KindNetwork, message, cause)
}

// NewRPC constructs a retryable RPC protocol error.
func NewRPC(message string, cause error) *Error {
	return Wrap(KindRPC, message, cause)
}

// NewTimeout constructs a retryable timeout error.
func NewTimeout(message string, cause error) *Error {
	return Wrap(KindTimeout, message, cause)
}

// NewRateLimit constructs a retryable rate limit error. retryAfter is the
// server-suggested wait; zero means none was provided.
func NewRateLimit(message string, retryAfter time.Duration) *Error {
	e := New(KindRateLimit, message)
	e.RetryAfter = retryAfter
	return e
}

// NewAccountNotFound constructs a non-retryable account lookup failure.
func NewAccountNotFound(account string) *Error {
	e := Newf(KindAccountNotFound, "account %s not found", account)
	e.Details = map[string]string{"account": account}
	return e
}

// NewInvalidAccountData constructs a non-retryable deserialization failure.
func NewInvalidAccountData(account string, cause error) *Error {
	e := Wrap(KindInvalidAccountData, fmt.Sprintf("invalid account data for %s", account), cause)
	e.Details = map[string]string{"account": account}
	return e
}

// NewValidation constructs a non-retryable input validation failure.
func NewValidation(message string) *Error {
	return New(KindValidation, message)
}

// NewInsufficientData constructs a non-retryable insufficient data failure.
func NewInsufficientData(message string) *Error {
	return New(KindInsufficientData, message)
}
