package sdkerr

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestClassifyPerRule(t *testing.T) {
	tests := []struct {
		name      string
		message   string
		wantKind  Kind
		retryable bool
	}{
		{"connection reset", "read tcp: ECONNRESET network unreachable", KindNetwork, true},
		{"connection refused", "dial tcp 127.0.0.1:8899: connection refused", KindNetwork, true},
		{"no such host", "lookup ledger.mainnet: no such host", KindNetwork, true},
		{"rpc error", "rpc error: code = Internal desc = node is behind", KindRPC, true},
		{"jsonrpc failure", "jsonrpc response missing result", KindRPC, true},
		{"http 429", "unexpected status 429", KindRateLimit, true},
		{"textual rate limit", "rate limit exceeded for project", KindRateLimit, true},
		{"account not found", "account 7xKX...9fGh does not exist", KindAccountNotFound, false},
		{"could not find account", "could not find account at address", KindAccountNotFound, false},
		{"deserialize failure", "failed to deserialize account payload", KindInvalidAccountData, false},
		{"bad discriminator", "unknown discriminator in account bytes", KindInvalidAccountData, false},
		{"timed out", "operation timed out after 30s", KindTimeout, true},
		{"validation", "validation failed: name too long", KindValidation, false},
		{"invalid argument", "invalid argument: capabilities out of range", KindValidation, false},
		{"unknown", "something inexplicable happened", KindGeneric, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(errors.New(tt.message))
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", got.Kind, tt.wantKind)
			}
			if got.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", got.Retryable, tt.retryable)
			}
		})
	}
}

// Precedence between overlapping signals is rule order, which is part of the
// classifier's contract.
func TestClassifyRuleOrder(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		wantKind Kind
	}{
		{"network beats timeout", "network timeout while dialing", KindNetwork},
		{"rpc beats rate limit", "rpc error: 429 too many requests", KindRPC},
		{"rate limit beats timeout", "rate limit hit, request timed out", KindRateLimit},
		{"not-found needs account term", "page not found", KindGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(errors.New(tt.message))
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", got.Kind, tt.wantKind)
			}
		})
	}
}

func TestClassifyPassthrough(t *testing.T) {
	original := NewValidation("already classified")

	got := Classify(fmt.Errorf("outer wrap: %w", original))
	if got != original {
		t.Error("already-classified errors must pass through unchanged")
	}
}

func TestClassifyNil(t *testing.T) {
	if Classify(nil) != nil {
		t.Error("Classify(nil) should return nil")
	}
}

func TestClassifyContextErrors(t *testing.T) {
	deadline := Classify(context.DeadlineExceeded)
	if deadline.Kind != KindTimeout || !deadline.Retryable {
		t.Errorf("deadline: kind=%s retryable=%v", deadline.Kind, deadline.Retryable)
	}

	canceled := Classify(context.Canceled)
	if canceled.Kind != KindTimeout || canceled.Retryable {
		t.Errorf("canceled: kind=%s retryable=%v", canceled.Kind, canceled.Retryable)
	}
}

func TestClassifyAttachesOperationContext(t *testing.T) {
	got := Classify(errors.New("connection refused"), "fetch_agent")
	if got.Details["operation"] != "fetch_agent" {
		t.Errorf("Details = %v", got.Details)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		message string
		want    time.Duration
	}{
		{"rate limit exceeded, retry after 5s", 5 * time.Second},
		{"too many requests, retry after 250ms", 250 * time.Millisecond},
		{"429 retry after 1.5s", 1500 * time.Millisecond},
		{"rate limit exceeded", 0},
		{"retry after banana", 0},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			got := Classify(errors.New(tt.message))
			if got.Kind == KindRateLimit && got.RetryAfter != tt.want {
				t.Errorf("RetryAfter = %v, want %v", got.RetryAfter, tt.want)
			}
		})
	}
}
