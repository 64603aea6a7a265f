// Package accounts estimates serialized ledger record sizes and plans
// batched fetches that stay under the endpoint's response payload limit.
// Everything here is a pure calculator; no state, no I/O.
package accounts

import (
	"fmt"

	"github.com/veyra-labs/ledgerkit/pkg/sdkerr"
)

// RecordType identifies a ledger record layout.
type RecordType string

const (
	TypeAgent     RecordType = "agent"
	TypeMessage   RecordType = "message"
	TypeChannel   RecordType = "channel"
	TypeEscrow    RecordType = "escrow"
	TypeAnalytics RecordType = "analytics"
)

// discriminatorLen is the record-type tag prefixed to every serialized
// record.
const discriminatorLen = 8

// Profile describes one record layout: fixed-width fields plus declared
// capacity ceilings for variable-length fields. Sizes are worst case; the
// planner prefers overestimating to overflowing a response.
type Profile struct {
	// FixedFieldBytes is the sum of all fixed-width field sizes, without
	// the discriminator.
	FixedFieldBytes int

	// VariableFieldCaps maps variable-length field names to their declared
	// maximum encoded size, length prefix included.
	VariableFieldCaps map[string]int
}

// profiles holds the known record layouts.
var profiles = map[RecordType]Profile{
	// pubkey owner (32) + reputation u64 (8) + last_updated i64 (8) +
	// invites_sent u16 (2) + capabilities u64 (8) + bump (1) + flags (8).
	TypeAgent: {
		FixedFieldBytes: 67,
		VariableFieldCaps: map[string]int{
			"metadata_uri": 4 + 200,
		},
	},
	// sender (32) + recipient (32) + payload_hash (32) + timestamps (16) +
	// expiry (8) + message_type (1) + status (1) + bump (1) + payload
	// length prefix and inline body cap (25).
	TypeMessage: {
		FixedFieldBytes: 148,
	},
	// creator (32) + visibility (1) + participant/message counters (8) +
	// fee_per_message u64 (8) + escrow_balance u64 (8) + created_at (8) +
	// bump (1).
	TypeChannel: {
		FixedFieldBytes: 66,
		VariableFieldCaps: map[string]int{
			"name":        4 + 64,
			"description": 4 + 256,
		},
	},
	// channel (32) + depositor (32) + amount u64 (8) + created_at (8) +
	// bump (1).
	TypeEscrow: {
		FixedFieldBytes: 81,
	},
	// period start/end (16) + message/agent/channel counters (24) +
	// volume u64 (8) + peak metrics (32) + bump (1).
	TypeAnalytics: {
		FixedFieldBytes: 89,
	},
}

// Size returns the worst-case serialized byte size for a record type.
func Size(t RecordType) (int, error) {
	p, ok := profiles[t]
	if !ok {
		return 0, sdkerr.NewValidation(fmt.Sprintf("unknown record type %q", t))
	}

	size := discriminatorLen + p.FixedFieldBytes
	for _, c := range p.VariableFieldCaps {
		size += c
	}
	return size, nil
}

// EstimateTotal returns the worst-case payload size for count records.
func EstimateTotal(t RecordType, count int) (int, error) {
	if count < 0 {
		return 0, sdkerr.NewValidation("record count must not be negative")
	}
	size, err := Size(t)
	if err != nil {
		return 0, err
	}
	return size * count, nil
}

// Types lists the known record types.
func Types() []RecordType {
	return []RecordType{TypeAgent, TypeMessage, TypeChannel, TypeEscrow, TypeAnalytics}
}

// safetyMargin leaves headroom under the theoretical response maximum;
// endpoints reject payloads near the hard limit.
const safetyMargin = 0.8

// DefaultMaxResponseBytes is the endpoint's default response payload cap.
const DefaultMaxResponseBytes = 10 * 1024 * 1024

// BatchPlan is the recommended fetch schedule for a record population.
type BatchPlan struct {
	// RecordSize is the worst-case size of one record.
	RecordSize int

	// BatchSize is the number of records fetched per call.
	BatchSize int

	// Calls is the number of calls needed to cover the population.
	Calls int
}

// PlanBatches recommends a batch size and call count for fetching count
// records of type t such that every response stays under maxResponseBytes
// with headroom. Pass DefaultMaxResponseBytes unless the endpoint
// advertises a different limit.
func PlanBatches(t RecordType, count, maxResponseBytes int) (BatchPlan, error) {
	if count < 0 {
		return BatchPlan{}, sdkerr.NewValidation("record count must not be negative")
	}
	if maxResponseBytes <= 0 {
		return BatchPlan{}, sdkerr.NewValidation("max response bytes must be positive")
	}

	size, err := Size(t)
	if err != nil {
		return BatchPlan{}, err
	}

	budget := int(float64(maxResponseBytes) * safetyMargin)
	perCall := budget / size
	if perCall < 1 {
		return BatchPlan{}, sdkerr.NewValidation(
			fmt.Sprintf("record type %q (%d bytes) does not fit a %d byte response budget", t, size, budget))
	}

	plan := BatchPlan{RecordSize: size, BatchSize: perCall}
	if count == 0 {
		return plan, nil
	}
	if count < perCall {
		plan.BatchSize = count
		plan.Calls = 1
		return plan, nil
	}
	plan.Calls = (count + perCall - 1) / perCall
	return plan, nil
}
