// Package audit captures structured audit events emitted from governance
// logic. Events are transport-agnostic so sinks (memory, Kafka) can fan out.
package audit

import "time"

// Event records a security-relevant governance action.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Identity  string    `json:"identity,omitempty"`
	Action    string    `json:"action"`
	Decision  string    `json:"decision,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	// ActorID tracks who performed the action when different from
	// Identity (admin operations on a user's behalf).
	ActorID string `json:"actor_id,omitempty"`
}

// Governance audit actions.
const (
	EventRateLimitExceeded  = "rate_limit_exceeded"
	EventQuotaExceeded      = "quota_exceeded"
	EventCreditsExhausted   = "credits_exhausted"
	EventStoreFailOpen      = "counter_store_fail_open"
	EventStoreFailClosed    = "counter_store_fail_closed"
	EventReferralCodeIssued = "referral_code_issued"
	EventReferralRedeemed   = "referral_redeemed"
	EventReferralRejected   = "referral_rejected"
	EventOverrideSet        = "governance_override_set"
	EventOverrideCleared    = "governance_override_cleared"
	EventUsageReset         = "usage_reset"
)
