package models

import (
	"time"

	dErrors "teagate/pkg/domain-errors"
)

// LimitKind identifies which admission stage produced a decision.
type LimitKind string

const (
	LimitKindRate    LimitKind = "RATE"
	LimitKindQuota   LimitKind = "QUOTA"
	LimitKindCredits LimitKind = "CREDITS"
)

// RateLimitResult represents the outcome of a fixed-window rate check.
type RateLimitResult struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// QuotaResult represents the outcome of a lifetime quota check.
type QuotaResult struct {
	Allowed   bool `json:"allowed"`
	Cap       int  `json:"cap"`
	Remaining int  `json:"remaining"`
}

// CreditResult represents the outcome of a check-and-debit attempt.
// Remaining is the post-debit balance on success, the untouched balance
// on failure.
type CreditResult struct {
	Success   bool `json:"success"`
	Remaining int  `json:"remaining"`
}

// Decision is the admission pipeline's structured verdict. LimitKind is
// set only when a stage denied.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	LimitKind LimitKind `json:"limit_kind,omitempty"`
	Limit     int       `json:"limit,omitempty"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at,omitzero"`
	Message   string    `json:"message,omitempty"`
}

// OverrideConfig carries per-identity limit overrides. Nil fields mean
// "use the system default".
type OverrideConfig struct {
	Identity          string `json:"identity"`
	RateLimitOverride *int   `json:"rate_limit_override,omitempty"`
	QuotaCapOverride  *int   `json:"quota_cap_override,omitempty"`
}

// IdentityConfig is the admin view of one identity's effective settings
// and current counters.
type IdentityConfig struct {
	Identity        string `json:"identity"`
	RateLimit       int    `json:"rate_limit"`
	RateLimitCustom bool   `json:"rate_limit_custom"`
	QuotaCap        int    `json:"quota_cap"`
	QuotaCapCustom  bool   `json:"quota_cap_custom"`
	LifetimeUsage   int    `json:"lifetime_usage"`
	CreditBalance   int    `json:"credit_balance"`
}

// RedemptionResult is the outcome of a referral redemption attempt.
type RedemptionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ReferralStats summarizes an identity's referral activity. Earned is
// derived from Count on read so it can never drift from the usage counter.
type ReferralStats struct {
	Code   string `json:"code"`
	Count  int    `json:"count"`
	Earned int    `json:"earned"`
}

// Referral rejection reasons. These are deterministic user-input
// rejections, not transient faults; retrying with the same input fails
// identically.
var (
	ErrInvalidReferralCode = dErrors.New(dErrors.CodeNotFound, "referral code not recognized")
	ErrSelfReferral        = dErrors.New(dErrors.CodeInvalidInput, "you cannot redeem your own referral code")
	ErrAlreadyRedeemed     = dErrors.New(dErrors.CodeConflict, "a referral code has already been redeemed for this account")
)
