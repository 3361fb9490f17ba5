package models

// HTTP response shapes for the governance surface.

// RateLimitExceededResponse is the 429 body for rate-stage denials.
type RateLimitExceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"` // seconds
}

// QuotaExceededResponse is the 429 body for quota-stage denials.
// Terminal until an admin resets usage; no retry hint is given.
type QuotaExceededResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// InsufficientCreditsResponse is the 402 body for credit-stage denials.
type InsufficientCreditsResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Balance int    `json:"balance"`
}

// ReferralCodeResponse carries the caller's referral code.
type ReferralCodeResponse struct {
	Code string `json:"code"`
}

// RedeemRequest is the body of POST /referral/redeem.
type RedeemRequest struct {
	Code string `json:"code"`
}

// RedeemResponse mirrors RedemptionResult for the wire.
type RedeemResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// OverrideRequest is the body of the admin override endpoints.
type OverrideRequest struct {
	Value int `json:"value"`
}
