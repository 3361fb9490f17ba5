package models

import "strings"

// Counter store key layout. Every key is owned by exactly one identity
// (or one code), so contention is only ever self-contention.
//
//	ratelimit:<identity>                    fixed-window counter (expiring)
//	usage:<identity>:total                  lifetime quota counter
//	credits:<identity>                      credit balance
//	referral:code:<code>:owner              code -> owner mapping
//	referral:user:<identity>:code           owner -> code mapping
//	referral:user:<identity>:is_redeemed    one-shot redemption flag
//	referral:code:<code>:usage              redemption count per code

// SanitizeKeySegment escapes the delimiter in user-controlled key
// segments to prevent collision attacks where an identity containing
// ':' could address an adjacent key.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}

func RateLimitKey(identity string) string {
	return "ratelimit:" + SanitizeKeySegment(identity)
}

func UsageKey(identity string) string {
	return "usage:" + SanitizeKeySegment(identity) + ":total"
}

func CreditsKey(identity string) string {
	return "credits:" + SanitizeKeySegment(identity)
}

func CodeOwnerKey(code string) string {
	return "referral:code:" + SanitizeKeySegment(code) + ":owner"
}

func UserCodeKey(identity string) string {
	return "referral:user:" + SanitizeKeySegment(identity) + ":code"
}

func RedeemedFlagKey(identity string) string {
	return "referral:user:" + SanitizeKeySegment(identity) + ":is_redeemed"
}

func CodeUsageKey(code string) string {
	return "referral:code:" + SanitizeKeySegment(code) + ":usage"
}
