// Package config holds the governance policy defaults: window sizes,
// limits, caps, credit costs, and referral reward parameters.
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Fixed-window rate limiting.
	RateLimit  int
	RateWindow time.Duration

	// Lifetime quota cap. Never resets except by admin action.
	QuotaCap int

	// Credit cost of one metered analysis. Zero disables the credit
	// stage of the admission pipeline.
	AnalysisCost int

	// Referral rewards: each party is credited RewardAmount on a
	// successful redemption.
	RewardAmount int

	// Referral code shape: Prefix + CodeLength characters drawn from
	// CodeAlphabet. Generation retries on collision up to CodeRetries.
	CodePrefix   string
	CodeLength   int
	CodeAlphabet string
	CodeRetries  int
}

// DefaultConfig returns production defaults. Env variables override the
// numeric policy knobs so operators can tune without a rebuild.
func DefaultConfig() *Config {
	return &Config{
		RateLimit:    envInt("GOVERNANCE_RATE_LIMIT", 10),
		RateWindow:   time.Duration(envInt("GOVERNANCE_RATE_WINDOW_SECONDS", 60)) * time.Second,
		QuotaCap:     envInt("GOVERNANCE_QUOTA_CAP", 50),
		AnalysisCost: envInt("GOVERNANCE_ANALYSIS_COST", 1),
		RewardAmount: envInt("GOVERNANCE_REFERRAL_REWARD", 5),
		CodePrefix:   "TEA-",
		CodeLength:   4,
		// Confusion-free alphabet: no 0/O or 1/I.
		CodeAlphabet: "ABCDEFGHJKLMNPQRSTUVWXYZ23456789",
		CodeRetries:  5,
	}
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return fallback
}
