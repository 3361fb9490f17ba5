// Package ports defines shared interfaces for the governance module.
// Interfaces are placed here when consumed by multiple services to avoid
// duplication.
package ports

import (
	"context"
	"log/slog"
	"time"

	"teagate/internal/governance/models"
	"teagate/internal/platform/audit"
	request "teagate/pkg/platform/middleware/request"
)

// CounterStore is the shared counter store every admission policy runs
// against. Incr and DecrIfAtLeast are linearizable per key: concurrent
// callers never lose updates. Implementations: in-memory (tests, dev)
// and Redis (production).
type CounterStore interface {
	// Incr atomically increments the integer at key by one and returns
	// the new value. Missing keys start at zero.
	Incr(ctx context.Context, key string) (int64, error)

	// IncrBy atomically adds delta to the integer at key and returns
	// the new value.
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)

	// DecrIfAtLeast atomically subtracts amount from the integer at key
	// only if the current value is >= amount. Returns the resulting
	// value and whether the decrement was applied; when not applied the
	// value is left untouched and returned as-is.
	DecrIfAtLeast(ctx context.Context, key string, amount int64) (value int64, applied bool, err error)

	// Get returns the string at key, with found=false for missing keys.
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// Set unconditionally writes value at key with no expiry.
	Set(ctx context.Context, key, value string) error

	// SetNX writes value at key only if the key is absent, returning
	// whether the write happened. The claim is atomic.
	SetNX(ctx context.Context, key, value string) (claimed bool, err error)

	// Expire sets the time-to-live for key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// TTL returns the remaining time-to-live for key; ok is false when
	// the key is missing or has no expiry.
	TTL(ctx context.Context, key string) (ttl time.Duration, ok bool, err error)

	// Del removes key. Deleting a missing key is not an error.
	Del(ctx context.Context, key string) error
}

// OverrideStore manages per-identity limit overrides. Overrides are
// durable admin-managed config, kept apart from the volatile counters.
type OverrideStore interface {
	// GetOverrides returns the override record for an identity; nil
	// when none is configured.
	GetOverrides(ctx context.Context, identity string) (*models.OverrideConfig, error)

	// SetRateLimitOverride sets (or clears, when limit is nil) the
	// per-identity rate limit.
	SetRateLimitOverride(ctx context.Context, identity string, limit *int) error

	// SetHardCapOverride sets (or clears, when cap is nil) the
	// per-identity lifetime cap.
	SetHardCapOverride(ctx context.Context, identity string, cap *int) error

	// ListOverrides returns all identities with configured overrides.
	ListOverrides(ctx context.Context) ([]*models.OverrideConfig, error)
}

// AuditPublisher emits audit events for security-relevant operations.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// LogAudit is a shared helper for logging audit events across governance
// services. It logs to both the structured logger and the audit
// publisher if available.
func LogAudit(ctx context.Context, logger *slog.Logger, publisher AuditPublisher, event audit.Event, attrs ...any) {
	if event.RequestID == "" {
		event.RequestID = request.GetRequestID(ctx)
	}

	if logger != nil {
		args := append(attrs,
			"event", event.Action,
			"identity", event.Identity,
			"request_id", event.RequestID,
			"log_type", "audit",
		)
		logger.InfoContext(ctx, event.Action, args...)
	}

	if publisher == nil {
		return
	}
	if err := publisher.Emit(ctx, event); err != nil && logger != nil {
		logger.WarnContext(ctx, "failed to emit audit event", "event", event.Action, "error", err)
	}
}
