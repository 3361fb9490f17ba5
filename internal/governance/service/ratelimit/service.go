// Package ratelimit enforces fixed-window request throttling per identity.
package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"teagate/internal/governance/config"
	"teagate/internal/governance/metrics"
	"teagate/internal/governance/models"
	"teagate/internal/governance/ports"
	"teagate/internal/platform/audit"
	"teagate/pkg/requestcontext"
)

// Type aliases for shared interfaces.
type (
	CounterStore   = ports.CounterStore
	OverrideStore  = ports.OverrideStore
	AuditPublisher = ports.AuditPublisher
)

type Service struct {
	counters       CounterStore
	overrides      OverrideStore
	auditPublisher AuditPublisher
	logger         *slog.Logger
	config         *config.Config
	metrics        *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		s.config = cfg
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(counters CounterStore, overrides OverrideStore, opts ...Option) (*Service, error) {
	if counters == nil {
		return nil, errors.New("counter store is required")
	}
	if overrides == nil {
		return nil, errors.New("override store is required")
	}

	svc := &Service{
		counters:  counters,
		overrides: overrides,
		config:    config.DefaultConfig(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// Check counts this request against the identity's current window and
// reports whether it may proceed. The boundary is inclusive: the request
// that brings the count exactly to the limit is still allowed.
//
// Throttling protects against abuse, it is not a safety invariant, so a
// counter store outage FAILS OPEN: the request is admitted and the fault
// logged.
func (s *Service) Check(ctx context.Context, identity string) (*models.RateLimitResult, error) {
	now := requestcontext.Now(ctx)
	window := s.config.RateWindow
	limit := s.effectiveLimit(ctx, identity)

	key := models.RateLimitKey(identity)
	count, err := s.counters.Incr(ctx, key)
	if err != nil {
		return s.failOpen(ctx, identity, limit, now, err), nil
	}

	if count == 1 {
		// First hit in a fresh window owns setting the expiry.
		if err := s.counters.Expire(ctx, key, window); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "failed to set rate window expiry", "identity", identity, "error", err)
		}
	}

	resetAt := now.Add(window)
	if ttl, ok, err := s.counters.TTL(ctx, key); err == nil && ok {
		resetAt = now.Add(ttl)
	}

	result := &models.RateLimitResult{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: remaining(limit, count),
		ResetAt:   resetAt,
	}

	if !result.Allowed {
		if s.metrics != nil {
			s.metrics.RecordDenial(string(models.LimitKindRate))
		}
		ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.Event{
			Identity: identity,
			Action:   audit.EventRateLimitExceeded,
			Decision: "deny",
		}, "limit", limit, "window_seconds", int(window.Seconds()))
	}

	return result, nil
}

// Reset clears the identity's current window counter.
func (s *Service) Reset(ctx context.Context, identity string) error {
	return s.counters.Del(ctx, models.RateLimitKey(identity))
}

// effectiveLimit resolves the per-identity override, falling back to the
// system default when none is set or the override store misbehaves.
func (s *Service) effectiveLimit(ctx context.Context, identity string) int {
	o, err := s.overrides.GetOverrides(ctx, identity)
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "override lookup failed, using default rate limit",
				"identity", identity, "error", err)
		}
		return s.config.RateLimit
	}
	if o == nil || o.RateLimitOverride == nil || *o.RateLimitOverride <= 0 {
		return s.config.RateLimit
	}
	return *o.RateLimitOverride
}

func (s *Service) failOpen(ctx context.Context, identity string, limit int, now time.Time, cause error) *models.RateLimitResult {
	if s.metrics != nil {
		s.metrics.RecordStoreFailure("ratelimit", "open")
	}
	if s.logger != nil {
		s.logger.ErrorContext(ctx, "counter store unreachable, rate limit failing open",
			"identity", identity, "error", cause)
	}
	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.Event{
		Identity: identity,
		Action:   audit.EventStoreFailOpen,
		Decision: "allow",
		Reason:   cause.Error(),
	})
	return &models.RateLimitResult{
		Allowed:   true,
		Limit:     limit,
		Remaining: 1,
		ResetAt:   now.Add(s.config.RateWindow),
	}
}

func remaining(limit int, count int64) int {
	r := int64(limit) - count
	if r < 0 {
		return 0
	}
	return int(r)
}
