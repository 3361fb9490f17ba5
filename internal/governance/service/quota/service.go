// Package quota enforces the lifetime cumulative cap per identity.
package quota

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"teagate/internal/governance/config"
	"teagate/internal/governance/metrics"
	"teagate/internal/governance/models"
	"teagate/internal/governance/ports"
	"teagate/internal/platform/audit"
	dErrors "teagate/pkg/domain-errors"
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

// Check increments the identity's lifetime counter, then compares the
// post-increment value to the effective cap. The increment-first order
// means the first over-cap attempt is itself counted; see DESIGN.md for
// why this is preserved rather than corrected.
//
// The quota guards a resource-cost ceiling, so a counter store outage
// FAILS CLOSED: unbounded spend during an outage is the worse default.
func (s *Service) Check(ctx context.Context, identity string) (*models.QuotaResult, error) {
	cap := s.effectiveCap(ctx, identity)

	count, err := s.counters.Incr(ctx, models.UsageKey(identity))
	if err != nil {
		return s.failClosed(ctx, identity, cap, err), nil
	}

	result := &models.QuotaResult{
		Allowed:   count <= int64(cap),
		Cap:       cap,
		Remaining: remaining(cap, count),
	}

	if !result.Allowed {
		if s.metrics != nil {
			s.metrics.RecordDenial(string(models.LimitKindQuota))
		}
		ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.Event{
			Identity: identity,
			Action:   audit.EventQuotaExceeded,
			Decision: "deny",
		}, "lifetime_count", count, "cap", cap)
	}

	return result, nil
}

// Usage returns the identity's lifetime counter without incrementing it.
func (s *Service) Usage(ctx context.Context, identity string) (int, error) {
	value, found, err := s.counters.Get(ctx, models.UsageKey(identity))
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to read lifetime usage")
	}
	if !found {
		return 0, nil
	}
	return parseCount(value)
}

// ResetUsage clears the lifetime counter AND the current rate window
// together; a reset identity starts from a clean slate on both.
func (s *Service) ResetUsage(ctx context.Context, identity string) error {
	if identity == "" {
		return dErrors.New(dErrors.CodeBadRequest, "identity is required")
	}

	if err := s.counters.Del(ctx, models.UsageKey(identity)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reset lifetime usage")
	}
	if err := s.counters.Del(ctx, models.RateLimitKey(identity)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reset rate window")
	}

	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.Event{
		Identity: identity,
		Action:   audit.EventUsageReset,
	})

	return nil
}

func (s *Service) effectiveCap(ctx context.Context, identity string) int {
	o, err := s.overrides.GetOverrides(ctx, identity)
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "override lookup failed, using default quota cap",
				"identity", identity, "error", err)
		}
		return s.config.QuotaCap
	}
	if o == nil || o.QuotaCapOverride == nil || *o.QuotaCapOverride <= 0 {
		return s.config.QuotaCap
	}
	return *o.QuotaCapOverride
}

func (s *Service) failClosed(ctx context.Context, identity string, cap int, cause error) *models.QuotaResult {
	if s.metrics != nil {
		s.metrics.RecordStoreFailure("quota", "closed")
	}
	if s.logger != nil {
		s.logger.ErrorContext(ctx, "counter store unreachable, quota check failing closed",
			"identity", identity, "error", cause)
	}
	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.Event{
		Identity: identity,
		Action:   audit.EventStoreFailClosed,
		Decision: "deny",
		Reason:   cause.Error(),
	}, "check", "quota")
	return &models.QuotaResult{Allowed: false, Cap: cap, Remaining: 0}
}

func remaining(cap int, count int64) int {
	r := int64(cap) - count
	if r < 0 {
		return 0
	}
	return int(r)
}

func parseCount(value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, dErrors.Newf(dErrors.CodeInternal, "corrupt counter value %q", value)
	}
	return n, nil
}
