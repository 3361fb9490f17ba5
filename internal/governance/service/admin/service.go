// Package admin exposes the operator surface: per-identity overrides,
// effective-config inspection, and usage resets.
package admin

import (
	"context"
	"errors"
	"log/slog"

	"teagate/internal/governance/config"
	"teagate/internal/governance/models"
	"teagate/internal/governance/ports"
	"teagate/internal/platform/audit"
	dErrors "teagate/pkg/domain-errors"
)

// Type aliases for shared interfaces.
type (
	OverrideStore  = ports.OverrideStore
	AuditPublisher = ports.AuditPublisher
)

// UsageManager reads and resets lifetime usage. Satisfied by the quota
// service.
type UsageManager interface {
	Usage(ctx context.Context, identity string) (int, error)
	ResetUsage(ctx context.Context, identity string) error
}

// BalanceReader reads credit balances. Satisfied by the credits service.
type BalanceReader interface {
	Balance(ctx context.Context, identity string) (int, error)
}

type Service struct {
	overrides      OverrideStore
	usage          UsageManager
	balances       BalanceReader
	auditPublisher AuditPublisher
	logger         *slog.Logger
	config         *config.Config
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

func New(overrides OverrideStore, usage UsageManager, balances BalanceReader, opts ...Option) (*Service, error) {
	if overrides == nil {
		return nil, errors.New("override store is required")
	}
	if usage == nil {
		return nil, errors.New("usage manager is required")
	}
	if balances == nil {
		return nil, errors.New("balance reader is required")
	}

	svc := &Service{
		overrides: overrides,
		usage:     usage,
		balances:  balances,
		config:    config.DefaultConfig(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// SetRateLimitOverride installs a per-identity rate limit; nil clears it
// back to the system default.
func (s *Service) SetRateLimitOverride(ctx context.Context, identity string, limit *int) error {
	if err := validateOverride(identity, limit); err != nil {
		return err
	}

	if err := s.overrides.SetRateLimitOverride(ctx, identity, limit); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store rate limit override")
	}

	s.auditOverride(ctx, identity, "rate_limit", limit)
	return nil
}

// SetHardCapOverride installs a per-identity lifetime cap; nil clears it
// back to the system default.
func (s *Service) SetHardCapOverride(ctx context.Context, identity string, cap *int) error {
	if err := validateOverride(identity, cap); err != nil {
		return err
	}

	if err := s.overrides.SetHardCapOverride(ctx, identity, cap); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store quota cap override")
	}

	s.auditOverride(ctx, identity, "quota_cap", cap)
	return nil
}

// GetIdentityConfig assembles the operator view of one identity: the
// effective limits with their provenance plus the live counters.
func (s *Service) GetIdentityConfig(ctx context.Context, identity string) (*models.IdentityConfig, error) {
	if identity == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "identity is required")
	}

	cfg := &models.IdentityConfig{
		Identity:  identity,
		RateLimit: s.config.RateLimit,
		QuotaCap:  s.config.QuotaCap,
	}

	o, err := s.overrides.GetOverrides(ctx, identity)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read overrides")
	}
	if o != nil {
		if o.RateLimitOverride != nil {
			cfg.RateLimit = *o.RateLimitOverride
			cfg.RateLimitCustom = true
		}
		if o.QuotaCapOverride != nil {
			cfg.QuotaCap = *o.QuotaCapOverride
			cfg.QuotaCapCustom = true
		}
	}

	if cfg.LifetimeUsage, err = s.usage.Usage(ctx, identity); err != nil {
		return nil, err
	}
	if cfg.CreditBalance, err = s.balances.Balance(ctx, identity); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ListOverrides returns every identity with a configured override.
func (s *Service) ListOverrides(ctx context.Context) ([]*models.OverrideConfig, error) {
	list, err := s.overrides.ListOverrides(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list overrides")
	}
	return list, nil
}

// ResetUsage clears an identity's lifetime usage and current rate
// window.
func (s *Service) ResetUsage(ctx context.Context, identity string) error {
	return s.usage.ResetUsage(ctx, identity)
}

func validateOverride(identity string, value *int) error {
	if identity == "" {
		return dErrors.New(dErrors.CodeBadRequest, "identity is required")
	}
	if value != nil && *value <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "override value must be positive")
	}
	return nil
}

func (s *Service) auditOverride(ctx context.Context, identity, field string, value *int) {
	event := audit.Event{Identity: identity, Action: audit.EventOverrideSet}
	attrs := []any{"field", field}
	if value == nil {
		event.Action = audit.EventOverrideCleared
	} else {
		attrs = append(attrs, "value", *value)
	}
	ports.LogAudit(ctx, s.logger, s.auditPublisher, event, attrs...)
}
