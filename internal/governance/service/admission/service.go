// Package admission runs the ordered gate pipeline for metered requests:
// rate limit, then lifetime quota, then credit debit. The first stage to
// deny short-circuits the rest, so a denied request costs nothing at the
// later stages.
package admission

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"teagate/internal/governance/config"
	"teagate/internal/governance/models"
)

const tracerName = "teagate/governance/admission"

// RateLimiter gates requests by fixed window.
type RateLimiter interface {
	Check(ctx context.Context, identity string) (*models.RateLimitResult, error)
}

// QuotaEnforcer gates requests by lifetime cap.
type QuotaEnforcer interface {
	Check(ctx context.Context, identity string) (*models.QuotaResult, error)
}

// CreditDebitor gates requests by prepaid balance.
type CreditDebitor interface {
	CheckAndDebit(ctx context.Context, identity string, cost int) (*models.CreditResult, error)
}

type Service struct {
	rate    RateLimiter
	quota   QuotaEnforcer
	credits CreditDebitor
	logger  *slog.Logger
	config  *config.Config
	tracer  trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		s.config = cfg
	}
}

func New(rate RateLimiter, quota QuotaEnforcer, credits CreditDebitor, opts ...Option) (*Service, error) {
	if rate == nil {
		return nil, errors.New("rate limiter is required")
	}
	if quota == nil {
		return nil, errors.New("quota enforcer is required")
	}
	if credits == nil {
		return nil, errors.New("credit debitor is required")
	}

	svc := &Service{
		rate:    rate,
		quota:   quota,
		credits: credits,
		config:  config.DefaultConfig(),
		tracer:  otel.Tracer(tracerName),
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// Admit runs the full pipeline for one request by identity. The returned
// Decision carries which stage denied (if any) and the headers-facing
// numbers for that stage. The error return is reserved for malformed
// input; store outages surface as stage decisions, not errors.
func (s *Service) Admit(ctx context.Context, identity string) (*models.Decision, error) {
	if identity == "" {
		return nil, errors.New("identity is required")
	}

	ctx, span := s.tracer.Start(ctx, "admission.Admit",
		trace.WithAttributes(attribute.String("governance.identity", identity)))
	defer span.End()

	rate, err := s.rate.Check(ctx, identity)
	if err != nil {
		return nil, err
	}
	if !rate.Allowed {
		span.SetAttributes(attribute.String("governance.denied_by", string(models.LimitKindRate)))
		return &models.Decision{
			LimitKind: models.LimitKindRate,
			Limit:     rate.Limit,
			Remaining: rate.Remaining,
			ResetAt:   rate.ResetAt,
			Message:   "Rate limit exceeded. Try again later.",
		}, nil
	}

	quota, err := s.quota.Check(ctx, identity)
	if err != nil {
		return nil, err
	}
	if !quota.Allowed {
		span.SetAttributes(attribute.String("governance.denied_by", string(models.LimitKindQuota)))
		return &models.Decision{
			LimitKind: models.LimitKindQuota,
			Limit:     quota.Cap,
			Remaining: quota.Remaining,
			Message:   "Quota Exceeded",
		}, nil
	}

	decision := &models.Decision{
		Allowed:   true,
		Limit:     rate.Limit,
		Remaining: rate.Remaining,
		ResetAt:   rate.ResetAt,
	}

	cost := s.config.AnalysisCost
	if cost <= 0 {
		// Free tier: the credit stage is disabled entirely.
		return decision, nil
	}

	credit, err := s.credits.CheckAndDebit(ctx, identity, cost)
	if err != nil {
		return nil, err
	}
	if !credit.Success {
		span.SetAttributes(attribute.String("governance.denied_by", string(models.LimitKindCredits)))
		return &models.Decision{
			LimitKind: models.LimitKindCredits,
			Remaining: credit.Remaining,
			Message:   "Insufficient credits",
		}, nil
	}

	return decision, nil
}
