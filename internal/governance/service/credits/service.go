// Package credits maintains per-identity credit balances and performs
// atomic check-and-debit for metered operations.
package credits

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"teagate/internal/governance/metrics"
	"teagate/internal/governance/models"
	"teagate/internal/governance/ports"
	"teagate/internal/platform/audit"
	dErrors "teagate/pkg/domain-errors"
)

// Type aliases for shared interfaces.
type (
	CounterStore   = ports.CounterStore
	AuditPublisher = ports.AuditPublisher
)

type Service struct {
	counters       CounterStore
	auditPublisher AuditPublisher
	logger         *slog.Logger
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

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(counters CounterStore, opts ...Option) (*Service, error) {
	if counters == nil {
		return nil, errors.New("counter store is required")
	}

	svc := &Service{counters: counters}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// CheckAndDebit deducts cost from the identity's balance in a single
// atomic conditional decrement. The balance can never go negative:
// concurrent debits race on the store's linearizable decrement, so at
// most balance/cost of them can succeed.
//
// Credits are prepaid value, so a store outage FAILS CLOSED.
func (s *Service) CheckAndDebit(ctx context.Context, identity string, cost int) (*models.CreditResult, error) {
	if cost <= 0 {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "debit cost must be positive, got %d", cost)
	}

	value, applied, err := s.counters.DecrIfAtLeast(ctx, models.CreditsKey(identity), int64(cost))
	if err != nil {
		return s.failClosed(ctx, identity, err), nil
	}

	result := &models.CreditResult{Success: applied, Remaining: int(value)}

	if applied {
		if s.metrics != nil {
			s.metrics.CreditsDebited.Add(float64(cost))
		}
		return result, nil
	}

	if s.metrics != nil {
		s.metrics.RecordDenial(string(models.LimitKindCredits))
	}
	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.Event{
		Identity: identity,
		Action:   audit.EventCreditsExhausted,
		Decision: "deny",
	}, "balance", value, "cost", cost)

	return result, nil
}

// Credit grants amount to the identity's balance. Balances are
// unbounded above.
func (s *Service) Credit(ctx context.Context, identity string, amount int) (int, error) {
	if amount <= 0 {
		return 0, dErrors.Newf(dErrors.CodeBadRequest, "credit amount must be positive, got %d", amount)
	}

	balance, err := s.counters.IncrBy(ctx, models.CreditsKey(identity), int64(amount))
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to credit balance")
	}

	if s.metrics != nil {
		s.metrics.CreditsGranted.Add(float64(amount))
	}

	return int(balance), nil
}

// Balance returns the identity's current balance. Identities with no
// record have a balance of zero.
func (s *Service) Balance(ctx context.Context, identity string) (int, error) {
	value, found, err := s.counters.Get(ctx, models.CreditsKey(identity))
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to read balance")
	}
	if !found {
		return 0, nil
	}

	balance, err := strconv.Atoi(value)
	if err != nil {
		return 0, dErrors.Newf(dErrors.CodeInternal, "corrupt balance value %q", value)
	}
	return balance, nil
}

func (s *Service) failClosed(ctx context.Context, identity string, cause error) *models.CreditResult {
	if s.metrics != nil {
		s.metrics.RecordStoreFailure("credits", "closed")
	}
	if s.logger != nil {
		s.logger.ErrorContext(ctx, "counter store unreachable, debit failing closed",
			"identity", identity, "error", cause)
	}
	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.Event{
		Identity: identity,
		Action:   audit.EventStoreFailClosed,
		Decision: "deny",
		Reason:   cause.Error(),
	}, "check", "credits")
	return &models.CreditResult{Success: false, Remaining: 0}
}
