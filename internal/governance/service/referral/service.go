// Package referral issues per-identity referral codes and pays out
// credit rewards when a code is redeemed. Redemption is one-shot per
// redeeming identity.
package referral

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"math/big"
	"strconv"
	"strings"

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
	AuditPublisher = ports.AuditPublisher
)

// CreditGranter pays out rewards. Satisfied by the credits service.
type CreditGranter interface {
	Credit(ctx context.Context, identity string, amount int) (int, error)
}

type Service struct {
	counters       CounterStore
	credits        CreditGranter
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

func New(counters CounterStore, credits CreditGranter, opts ...Option) (*Service, error) {
	if counters == nil {
		return nil, errors.New("counter store is required")
	}
	if credits == nil {
		return nil, errors.New("credit granter is required")
	}

	svc := &Service{
		counters: counters,
		credits:  credits,
		config:   config.DefaultConfig(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// GetOrCreateCode returns the identity's referral code, generating one
// on first call. Repeated calls return the same code.
//
// Both index directions are claimed with atomic set-if-absent: the
// code->owner mapping so two identities never share a code even when
// generation collides, and the owner->code mapping so two concurrent
// calls by one identity converge on a single code.
func (s *Service) GetOrCreateCode(ctx context.Context, identity string) (string, error) {
	if identity == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "identity is required")
	}

	existing, found, err := s.counters.Get(ctx, models.UserCodeKey(identity))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to look up referral code")
	}
	if found {
		return existing, nil
	}

	for attempt := 0; attempt < s.config.CodeRetries; attempt++ {
		code, err := s.generateCode()
		if err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate referral code")
		}

		claimed, err := s.counters.SetNX(ctx, models.CodeOwnerKey(code), identity)
		if err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to claim referral code")
		}
		if !claimed {
			continue
		}

		// The reverse mapping is claimed atomically too: a concurrent
		// call for the same identity may have won it since our miss
		// above. The loser unwinds its forward claim and returns the
		// winner's code so the identity never ends up owning two.
		won, err := s.counters.SetNX(ctx, models.UserCodeKey(identity), code)
		if err != nil {
			s.releaseCodeClaim(ctx, code)
			return "", dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to store referral code")
		}
		if !won {
			s.releaseCodeClaim(ctx, code)
			winner, found, err := s.counters.Get(ctx, models.UserCodeKey(identity))
			if err != nil {
				return "", dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to look up referral code")
			}
			if found {
				return winner, nil
			}
			continue
		}

		ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.Event{
			Identity: identity,
			Action:   audit.EventReferralCodeIssued,
		}, "code", code)

		return code, nil
	}

	return "", dErrors.Newf(dErrors.CodeInternal,
		"could not find a free referral code after %d attempts", s.config.CodeRetries)
}

// Redeem applies the owner's code to the redeeming identity and pays
// both parties the reward. Each identity can redeem at most one code,
// ever; the one-shot flag is claimed atomically BEFORE any credits move,
// so two concurrent redemptions by the same identity cannot both pay out.
func (s *Service) Redeem(ctx context.Context, identity, code string) (*models.RedemptionResult, error) {
	if identity == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "identity is required")
	}

	code = normalizeCode(code)
	if code == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "referral code is required")
	}

	owner, found, err := s.counters.Get(ctx, models.CodeOwnerKey(code))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to look up referral code")
	}
	if !found {
		s.rejected(ctx, identity, code, "invalid_code")
		return nil, models.ErrInvalidReferralCode
	}

	if owner == identity {
		s.rejected(ctx, identity, code, "self_referral")
		return nil, models.ErrSelfReferral
	}

	claimed, err := s.counters.SetNX(ctx, models.RedeemedFlagKey(identity), code)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to claim redemption")
	}
	if !claimed {
		s.rejected(ctx, identity, code, "already_redeemed")
		return nil, models.ErrAlreadyRedeemed
	}

	reward := s.config.RewardAmount
	if err := s.payout(ctx, owner, identity, reward); err != nil {
		// Release the claim so the identity can retry once the store
		// recovers. A partial payout can leave the referrer paid twice
		// across the retry; stranding the redeemer would be worse.
		if delErr := s.counters.Del(ctx, models.RedeemedFlagKey(identity)); delErr != nil && s.logger != nil {
			s.logger.ErrorContext(ctx, "failed to release redemption flag after payout failure",
				"identity", identity, "error", delErr)
		}
		return nil, err
	}

	if _, err := s.counters.Incr(ctx, models.CodeUsageKey(code)); err != nil && s.logger != nil {
		// Stats undercount by one; the payout already happened and is
		// not worth unwinding for a stats counter.
		s.logger.WarnContext(ctx, "failed to bump referral usage counter",
			"code", code, "error", err)
	}

	if s.metrics != nil {
		s.metrics.ReferralRedemptions.Inc()
	}
	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.Event{
		Identity: identity,
		Action:   audit.EventReferralRedeemed,
		Decision: "allow",
	}, "code", code, "owner", owner, "reward", reward)

	return &models.RedemptionResult{
		Success: true,
		Message: "Referral applied: you and your referrer each earned " + strconv.Itoa(reward) + " credits",
	}, nil
}

// Stats reports the identity's referral code and how much it has earned.
// Earned is derived from the redemption count so the two can never
// disagree. Identities that never requested a code get empty stats.
func (s *Service) Stats(ctx context.Context, identity string) (*models.ReferralStats, error) {
	code, found, err := s.counters.Get(ctx, models.UserCodeKey(identity))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to look up referral code")
	}
	if !found {
		return &models.ReferralStats{}, nil
	}

	count := 0
	if value, found, err := s.counters.Get(ctx, models.CodeUsageKey(code)); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to read referral usage")
	} else if found {
		count, err = strconv.Atoi(value)
		if err != nil {
			return nil, dErrors.Newf(dErrors.CodeInternal, "corrupt referral usage value %q", value)
		}
	}

	return &models.ReferralStats{
		Code:   code,
		Count:  count,
		Earned: count * s.config.RewardAmount,
	}, nil
}

// releaseCodeClaim drops an owner mapping claimed by a generation
// attempt that did not become the identity's code.
func (s *Service) releaseCodeClaim(ctx context.Context, code string) {
	if err := s.counters.Del(ctx, models.CodeOwnerKey(code)); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to release unused referral code claim",
			"code", code, "error", err)
	}
}

// payout credits both sides of a redemption. There is no cross-key
// transaction in the counter store; the owner is paid first so a partial
// failure favors the referrer, and the caller unwinds the claim flag.
func (s *Service) payout(ctx context.Context, owner, redeemer string, reward int) error {
	if _, err := s.credits.Credit(ctx, owner, reward); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to credit referrer")
	}
	if _, err := s.credits.Credit(ctx, redeemer, reward); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to credit redeemer")
	}
	return nil
}

func (s *Service) rejected(ctx context.Context, identity, code, reason string) {
	if s.metrics != nil {
		s.metrics.ReferralRejections.WithLabelValues(reason).Inc()
	}
	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.Event{
		Identity: identity,
		Action:   audit.EventReferralRejected,
		Decision: "deny",
		Reason:   reason,
	}, "code", code)
}

func (s *Service) generateCode() (string, error) {
	alphabet := s.config.CodeAlphabet
	max := big.NewInt(int64(len(alphabet)))

	var b strings.Builder
	b.WriteString(s.config.CodePrefix)
	for i := 0; i < s.config.CodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(alphabet[n.Int64()])
	}
	return b.String(), nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
