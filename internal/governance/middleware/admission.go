package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"teagate/internal/governance/models"
	"teagate/pkg/platform/httputil"
	auth "teagate/pkg/platform/middleware/auth"
	metadata "teagate/pkg/platform/middleware/metadata"
	"teagate/pkg/requestcontext"
)

// Admitter runs the governance pipeline for one request.
type Admitter interface {
	Admit(ctx context.Context, identity string) (*models.Decision, error)
}

type Middleware struct {
	admitter Admitter
	logger   *slog.Logger
	disabled bool
}

type Option func(*Middleware)

// WithDisabled turns the governance gate off entirely (testing/demo mode).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func New(admitter Admitter, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		admitter: admitter,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled && logger != nil {
		logger.Info("governance admission disabled")
	}
	return m
}

// Govern gates metered endpoints behind the admission pipeline.
// Authenticated requests are governed by user ID; anonymous ones by
// client IP, so run it after OptionalAuth and ClientMetadata.
func (m *Middleware) Govern() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			identity := auth.GetUserID(ctx)
			if identity == "" {
				identity = metadata.GetClientIP(ctx)
			}
			if identity == "" {
				identity = "unknown"
			}

			decision, err := m.admitter.Admit(ctx, identity)
			if err != nil {
				m.logger.ErrorContext(ctx, "admission pipeline failed", "error", err)
				httputil.WriteError(w, err)
				return
			}

			addRateLimitHeaders(w, decision)

			if !decision.Allowed {
				writeDenial(ctx, w, decision)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// addRateLimitHeaders exposes the window state on every governed
// response so clients can pace themselves before hitting the limit.
func addRateLimitHeaders(w http.ResponseWriter, decision *models.Decision) {
	if decision == nil || decision.Limit == 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	if !decision.ResetAt.IsZero() {
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
	}
}

func writeDenial(ctx context.Context, w http.ResponseWriter, decision *models.Decision) {
	switch decision.LimitKind {
	case models.LimitKindRate:
		retryAfter := retryAfterSeconds(ctx, decision)
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		httputil.WriteJSON(w, http.StatusTooManyRequests, &models.RateLimitExceededResponse{
			Error:      "rate_limit_exceeded",
			Message:    decision.Message,
			RetryAfter: retryAfter,
		})
	case models.LimitKindQuota:
		// No Retry-After: the quota never refreshes on its own.
		httputil.WriteJSON(w, http.StatusTooManyRequests, &models.QuotaExceededResponse{
			Error:   "quota_exceeded",
			Message: decision.Message,
		})
	case models.LimitKindCredits:
		httputil.WriteJSON(w, http.StatusPaymentRequired, &models.InsufficientCreditsResponse{
			Error:   "insufficient_credits",
			Message: decision.Message,
			Balance: decision.Remaining,
		})
	default:
		httputil.WriteJSON(w, http.StatusTooManyRequests, &models.QuotaExceededResponse{
			Error:   "request_denied",
			Message: decision.Message,
		})
	}
}

func retryAfterSeconds(ctx context.Context, decision *models.Decision) int {
	seconds := int(decision.ResetAt.Sub(requestcontext.Now(ctx)).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
