// Package handler exposes the referral endpoints and the operator
// surface over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"teagate/internal/governance/models"
	"teagate/pkg/platform/httputil"
	adminmw "teagate/pkg/platform/middleware/admin"
	auth "teagate/pkg/platform/middleware/auth"
	request "teagate/pkg/platform/middleware/request"
	dErrors "teagate/pkg/domain-errors"
)

// ReferralService defines the referral operations the handler needs.
type ReferralService interface {
	GetOrCreateCode(ctx context.Context, identity string) (string, error)
	Redeem(ctx context.Context, identity, code string) (*models.RedemptionResult, error)
	Stats(ctx context.Context, identity string) (*models.ReferralStats, error)
}

// AdminService defines the operator surface.
type AdminService interface {
	SetRateLimitOverride(ctx context.Context, identity string, limit *int) error
	SetHardCapOverride(ctx context.Context, identity string, cap *int) error
	GetIdentityConfig(ctx context.Context, identity string) (*models.IdentityConfig, error)
	ListOverrides(ctx context.Context) ([]*models.OverrideConfig, error)
	ResetUsage(ctx context.Context, identity string) error
}

type Handler struct {
	logger       *slog.Logger
	referral     ReferralService
	admin        AdminService
	jwtValidator auth.JWTValidator
	adminToken   string
}

func New(referral ReferralService, admin AdminService, jwtValidator auth.JWTValidator, adminToken string, logger *slog.Logger) *Handler {
	return &Handler{
		logger:       logger,
		referral:     referral,
		admin:        admin,
		jwtValidator: jwtValidator,
		adminToken:   adminToken,
	}
}

// Register mounts the referral and admin routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/referral", func(r chi.Router) {
		r.Use(auth.RequireAuth(h.jwtValidator, h.logger))
		r.Post("/code", h.handleGetOrCreateCode)
		r.Post("/redeem", h.handleRedeem)
		r.Get("/stats", h.handleStats)
	})

	r.Route("/admin/governance", func(r chi.Router) {
		r.Use(adminmw.RequireAdminToken(h.adminToken, h.logger))
		r.Get("/overrides", h.handleListOverrides)
		r.Route("/identities/{identity}", func(r chi.Router) {
			r.Get("/config", h.handleGetIdentityConfig)
			r.Put("/rate-limit", h.handleSetRateLimit)
			r.Delete("/rate-limit", h.handleClearRateLimit)
			r.Put("/hard-cap", h.handleSetHardCap)
			r.Delete("/hard-cap", h.handleClearHardCap)
			r.Post("/reset", h.handleResetUsage)
		})
	})
}

func (h *Handler) handleGetOrCreateCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := auth.GetUserID(ctx)
	if userID == "" {
		h.authContextError(ctx, w)
		return
	}

	code, err := h.referral.GetOrCreateCode(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue referral code",
			"request_id", request.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, &models.ReferralCodeResponse{Code: code})
}

func (h *Handler) handleRedeem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := auth.GetUserID(ctx)
	if userID == "" {
		h.authContextError(ctx, w)
		return
	}

	var req models.RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	result, err := h.referral.Redeem(ctx, userID, req.Code)
	if err != nil {
		// Deterministic rejections (unknown code, self referral, repeat
		// redemption) map to 4xx via their codes; log them at warn.
		h.logger.WarnContext(ctx, "referral redemption rejected",
			"request_id", request.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, &models.RedeemResponse{
		Success: result.Success,
		Message: result.Message,
	})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := auth.GetUserID(ctx)
	if userID == "" {
		h.authContextError(ctx, w)
		return
	}

	stats, err := h.referral.Stats(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read referral stats",
			"request_id", request.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleGetIdentityConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cfg, err := h.admin.GetIdentityConfig(ctx, chi.URLParam(r, "identity"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, cfg)
}

func (h *Handler) handleSetRateLimit(w http.ResponseWriter, r *http.Request) {
	h.setOverride(w, r, h.admin.SetRateLimitOverride)
}

func (h *Handler) handleClearRateLimit(w http.ResponseWriter, r *http.Request) {
	h.clearOverride(w, r, h.admin.SetRateLimitOverride)
}

func (h *Handler) handleSetHardCap(w http.ResponseWriter, r *http.Request) {
	h.setOverride(w, r, h.admin.SetHardCapOverride)
}

func (h *Handler) handleClearHardCap(w http.ResponseWriter, r *http.Request) {
	h.clearOverride(w, r, h.admin.SetHardCapOverride)
}

func (h *Handler) setOverride(w http.ResponseWriter, r *http.Request, set func(context.Context, string, *int) error) {
	ctx := r.Context()

	var req models.OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := set(ctx, chi.URLParam(r, "identity"), &req.Value); err != nil {
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) clearOverride(w http.ResponseWriter, r *http.Request, set func(context.Context, string, *int) error) {
	if err := set(r.Context(), chi.URLParam(r, "identity"), nil); err != nil {
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleResetUsage(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.ResetUsage(r.Context(), chi.URLParam(r, "identity")); err != nil {
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListOverrides(w http.ResponseWriter, r *http.Request) {
	list, err := h.admin.ListOverrides(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) authContextError(ctx context.Context, w http.ResponseWriter) {
	h.logger.ErrorContext(ctx, "userID missing from context despite auth middleware",
		"request_id", request.GetRequestID(ctx),
	)
	httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
}
