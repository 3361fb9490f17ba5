package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teagate/internal/governance/config"
	"teagate/internal/governance/models"
	adminsvc "teagate/internal/governance/service/admin"
	"teagate/internal/governance/service/credits"
	"teagate/internal/governance/service/quota"
	"teagate/internal/governance/service/referral"
	"teagate/internal/governance/store/counter"
	"teagate/internal/governance/store/override"
	auth "teagate/pkg/platform/middleware/auth"
)

const adminToken = "test-admin-token"

// tokenValidator treats the bearer token itself as the user ID.
type tokenValidator struct{}

func (tokenValidator) ValidateToken(token string) (*auth.JWTClaims, error) {
	if token == "" || token == "invalid" {
		return nil, errors.New("invalid token")
	}
	return &auth.JWTClaims{UserID: token}, nil
}

type fixture struct {
	router   chi.Router
	referral *referral.Service
	credits  *credits.Service
	config   *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := counter.NewMemoryStore()
	overrides := override.NewMemoryStore()
	logger := slog.New(slog.DiscardHandler)

	cfg := &config.Config{
		RateLimit:    10,
		RateWindow:   time.Minute,
		QuotaCap:     50,
		AnalysisCost: 1,
		RewardAmount: 5,
		CodePrefix:   "TEA-",
		CodeLength:   4,
		CodeAlphabet: "ABCDEFGHJKLMNPQRSTUVWXYZ23456789",
		CodeRetries:  5,
	}

	creditSvc, err := credits.New(store)
	require.NoError(t, err)

	referralSvc, err := referral.New(store, creditSvc, referral.WithConfig(cfg))
	require.NoError(t, err)

	quotaSvc, err := quota.New(store, overrides, quota.WithConfig(cfg))
	require.NoError(t, err)

	adminSvc, err := adminsvc.New(overrides, quotaSvc, creditSvc, adminsvc.WithConfig(cfg))
	require.NoError(t, err)

	h := New(referralSvc, adminSvc, tokenValidator{}, adminToken, logger)
	router := chi.NewRouter()
	h.Register(router)

	return &fixture{router: router, referral: referralSvc, credits: creditSvc, config: cfg}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) doAdmin(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-Admin-Token", adminToken)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestGetOrCreateCode(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/referral/code", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body models.ReferralCodeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Code)

	// Same user, same code.
	rec = f.do(t, http.MethodPost, "/referral/code", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var second models.ReferralCodeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Equal(t, body.Code, second.Code)
}

func TestReferralEndpoints_RequireAuth(t *testing.T) {
	f := newFixture(t)

	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodPost, "/referral/code"},
		{http.MethodPost, "/referral/redeem"},
		{http.MethodGet, "/referral/stats"},
	} {
		rec := f.do(t, tc.method, tc.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.method, tc.path)
	}
}

func TestRedeem_FullFlow(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	code, err := f.referral.GetOrCreateCode(ctx, "owner")
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/referral/redeem", "friend", models.RedeemRequest{Code: code})
	require.Equal(t, http.StatusOK, rec.Code)

	var body models.RedeemResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)

	balance, err := f.credits.Balance(ctx, "friend")
	require.NoError(t, err)
	assert.Equal(t, f.config.RewardAmount, balance)
}

func TestRedeem_ErrorMapping(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	code, err := f.referral.GetOrCreateCode(ctx, "owner")
	require.NoError(t, err)

	// Unknown code -> 404.
	rec := f.do(t, http.MethodPost, "/referral/redeem", "friend", models.RedeemRequest{Code: "TEA-ZZZZ"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Self referral -> 400.
	rec = f.do(t, http.MethodPost, "/referral/redeem", "owner", models.RedeemRequest{Code: code})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Second redemption -> 409.
	rec = f.do(t, http.MethodPost, "/referral/redeem", "friend", models.RedeemRequest{Code: code})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodPost, "/referral/redeem", "friend", models.RedeemRequest{Code: code})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	code, err := f.referral.GetOrCreateCode(ctx, "owner")
	require.NoError(t, err)
	_, err = f.referral.Redeem(ctx, "friend", code)
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/referral/stats", "owner", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats models.ReferralStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, code, stats.Code)
	assert.Equal(t, 1, stats.Count)
	assert.Equal(t, f.config.RewardAmount, stats.Earned)
}

func TestAdminEndpoints_RequireToken(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/governance/identities/user-1/config", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/governance/identities/user-1/config", nil)
	req.Header.Set("X-Admin-Token", "wrong")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdmin_OverrideLifecycle(t *testing.T) {
	f := newFixture(t)

	rec := f.doAdmin(t, http.MethodPut, "/admin/governance/identities/vip/rate-limit", models.OverrideRequest{Value: 99})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.doAdmin(t, http.MethodGet, "/admin/governance/identities/vip/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var cfg models.IdentityConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, 99, cfg.RateLimit)
	assert.True(t, cfg.RateLimitCustom)

	rec = f.doAdmin(t, http.MethodDelete, "/admin/governance/identities/vip/rate-limit", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.doAdmin(t, http.MethodGet, "/admin/governance/identities/vip/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, f.config.RateLimit, cfg.RateLimit)
	assert.False(t, cfg.RateLimitCustom)
}

func TestAdmin_OverrideValidation(t *testing.T) {
	f := newFixture(t)

	rec := f.doAdmin(t, http.MethodPut, "/admin/governance/identities/vip/hard-cap", models.OverrideRequest{Value: 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdmin_ListOverrides(t *testing.T) {
	f := newFixture(t)

	rec := f.doAdmin(t, http.MethodPut, "/admin/governance/identities/a/rate-limit", models.OverrideRequest{Value: 5})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.doAdmin(t, http.MethodGet, "/admin/governance/overrides", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list []*models.OverrideConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].Identity)
}

func TestAdmin_ResetUsage(t *testing.T) {
	f := newFixture(t)

	rec := f.doAdmin(t, http.MethodPost, "/admin/governance/identities/user-1/reset", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
