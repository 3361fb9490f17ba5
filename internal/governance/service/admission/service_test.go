package admission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teagate/internal/governance/config"
	"teagate/internal/governance/models"
	"teagate/internal/governance/service/credits"
	"teagate/internal/governance/service/quota"
	"teagate/internal/governance/service/ratelimit"
	"teagate/internal/governance/store/counter"
	"teagate/internal/governance/store/override"
)

type fixture struct {
	admission *Service
	credits   *credits.Service
	store     *counter.MemoryStore
	config    *config.Config
	clock     time.Time
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	store := counter.NewMemoryStore()
	overrides := override.NewMemoryStore()

	f := &fixture{store: store, config: cfg, clock: time.Now()}
	store.SetClock(func() time.Time { return f.clock })

	rateSvc, err := ratelimit.New(store, overrides, ratelimit.WithConfig(cfg))
	require.NoError(t, err)

	quotaSvc, err := quota.New(store, overrides, quota.WithConfig(cfg))
	require.NoError(t, err)

	creditSvc, err := credits.New(store)
	require.NoError(t, err)
	f.credits = creditSvc

	svc, err := New(rateSvc, quotaSvc, creditSvc, WithConfig(cfg))
	require.NoError(t, err)
	f.admission = svc

	return f
}

func testConfig() *config.Config {
	return &config.Config{
		RateLimit:    3,
		RateWindow:   time.Minute,
		QuotaCap:     50,
		AnalysisCost: 1,
		RewardAmount: 5,
	}
}

func TestAdmit_AllGatesPass(t *testing.T) {
	cfg := testConfig()
	f := newFixture(t, cfg)
	ctx := context.Background()

	_, err := f.credits.Credit(ctx, "user-1", 10)
	require.NoError(t, err)

	decision, err := f.admission.Admit(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Empty(t, decision.LimitKind)
	assert.Equal(t, cfg.RateLimit, decision.Limit)
	assert.Equal(t, cfg.RateLimit-1, decision.Remaining)

	balance, err := f.credits.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 9, balance)
}

func TestAdmit_RateStageDenies(t *testing.T) {
	cfg := testConfig()
	f := newFixture(t, cfg)
	ctx := context.Background()

	_, err := f.credits.Credit(ctx, "user-1", 100)
	require.NoError(t, err)

	for i := 0; i < cfg.RateLimit; i++ {
		decision, err := f.admission.Admit(ctx, "user-1")
		require.NoError(t, err)
		require.True(t, decision.Allowed, "request %d within the window should pass", i+1)
	}

	decision, err := f.admission.Admit(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, models.LimitKindRate, decision.LimitKind)
	assert.Equal(t, 0, decision.Remaining)
	assert.False(t, decision.ResetAt.IsZero())

	// A denied request never reaches the debit stage.
	balance, err := f.credits.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 100-cfg.RateLimit, balance)
}

func TestAdmit_RateWindowRollover(t *testing.T) {
	cfg := testConfig()
	f := newFixture(t, cfg)
	ctx := context.Background()

	_, err := f.credits.Credit(ctx, "user-1", 100)
	require.NoError(t, err)

	for i := 0; i < cfg.RateLimit; i++ {
		_, err := f.admission.Admit(ctx, "user-1")
		require.NoError(t, err)
	}

	decision, err := f.admission.Admit(ctx, "user-1")
	require.NoError(t, err)
	require.False(t, decision.Allowed)

	// Advancing past the window expires the counter and admits again.
	f.clock = f.clock.Add(cfg.RateWindow + time.Second)

	decision, err = f.admission.Admit(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestAdmit_QuotaStageDenies(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = 1000
	cfg.QuotaCap = 2
	f := newFixture(t, cfg)
	ctx := context.Background()

	_, err := f.credits.Credit(ctx, "user-1", 100)
	require.NoError(t, err)

	for i := 0; i < cfg.QuotaCap; i++ {
		decision, err := f.admission.Admit(ctx, "user-1")
		require.NoError(t, err)
		require.True(t, decision.Allowed)
	}

	decision, err := f.admission.Admit(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, models.LimitKindQuota, decision.LimitKind)
	assert.Equal(t, "Quota Exceeded", decision.Message)
}

func TestAdmit_CreditStageDenies(t *testing.T) {
	cfg := testConfig()
	f := newFixture(t, cfg)
	ctx := context.Background()

	decision, err := f.admission.Admit(ctx, "broke-user")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, models.LimitKindCredits, decision.LimitKind)
	assert.Equal(t, 0, decision.Remaining)
}

func TestAdmit_FreeTierSkipsCredits(t *testing.T) {
	cfg := testConfig()
	cfg.AnalysisCost = 0
	f := newFixture(t, cfg)

	// No balance at all, yet admission passes: the credit stage is off.
	decision, err := f.admission.Admit(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestAdmit_RequiresIdentity(t *testing.T) {
	f := newFixture(t, testConfig())

	_, err := f.admission.Admit(context.Background(), "")
	require.Error(t, err)
}

func TestNew_RequiresAllStages(t *testing.T) {
	f := newFixture(t, testConfig())

	_, err := New(nil, nil, nil)
	require.Error(t, err)

	_, err = New(f.admission.rate, f.admission.quota, nil)
	require.Error(t, err)
}
