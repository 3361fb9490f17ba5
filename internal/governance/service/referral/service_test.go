package referral

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teagate/internal/governance/config"
	"teagate/internal/governance/models"
	"teagate/internal/governance/service/credits"
	"teagate/internal/governance/store/counter"
	dErrors "teagate/pkg/domain-errors"
)

type fixture struct {
	referral *Service
	credits  *credits.Service
	store    *counter.MemoryStore
	config   *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := counter.NewMemoryStore()

	creditSvc, err := credits.New(store)
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	svc, err := New(store, creditSvc, WithConfig(cfg))
	require.NoError(t, err)

	return &fixture{referral: svc, credits: creditSvc, store: store, config: cfg}
}

func TestNew_RequiresDependencies(t *testing.T) {
	store := counter.NewMemoryStore()
	creditSvc, err := credits.New(store)
	require.NoError(t, err)

	_, err = New(nil, creditSvc)
	require.Error(t, err)

	_, err = New(store, nil)
	require.Error(t, err)
}

func TestGetOrCreateCode_Shape(t *testing.T) {
	f := newFixture(t)

	code, err := f.referral.GetOrCreateCode(context.Background(), "user-1")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(code, f.config.CodePrefix))
	suffix := strings.TrimPrefix(code, f.config.CodePrefix)
	assert.Len(t, suffix, f.config.CodeLength)
	for _, c := range suffix {
		assert.Contains(t, f.config.CodeAlphabet, string(c))
	}
}

func TestGetOrCreateCode_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.referral.GetOrCreateCode(ctx, "user-1")
	require.NoError(t, err)

	second, err := f.referral.GetOrCreateCode(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGetOrCreateCode_DistinctPerIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.referral.GetOrCreateCode(ctx, "user-a")
	require.NoError(t, err)
	b, err := f.referral.GetOrCreateCode(ctx, "user-b")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestGetOrCreateCode_RequiresIdentity(t *testing.T) {
	f := newFixture(t)

	_, err := f.referral.GetOrCreateCode(context.Background(), "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}

// laggedMissStore holds the first two owner->code lookups that miss
// until both callers have observed the miss, reproducing the latency
// window between a store read and the follow-up write.
type laggedMissStore struct {
	*counter.MemoryStore
	userKey string
	barrier sync.WaitGroup
	misses  atomic.Int32
}

func (s *laggedMissStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, found, err := s.MemoryStore.Get(ctx, key)
	if key == s.userKey && !found && s.misses.Add(1) <= 2 {
		s.barrier.Done()
		s.barrier.Wait()
	}
	return value, found, err
}

func TestGetOrCreateCode_ConcurrentCallsConvergeOnOneCode(t *testing.T) {
	store := &laggedMissStore{
		MemoryStore: counter.NewMemoryStore(),
		userKey:     models.UserCodeKey("user-1"),
	}
	store.barrier.Add(2)

	creditSvc, err := credits.New(store.MemoryStore)
	require.NoError(t, err)
	svc, err := New(store, creditSvc, WithConfig(config.DefaultConfig()))
	require.NoError(t, err)

	ctx := context.Background()
	codes := make([]string, 2)
	errs := make([]error, 2)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes[i], errs[i] = svc.GetOrCreateCode(ctx, "user-1")
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	// Double-clicking "get my code" must never mint two live codes.
	assert.Equal(t, codes[0], codes[1])

	again, err := svc.GetOrCreateCode(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, codes[0], again)

	// The winning code is owned by the identity; the losing attempt's
	// forward claim was released, so exactly one owner mapping points
	// back at user-1.
	owner, found, err := store.MemoryStore.Get(ctx, models.CodeOwnerKey(codes[0]))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "user-1", owner)
}

// flakyGranter fails every payout until recovered.
type flakyGranter struct {
	svc  *credits.Service
	down bool
}

func (g *flakyGranter) Credit(ctx context.Context, identity string, amount int) (int, error) {
	if g.down {
		return 0, errors.New("store down")
	}
	return g.svc.Credit(ctx, identity, amount)
}

func TestRedeem_PayoutFailureReleasesFlagForRetry(t *testing.T) {
	store := counter.NewMemoryStore()
	creditSvc, err := credits.New(store)
	require.NoError(t, err)

	granter := &flakyGranter{svc: creditSvc, down: true}
	cfg := config.DefaultConfig()
	svc, err := New(store, granter, WithConfig(cfg))
	require.NoError(t, err)

	ctx := context.Background()
	code, err := svc.GetOrCreateCode(ctx, "owner")
	require.NoError(t, err)

	_, err = svc.Redeem(ctx, "friend", code)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeStoreUnavailable))

	// The one-shot flag was released, so the identity is not stranded.
	_, found, err := store.Get(ctx, models.RedeemedFlagKey("friend"))
	require.NoError(t, err)
	assert.False(t, found)

	// Once the credit store recovers, the same redemption goes through.
	granter.down = false
	result, err := svc.Redeem(ctx, "friend", code)
	require.NoError(t, err)
	assert.True(t, result.Success)

	balance, err := creditSvc.Balance(ctx, "friend")
	require.NoError(t, err)
	assert.Equal(t, cfg.RewardAmount, balance)
}

func TestRedeem_PaysBothParties(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	code, err := f.referral.GetOrCreateCode(ctx, "owner")
	require.NoError(t, err)

	result, err := f.referral.Redeem(ctx, "friend", code)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.Message)

	reward := f.config.RewardAmount
	ownerBalance, err := f.credits.Balance(ctx, "owner")
	require.NoError(t, err)
	assert.Equal(t, reward, ownerBalance)

	friendBalance, err := f.credits.Balance(ctx, "friend")
	require.NoError(t, err)
	assert.Equal(t, reward, friendBalance)
}

func TestRedeem_NormalizesCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	code, err := f.referral.GetOrCreateCode(ctx, "owner")
	require.NoError(t, err)

	result, err := f.referral.Redeem(ctx, "friend", "  "+strings.ToLower(code)+" ")
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestRedeem_UnknownCode(t *testing.T) {
	f := newFixture(t)

	_, err := f.referral.Redeem(context.Background(), "friend", "TEA-XXXX")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidReferralCode)
}

func TestRedeem_SelfReferralRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	code, err := f.referral.GetOrCreateCode(ctx, "owner")
	require.NoError(t, err)

	_, err = f.referral.Redeem(ctx, "owner", code)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrSelfReferral)

	// Nothing was paid out.
	balance, err := f.credits.Balance(ctx, "owner")
	require.NoError(t, err)
	assert.Equal(t, 0, balance)
}

func TestRedeem_SecondRedemptionRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	codeA, err := f.referral.GetOrCreateCode(ctx, "owner-a")
	require.NoError(t, err)
	codeB, err := f.referral.GetOrCreateCode(ctx, "owner-b")
	require.NoError(t, err)

	_, err = f.referral.Redeem(ctx, "friend", codeA)
	require.NoError(t, err)

	// A different valid code is still rejected: the flag is per
	// redeeming identity, not per code.
	_, err = f.referral.Redeem(ctx, "friend", codeB)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrAlreadyRedeemed)

	balance, err := f.credits.Balance(ctx, "friend")
	require.NoError(t, err)
	assert.Equal(t, f.config.RewardAmount, balance)
}

func TestRedeem_ConcurrentSingleIdentityPaysOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	code, err := f.referral.GetOrCreateCode(ctx, "owner")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.referral.Redeem(ctx, "friend", code)
			if err == nil && result.Success {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)

	balance, err := f.credits.Balance(ctx, "friend")
	require.NoError(t, err)
	assert.Equal(t, f.config.RewardAmount, balance)
}

func TestStats_NoCodeYet(t *testing.T) {
	f := newFixture(t)

	stats, err := f.referral.Stats(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, stats.Code)
	assert.Zero(t, stats.Count)
	assert.Zero(t, stats.Earned)
}

func TestStats_TracksRedemptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	code, err := f.referral.GetOrCreateCode(ctx, "owner")
	require.NoError(t, err)

	for _, friend := range []string{"friend-1", "friend-2", "friend-3"} {
		_, err := f.referral.Redeem(ctx, friend, code)
		require.NoError(t, err)
	}

	stats, err := f.referral.Stats(ctx, "owner")
	require.NoError(t, err)
	assert.Equal(t, code, stats.Code)
	assert.Equal(t, 3, stats.Count)
	assert.Equal(t, 3*f.config.RewardAmount, stats.Earned)
}

func TestRedeem_CodeShapeCollisionRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Force a single-character alphabet so every generation collides;
	// the claim loop must exhaust its retries rather than hijack the
	// existing owner mapping.
	f.config.CodeAlphabet = "A"
	f.config.CodeLength = 1

	first, err := f.referral.GetOrCreateCode(ctx, "user-1")
	require.NoError(t, err)

	_, err = f.referral.GetOrCreateCode(ctx, "user-2")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))

	// user-1 keeps sole ownership.
	owner, found, err := f.store.Get(ctx, models.CodeOwnerKey(first))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "user-1", owner)
}
