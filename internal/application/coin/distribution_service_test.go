package coin

import (
	"context"
	"errors"
	"testing"

	"github.com/famcoin/backend/internal/domain/coin"
	"github.com/famcoin/backend/internal/domain/shared"
	"github.com/famcoin/backend/internal/infrastructure/kv/kvtest"
	"github.com/famcoin/backend/internal/infrastructure/persistence"
	"github.com/famcoin/backend/internal/infrastructure/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type distributionFixture struct {
	service   *DistributionService
	coinTypes *persistence.KVCoinTypeRepository
	ledger    *persistence.KVCoinLedger
}

func newDistributionFixture(t *testing.T) *distributionFixture {
	t.Helper()
	store := kvtest.NewMemoryStore(t)
	executor := retry.NewExecutor(retry.Config{MaxAttempts: 3, Policy: retry.RetryOnConflict})
	f := &distributionFixture{
		coinTypes: persistence.NewKVCoinTypeRepository(store, executor, fixedClock),
		ledger:    persistence.NewKVCoinLedger(store, executor, persistence.WithLedgerClock(fixedClock)),
	}
	f.service = NewDistributionService(f.coinTypes, f.ledger, persistence.NewKVDailyDistributionRepository(store),
		WithDistributionClock(fixedClock))
	return f
}

func (f *distributionFixture) createCoinType(t *testing.T, name string, daily int64, active bool) *coin.CoinType {
	t.Helper()
	ctx := context.Background()
	ct, err := f.coinTypes.Create(ctx, "family-1", coin.CoinTypeAttributes{Name: name, DurationMinutes: 30, DailyDistribution: daily})
	require.NoError(t, err)
	if !active {
		ct, err = f.coinTypes.Update(ctx, "family-1", ct.ID, coin.CoinTypePatch{Active: ptr(false)})
		require.NoError(t, err)
	}
	return ct
}

func (f *distributionFixture) balance(t *testing.T, coinTypeID string) (int64, error) {
	t.Helper()
	c, err := f.ledger.Get(context.Background(), coin.OwnerKey{UserID: "user-1", FamilyID: "family-1", CoinTypeID: coinTypeID})
	if err != nil {
		return 0, err
	}
	return c.Amount, nil
}

func TestDistributionService_DistributeDaily(t *testing.T) {
	ctx := context.Background()
	f := newDistributionFixture(t)
	tv := f.createCoinType(t, "TV", 3, true)
	games := f.createCoinType(t, "Games", 2, true)
	paused := f.createCoinType(t, "Paused", 5, false)
	manual := f.createCoinType(t, "Manual", 0, true)

	_, err := f.ledger.Open(ctx, coin.OwnerKey{UserID: "user-1", FamilyID: "family-1", CoinTypeID: games.ID}, 10)
	require.NoError(t, err)

	result, err := f.service.DistributeDaily(ctx, "family-1", "user-1", "2026-03-15", "Asia/Tokyo")
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.Record.Total())
	assert.Equal(t, "Asia/Tokyo", result.Record.Metadata.Timezone)
	require.Len(t, result.Balances, 2)

	amount, err := f.balance(t, tv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), amount)
	amount, err = f.balance(t, games.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(12), amount)
	_, err = f.balance(t, paused.ID)
	assert.True(t, shared.IsNotFound(err))
	_, err = f.balance(t, manual.ID)
	assert.True(t, shared.IsNotFound(err))

	txs, err := f.ledger.ListTransactions(ctx, coin.OwnerKey{UserID: "user-1", FamilyID: "family-1", CoinTypeID: tv.ID})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, coin.DailyDistributionDetail{SummaryDate: "2026-03-15"}, txs[0].Detail)

	t.Run("same day is distributed at most once", func(t *testing.T) {
		_, err := f.service.DistributeDaily(ctx, "family-1", "user-1", "2026-03-15", "Asia/Tokyo")
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)

		amount, err := f.balance(t, tv.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), amount)
	})

	t.Run("next day distributes again", func(t *testing.T) {
		_, err := f.service.DistributeDaily(ctx, "family-1", "user-1", "2026-03-16", "Asia/Tokyo")
		require.NoError(t, err)

		amount, err := f.balance(t, tv.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(6), amount)

		records, err := f.service.History(ctx, "family-1")
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "2026-03-15", records[0].SummaryDate)
		assert.Equal(t, "2026-03-16", records[1].SummaryDate)
	})
}

func TestDistributionService_DistributeToday(t *testing.T) {
	ctx := context.Background()
	f := newDistributionFixture(t)
	f.createCoinType(t, "TV", 1, true)

	// 22:30 UTC on the 14th is already the 15th in Tokyo
	result, err := f.service.DistributeToday(ctx, "family-1", "user-1", "Asia/Tokyo")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-15", result.Record.SummaryDate)

	record, err := f.service.Find(ctx, "family-1", "user-1", "2026-03-15")
	require.NoError(t, err)
	assert.True(t, testNow.Equal(record.CreatedAt))

	_, err = f.service.DistributeToday(ctx, "family-1", "user-1", "Mars/Olympus")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestDistributionService_InvalidInput(t *testing.T) {
	coinTypes := new(MockCoinTypeRepository)
	ledger := new(MockLedger)
	distributions := new(MockDailyDistributionRepository)
	s := NewDistributionService(coinTypes, ledger, distributions, WithDistributionClock(fixedClock))

	_, err := s.DistributeDaily(context.Background(), "family-1", "user-1", "15/03/2026", "Nowhere/City")
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	var verrs shared.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 2)
	coinTypes.AssertNotCalled(t, "ListByFamily", mock.Anything, mock.Anything)
	distributions.AssertNotCalled(t, "Claim", mock.Anything, mock.Anything)
}

func TestDistributionService_AdjustFailureKeepsClaim(t *testing.T) {
	ctx := context.Background()
	coinTypes := new(MockCoinTypeRepository)
	ledger := new(MockLedger)
	distributions := new(MockDailyDistributionRepository)
	s := NewDistributionService(coinTypes, ledger, distributions, WithDistributionClock(fixedClock))

	types := []*coin.CoinType{
		{BaseEntity: shared.BaseEntity{ID: "a"}, Active: true, DailyDistribution: 1},
		{BaseEntity: shared.BaseEntity{ID: "b"}, Active: true, DailyDistribution: 2},
	}
	ownerA := coin.OwnerKey{UserID: "user-1", FamilyID: "family-1", CoinTypeID: "a"}
	ownerB := coin.OwnerKey{UserID: "user-1", FamilyID: "family-1", CoinTypeID: "b"}
	detail := coin.DailyDistributionDetail{SummaryDate: "2026-03-15"}
	storeDown := errors.New("store down")

	coinTypes.On("ListByFamily", mock.Anything, "family-1").Return(types, nil)
	distributions.On("Claim", mock.Anything, mock.AnythingOfType("*coin.DailyCoinDistribution")).Return(nil)
	ledger.On("Get", mock.Anything, ownerA).Return(&coin.Coin{Amount: 4}, nil)
	ledger.On("Adjust", mock.Anything, ownerA, int64(1), detail).Return(&coin.Coin{Amount: 5}, nil)
	ledger.On("Get", mock.Anything, ownerB).Return(nil, shared.ErrNotFound)
	ledger.On("Open", mock.Anything, ownerB, int64(0)).Return(nil, shared.ErrAlreadyExists)
	ledger.On("Adjust", mock.Anything, ownerB, int64(2), detail).Return(nil, storeDown)

	result, err := s.DistributeDaily(ctx, "family-1", "user-1", "2026-03-15", "UTC")
	require.ErrorIs(t, err, storeDown)
	assert.Contains(t, err.Error(), "distribute coin type b")
	require.NotNil(t, result)
	require.Len(t, result.Balances, 1)
	assert.Equal(t, int64(5), result.Balances[0].Amount)
	ledger.AssertExpectations(t)
	distributions.AssertExpectations(t)
}
