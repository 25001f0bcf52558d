package coin

import (
	"context"

	"github.com/famcoin/backend/internal/domain/coin"
	"github.com/stretchr/testify/mock"
)

// MockLedger is a mock implementation of coin.Ledger
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Get(ctx context.Context, owner coin.OwnerKey) (*coin.Coin, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*coin.Coin), args.Error(1)
}

func (m *MockLedger) Open(ctx context.Context, owner coin.OwnerKey, initialAmount int64) (*coin.Coin, error) {
	args := m.Called(ctx, owner, initialAmount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*coin.Coin), args.Error(1)
}

func (m *MockLedger) Adjust(ctx context.Context, owner coin.OwnerKey, delta int64, detail coin.TransactionDetail) (*coin.Coin, error) {
	args := m.Called(ctx, owner, delta, detail)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*coin.Coin), args.Error(1)
}

func (m *MockLedger) ListTransactions(ctx context.Context, owner coin.OwnerKey) ([]*coin.CoinTransaction, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*coin.CoinTransaction), args.Error(1)
}

// MockCoinTypeRepository is a mock implementation of coin.CoinTypeRepository
type MockCoinTypeRepository struct {
	mock.Mock
}

func (m *MockCoinTypeRepository) Create(ctx context.Context, familyID string, attrs coin.CoinTypeAttributes) (*coin.CoinType, error) {
	args := m.Called(ctx, familyID, attrs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*coin.CoinType), args.Error(1)
}

func (m *MockCoinTypeRepository) FindByID(ctx context.Context, familyID, id string) (*coin.CoinType, error) {
	args := m.Called(ctx, familyID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*coin.CoinType), args.Error(1)
}

func (m *MockCoinTypeRepository) ListByFamily(ctx context.Context, familyID string) ([]*coin.CoinType, error) {
	args := m.Called(ctx, familyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*coin.CoinType), args.Error(1)
}

func (m *MockCoinTypeRepository) Update(ctx context.Context, familyID, id string, patch coin.CoinTypePatch) (*coin.CoinType, error) {
	args := m.Called(ctx, familyID, id, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*coin.CoinType), args.Error(1)
}

func (m *MockCoinTypeRepository) Delete(ctx context.Context, familyID, id string) error {
	args := m.Called(ctx, familyID, id)
	return args.Error(0)
}

// MockDailyDistributionRepository is a mock implementation of coin.DailyDistributionRepository
type MockDailyDistributionRepository struct {
	mock.Mock
}

func (m *MockDailyDistributionRepository) Claim(ctx context.Context, record *coin.DailyCoinDistribution) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockDailyDistributionRepository) FindByDate(ctx context.Context, familyID, userID, summaryDate string) (*coin.DailyCoinDistribution, error) {
	args := m.Called(ctx, familyID, userID, summaryDate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*coin.DailyCoinDistribution), args.Error(1)
}

func (m *MockDailyDistributionRepository) ListByFamily(ctx context.Context, familyID string) ([]*coin.DailyCoinDistribution, error) {
	args := m.Called(ctx, familyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*coin.DailyCoinDistribution), args.Error(1)
}

var (
	_ coin.Ledger                      = (*MockLedger)(nil)
	_ coin.CoinTypeRepository          = (*MockCoinTypeRepository)(nil)
	_ coin.DailyDistributionRepository = (*MockDailyDistributionRepository)(nil)
)
