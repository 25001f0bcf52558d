package coin

import "context"

// Ledger is the balance store. Every successful Adjust writes the new balance and its
// transaction record atomically; concurrent writers on one owner are serialized optimistically.
type Ledger interface {
	// Get returns the balance of owner or shared.ErrNotFound
	Get(ctx context.Context, owner OwnerKey) (*Coin, error)
	// Open creates the balance record; shared.ErrAlreadyExists when it exists
	Open(ctx context.Context, owner OwnerKey, initialAmount int64) (*Coin, error)
	// Adjust applies a signed delta and appends a transaction with detail
	Adjust(ctx context.Context, owner OwnerKey, delta int64, detail TransactionDetail) (*Coin, error)
	// ListTransactions returns the owner's transactions in commit order
	ListTransactions(ctx context.Context, owner OwnerKey) ([]*CoinTransaction, error)
}

// CoinTypeRepository is the family-scoped registry of coin types
type CoinTypeRepository interface {
	Create(ctx context.Context, familyID string, attrs CoinTypeAttributes) (*CoinType, error)
	FindByID(ctx context.Context, familyID, id string) (*CoinType, error)
	ListByFamily(ctx context.Context, familyID string) ([]*CoinType, error)
	Update(ctx context.Context, familyID, id string, patch CoinTypePatch) (*CoinType, error)
	Delete(ctx context.Context, familyID, id string) error
}

// DailyDistributionRepository stores the per-day distribution markers
type DailyDistributionRepository interface {
	// Claim stores record unless the day is already claimed (shared.ErrAlreadyExists)
	Claim(ctx context.Context, record *DailyCoinDistribution) error
	// FindByDate returns the record for the day or shared.ErrNotFound
	FindByDate(ctx context.Context, familyID, userID, summaryDate string) (*DailyCoinDistribution, error)
	// ListByFamily returns every record of the family ordered by user and date
	ListByFamily(ctx context.Context, familyID string) ([]*DailyCoinDistribution, error)
}
