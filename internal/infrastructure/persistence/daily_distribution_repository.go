package persistence

import (
	"context"
	"fmt"

	"github.com/famcoin/backend/internal/domain/coin"
	"github.com/famcoin/backend/internal/domain/shared"
	"github.com/famcoin/backend/internal/infrastructure/kv"
)

// KVDailyDistributionRepository stores one marker per (family, user, day)
type KVDailyDistributionRepository struct {
	store kv.Store
}

// NewKVDailyDistributionRepository creates the repository over store
func NewKVDailyDistributionRepository(store kv.Store) *KVDailyDistributionRepository {
	return &KVDailyDistributionRepository{store: store}
}

// Claim writes record only if nothing was recorded for the same day
func (r *KVDailyDistributionRepository) Claim(ctx context.Context, record *coin.DailyCoinDistribution) error {
	data, err := kv.Marshal(record)
	if err != nil {
		return err
	}
	key := dailyDistributionKey(record.FamilyID, record.UserID, record.SummaryDate)
	res, err := kv.Atomic(r.store).CheckAbsent(key).Set(key, data).Commit(ctx)
	if err != nil {
		return err
	}
	if !res.OK {
		return fmt.Errorf("daily distribution for user %s on %s: %w",
			record.UserID, record.SummaryDate, shared.ErrAlreadyExists)
	}
	return nil
}

// FindByDate returns the record of the day or shared.ErrNotFound
func (r *KVDailyDistributionRepository) FindByDate(ctx context.Context, familyID, userID, summaryDate string) (*coin.DailyCoinDistribution, error) {
	current, err := kv.GetJSON[coin.DailyCoinDistribution](ctx, r.store, dailyDistributionKey(familyID, userID, summaryDate))
	if err != nil {
		return nil, err
	}
	if !current.Exists() {
		return nil, fmt.Errorf("daily distribution for user %s on %s: %w", userID, summaryDate, shared.ErrNotFound)
	}
	return &current.Value, nil
}

// ListByFamily returns the family's records ordered by user and date
func (r *KVDailyDistributionRepository) ListByFamily(ctx context.Context, familyID string) ([]*coin.DailyCoinDistribution, error) {
	items, err := kv.ListJSON[coin.DailyCoinDistribution](ctx, r.store, dailyDistributionFamilyPrefix(familyID))
	if err != nil {
		return nil, err
	}
	records := make([]*coin.DailyCoinDistribution, len(items))
	for i := range items {
		records[i] = &items[i].Value
	}
	return records, nil
}

var _ coin.DailyDistributionRepository = (*KVDailyDistributionRepository)(nil)
