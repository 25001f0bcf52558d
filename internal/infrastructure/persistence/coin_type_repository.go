package persistence

import (
	"context"
	"fmt"

	"github.com/famcoin/backend/internal/domain/coin"
	"github.com/famcoin/backend/internal/domain/shared"
	"github.com/famcoin/backend/internal/infrastructure/kv"
	"github.com/famcoin/backend/internal/infrastructure/retry"
)

// KVCoinTypeRepository implements coin.CoinTypeRepository. Coin types live under
// coin_types/<familyID>/<id>, so a family listing is a single prefix scan.
type KVCoinTypeRepository struct {
	store    kv.Store
	executor *retry.Executor
	clock    shared.Clock
}

// NewKVCoinTypeRepository creates a coin type registry over store
func NewKVCoinTypeRepository(store kv.Store, executor *retry.Executor, clock shared.Clock) *KVCoinTypeRepository {
	if clock == nil {
		clock = shared.SystemClock
	}
	return &KVCoinTypeRepository{store: store, executor: executor, clock: clock}
}

// Create stores a new active coin type
func (r *KVCoinTypeRepository) Create(ctx context.Context, familyID string, attrs coin.CoinTypeAttributes) (*coin.CoinType, error) {
	ct, err := coin.NewCoinType(familyID, attrs, r.clock())
	if err != nil {
		return nil, err
	}
	data, err := kv.Marshal(ct)
	if err != nil {
		return nil, err
	}
	if _, err := r.store.Set(ctx, coinTypeKey(familyID, ct.ID), data); err != nil {
		return nil, err
	}
	return ct, nil
}

// FindByID returns the coin type or shared.ErrNotFound
func (r *KVCoinTypeRepository) FindByID(ctx context.Context, familyID, id string) (*coin.CoinType, error) {
	current, err := kv.GetJSON[coin.CoinType](ctx, r.store, coinTypeKey(familyID, id))
	if err != nil {
		return nil, err
	}
	if !current.Exists() {
		return nil, coinTypeNotFound(id)
	}
	return &current.Value, nil
}

// ListByFamily returns the family's coin types in key order
func (r *KVCoinTypeRepository) ListByFamily(ctx context.Context, familyID string) ([]*coin.CoinType, error) {
	items, err := kv.ListJSON[coin.CoinType](ctx, r.store, coinTypeFamilyPrefix(familyID))
	if err != nil {
		return nil, err
	}
	types := make([]*coin.CoinType, len(items))
	for i := range items {
		types[i] = &items[i].Value
	}
	return types, nil
}

// Update merges patch into the stored coin type under a versionstamp check
func (r *KVCoinTypeRepository) Update(ctx context.Context, familyID, id string, patch coin.CoinTypePatch) (*coin.CoinType, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	key := coinTypeKey(familyID, id)
	return retry.Do(ctx, r.executor, func(ctx context.Context) (*coin.CoinType, error) {
		current, err := kv.GetJSON[coin.CoinType](ctx, r.store, key)
		if err != nil {
			return nil, err
		}
		if !current.Exists() {
			return nil, coinTypeNotFound(id)
		}

		updated := current.Value
		patch.Apply(&updated, r.clock())
		data, err := kv.Marshal(&updated)
		if err != nil {
			return nil, err
		}

		res, err := kv.Atomic(r.store).Check(key, current.Versionstamp).Set(key, data).Commit(ctx)
		if err != nil {
			return nil, err
		}
		if !res.OK {
			return nil, shared.ErrWriteConflict
		}
		return &updated, nil
	})
}

// Delete removes the coin type. Deleting a missing coin type succeeds.
func (r *KVCoinTypeRepository) Delete(ctx context.Context, familyID, id string) error {
	return r.store.Delete(ctx, coinTypeKey(familyID, id))
}

func coinTypeNotFound(id string) error {
	return fmt.Errorf("coin type with id %s: %w", id, shared.ErrNotFound)
}

var _ coin.CoinTypeRepository = (*KVCoinTypeRepository)(nil)
