package persistence

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/famcoin/backend/internal/domain/coin"
	"github.com/famcoin/backend/internal/domain/shared"
	"github.com/famcoin/backend/internal/infrastructure/kv/kvtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tvAttributes() coin.CoinTypeAttributes {
	return coin.CoinTypeAttributes{Name: "TV", DurationMinutes: 15, DailyDistribution: 4}
}

func TestKVCoinTypeRepository_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewKVCoinTypeRepository(kvtest.NewMemoryStore(t), newTestExecutor(3), fixedClock)

	created, err := repo.Create(ctx, "family-1", coin.CoinTypeAttributes{Name: "  TV  ", DurationMinutes: 15, DailyDistribution: 4})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "TV", created.Name)
	assert.True(t, created.Active)
	assert.Equal(t, testNow, created.CreatedAt)
	assert.Equal(t, testNow, created.UpdatedAt)

	found, err := repo.FindByID(ctx, "family-1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, found)

	_, err = repo.FindByID(ctx, "family-2", created.ID)
	assert.True(t, shared.IsNotFound(err))
}

func TestKVCoinTypeRepository_CreateValidation(t *testing.T) {
	ctx := context.Background()
	repo := NewKVCoinTypeRepository(kvtest.NewMemoryStore(t), newTestExecutor(3), fixedClock)

	tests := []struct {
		name  string
		attrs coin.CoinTypeAttributes
	}{
		{"blank name", coin.CoinTypeAttributes{Name: "   ", DurationMinutes: 15}},
		{"zero duration", coin.CoinTypeAttributes{Name: "TV", DurationMinutes: 0}},
		{"negative distribution", coin.CoinTypeAttributes{Name: "TV", DurationMinutes: 15, DailyDistribution: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.Create(ctx, "family-1", tt.attrs)
			assert.ErrorIs(t, err, shared.ErrInvalidInput)
		})
	}

	list, err := repo.ListByFamily(ctx, "family-1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestKVCoinTypeRepository_ListByFamilyIsolation(t *testing.T) {
	ctx := context.Background()
	repo := NewKVCoinTypeRepository(kvtest.NewMemoryStore(t), newTestExecutor(3), fixedClock)

	var ids []string
	for _, name := range []string{"TV", "Game", "Tablet"} {
		ct, err := repo.Create(ctx, "family-1", coin.CoinTypeAttributes{Name: name, DurationMinutes: 10})
		require.NoError(t, err)
		ids = append(ids, ct.ID)
	}
	_, err := repo.Create(ctx, "family-10", tvAttributes())
	require.NoError(t, err)
	_, err = repo.Create(ctx, "family-2", tvAttributes())
	require.NoError(t, err)

	list, err := repo.ListByFamily(ctx, "family-1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i, ct := range list {
		assert.Equal(t, "family-1", ct.FamilyID)
		assert.Equal(t, ids[i], ct.ID, "ids are time ordered so key order is creation order")
	}

	empty, err := repo.ListByFamily(ctx, "family-3")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestKVCoinTypeRepository_Update(t *testing.T) {
	ctx := context.Background()
	later := testNow.Add(time.Hour)
	now := testNow
	clock := func() time.Time { return now }
	repo := NewKVCoinTypeRepository(kvtest.NewMemoryStore(t), newTestExecutor(3), clock)

	created, err := repo.Create(ctx, "family-1", tvAttributes())
	require.NoError(t, err)

	t.Run("partial update keeps other fields", func(t *testing.T) {
		now = later
		name := "Television"
		updated, err := repo.Update(ctx, "family-1", created.ID, coin.CoinTypePatch{Name: &name})
		require.NoError(t, err)
		assert.Equal(t, "Television", updated.Name)
		assert.Equal(t, 15, updated.DurationMinutes)
		assert.Equal(t, int64(4), updated.DailyDistribution)
		assert.True(t, updated.Active)
		assert.Equal(t, testNow, updated.CreatedAt)
		assert.Equal(t, later, updated.UpdatedAt)

		found, err := repo.FindByID(ctx, "family-1", created.ID)
		require.NoError(t, err)
		assert.Equal(t, updated, found)
	})

	t.Run("deactivate", func(t *testing.T) {
		inactive := false
		updated, err := repo.Update(ctx, "family-1", created.ID, coin.CoinTypePatch{Active: &inactive})
		require.NoError(t, err)
		assert.False(t, updated.Active)
		assert.False(t, updated.Distributes())
		assert.Equal(t, "Television", updated.Name)
	})

	t.Run("invalid patch", func(t *testing.T) {
		zero := 0
		_, err := repo.Update(ctx, "family-1", created.ID, coin.CoinTypePatch{DurationMinutes: &zero})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("missing coin type", func(t *testing.T) {
		minutes := 30
		_, err := repo.Update(ctx, "family-1", "missing", coin.CoinTypePatch{DurationMinutes: &minutes})
		assert.True(t, shared.IsNotFound(err))
	})
}

func TestKVCoinTypeRepository_UpdateKeepsAcceptedMultibyteName(t *testing.T) {
	ctx := context.Background()
	repo := NewKVCoinTypeRepository(kvtest.NewMemoryStore(t), newTestExecutor(3), fixedClock)
	name := strings.Repeat("テ", 50)

	created, err := repo.Create(ctx, "family-1", coin.CoinTypeAttributes{Name: name, DurationMinutes: 15})
	require.NoError(t, err)

	updated, err := repo.Update(ctx, "family-1", created.ID, coin.CoinTypePatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
}

func TestKVCoinTypeRepository_UpdateConflict(t *testing.T) {
	ctx := context.Background()
	store := kvtest.NewFaultStore(kvtest.NewMemoryStore(t))
	repo := NewKVCoinTypeRepository(store, newTestExecutor(2), fixedClock)

	created, err := repo.Create(ctx, "family-1", tvAttributes())
	require.NoError(t, err)

	minutes := 20
	store.ConflictCommits(1)
	updated, err := repo.Update(ctx, "family-1", created.ID, coin.CoinTypePatch{DurationMinutes: &minutes})
	require.NoError(t, err)
	assert.Equal(t, 20, updated.DurationMinutes)
	assert.Equal(t, 2, store.Commits())

	store.ConflictCommits(2)
	_, err = repo.Update(ctx, "family-1", created.ID, coin.CoinTypePatch{DurationMinutes: &minutes})
	assert.ErrorIs(t, err, shared.ErrRetriesExhausted)
	assert.ErrorIs(t, err, shared.ErrWriteConflict)
}

func TestKVCoinTypeRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repo := NewKVCoinTypeRepository(kvtest.NewMemoryStore(t), newTestExecutor(3), fixedClock)

	created, err := repo.Create(ctx, "family-1", tvAttributes())
	require.NoError(t, err)
	other, err := repo.Create(ctx, "family-1", coin.CoinTypeAttributes{Name: "Game", DurationMinutes: 30})
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, "family-1", created.ID))
	require.NoError(t, repo.Delete(ctx, "family-1", created.ID))
	require.NoError(t, repo.Delete(ctx, "family-1", "never-existed"))

	_, err = repo.FindByID(ctx, "family-1", created.ID)
	assert.True(t, shared.IsNotFound(err))

	list, err := repo.ListByFamily(ctx, "family-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, other.ID, list[0].ID)
}
