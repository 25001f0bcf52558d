package persistence

import (
	"context"
	"testing"

	"github.com/famcoin/backend/internal/domain/coin"
	"github.com/famcoin/backend/internal/domain/shared"
	"github.com/famcoin/backend/internal/infrastructure/kv/kvtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDistribution(t *testing.T, familyID, userID, date string) *coin.DailyCoinDistribution {
	t.Helper()
	record, err := coin.NewDailyCoinDistribution(familyID, userID, date, "Asia/Tokyo",
		[]coin.Distribution{{CoinTypeID: "tv", Amount: 4}}, testNow)
	require.NoError(t, err)
	return record
}

func TestKVDailyDistributionRepository_Claim(t *testing.T) {
	ctx := context.Background()
	repo := NewKVDailyDistributionRepository(kvtest.NewMemoryStore(t))

	first := newTestDistribution(t, "family-1", "user-1", "2026-01-31")
	require.NoError(t, repo.Claim(ctx, first))

	again := newTestDistribution(t, "family-1", "user-1", "2026-01-31")
	err := repo.Claim(ctx, again)
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)

	found, err := repo.FindByDate(ctx, "family-1", "user-1", "2026-01-31")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
	assert.Equal(t, int64(4), found.Total())
	assert.Equal(t, "Asia/Tokyo", found.Metadata.Timezone)

	require.NoError(t, repo.Claim(ctx, newTestDistribution(t, "family-1", "user-1", "2026-02-01")))
	require.NoError(t, repo.Claim(ctx, newTestDistribution(t, "family-1", "user-2", "2026-01-31")))
}

func TestKVDailyDistributionRepository_FindByDateMissing(t *testing.T) {
	repo := NewKVDailyDistributionRepository(kvtest.NewMemoryStore(t))

	_, err := repo.FindByDate(context.Background(), "family-1", "user-1", "2026-01-31")
	assert.True(t, shared.IsNotFound(err))
}

func TestKVDailyDistributionRepository_ListByFamily(t *testing.T) {
	ctx := context.Background()
	repo := NewKVDailyDistributionRepository(kvtest.NewMemoryStore(t))

	for _, r := range []struct{ family, user, date string }{
		{"family-1", "user-2", "2026-01-30"},
		{"family-1", "user-1", "2026-01-31"},
		{"family-1", "user-1", "2026-01-30"},
		{"family-2", "user-1", "2026-01-30"},
	} {
		require.NoError(t, repo.Claim(ctx, newTestDistribution(t, r.family, r.user, r.date)))
	}

	records, err := repo.ListByFamily(ctx, "family-1")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "user-1", records[0].UserID)
	assert.Equal(t, "2026-01-30", records[0].SummaryDate)
	assert.Equal(t, "user-1", records[1].UserID)
	assert.Equal(t, "2026-01-31", records[1].SummaryDate)
	assert.Equal(t, "user-2", records[2].UserID)
}
