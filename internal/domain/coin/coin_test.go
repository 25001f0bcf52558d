package coin

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/famcoin/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testNow   = time.Date(2026, 1, 31, 9, 0, 0, 0, time.UTC)
	testOwner = OwnerKey{UserID: "user-1", FamilyID: "family-1", CoinTypeID: "tv"}
)

func TestNewCoin(t *testing.T) {
	c, err := NewCoin(testOwner, 1000, testNow)
	require.NoError(t, err)

	assert.NotEmpty(t, c.ID)
	assert.Equal(t, testOwner, c.Owner())
	assert.Equal(t, int64(1000), c.Amount)
	assert.Equal(t, testNow, c.CreatedAt)
	assert.Equal(t, testNow, c.UpdatedAt)
}

func TestNewCoin_Validation(t *testing.T) {
	_, err := NewCoin(testOwner, -1, testNow)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = NewCoin(OwnerKey{UserID: "u"}, 0, testNow)
	var errs shared.ValidationErrors
	require.ErrorAs(t, err, &errs)
	assert.Len(t, errs, 2)
	assert.Equal(t, "familyId", errs[0].Field)
	assert.Equal(t, "coinTypeId", errs[1].Field)
}

func TestCoin_Apply(t *testing.T) {
	t.Run("increase produces a matching transaction", func(t *testing.T) {
		c, _ := NewCoin(testOwner, 100, testNow)
		later := testNow.Add(time.Minute)

		tx, err := c.Apply(50, StampRewardDetail{StampCardID: "card-1"}, later)
		require.NoError(t, err)

		assert.Equal(t, int64(150), c.Amount)
		assert.Equal(t, later, c.UpdatedAt)
		assert.Equal(t, testNow, c.CreatedAt)
		assert.Equal(t, int64(50), tx.Amount)
		assert.Equal(t, int64(150), tx.Balance)
		assert.Equal(t, testOwner, tx.Owner())
		assert.Equal(t, TransactionTypeStampReward, tx.TransactionType())
		assert.Equal(t, tx.CreatedAt, tx.UpdatedAt)
	})

	t.Run("decrease to exactly zero", func(t *testing.T) {
		c, _ := NewCoin(testOwner, 100, testNow)

		tx, err := c.Apply(-100, UseDetail{}, testNow)
		require.NoError(t, err)
		assert.Zero(t, c.Amount)
		assert.Zero(t, tx.Balance)
	})

	t.Run("overdraft is rejected and leaves the coin unchanged", func(t *testing.T) {
		c, _ := NewCoin(testOwner, 100, testNow)

		_, err := c.Apply(-150, UseDetail{TimeSessionID: "s-1"}, testNow.Add(time.Hour))

		var insufficient *shared.InsufficientBalanceError
		require.ErrorAs(t, err, &insufficient)
		assert.Equal(t, int64(100), insufficient.Current)
		assert.Equal(t, int64(150), insufficient.Required)
		assert.Equal(t, "Insufficient coin balance. Current: 100, Required: 150", err.Error())
		assert.True(t, errors.Is(err, shared.ErrInsufficientBalance))
		assert.Equal(t, int64(100), c.Amount)
		assert.Equal(t, testNow, c.UpdatedAt)
	})

	t.Run("zero delta still yields a record", func(t *testing.T) {
		c, _ := NewCoin(testOwner, 100, testNow)

		tx, err := c.Apply(0, DailyDistributionDetail{}, testNow)
		require.NoError(t, err)
		assert.Equal(t, int64(100), c.Amount)
		assert.Zero(t, tx.Amount)
		assert.Equal(t, int64(100), tx.Balance)
	})

	t.Run("increase past the int64 range is invalid input", func(t *testing.T) {
		c, _ := NewCoin(testOwner, 100, testNow)

		_, err := c.Apply(math.MaxInt64, StampRewardDetail{StampCardID: "card-1"}, testNow.Add(time.Hour))

		var verr *shared.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "amount", verr.Field)
		assert.NotErrorIs(t, err, shared.ErrInsufficientBalance)
		assert.Equal(t, int64(100), c.Amount)
		assert.Equal(t, testNow, c.UpdatedAt)
	})

	t.Run("largest increase that fits", func(t *testing.T) {
		c, _ := NewCoin(testOwner, 100, testNow)

		tx, err := c.Apply(math.MaxInt64-100, StampRewardDetail{StampCardID: "card-1"}, testNow)
		require.NoError(t, err)
		assert.Equal(t, int64(math.MaxInt64), tx.Balance)
	})

	t.Run("minimum int64 delta is invalid input", func(t *testing.T) {
		c, _ := NewCoin(testOwner, 100, testNow)

		_, err := c.Apply(math.MinInt64, UseDetail{}, testNow)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
		assert.Equal(t, int64(100), c.Amount)
	})

	t.Run("nil detail", func(t *testing.T) {
		c, _ := NewCoin(testOwner, 100, testNow)

		_, err := c.Apply(10, nil, testNow)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
		assert.Equal(t, int64(100), c.Amount)
	})
}

func TestOwnerKey_String(t *testing.T) {
	assert.Equal(t, "user-1/family-1/tv", testOwner.String())
	assert.NoError(t, testOwner.Validate())
}
