// Package coin holds the family coin domain: balances per (user, family, coin type),
// their immutable transaction history, coin type definitions and daily distribution records.
package coin

import (
	"math"
	"strings"
	"time"

	"github.com/famcoin/backend/internal/domain/shared"
)

// OwnerKey identifies one balance: a user's holding of one coin type within one family
type OwnerKey struct {
	UserID     string `json:"userId"`
	FamilyID   string `json:"familyId"`
	CoinTypeID string `json:"coinTypeId"`
}

// Validate rejects owner keys with blank components
func (k OwnerKey) Validate() error {
	var errs shared.ValidationErrors
	if strings.TrimSpace(k.UserID) == "" {
		errs = append(errs, shared.NewValidationError("userId", "is required"))
	}
	if strings.TrimSpace(k.FamilyID) == "" {
		errs = append(errs, shared.NewValidationError("familyId", "is required"))
	}
	if strings.TrimSpace(k.CoinTypeID) == "" {
		errs = append(errs, shared.NewValidationError("coinTypeId", "is required"))
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (k OwnerKey) String() string {
	return k.UserID + "/" + k.FamilyID + "/" + k.CoinTypeID
}

// Coin is the current balance of one owner key. Amount is never negative at rest.
type Coin struct {
	shared.BaseEntity
	UserID     string `json:"userId"`
	FamilyID   string `json:"familyId"`
	CoinTypeID string `json:"coinTypeId"`
	Amount     int64  `json:"amount"`
}

// NewCoin creates a balance record with an opening amount
func NewCoin(owner OwnerKey, amount int64, now time.Time) (*Coin, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if amount < 0 {
		return nil, shared.NewValidationError("amount", "must be at least 0")
	}
	return &Coin{
		BaseEntity: shared.NewBaseEntity(now),
		UserID:     owner.UserID,
		FamilyID:   owner.FamilyID,
		CoinTypeID: owner.CoinTypeID,
		Amount:     amount,
	}, nil
}

// Owner returns the coin's owner key
func (c *Coin) Owner() OwnerKey {
	return OwnerKey{UserID: c.UserID, FamilyID: c.FamilyID, CoinTypeID: c.CoinTypeID}
}

// Apply adds delta to the balance and returns the audit record describing the change.
// A delta that would make the balance negative leaves the coin untouched and returns
// *shared.InsufficientBalanceError. A delta whose result does not fit in int64 is invalid input.
func (c *Coin) Apply(delta int64, detail TransactionDetail, now time.Time) (*CoinTransaction, error) {
	if err := ValidateDetail(detail); err != nil {
		return nil, err
	}
	if delta == math.MinInt64 || (delta > 0 && c.Amount > math.MaxInt64-delta) {
		return nil, shared.NewValidationError("amount", "is out of range")
	}
	next := c.Amount + delta
	if next < 0 {
		return nil, &shared.InsufficientBalanceError{Current: c.Amount, Required: abs(delta)}
	}
	c.Amount = next
	c.Touch(now)
	return NewCoinTransaction(c.Owner(), delta, next, detail, now), nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
