package coin

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/famcoin/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// TransactionType is the kind of a coin transaction
type TransactionType string

const (
	TransactionTypeDailyDistribution TransactionType = "daily_distribution"
	TransactionTypeUse               TransactionType = "use"
	TransactionTypeExchange          TransactionType = "exchange"
	TransactionTypeStampReward       TransactionType = "stamp_reward"
)

// TransactionDetail is the kind-specific part of a transaction.
// The set of implementations is closed: DailyDistributionDetail, UseDetail,
// ExchangeDetail and StampRewardDetail.
type TransactionDetail interface {
	Type() TransactionType
	Validate() error
	sealed()
}

// DailyDistributionDetail records a scheduled daily grant
type DailyDistributionDetail struct {
	SummaryDate string `json:"summaryDate,omitempty"`
}

// UseDetail records consumption, optionally tied to a timer session
type UseDetail struct {
	TimeSessionID string `json:"timeSessionId,omitempty"`
}

// ExchangeDetail records a conversion between coin types at a rate
type ExchangeDetail struct {
	FromCoinTypeID string          `json:"fromCoinTypeId"`
	ToCoinTypeID   string          `json:"toCoinTypeId"`
	Rate           decimal.Decimal `json:"rate"`
}

// StampRewardDetail records a reward for a completed stamp card
type StampRewardDetail struct {
	StampCardID string `json:"stampCardId"`
}

func (DailyDistributionDetail) Type() TransactionType { return TransactionTypeDailyDistribution }
func (UseDetail) Type() TransactionType               { return TransactionTypeUse }
func (ExchangeDetail) Type() TransactionType          { return TransactionTypeExchange }
func (StampRewardDetail) Type() TransactionType       { return TransactionTypeStampReward }

func (DailyDistributionDetail) sealed() {}
func (UseDetail) sealed()               {}
func (ExchangeDetail) sealed()          {}
func (StampRewardDetail) sealed()       {}

// Validate checks the summary date format when present
func (d DailyDistributionDetail) Validate() error {
	if d.SummaryDate == "" {
		return nil
	}
	if _, err := time.Parse(DateLayout, d.SummaryDate); err != nil {
		return shared.NewValidationError("summaryDate", "must be a YYYY-MM-DD date")
	}
	return nil
}

// Validate always succeeds; the session is optional
func (UseDetail) Validate() error { return nil }

// Validate requires both coin types and a positive rate
func (d ExchangeDetail) Validate() error {
	var errs shared.ValidationErrors
	if d.FromCoinTypeID == "" {
		errs = append(errs, shared.NewValidationError("fromCoinTypeId", "is required"))
	}
	if d.ToCoinTypeID == "" {
		errs = append(errs, shared.NewValidationError("toCoinTypeId", "is required"))
	}
	if !d.Rate.IsPositive() {
		errs = append(errs, shared.NewValidationError("rate", "must be greater than 0"))
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Validate requires the stamp card reference
func (d StampRewardDetail) Validate() error {
	if d.StampCardID == "" {
		return shared.NewValidationError("stampCardId", "is required")
	}
	return nil
}

// ValidateDetail rejects a nil or invalid detail
func ValidateDetail(detail TransactionDetail) error {
	if detail == nil {
		return shared.NewValidationError("detail", "is required")
	}
	return detail.Validate()
}

// CoinTransaction is the immutable audit record of one balance change.
// Balance is the coin amount right after the change.
type CoinTransaction struct {
	shared.BaseEntity
	UserID     string
	FamilyID   string
	CoinTypeID string
	Amount     int64
	Balance    int64
	Detail     TransactionDetail
}

// NewCoinTransaction creates an audit record with a fresh time-ordered ID
func NewCoinTransaction(owner OwnerKey, delta, balance int64, detail TransactionDetail, now time.Time) *CoinTransaction {
	return &CoinTransaction{
		BaseEntity: shared.NewBaseEntity(now),
		UserID:     owner.UserID,
		FamilyID:   owner.FamilyID,
		CoinTypeID: owner.CoinTypeID,
		Amount:     delta,
		Balance:    balance,
		Detail:     detail,
	}
}

// Owner returns the owner key of the balance this record belongs to
func (t *CoinTransaction) Owner() OwnerKey {
	return OwnerKey{UserID: t.UserID, FamilyID: t.FamilyID, CoinTypeID: t.CoinTypeID}
}

// TransactionType returns the kind of the detail
func (t *CoinTransaction) TransactionType() TransactionType {
	if t.Detail == nil {
		return ""
	}
	return t.Detail.Type()
}

type transactionJSON struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	FamilyID        string          `json:"familyId"`
	CoinTypeID      string          `json:"coinTypeId"`
	Amount          int64           `json:"amount"`
	Balance         int64           `json:"balance"`
	TransactionType TransactionType `json:"transactionType"`
	Metadata        json.RawMessage `json:"metadata"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// MarshalJSON writes the detail as transactionType plus a metadata object tagged with "type"
func (t *CoinTransaction) MarshalJSON() ([]byte, error) {
	if t.Detail == nil {
		return nil, fmt.Errorf("coin transaction %s has no detail", t.ID)
	}
	metadata, err := marshalMetadata(t.Detail)
	if err != nil {
		return nil, err
	}
	return json.Marshal(transactionJSON{
		ID:              t.ID,
		UserID:          t.UserID,
		FamilyID:        t.FamilyID,
		CoinTypeID:      t.CoinTypeID,
		Amount:          t.Amount,
		Balance:         t.Balance,
		TransactionType: t.Detail.Type(),
		Metadata:        metadata,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	})
}

// UnmarshalJSON restores the detail variant named by transactionType
func (t *CoinTransaction) UnmarshalJSON(data []byte) error {
	var raw transactionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	detail, err := unmarshalMetadata(raw.TransactionType, raw.Metadata)
	if err != nil {
		return err
	}
	*t = CoinTransaction{
		BaseEntity: shared.BaseEntity{ID: raw.ID, CreatedAt: raw.CreatedAt, UpdatedAt: raw.UpdatedAt},
		UserID:     raw.UserID,
		FamilyID:   raw.FamilyID,
		CoinTypeID: raw.CoinTypeID,
		Amount:     raw.Amount,
		Balance:    raw.Balance,
		Detail:     detail,
	}
	return nil
}

func marshalMetadata(detail TransactionDetail) (json.RawMessage, error) {
	body, err := json.Marshal(detail)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	typ, err := json.Marshal(detail.Type())
	if err != nil {
		return nil, err
	}
	fields["type"] = typ
	return json.Marshal(fields)
}

func unmarshalMetadata(kind TransactionType, metadata json.RawMessage) (TransactionDetail, error) {
	var tag struct {
		Type TransactionType `json:"type"`
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &tag); err != nil {
			return nil, fmt.Errorf("decode transaction metadata: %w", err)
		}
		if tag.Type != "" && tag.Type != kind {
			return nil, fmt.Errorf("transaction metadata type %q does not match transactionType %q", tag.Type, kind)
		}
	} else {
		metadata = json.RawMessage("{}")
	}

	switch kind {
	case TransactionTypeDailyDistribution:
		return decodeDetail[DailyDistributionDetail](metadata)
	case TransactionTypeUse:
		return decodeDetail[UseDetail](metadata)
	case TransactionTypeExchange:
		return decodeDetail[ExchangeDetail](metadata)
	case TransactionTypeStampReward:
		return decodeDetail[StampRewardDetail](metadata)
	default:
		return nil, fmt.Errorf("unknown transaction type %q", kind)
	}
}

func decodeDetail[D TransactionDetail](metadata json.RawMessage) (TransactionDetail, error) {
	var d D
	if err := json.Unmarshal(metadata, &d); err != nil {
		return nil, fmt.Errorf("decode transaction metadata: %w", err)
	}
	return d, nil
}
