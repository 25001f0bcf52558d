package cli

import (
	"fmt"

	"github.com/famcoin/backend/internal/domain/coin"
	"github.com/famcoin/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// ownerFlags selects one balance
type ownerFlags struct {
	UserID     string
	FamilyID   string
	CoinTypeID string
}

func (f *ownerFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.UserID, "user", "", "user id")
	cmd.Flags().StringVar(&f.FamilyID, "family", "", "family id")
	cmd.Flags().StringVar(&f.CoinTypeID, "coin-type", "", "coin type id")
}

func (f *ownerFlags) owner() coin.OwnerKey {
	return coin.OwnerKey{UserID: f.UserID, FamilyID: f.FamilyID, CoinTypeID: f.CoinTypeID}
}

// detailFlags describe the transaction kind of an increase or decrease
type detailFlags struct {
	Kind          string
	SummaryDate   string
	TimeSessionID string
	FromCoinType  string
	ToCoinType    string
	Rate          string
	StampCardID   string
}

var transactionKinds = []coin.TransactionType{
	coin.TransactionTypeDailyDistribution,
	coin.TransactionTypeUse,
	coin.TransactionTypeExchange,
	coin.TransactionTypeStampReward,
}

func (f *detailFlags) register(cmd *cobra.Command, defaultKind coin.TransactionType) {
	cmd.Flags().StringVar(&f.Kind, "kind", string(defaultKind), fmt.Sprintf("transaction kind %v", transactionKinds))
	cmd.Flags().StringVar(&f.SummaryDate, "summary-date", "", "summary date of a daily_distribution (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.TimeSessionID, "session", "", "timer session of a use")
	cmd.Flags().StringVar(&f.FromCoinType, "from-coin-type", "", "source coin type of an exchange")
	cmd.Flags().StringVar(&f.ToCoinType, "to-coin-type", "", "destination coin type of an exchange")
	cmd.Flags().StringVar(&f.Rate, "rate", "", "exchange rate, e.g. 0.5")
	cmd.Flags().StringVar(&f.StampCardID, "stamp-card", "", "stamp card of a stamp_reward")
}

func (f *detailFlags) detail() (coin.TransactionDetail, error) {
	switch coin.TransactionType(f.Kind) {
	case coin.TransactionTypeDailyDistribution:
		return coin.DailyDistributionDetail{SummaryDate: f.SummaryDate}, nil
	case coin.TransactionTypeUse:
		return coin.UseDetail{TimeSessionID: f.TimeSessionID}, nil
	case coin.TransactionTypeExchange:
		rate, err := decimal.NewFromString(f.Rate)
		if err != nil {
			return nil, shared.NewValidationError("rate", "must be a decimal number")
		}
		return coin.ExchangeDetail{FromCoinTypeID: f.FromCoinType, ToCoinTypeID: f.ToCoinType, Rate: rate}, nil
	case coin.TransactionTypeStampReward:
		return coin.StampRewardDetail{StampCardID: f.StampCardID}, nil
	default:
		return nil, shared.NewValidationError("kind", fmt.Sprintf("must be one of %v", transactionKinds))
	}
}
