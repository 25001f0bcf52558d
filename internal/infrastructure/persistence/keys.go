package persistence

import (
	"github.com/famcoin/backend/internal/domain/coin"
	"github.com/famcoin/backend/internal/infrastructure/kv"
)

// Key space prefixes
const (
	coinPrefix              = "coins"
	coinTransactionPrefix   = "coin_transactions"
	coinTypePrefix          = "coin_types"
	dailyDistributionPrefix = "coin_daily_distributions"
)

func coinKey(owner coin.OwnerKey) kv.Key {
	return kv.NewKey(coinPrefix, owner.UserID, owner.FamilyID, owner.CoinTypeID)
}

func coinTransactionsPrefix(owner coin.OwnerKey) kv.Key {
	return kv.NewKey(coinTransactionPrefix, owner.UserID, owner.FamilyID, owner.CoinTypeID)
}

func coinTransactionKey(tx *coin.CoinTransaction) kv.Key {
	return coinTransactionsPrefix(tx.Owner()).Append(tx.ID)
}

func coinTypeKey(familyID, id string) kv.Key {
	return kv.NewKey(coinTypePrefix, familyID, id)
}

func coinTypeFamilyPrefix(familyID string) kv.Key {
	return kv.NewKey(coinTypePrefix, familyID)
}

func dailyDistributionKey(familyID, userID, summaryDate string) kv.Key {
	return kv.NewKey(dailyDistributionPrefix, familyID, userID, summaryDate)
}

func dailyDistributionFamilyPrefix(familyID string) kv.Key {
	return kv.NewKey(dailyDistributionPrefix, familyID)
}
