package coin

import "github.com/famcoin/backend/internal/domain/coin"

// CreateCoinTypeInput represents a request to create a coin type
type CreateCoinTypeInput struct {
	Name              string `json:"name" validate:"required,max=100"`
	DurationMinutes   int    `json:"durationMinutes" validate:"gt=0"`
	DailyDistribution int64  `json:"dailyDistribution" validate:"gte=0"`
}

func (in CreateCoinTypeInput) toAttributes() coin.CoinTypeAttributes {
	return coin.CoinTypeAttributes{
		Name:              in.Name,
		DurationMinutes:   in.DurationMinutes,
		DailyDistribution: in.DailyDistribution,
	}
}

// UpdateCoinTypeInput represents a partial update of a coin type; nil fields are kept
type UpdateCoinTypeInput struct {
	Name              *string `json:"name,omitempty" validate:"omitempty,max=100"`
	DurationMinutes   *int    `json:"durationMinutes,omitempty" validate:"omitempty,gt=0"`
	DailyDistribution *int64  `json:"dailyDistribution,omitempty" validate:"omitempty,gte=0"`
	Active            *bool   `json:"active,omitempty"`
}

func (in UpdateCoinTypeInput) toPatch() coin.CoinTypePatch {
	return coin.CoinTypePatch{
		Name:              in.Name,
		DurationMinutes:   in.DurationMinutes,
		DailyDistribution: in.DailyDistribution,
		Active:            in.Active,
	}
}

// DistributionResult is the outcome of one daily distribution run
type DistributionResult struct {
	Record   *coin.DailyCoinDistribution `json:"record"`
	Balances []*coin.Coin                `json:"balances"`
}
