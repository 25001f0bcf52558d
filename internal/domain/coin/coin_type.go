package coin

import (
	"strings"
	"time"

	"github.com/famcoin/backend/internal/domain/shared"
)

// CoinType is a family-scoped coin category, e.g. "TV time".
// DurationMinutes is the screen time one coin buys; DailyDistribution is granted every day.
type CoinType struct {
	shared.BaseEntity
	FamilyID          string `json:"familyId"`
	Name              string `json:"name"`
	DurationMinutes   int    `json:"durationMinutes"`
	DailyDistribution int64  `json:"dailyDistribution"`
	Active            bool   `json:"active"`
}

// CoinTypeAttributes are the caller-supplied fields of a new coin type
type CoinTypeAttributes struct {
	Name              string `json:"name" validate:"required,max=100"`
	DurationMinutes   int    `json:"durationMinutes" validate:"gt=0"`
	DailyDistribution int64  `json:"dailyDistribution" validate:"gte=0"`
}

// Validate trims the name and checks every attribute
func (a *CoinTypeAttributes) Validate() error {
	a.Name = strings.TrimSpace(a.Name)
	return shared.ValidateStruct(a)
}

// NewCoinType creates an active coin type in familyID
func NewCoinType(familyID string, attrs CoinTypeAttributes, now time.Time) (*CoinType, error) {
	if strings.TrimSpace(familyID) == "" {
		return nil, shared.NewValidationError("familyId", "is required")
	}
	if err := attrs.Validate(); err != nil {
		return nil, err
	}
	return &CoinType{
		BaseEntity:        shared.NewBaseEntity(now),
		FamilyID:          familyID,
		Name:              attrs.Name,
		DurationMinutes:   attrs.DurationMinutes,
		DailyDistribution: attrs.DailyDistribution,
		Active:            true,
	}, nil
}

// Distributes reports whether the coin type takes part in the daily distribution
func (c *CoinType) Distributes() bool {
	return c.Active && c.DailyDistribution > 0
}

// CoinTypePatch is a partial update; nil fields are left unchanged
type CoinTypePatch struct {
	Name              *string `json:"name,omitempty" validate:"omitnil,min=1,max=100"`
	DurationMinutes   *int    `json:"durationMinutes,omitempty" validate:"omitnil,gt=0"`
	DailyDistribution *int64  `json:"dailyDistribution,omitempty" validate:"omitnil,gte=0"`
	Active            *bool   `json:"active,omitempty"`
}

// IsEmpty reports whether the patch changes nothing
func (p CoinTypePatch) IsEmpty() bool {
	return p.Name == nil && p.DurationMinutes == nil && p.DailyDistribution == nil && p.Active == nil
}

// Validate applies the creation rules to the fields present in the patch
func (p *CoinTypePatch) Validate() error {
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		p.Name = &name
	}
	return shared.ValidateStruct(p)
}

// Apply merges the present fields into c and moves UpdatedAt forward
func (p CoinTypePatch) Apply(c *CoinType, now time.Time) {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.DurationMinutes != nil {
		c.DurationMinutes = *p.DurationMinutes
	}
	if p.DailyDistribution != nil {
		c.DailyDistribution = *p.DailyDistribution
	}
	if p.Active != nil {
		c.Active = *p.Active
	}
	c.Touch(now)
}
