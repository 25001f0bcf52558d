package coin

import (
	"strings"
	"time"
	_ "time/tzdata" // IANA zones on hosts without a zoneinfo database

	"github.com/famcoin/backend/internal/domain/shared"
)

// DateLayout is the calendar date format used for summary dates
const DateLayout = "2006-01-02"

// Distribution is the amount granted for one coin type on one day
type Distribution struct {
	CoinTypeID string `json:"coinTypeId"`
	Amount     int64  `json:"amount"`
}

// DistributionMetadata carries the timezone the summary date was computed in
type DistributionMetadata struct {
	Timezone string `json:"timezone"`
}

// DailyCoinDistribution marks that a user's daily coins were distributed on SummaryDate.
// Its existence alone answers "already distributed today?".
type DailyCoinDistribution struct {
	shared.BaseEntity
	FamilyID      string               `json:"familyId"`
	UserID        string               `json:"userId"`
	SummaryDate   string               `json:"summaryDate"`
	Distributions []Distribution       `json:"distributions"`
	Metadata      DistributionMetadata `json:"metadata"`
}

// NewDailyCoinDistribution validates the date and timezone and builds the record
func NewDailyCoinDistribution(familyID, userID, summaryDate, timezone string, distributions []Distribution, now time.Time) (*DailyCoinDistribution, error) {
	var errs shared.ValidationErrors
	if strings.TrimSpace(familyID) == "" {
		errs = append(errs, shared.NewValidationError("familyId", "is required"))
	}
	if strings.TrimSpace(userID) == "" {
		errs = append(errs, shared.NewValidationError("userId", "is required"))
	}
	if _, err := time.Parse(DateLayout, summaryDate); err != nil {
		errs = append(errs, shared.NewValidationError("summaryDate", "must be a YYYY-MM-DD date"))
	}
	if _, err := LoadTimezone(timezone); err != nil {
		errs = append(errs, shared.NewValidationError("timezone", "must be an IANA time zone"))
	}
	if len(errs) > 0 {
		return nil, errs
	}
	if distributions == nil {
		distributions = []Distribution{}
	}
	return &DailyCoinDistribution{
		BaseEntity:    shared.NewBaseEntity(now),
		FamilyID:      familyID,
		UserID:        userID,
		SummaryDate:   summaryDate,
		Distributions: distributions,
		Metadata:      DistributionMetadata{Timezone: timezone},
	}, nil
}

// Total is the sum of all distributed amounts
func (d *DailyCoinDistribution) Total() int64 {
	var total int64
	for _, dist := range d.Distributions {
		total += dist.Amount
	}
	return total
}

// LoadTimezone resolves an IANA name; the empty name is rejected rather than meaning UTC
func LoadTimezone(name string) (*time.Location, error) {
	if name == "" {
		return nil, shared.NewValidationError("timezone", "is required")
	}
	return time.LoadLocation(name)
}

// LocalDate returns the calendar date of now in the given IANA timezone
func LocalDate(now time.Time, timezone string) (string, error) {
	loc, err := LoadTimezone(timezone)
	if err != nil {
		return "", shared.NewValidationError("timezone", "must be an IANA time zone")
	}
	return now.In(loc).Format(DateLayout), nil
}
