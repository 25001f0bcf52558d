package coin

import (
	"context"
	"errors"
	"fmt"

	"github.com/famcoin/backend/internal/domain/coin"
	"github.com/famcoin/backend/internal/domain/shared"
	"github.com/famcoin/backend/internal/infrastructure/logger"
	"github.com/famcoin/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// DistributionService grants each user the daily coins of every distributing coin type,
// at most once per user and local calendar day.
type DistributionService struct {
	coinTypes     coin.CoinTypeRepository
	ledger        coin.Ledger
	distributions coin.DailyDistributionRepository
	metrics       *telemetry.LedgerMetrics
	logger        *zap.Logger
	clock         shared.Clock
}

// DistributionOption configures a DistributionService
type DistributionOption func(*DistributionService)

// WithDistributionClock overrides the time source used for records and local dates
func WithDistributionClock(clock shared.Clock) DistributionOption {
	return func(s *DistributionService) {
		s.clock = clock
	}
}

// WithDistributionMetrics records distribution runs and adjustments on metrics
func WithDistributionMetrics(metrics *telemetry.LedgerMetrics) DistributionOption {
	return func(s *DistributionService) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithDistributionLogger sets the logger
func WithDistributionLogger(log *zap.Logger) DistributionOption {
	return func(s *DistributionService) {
		if log != nil {
			s.logger = log
		}
	}
}

// NewDistributionService creates a new DistributionService
func NewDistributionService(
	coinTypes coin.CoinTypeRepository,
	ledger coin.Ledger,
	distributions coin.DailyDistributionRepository,
	opts ...DistributionOption,
) *DistributionService {
	s := &DistributionService{
		coinTypes:     coinTypes,
		ledger:        ledger,
		distributions: distributions,
		metrics:       telemetry.NewNopLedgerMetrics(),
		logger:        zap.NewNop(),
		clock:         shared.SystemClock,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("distribution")
	return s
}

// DistributeToday runs DistributeDaily for the user's current date in timezone
func (s *DistributionService) DistributeToday(ctx context.Context, familyID, userID, timezone string) (*DistributionResult, error) {
	date, err := coin.LocalDate(s.clock(), timezone)
	if err != nil {
		return nil, err
	}
	return s.DistributeDaily(ctx, familyID, userID, date, timezone)
}

// DistributeDaily claims summaryDate for the user and then credits every active coin type
// with a positive daily distribution. A day that is already claimed yields ErrAlreadyExists
// and changes no balance.
func (s *DistributionService) DistributeDaily(ctx context.Context, familyID, userID, summaryDate, timezone string) (*DistributionResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "distribution", "distribute_daily")
	telemetry.SetAttributes(span,
		telemetry.SpanAttrFamilyID, familyID,
		telemetry.SpanAttrUserID, userID,
		telemetry.SpanAttrSummaryDate, summaryDate,
	)
	ctx, log := logger.WithFamilyID(ctx, s.logger, familyID)
	ctx, log = logger.WithUserID(ctx, log, userID)
	log = log.With(zap.String("summary_date", summaryDate))

	result, err := s.distribute(ctx, familyID, userID, summaryDate, timezone)
	s.metrics.RecordDistribution(ctx, familyID, err)
	telemetry.Finish(span, err)

	switch {
	case err == nil:
		log.Info("Daily coins distributed",
			zap.Int("coin_types", len(result.Record.Distributions)),
			zap.Int64("total", result.Record.Total()),
		)
	case errors.Is(err, shared.ErrAlreadyExists):
		log.Debug("Daily coins already distributed")
	default:
		log.Warn("Daily distribution failed", zap.Error(err))
	}
	return result, err
}

func (s *DistributionService) distribute(ctx context.Context, familyID, userID, summaryDate, timezone string) (*DistributionResult, error) {
	record, err := coin.NewDailyCoinDistribution(familyID, userID, summaryDate, timezone, nil, s.clock())
	if err != nil {
		return nil, err
	}

	types, err := s.coinTypes.ListByFamily(ctx, familyID)
	if err != nil {
		return nil, err
	}
	for _, ct := range types {
		if ct.Distributes() {
			record.Distributions = append(record.Distributions, coin.Distribution{
				CoinTypeID: ct.ID,
				Amount:     ct.DailyDistribution,
			})
		}
	}

	if err := s.distributions.Claim(ctx, record); err != nil {
		return nil, err
	}

	result := &DistributionResult{Record: record, Balances: make([]*coin.Coin, 0, len(record.Distributions))}
	detail := coin.DailyDistributionDetail{SummaryDate: summaryDate}
	for _, dist := range record.Distributions {
		owner := coin.OwnerKey{UserID: userID, FamilyID: familyID, CoinTypeID: dist.CoinTypeID}
		if err := s.ensureOpen(ctx, owner); err != nil {
			return result, fmt.Errorf("open coin type %s: %w", dist.CoinTypeID, err)
		}
		c, err := s.ledger.Adjust(ctx, owner, dist.Amount, detail)
		s.metrics.RecordAdjustment(ctx, familyID, string(detail.Type()), dist.Amount, err)
		if err != nil {
			return result, fmt.Errorf("distribute coin type %s: %w", dist.CoinTypeID, err)
		}
		result.Balances = append(result.Balances, c)
	}
	return result, nil
}

// ensureOpen creates an empty balance for owner unless one exists
func (s *DistributionService) ensureOpen(ctx context.Context, owner coin.OwnerKey) error {
	_, err := s.ledger.Get(ctx, owner)
	if !shared.IsNotFound(err) {
		return err
	}
	_, err = s.ledger.Open(ctx, owner, 0)
	if errors.Is(err, shared.ErrAlreadyExists) {
		return nil
	}
	return err
}

// History returns the family's distribution records ordered by user and date
func (s *DistributionService) History(ctx context.Context, familyID string) ([]*coin.DailyCoinDistribution, error) {
	return s.distributions.ListByFamily(ctx, familyID)
}

// Find returns the user's distribution record for summaryDate or ErrNotFound
func (s *DistributionService) Find(ctx context.Context, familyID, userID, summaryDate string) (*coin.DailyCoinDistribution, error) {
	return s.distributions.FindByDate(ctx, familyID, userID, summaryDate)
}
