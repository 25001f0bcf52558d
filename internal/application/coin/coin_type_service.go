package coin

import (
	"context"
	"strings"
	"time"

	"github.com/famcoin/backend/internal/domain/coin"
	"github.com/famcoin/backend/internal/domain/shared"
	"github.com/famcoin/backend/internal/infrastructure/logger"
	"github.com/famcoin/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const coinTypeEntity = "coin_type"

// CoinTypeService manages the coin types of a family
type CoinTypeService struct {
	repo    coin.CoinTypeRepository
	metrics *telemetry.LedgerMetrics
	logger  *zap.Logger
}

// NewCoinTypeService creates a new CoinTypeService. metrics and logger may be nil.
func NewCoinTypeService(repo coin.CoinTypeRepository, metrics *telemetry.LedgerMetrics, log *zap.Logger) *CoinTypeService {
	if metrics == nil {
		metrics = telemetry.NewNopLedgerMetrics()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CoinTypeService{
		repo:    repo,
		metrics: metrics,
		logger:  log.Named("coin_type"),
	}
}

// Create validates input and registers a new active coin type
func (s *CoinTypeService) Create(ctx context.Context, familyID string, input CreateCoinTypeInput) (*coin.CoinType, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "coin_type", "create")
	telemetry.SetAttribute(span, telemetry.SpanAttrFamilyID, familyID)
	started := time.Now()

	input.Name = strings.TrimSpace(input.Name)
	var ct *coin.CoinType
	err := shared.ValidateStruct(input)
	if err == nil {
		ct, err = s.repo.Create(ctx, familyID, input.toAttributes())
	}
	s.record(ctx, "create", started, err)
	telemetry.Finish(span, err)
	if err != nil {
		return nil, err
	}

	telemetry.SetAttribute(span, telemetry.SpanAttrCoinTypeID, ct.ID)
	logger.For(ctx, s.logger).Info("Coin type created",
		zap.String("family_id", familyID),
		zap.String("coin_type_id", ct.ID),
		zap.String("name", ct.Name),
		zap.Int64("daily_distribution", ct.DailyDistribution),
	)
	return ct, nil
}

// Get returns one coin type of the family
func (s *CoinTypeService) Get(ctx context.Context, familyID, id string) (*coin.CoinType, error) {
	return s.repo.FindByID(ctx, familyID, id)
}

// List returns every coin type of the family in key order
func (s *CoinTypeService) List(ctx context.Context, familyID string) ([]*coin.CoinType, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "coin_type", "list")
	telemetry.SetAttribute(span, telemetry.SpanAttrFamilyID, familyID)

	types, err := s.repo.ListByFamily(ctx, familyID)
	telemetry.Finish(span, err)
	return types, err
}

// Update overwrites the fields present in input
func (s *CoinTypeService) Update(ctx context.Context, familyID, id string, input UpdateCoinTypeInput) (*coin.CoinType, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "coin_type", "update")
	telemetry.SetAttributes(span,
		telemetry.SpanAttrFamilyID, familyID,
		telemetry.SpanAttrCoinTypeID, id,
	)
	started := time.Now()

	patch := input.toPatch()
	var ct *coin.CoinType
	err := shared.ValidateStruct(input)
	if err == nil && patch.IsEmpty() {
		err = shared.NewValidationError("patch", "must change at least one field")
	}
	if err == nil {
		ct, err = s.repo.Update(ctx, familyID, id, patch)
	}
	s.record(ctx, "update", started, err)
	telemetry.Finish(span, err)
	if err != nil {
		return nil, err
	}

	logger.For(ctx, s.logger).Info("Coin type updated",
		zap.String("family_id", familyID),
		zap.String("coin_type_id", id),
		zap.Bool("active", ct.Active),
	)
	return ct, nil
}

// Discard deletes the coin type. Discarding an unknown id is not an error.
func (s *CoinTypeService) Discard(ctx context.Context, familyID, id string) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "coin_type", "discard")
	telemetry.SetAttributes(span,
		telemetry.SpanAttrFamilyID, familyID,
		telemetry.SpanAttrCoinTypeID, id,
	)
	started := time.Now()

	err := s.repo.Delete(ctx, familyID, id)
	s.record(ctx, "delete", started, err)
	telemetry.Finish(span, err)
	if err != nil {
		return err
	}

	logger.For(ctx, s.logger).Info("Coin type discarded",
		zap.String("family_id", familyID),
		zap.String("coin_type_id", id),
	)
	return nil
}

func (s *CoinTypeService) record(ctx context.Context, op string, started time.Time, err error) {
	s.metrics.RecordRegistryMutation(ctx, coinTypeEntity, op, err)
	s.metrics.ObserveDuration(ctx, coinTypeEntity+"."+op, time.Since(started), err)
}
