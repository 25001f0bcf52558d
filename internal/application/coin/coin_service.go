package coin

import (
	"context"
	"math"
	"time"

	"github.com/famcoin/backend/internal/domain/coin"
	"github.com/famcoin/backend/internal/domain/shared"
	"github.com/famcoin/backend/internal/infrastructure/logger"
	"github.com/famcoin/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// CoinService is the caller-facing facade over the ledger
type CoinService struct {
	ledger  coin.Ledger
	metrics *telemetry.LedgerMetrics
	logger  *zap.Logger
}

// NewCoinService creates a new CoinService. metrics and logger may be nil.
func NewCoinService(ledger coin.Ledger, metrics *telemetry.LedgerMetrics, log *zap.Logger) *CoinService {
	if metrics == nil {
		metrics = telemetry.NewNopLedgerMetrics()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CoinService{
		ledger:  ledger,
		metrics: metrics,
		logger:  log.Named("coin"),
	}
}

// Balance returns the current balance of owner
func (s *CoinService) Balance(ctx context.Context, owner coin.OwnerKey) (*coin.Coin, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "coin", "balance")
	setOwnerAttributes(span, owner)

	c, err := s.ledger.Get(ctx, owner)
	telemetry.Finish(span, err)
	return c, err
}

// OpenBalance creates the balance record of owner with an opening amount
func (s *CoinService) OpenBalance(ctx context.Context, owner coin.OwnerKey, initialAmount int64) (*coin.Coin, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "coin", "open")
	setOwnerAttributes(span, owner)
	started := time.Now()

	c, err := s.ledger.Open(ctx, owner, initialAmount)
	s.metrics.ObserveDuration(ctx, "coin.open", time.Since(started), err)
	telemetry.Finish(span, err)

	log := ownerLogger(ctx, s.logger, owner)
	if err != nil {
		log.Info("Coin balance not opened", zap.Error(err))
		return nil, err
	}
	log.Info("Coin balance opened", zap.Int64("amount", c.Amount))
	return c, nil
}

// IncreaseBy adds |amount| coins to owner's balance
func (s *CoinService) IncreaseBy(ctx context.Context, owner coin.OwnerKey, amount int64, detail coin.TransactionDetail) (*coin.Coin, error) {
	delta, err := magnitude(amount)
	if err != nil {
		return nil, err
	}
	return s.adjust(ctx, "increase_by", owner, delta, detail)
}

// DecreaseBy removes |amount| coins from owner's balance
func (s *CoinService) DecreaseBy(ctx context.Context, owner coin.OwnerKey, amount int64, detail coin.TransactionDetail) (*coin.Coin, error) {
	delta, err := magnitude(amount)
	if err != nil {
		return nil, err
	}
	return s.adjust(ctx, "decrease_by", owner, -delta, detail)
}

// Spend consumes |amount| coins for a screen time session
func (s *CoinService) Spend(ctx context.Context, owner coin.OwnerKey, amount int64, timeSessionID string) (*coin.Coin, error) {
	delta, err := magnitude(amount)
	if err != nil {
		return nil, err
	}
	return s.adjust(ctx, "spend", owner, -delta, coin.UseDetail{TimeSessionID: timeSessionID})
}

// History returns owner's transactions in commit order
func (s *CoinService) History(ctx context.Context, owner coin.OwnerKey) ([]*coin.CoinTransaction, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "coin", "history")
	setOwnerAttributes(span, owner)

	txs, err := s.ledger.ListTransactions(ctx, owner)
	if err == nil {
		telemetry.SetAttribute(span, "transaction_count", len(txs))
	}
	telemetry.Finish(span, err)
	return txs, err
}

func (s *CoinService) adjust(ctx context.Context, op string, owner coin.OwnerKey, delta int64, detail coin.TransactionDetail) (*coin.Coin, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "coin", op)
	setOwnerAttributes(span, owner)
	telemetry.SetAttribute(span, telemetry.SpanAttrDelta, delta)

	var txType string
	if detail != nil {
		txType = string(detail.Type())
		telemetry.SetAttribute(span, telemetry.SpanAttrTransactionType, txType)
	}

	started := time.Now()
	c, err := s.ledger.Adjust(ctx, owner, delta, detail)
	s.metrics.RecordAdjustment(ctx, owner.FamilyID, txType, delta, err)
	s.metrics.ObserveDuration(ctx, "coin."+op, time.Since(started), err)

	log := ownerLogger(ctx, s.logger, owner).With(
		zap.Int64("delta", delta),
		zap.String("transaction_type", txType),
	)
	if err != nil {
		telemetry.SetAttribute(span, telemetry.SpanAttrErrorCode, shared.CodeOf(err))
		telemetry.Finish(span, err)
		if shared.IsBusinessError(err) {
			log.Info("Coin adjustment rejected", zap.Error(err))
		} else {
			log.Error("Coin adjustment failed", zap.Error(err))
		}
		return nil, err
	}

	telemetry.SetAttribute(span, telemetry.SpanAttrBalance, c.Amount)
	telemetry.Finish(span, nil)
	log.Info("Coin adjusted", zap.Int64("balance", c.Amount))
	return c, nil
}

func magnitude(amount int64) (int64, error) {
	if amount == math.MinInt64 {
		return 0, shared.NewValidationError("amount", "is out of range")
	}
	if amount < 0 {
		return -amount, nil
	}
	return amount, nil
}

func setOwnerAttributes(span trace.Span, owner coin.OwnerKey) {
	telemetry.SetAttributes(span,
		telemetry.SpanAttrUserID, owner.UserID,
		telemetry.SpanAttrFamilyID, owner.FamilyID,
		telemetry.SpanAttrCoinTypeID, owner.CoinTypeID,
	)
}

func ownerLogger(ctx context.Context, base *zap.Logger, owner coin.OwnerKey) *zap.Logger {
	return logger.For(ctx, base).With(
		zap.String("user_id", owner.UserID),
		zap.String("family_id", owner.FamilyID),
		zap.String("coin_type_id", owner.CoinTypeID),
	)
}
