package persistence

import (
	"context"
	"fmt"

	"github.com/famcoin/backend/internal/domain/coin"
	"github.com/famcoin/backend/internal/domain/shared"
	"github.com/famcoin/backend/internal/infrastructure/kv"
	"github.com/famcoin/backend/internal/infrastructure/retry"
	"github.com/famcoin/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// KVCoinLedger implements coin.Ledger on an ordered key-value store.
// A balance and its transaction records are written in one conditional commit.
type KVCoinLedger struct {
	store    kv.Store
	executor *retry.Executor
	clock    shared.Clock
	logger   *zap.Logger
}

// LedgerOption configures a KVCoinLedger
type LedgerOption func(*KVCoinLedger)

// WithLedgerClock overrides the clock used for timestamps
func WithLedgerClock(clock shared.Clock) LedgerOption {
	return func(l *KVCoinLedger) {
		l.clock = clock
	}
}

// WithLedgerLogger sets the ledger logger
func WithLedgerLogger(logger *zap.Logger) LedgerOption {
	return func(l *KVCoinLedger) {
		l.logger = logger
	}
}

// NewKVCoinLedger creates a ledger over store. executor decides how write conflicts are retried.
func NewKVCoinLedger(store kv.Store, executor *retry.Executor, opts ...LedgerOption) *KVCoinLedger {
	l := &KVCoinLedger{
		store:    store,
		executor: executor,
		clock:    shared.SystemClock,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Get returns the current balance of owner
func (l *KVCoinLedger) Get(ctx context.Context, owner coin.OwnerKey) (*coin.Coin, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	current, err := kv.GetJSON[coin.Coin](ctx, l.store, coinKey(owner))
	if err != nil {
		return nil, err
	}
	if !current.Exists() {
		return nil, coinNotFound(owner)
	}
	return &current.Value, nil
}

// Open creates the balance record of owner. It does not write a transaction record.
func (l *KVCoinLedger) Open(ctx context.Context, owner coin.OwnerKey, initialAmount int64) (*coin.Coin, error) {
	c, err := coin.NewCoin(owner, initialAmount, l.clock())
	if err != nil {
		return nil, err
	}
	data, err := kv.Marshal(c)
	if err != nil {
		return nil, err
	}

	key := coinKey(owner)
	res, err := kv.Atomic(l.store).CheckAbsent(key).Set(key, data).Commit(ctx)
	if err != nil {
		return nil, err
	}
	if !res.OK {
		return nil, fmt.Errorf("coin %s: %w", owner, shared.ErrAlreadyExists)
	}

	l.logger.Debug("Coin balance opened",
		zap.String("owner", owner.String()),
		zap.Int64("amount", initialAmount),
	)
	return c, nil
}

// Adjust adds delta to the balance of owner and appends a transaction carrying detail.
// Each attempt reads the coin afresh; a lost race surfaces as shared.ErrWriteConflict
// to the executor.
func (l *KVCoinLedger) Adjust(ctx context.Context, owner coin.OwnerKey, delta int64, detail coin.TransactionDetail) (*coin.Coin, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if err := coin.ValidateDetail(detail); err != nil {
		return nil, err
	}

	return retry.Do(ctx, l.executor, func(ctx context.Context) (*coin.Coin, error) {
		return l.adjustOnce(ctx, owner, delta, detail)
	})
}

func (l *KVCoinLedger) adjustOnce(ctx context.Context, owner coin.OwnerKey, delta int64, detail coin.TransactionDetail) (*coin.Coin, error) {
	key := coinKey(owner)
	current, err := kv.GetJSON[coin.Coin](ctx, l.store, key)
	if err != nil {
		return nil, err
	}
	if !current.Exists() {
		return nil, coinNotFound(owner)
	}

	updated := current.Value
	tx, err := updated.Apply(delta, detail, l.clock())
	if err != nil {
		return nil, err
	}

	coinData, err := kv.Marshal(&updated)
	if err != nil {
		return nil, err
	}
	txData, err := kv.Marshal(tx)
	if err != nil {
		return nil, err
	}

	res, err := kv.Atomic(l.store).
		Check(key, current.Versionstamp).
		Set(key, coinData).
		Set(coinTransactionKey(tx), txData).
		Commit(ctx)
	if err != nil {
		return nil, err
	}
	if !res.OK {
		telemetry.AddEvent(trace.SpanFromContext(ctx), "write_conflict",
			telemetry.SpanAttrDelta, delta,
			"read_versionstamp", string(current.Versionstamp),
		)
		l.logger.Debug("Coin write conflict",
			zap.String("owner", owner.String()),
			zap.Int64("delta", delta),
		)
		return nil, shared.ErrWriteConflict
	}

	l.logger.Debug("Coin balance adjusted",
		zap.String("owner", owner.String()),
		zap.Int64("delta", delta),
		zap.Int64("balance", updated.Amount),
		zap.String("transaction_id", tx.ID),
		zap.String("transaction_type", string(tx.TransactionType())),
	)
	return &updated, nil
}

// ListTransactions returns every transaction of owner in commit order
func (l *KVCoinLedger) ListTransactions(ctx context.Context, owner coin.OwnerKey) ([]*coin.CoinTransaction, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	items, err := kv.ListJSON[coin.CoinTransaction](ctx, l.store, coinTransactionsPrefix(owner))
	if err != nil {
		return nil, err
	}
	txs := make([]*coin.CoinTransaction, len(items))
	for i := range items {
		txs[i] = &items[i].Value
	}
	return txs, nil
}

func coinNotFound(owner coin.OwnerKey) error {
	return fmt.Errorf("coin not found for userId: %s, familyId: %s, coinTypeId: %s: %w",
		owner.UserID, owner.FamilyID, owner.CoinTypeID, shared.ErrNotFound)
}

var _ coin.Ledger = (*KVCoinLedger)(nil)
