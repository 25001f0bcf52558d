package telemetry

import (
	"context"
	"strings"
	"time"

	"github.com/famcoin/backend/internal/domain/shared"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Outcome labels
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// LedgerMetrics counts balance adjustments, write conflicts and registry mutations.
type LedgerMetrics struct {
	adjustmentsTotal   *Counter
	adjustedCoinsTotal *Counter
	conflictsTotal     *Counter
	registryTotal      *Counter
	distributionsTotal *Counter
	operationDuration  *Histogram
}

// NewLedgerMetrics creates the ledger instruments on meter.
func NewLedgerMetrics(meter metric.Meter) (*LedgerMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	var (
		lm  LedgerMetrics
		err error
	)
	if lm.adjustmentsTotal, err = NewCounter(meter,
		"coin_adjustments_total",
		"Balance adjustments by transaction type and outcome",
		"{adjustment}",
	); err != nil {
		return nil, err
	}
	if lm.adjustedCoinsTotal, err = NewCounter(meter,
		"coin_adjusted_coins_total",
		"Absolute number of coins moved by successful adjustments",
		"{coin}",
	); err != nil {
		return nil, err
	}
	if lm.conflictsTotal, err = NewCounter(meter,
		"coin_write_conflicts_total",
		"Optimistic write conflicts that triggered a retry",
		"{conflict}",
	); err != nil {
		return nil, err
	}
	if lm.registryTotal, err = NewCounter(meter,
		"coin_registry_mutations_total",
		"Registry creates, updates and deletes by entity and outcome",
		"{mutation}",
	); err != nil {
		return nil, err
	}
	if lm.distributionsTotal, err = NewCounter(meter,
		"coin_daily_distributions_total",
		"Daily distribution runs by outcome",
		"{run}",
	); err != nil {
		return nil, err
	}
	if lm.operationDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "coin_operation_duration_seconds",
		Description: "Ledger and registry operation latency in seconds",
		Unit:        "s",
		Boundaries:  StoreDurationBuckets,
	}); err != nil {
		return nil, err
	}
	return &lm, nil
}

// NewNopLedgerMetrics returns metrics that record nothing
func NewNopLedgerMetrics() *LedgerMetrics {
	lm, err := NewLedgerMetrics(noop.NewMeterProvider().Meter(TracerName))
	if err != nil {
		panic(err)
	}
	return lm
}

// OutcomeOf maps an operation error to a low-cardinality label
func OutcomeOf(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	if code := shared.CodeOf(err); code != "" {
		return strings.ToLower(code)
	}
	return OutcomeError
}

// RecordAdjustment counts one balance adjustment attempt as seen by the caller
func (lm *LedgerMetrics) RecordAdjustment(ctx context.Context, familyID, txType string, delta int64, err error) {
	lm.adjustmentsTotal.Inc(ctx,
		AttrFamilyID.String(familyID),
		AttrTxType.String(txType),
		AttrOutcome.String(OutcomeOf(err)),
	)
	if err == nil && delta != 0 {
		if delta < 0 {
			delta = -delta
		}
		lm.adjustedCoinsTotal.Add(ctx, delta, AttrTxType.String(txType))
	}
}

// RecordConflict counts one lost optimistic commit of operation
func (lm *LedgerMetrics) RecordConflict(ctx context.Context, operation string) {
	lm.conflictsTotal.Inc(ctx, AttrOperation.String(operation))
}

// ConflictObserver returns a retry observer that counts scheduled retries as conflicts.
// It is assignable to retry.Observer.
func (lm *LedgerMetrics) ConflictObserver(operation string) func(attempt int, err error, delay time.Duration) {
	return func(int, error, time.Duration) {
		lm.RecordConflict(context.Background(), operation)
	}
}

// RecordRegistryMutation counts a create, update or delete of a registry entity
func (lm *LedgerMetrics) RecordRegistryMutation(ctx context.Context, entity, operation string, err error) {
	lm.registryTotal.Inc(ctx,
		AttrEntity.String(entity),
		AttrOperation.String(operation),
		AttrOutcome.String(OutcomeOf(err)),
	)
}

// RecordDistribution counts one daily distribution run
func (lm *LedgerMetrics) RecordDistribution(ctx context.Context, familyID string, err error) {
	lm.distributionsTotal.Inc(ctx,
		AttrFamilyID.String(familyID),
		AttrOutcome.String(OutcomeOf(err)),
	)
}

// ObserveDuration records how long operation took
func (lm *LedgerMetrics) ObserveDuration(ctx context.Context, operation string, d time.Duration, err error) {
	lm.operationDuration.RecordDuration(ctx, d,
		AttrOperation.String(operation),
		AttrOutcome.String(OutcomeOf(err)),
	)
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewLedgerMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
