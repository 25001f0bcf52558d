package telemetry

import (
	"context"
	"time"

	"github.com/famcoin/backend/internal/infrastructure/kv"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// StoreMetrics holds the key-value store instruments.
type StoreMetrics struct {
	opTotal         *Counter   // kv_operation_total
	opDuration      *Histogram // kv_operation_duration_seconds
	commitConflicts *Counter   // kv_commit_check_failures_total
}

// NewStoreMetrics creates the store instruments on meter.
func NewStoreMetrics(meter metric.Meter) (*StoreMetrics, error) {
	if meter == nil {
		return nil, &MetricsError{Op: "NewStoreMetrics", Err: "meter cannot be nil"}
	}

	opTotal, err := NewCounter(meter,
		"kv_operation_total",
		"Key-value store operations by backend, operation and outcome",
		"{operation}",
	)
	if err != nil {
		return nil, err
	}
	opDuration, err := NewHistogram(meter, HistogramOpts{
		Name:        "kv_operation_duration_seconds",
		Description: "Key-value store round trip latency in seconds",
		Unit:        "s",
		Boundaries:  StoreDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	commitConflicts, err := NewCounter(meter,
		"kv_commit_check_failures_total",
		"Commits rejected because a versionstamp check failed",
		"{commit}",
	)
	if err != nil {
		return nil, err
	}

	return &StoreMetrics{
		opTotal:         opTotal,
		opDuration:      opDuration,
		commitConflicts: commitConflicts,
	}, nil
}

// RecordOperation records one store round trip
func (m *StoreMetrics) RecordOperation(ctx context.Context, backend, op string, d time.Duration, err error) {
	attrs := []attribute.KeyValue{
		AttrStoreBackend.String(backend),
		AttrStoreOp.String(op),
		AttrOutcome.String(OutcomeOf(err)),
	}
	m.opTotal.Inc(ctx, attrs...)
	m.opDuration.RecordDuration(ctx, d, attrs...)
}

// RecordCheckFailure counts a commit whose checks did not hold
func (m *StoreMetrics) RecordCheckFailure(ctx context.Context, backend string) {
	m.commitConflicts.Inc(ctx, AttrStoreBackend.String(backend))
}

// InstrumentedStore decorates a kv.Store with a client span and metrics per round trip.
type InstrumentedStore struct {
	kv.Store
	backend string
	metrics *StoreMetrics
}

// InstrumentStore wraps store. backend labels spans and metrics, e.g. "leveldb".
func InstrumentStore(store kv.Store, backend string, metrics *StoreMetrics) *InstrumentedStore {
	return &InstrumentedStore{Store: store, backend: backend, metrics: metrics}
}

func (s *InstrumentedStore) start(ctx context.Context, op string) (context.Context, trace.Span, time.Time) {
	ctx, span := StartSpan(ctx, "kv."+op,
		WithSpanKind(trace.SpanKindClient),
		WithAttribute(string(AttrStoreBackend), s.backend),
	)
	return ctx, span, time.Now()
}

func (s *InstrumentedStore) finish(ctx context.Context, span trace.Span, op string, started time.Time, err error) {
	s.metrics.RecordOperation(ctx, s.backend, op, time.Since(started), err)
	Finish(span, err)
}

// Get reads key
func (s *InstrumentedStore) Get(ctx context.Context, key kv.Key) (kv.Entry, error) {
	ctx, span, started := s.start(ctx, "get")
	entry, err := s.Store.Get(ctx, key)
	SetAttribute(span, "kv.found", entry.Exists())
	s.finish(ctx, span, "get", started, err)
	return entry, err
}

// Set writes key unconditionally
func (s *InstrumentedStore) Set(ctx context.Context, key kv.Key, value []byte) (kv.Versionstamp, error) {
	ctx, span, started := s.start(ctx, "set")
	vs, err := s.Store.Set(ctx, key, value)
	s.finish(ctx, span, "set", started, err)
	return vs, err
}

// Delete removes key
func (s *InstrumentedStore) Delete(ctx context.Context, key kv.Key) error {
	ctx, span, started := s.start(ctx, "delete")
	err := s.Store.Delete(ctx, key)
	s.finish(ctx, span, "delete", started, err)
	return err
}

// List scans prefix
func (s *InstrumentedStore) List(ctx context.Context, prefix kv.Key) ([]kv.Entry, error) {
	ctx, span, started := s.start(ctx, "list")
	entries, err := s.Store.List(ctx, prefix)
	SetAttribute(span, "kv.entries", len(entries))
	s.finish(ctx, span, "list", started, err)
	return entries, err
}

// Commit applies an atomic operation
func (s *InstrumentedStore) Commit(ctx context.Context, checks []kv.Check, mutations []kv.Mutation) (kv.CommitResult, error) {
	ctx, span, started := s.start(ctx, "commit")
	SetAttributes(span, "kv.checks", len(checks), "kv.mutations", len(mutations))
	res, err := s.Store.Commit(ctx, checks, mutations)
	if err == nil {
		SetAttribute(span, "kv.commit_ok", res.OK)
		if !res.OK {
			s.metrics.RecordCheckFailure(ctx, s.backend)
		}
	}
	s.finish(ctx, span, "commit", started, err)
	return res, err
}

var _ kv.Store = (*InstrumentedStore)(nil)
