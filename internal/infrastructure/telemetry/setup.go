package telemetry

import (
	"context"
	"errors"

	"github.com/famcoin/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Providers bundles the tracing, metrics and log pipelines plus the ledger instruments.
type Providers struct {
	Tracer    *TracerProvider
	Meter     *MeterProvider
	Logs      *LoggerProvider
	Ledger    *LedgerMetrics
	Store     *StoreMetrics
	DBTracing *DBTracingPlugin
}

// Setup builds every pipeline from cfg. With telemetry disabled all instruments are no-ops.
func Setup(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	tc := cfg.Telemetry

	tracer, err := NewTracerProvider(ctx, Config{
		Enabled:           tc.Enabled,
		CollectorEndpoint: tc.CollectorEndpoint,
		SamplingRatio:     tc.SamplingRatio,
		ServiceName:       tc.ServiceName,
		Insecure:          tc.Insecure,
	}, logger)
	if err != nil {
		return nil, err
	}
	p := &Providers{Tracer: tracer}

	p.Meter, err = NewMeterProvider(ctx, MetricsConfig{
		Enabled:           tc.Enabled,
		CollectorEndpoint: tc.CollectorEndpoint,
		ServiceName:       tc.ServiceName,
		Insecure:          tc.Insecure,
	}, logger)
	if err != nil {
		return nil, errors.Join(err, p.Shutdown(ctx))
	}

	p.Logs, err = NewLoggerProvider(ctx, LogsConfig{
		Enabled:           tc.Enabled,
		CollectorEndpoint: tc.CollectorEndpoint,
		ServiceName:       tc.ServiceName,
		Insecure:          tc.Insecure,
	}, logger)
	if err != nil {
		return nil, errors.Join(err, p.Shutdown(ctx))
	}

	meter := p.Meter.Meter(TracerName)
	if p.Ledger, err = NewLedgerMetrics(meter); err != nil {
		return nil, errors.Join(err, p.Shutdown(ctx))
	}
	if p.Store, err = NewStoreMetrics(meter); err != nil {
		return nil, errors.Join(err, p.Shutdown(ctx))
	}

	p.DBTracing = NewDBTracingPlugin(DBTracingConfig{
		Enabled:         tc.Enabled && tc.DBTraceEnabled,
		LogFullSQL:      tc.DBLogFullSQL,
		SlowQueryThresh: tc.DBSlowQueryThresh,
		DBSystem:        dbSystem(cfg.Store.Driver),
	}, logger)

	return p, nil
}

func dbSystem(driver string) string {
	if driver == config.StoreDriverSQLite {
		return "sqlite"
	}
	return "postgresql"
}

// Shutdown flushes and stops every pipeline that was started
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	if p.Logs != nil {
		errs = append(errs, p.Logs.Shutdown(ctx))
	}
	if p.Meter != nil {
		errs = append(errs, p.Meter.Shutdown(ctx))
	}
	if p.Tracer != nil {
		errs = append(errs, p.Tracer.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
