package cli

import (
	"context"
	"errors"
	"fmt"

	coinapp "github.com/famcoin/backend/internal/application/coin"
	"github.com/famcoin/backend/internal/domain/shared"
	"github.com/famcoin/backend/internal/infrastructure/config"
	"github.com/famcoin/backend/internal/infrastructure/kv"
	"github.com/famcoin/backend/internal/infrastructure/logger"
	"github.com/famcoin/backend/internal/infrastructure/persistence"
	"github.com/famcoin/backend/internal/infrastructure/retry"
	"github.com/famcoin/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// App holds the services behind the commands
type App struct {
	Coins        *coinapp.CoinService
	CoinTypes    *coinapp.CoinTypeService
	Distribution *coinapp.DistributionService
	Logger       *zap.Logger
	Schedule     config.SchedulerConfig

	closers []func(context.Context) error
}

// NewApp wires the services over store. The caller keeps ownership of store.
func NewApp(store kv.Store, executor *retry.Executor, metrics *telemetry.LedgerMetrics, log *zap.Logger, clock shared.Clock) *App {
	if log == nil {
		log = zap.NewNop()
	}
	if clock == nil {
		clock = shared.SystemClock
	}
	ledger := persistence.NewKVCoinLedger(store, executor,
		persistence.WithLedgerClock(clock),
		persistence.WithLedgerLogger(log),
	)
	coinTypes := persistence.NewKVCoinTypeRepository(store, executor, clock)
	distributions := persistence.NewKVDailyDistributionRepository(store)

	return &App{
		Coins:     coinapp.NewCoinService(ledger, metrics, log),
		CoinTypes: coinapp.NewCoinTypeService(coinTypes, metrics, log),
		Distribution: coinapp.NewDistributionService(coinTypes, ledger, distributions,
			coinapp.WithDistributionClock(clock),
			coinapp.WithDistributionMetrics(metrics),
			coinapp.WithDistributionLogger(log),
		),
		Logger: log,
	}
}

// Close releases everything opened for the app, last opened first
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	return errors.Join(errs...)
}

// Bootstrap loads the configuration and opens logging, telemetry and the configured store
func Bootstrap(ctx context.Context, opts *RootOptions) (*App, error) {
	cfg, err := config.LoadFile(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	logCfg := &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}
	if opts.Verbose {
		logCfg.Level = "debug"
	}
	base, err := logger.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	providers, err := telemetry.Setup(ctx, cfg, base)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	log := providers.Logs.Bridge(base, zapcore.InfoLevel).With(zap.String("app", cfg.App.Name))

	store, err := kv.NewStoreFactory(cfg,
		kv.WithLogger(log),
		kv.WithGormHook(providers.DBTracing.RegisterOtelGorm),
	).Open(ctx)
	if err != nil {
		return nil, errors.Join(err, providers.Shutdown(ctx))
	}

	policy, err := retry.ParsePolicy(cfg.Retry.Policy)
	if err != nil {
		return nil, errors.Join(err, store.Close(), providers.Shutdown(ctx))
	}
	executor := retry.NewExecutor(retry.Config{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		Policy:      policy,
	},
		retry.WithLogger(log),
		retry.WithObserver(providers.Ledger.ConflictObserver("optimistic_commit")),
	)

	app := NewApp(telemetry.InstrumentStore(store, cfg.Store.Driver, providers.Store), executor, providers.Ledger, log, shared.SystemClock)
	app.Schedule = cfg.Scheduler
	app.closers = append(app.closers,
		providers.Shutdown,
		func(context.Context) error { return store.Close() },
		func(context.Context) error {
			_ = log.Sync()
			return nil
		},
	)

	log.Debug("Coin ledger ready",
		zap.String("store_driver", cfg.Store.Driver),
		zap.String("retry_policy", policy.String()),
		zap.Int("retry_max_attempts", cfg.Retry.MaxAttempts),
		zap.Bool("tracing", providers.Tracer.IsEnabled()),
		zap.Bool("metrics", providers.Meter.IsEnabled()),
	)
	return app, nil
}
