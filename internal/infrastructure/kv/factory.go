package kv

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/famcoin/backend/internal/infrastructure/config"
	"github.com/famcoin/backend/internal/infrastructure/logger"
	"github.com/famcoin/backend/internal/infrastructure/migration"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// StoreFactory opens the Store selected by configuration
type StoreFactory struct {
	cfg       *config.Config
	logger    *zap.Logger
	gormHooks []func(*gorm.DB) error
}

// StoreFactoryOption is a functional option for configuring the factory
type StoreFactoryOption func(*StoreFactory)

// WithLogger sets the logger handed to the opened store
func WithLogger(l *zap.Logger) StoreFactoryOption {
	return func(f *StoreFactory) {
		f.logger = l
	}
}

// WithGormHook registers a callback run on the GORM connection of the SQL drivers,
// e.g. the otelgorm tracing plugin
func WithGormHook(hook func(*gorm.DB) error) StoreFactoryOption {
	return func(f *StoreFactory) {
		f.gormHooks = append(f.gormHooks, hook)
	}
}

// NewStoreFactory creates a new factory
func NewStoreFactory(cfg *config.Config, opts ...StoreFactoryOption) *StoreFactory {
	f := &StoreFactory{
		cfg:    cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Open opens the configured backend. The caller owns the returned store and must Close it.
func (f *StoreFactory) Open(ctx context.Context) (Store, error) {
	driver := f.cfg.Store.Driver
	f.logger.Info("Opening key-value store",
		zap.String("driver", driver),
		zap.String("path", f.cfg.Store.Path),
	)

	switch driver {
	case config.StoreDriverMemory:
		return OpenMemory(f.logger)
	case config.StoreDriverLevelDB:
		if err := os.MkdirAll(f.cfg.Store.Path, 0o755); err != nil {
			return nil, storeError(backendLevelDB, "open", err)
		}
		return OpenLevelDB(f.cfg.Store.Path, f.logger)
	case config.StoreDriverRedis:
		return NewRedisStore(RedisConfig{
			Host:      f.cfg.Redis.Host,
			Port:      f.cfg.Redis.Port,
			Password:  f.cfg.Redis.Password,
			DB:        f.cfg.Redis.DB,
			KeyPrefix: f.cfg.Redis.KeyPrefix,
		}, f.logger)
	case config.StoreDriverSQLite:
		if dir := filepath.Dir(f.cfg.Store.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, storeError(backendSQL, "open", err)
			}
		}
		// a single connection serializes SQLite writers instead of failing with SQLITE_BUSY
		return f.openGorm(ctx, sqlite.Open(f.cfg.Store.Path), 1, false)
	case config.StoreDriverPostgres:
		if err := migration.Up(f.cfg.Database.DSN(), f.logger); err != nil {
			return nil, storeError(backendSQL, "migrate", err)
		}
		return f.openGorm(ctx, postgres.Open(f.cfg.Database.DSN()), f.cfg.Database.MaxOpenConns, true)
	default:
		return nil, fmt.Errorf("kv: unsupported store driver %q", driver)
	}
}

func (f *StoreFactory) openGorm(ctx context.Context, dialector gorm.Dialector, maxOpenConns int, pooled bool) (*GormStore, error) {
	gormLogger := logger.NewGormLogger(
		f.logger,
		logger.MapGormLogLevel(f.cfg.Log.Level),
		logger.WithSlowThreshold(f.cfg.Telemetry.DBSlowQueryThresh),
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		PrepareStmt:            pooled,
	})
	if err != nil {
		return nil, storeError(backendSQL, "open", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, storeError(backendSQL, "open", err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	if pooled {
		sqlDB.SetMaxIdleConns(f.cfg.Database.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Duration(f.cfg.Database.ConnMaxLifetime) * time.Minute)
		sqlDB.SetConnMaxIdleTime(time.Duration(f.cfg.Database.ConnMaxIdleTime) * time.Minute)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, storeError(backendSQL, "ping", err)
	}

	for _, hook := range f.gormHooks {
		if err := hook(db); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("kv: register gorm hook: %w", err)
		}
	}

	store := NewGormStore(db, f.logger)
	if err := store.EnsureSchema(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return store, nil
}
