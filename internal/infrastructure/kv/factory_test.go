package kv_test

import (
	"context"
	"net/url"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/famcoin/backend/internal/domain/shared"
	"github.com/famcoin/backend/internal/infrastructure/config"
	"github.com/famcoin/backend/internal/infrastructure/kv"
	"github.com/famcoin/backend/internal/infrastructure/kv/kvtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func factoryConfig(driver, path string) *config.Config {
	return &config.Config{
		Store: config.StoreConfig{Driver: driver, Path: path},
		Log:   config.LogConfig{Level: "info"},
	}
}

// roundTrip proves the opened store works end to end
func roundTrip(t *testing.T, store kv.Store) {
	t.Helper()
	ctx := context.Background()
	key := kv.NewKey("coins", "u1", "f1", "tv")

	res, err := kv.Atomic(store).CheckAbsent(key).Set(key, []byte(`{"amount":1}`)).Commit(ctx)
	require.NoError(t, err)
	require.True(t, res.OK)

	entry, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"amount":1}`), entry.Value)
}

func TestStoreFactory_Open(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		cfg  *config.Config
	}{
		{"memory", factoryConfig(config.StoreDriverMemory, "")},
		{"leveldb", factoryConfig(config.StoreDriverLevelDB, filepath.Join(dir, "ldb", "coin"))},
		{"sqlite", factoryConfig(config.StoreDriverSQLite, filepath.Join(dir, "sql", "coin.db"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := kv.NewStoreFactory(tt.cfg, kv.WithLogger(zaptest.NewLogger(t))).Open(context.Background())
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close() })
			roundTrip(t, store)
		})
	}
}

func TestStoreFactory_GormHooks(t *testing.T) {
	cfg := factoryConfig(config.StoreDriverSQLite, filepath.Join(t.TempDir(), "coin.db"))

	t.Run("hooks run on the SQL connection", func(t *testing.T) {
		var calls int
		store, err := kv.NewStoreFactory(cfg, kv.WithGormHook(func(db *gorm.DB) error {
			calls++
			assert.NotNil(t, db)
			return nil
		})).Open(context.Background())
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		assert.Equal(t, 1, calls)
	})

	t.Run("a failing hook aborts the open", func(t *testing.T) {
		_, err := kv.NewStoreFactory(cfg, kv.WithGormHook(func(*gorm.DB) error {
			return assert.AnError
		})).Open(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, assert.AnError)
	})

	t.Run("non SQL drivers ignore hooks", func(t *testing.T) {
		store, err := kv.NewStoreFactory(factoryConfig(config.StoreDriverMemory, ""), kv.WithGormHook(func(*gorm.DB) error {
			return assert.AnError
		})).Open(context.Background())
		require.NoError(t, err)
		_ = store.Close()
	})
}

func TestStoreFactory_UnsupportedDriver(t *testing.T) {
	_, err := kv.NewStoreFactory(factoryConfig("bolt", "")).Open(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported store driver "bolt"`)
}

func TestStoreFactory_PostgresMigrates(t *testing.T) {
	dsn := kvtest.StartPostgres(t)
	u, err := url.Parse(dsn)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	password, _ := u.User.Password()

	cfg := factoryConfig(config.StoreDriverPostgres, "")
	cfg.Database = config.DatabaseConfig{
		Host:         u.Hostname(),
		Port:         port,
		User:         u.User.Username(),
		Password:     password,
		DBName:       u.Path[1:],
		SSLMode:      "disable",
		MaxOpenConns: 5,
		MaxIdleConns: 1,
	}

	store, err := kv.NewStoreFactory(cfg, kv.WithLogger(zaptest.NewLogger(t))).Open(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	roundTrip(t, store)

	t.Run("reopening finds the schema current", func(t *testing.T) {
		again, err := kv.NewStoreFactory(cfg).Open(context.Background())
		require.NoError(t, err)
		defer again.Close()

		entry, err := again.Get(context.Background(), kv.NewKey("coins", "u1", "f1", "tv"))
		require.NoError(t, err)
		assert.NotEmpty(t, entry.Versionstamp)
	})

	t.Run("unreachable database", func(t *testing.T) {
		bad := *cfg
		bad.Database.Port = 1
		_, err := kv.NewStoreFactory(&bad).Open(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrStoreUnavailable)
	})
}
