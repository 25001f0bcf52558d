package kv_test

import (
	"context"
	"testing"

	"github.com/famcoin/backend/internal/infrastructure/kv"
	"github.com/famcoin/backend/internal/infrastructure/kv/kvtest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore(t *testing.T) {
	newClient := kvtest.StartRedis(t)

	kvtest.RunStoreSuite(t, func(t *testing.T) kv.Store {
		// a unique prefix per store keeps subtests isolated on one server
		store := kv.NewRedisStoreWithClient(newClient(), "test:"+uuid.NewString()+":", nil)
		t.Cleanup(func() { _ = store.Close() })
		return store
	})

	t.Run("key prefixes isolate stores", func(t *testing.T) {
		ctx := context.Background()
		a := kv.NewRedisStoreWithClient(newClient(), "a:"+uuid.NewString()+":", nil)
		b := kv.NewRedisStoreWithClient(newClient(), "b:"+uuid.NewString()+":", nil)
		defer a.Close()
		defer b.Close()

		key := kv.NewKey("coins", "u", "f", "tv")
		_, err := a.Set(ctx, key, []byte("1"))
		require.NoError(t, err)

		entry, err := b.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, entry.Exists())

		listed, err := b.List(ctx, kv.NewKey("coins"))
		require.NoError(t, err)
		assert.Empty(t, listed)
	})
}
