// Package kvtest holds the behavioural contract every kv.Store backend must satisfy,
// plus store wrappers for fault injection in ledger tests.
package kvtest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/famcoin/backend/internal/infrastructure/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store. Cleanup is the factory's responsibility.
type Factory func(t *testing.T) kv.Store

// RunStoreSuite exercises the kv.Store contract against the backend built by newStore
func RunStoreSuite(t *testing.T, newStore Factory) {
	t.Run("get missing key", func(t *testing.T) {
		store := newStore(t)
		entry, err := store.Get(context.Background(), kv.NewKey("coins", "nobody"))
		require.NoError(t, err)
		assert.False(t, entry.Exists())
		assert.Nil(t, entry.Value)
	})

	t.Run("set then get returns value and versionstamp", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		key := kv.NewKey("coins", "user-1", "family-1", "tv")

		vs, err := store.Set(ctx, key, []byte(`{"amount":1000}`))
		require.NoError(t, err)
		require.NotEmpty(t, vs)

		entry, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, entry.Exists())
		assert.Equal(t, vs, entry.Versionstamp)
		assert.Equal(t, []byte(`{"amount":1000}`), entry.Value)
		assert.Equal(t, key, entry.Key)
	})

	t.Run("every write changes the versionstamp", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		key := kv.NewKey("k")

		first, err := store.Set(ctx, key, []byte("1"))
		require.NoError(t, err)
		second, err := store.Set(ctx, key, []byte("1"))
		require.NoError(t, err)
		assert.NotEqual(t, first, second)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		key := kv.NewKey("coin_types", "family-1", "id-1")

		_, err := store.Set(ctx, key, []byte("x"))
		require.NoError(t, err)
		require.NoError(t, store.Delete(ctx, key))
		require.NoError(t, store.Delete(ctx, key))

		entry, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, entry.Exists())
	})

	t.Run("list returns strict descendants in key order", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		for _, key := range []kv.Key{
			kv.NewKey("coin_types", "family-1", "c"),
			kv.NewKey("coin_types", "family-1", "a"),
			kv.NewKey("coin_types", "family-1", "b"),
			kv.NewKey("coin_types", "family-10", "a"),
			kv.NewKey("coin_types", "family-1"),
			kv.NewKey("coin_types", "family-2", "a"),
			kv.NewKey("coins", "family-1", "a"),
		} {
			_, err := store.Set(ctx, key, []byte(key.String()))
			require.NoError(t, err)
		}

		entries, err := store.List(ctx, kv.NewKey("coin_types", "family-1"))
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, kv.NewKey("coin_types", "family-1", "a"), entries[0].Key)
		assert.Equal(t, kv.NewKey("coin_types", "family-1", "b"), entries[1].Key)
		assert.Equal(t, kv.NewKey("coin_types", "family-1", "c"), entries[2].Key)
		assert.Equal(t, []byte("[coin_types, family-1, a]"), entries[0].Value)
		for _, e := range entries {
			assert.NotEmpty(t, e.Versionstamp)
		}

		empty, err := store.List(ctx, kv.NewKey("coin_types", "family-3"))
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("commit applies all writes when checks hold", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		balance := kv.NewKey("coins", "u", "f", "tv")
		record := kv.NewKey("coin_transactions", "u", "f", "tv", "tx-1")

		vs, err := store.Set(ctx, balance, []byte("100"))
		require.NoError(t, err)

		res, err := kv.Atomic(store).
			Check(balance, vs).
			Set(balance, []byte("150")).
			Set(record, []byte("+50")).
			Commit(ctx)
		require.NoError(t, err)
		require.True(t, res.OK)
		assert.NotEmpty(t, res.Versionstamp)

		b, err := store.Get(ctx, balance)
		require.NoError(t, err)
		r, err := store.Get(ctx, record)
		require.NoError(t, err)
		assert.Equal(t, []byte("150"), b.Value)
		assert.Equal(t, []byte("+50"), r.Value)
		assert.Equal(t, res.Versionstamp, b.Versionstamp)
		assert.Equal(t, res.Versionstamp, r.Versionstamp)
	})

	t.Run("commit writes nothing when a check fails", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		balance := kv.NewKey("coins", "u", "f", "tv")
		record := kv.NewKey("coin_transactions", "u", "f", "tv", "tx-1")

		stale, err := store.Set(ctx, balance, []byte("100"))
		require.NoError(t, err)
		_, err = store.Set(ctx, balance, []byte("120"))
		require.NoError(t, err)

		res, err := kv.Atomic(store).
			Check(balance, stale).
			Set(balance, []byte("150")).
			Set(record, []byte("+50")).
			Commit(ctx)
		require.NoError(t, err)
		assert.False(t, res.OK)

		b, err := store.Get(ctx, balance)
		require.NoError(t, err)
		assert.Equal(t, []byte("120"), b.Value)
		r, err := store.Get(ctx, record)
		require.NoError(t, err)
		assert.False(t, r.Exists())
	})

	t.Run("absence check", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		key := kv.NewKey("coin_daily_distributions", "f", "u", "2026-01-31")

		res, err := kv.Atomic(store).CheckAbsent(key).Set(key, []byte("claimed")).Commit(ctx)
		require.NoError(t, err)
		assert.True(t, res.OK)

		res, err = kv.Atomic(store).CheckAbsent(key).Set(key, []byte("again")).Commit(ctx)
		require.NoError(t, err)
		assert.False(t, res.OK)

		entry, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("claimed"), entry.Value)
	})

	t.Run("check on a key that is not written", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		guard := kv.NewKey("guard")
		target := kv.NewKey("target")

		vs, err := store.Set(ctx, guard, []byte("g"))
		require.NoError(t, err)

		res, err := kv.Atomic(store).Check(guard, vs).Set(target, []byte("t")).Commit(ctx)
		require.NoError(t, err)
		assert.True(t, res.OK)

		res, err = kv.Atomic(store).Check(guard, "stale").Set(target, []byte("u")).Commit(ctx)
		require.NoError(t, err)
		assert.False(t, res.OK)

		entry, err := store.Get(ctx, target)
		require.NoError(t, err)
		assert.Equal(t, []byte("t"), entry.Value)
	})

	t.Run("conditional delete", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		key := kv.NewKey("coin_types", "f", "id")

		vs, err := store.Set(ctx, key, []byte("x"))
		require.NoError(t, err)

		res, err := kv.Atomic(store).Check(key, vs).Delete(key).Commit(ctx)
		require.NoError(t, err)
		assert.True(t, res.OK)

		entry, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, entry.Exists())
	})

	t.Run("exactly one racing writer wins per versionstamp", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		key := kv.NewKey("coins", "race")

		vs, err := store.Set(ctx, key, []byte("0"))
		require.NoError(t, err)

		const writers = 8
		var (
			wg   sync.WaitGroup
			wins atomic.Int32
		)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := kv.Atomic(store).Check(key, vs).Set(key, []byte("1")).Commit(ctx)
				if assert.NoError(t, err) && res.OK {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})
}
