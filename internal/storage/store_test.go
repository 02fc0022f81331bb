package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-sync/internal/config"
)

func TestKeyValueStore_Contract(t *testing.T) {
	eachBackend(t, func(t *testing.T, kv KeyValueStore) {
		ctx := testContext(t)

		_, err := kv.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, kv.Set(ctx, "k", []byte("v1")))
		got, err := kv.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), got)

		require.NoError(t, kv.Set(ctx, "k", []byte("v2")), "overwrite")
		got, err = kv.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), got)

		require.NoError(t, kv.Delete(ctx, "k"))
		_, err = kv.Get(ctx, "k")
		assert.ErrorIs(t, err, ErrNotFound)

		assert.NoError(t, kv.Delete(ctx, "k"), "deleting a missing key is not an error")
	})
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	ctx := testContext(t)
	store := NewMemoryStore()

	value := []byte("abc")
	require.NoError(t, store.Set(ctx, "k", value))
	value[0] = 'z'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)

	got[1] = 'z'
	again, _ := store.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), again)
}

func TestOpen_SelectsBackend(t *testing.T) {
	ctx := testContext(t)

	kv, err := Open(ctx, config.StoreConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, kv)

	_, mr := newMiniredisStore(t)
	kv, err = Open(ctx, config.StoreConfig{
		Backend: "redis",
		Redis:   config.RedisConfig{Host: mr.Host(), Port: mr.Port()},
	})
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, kv)
	_ = kv.Close()

	_, err = Open(ctx, config.StoreConfig{Backend: "etcd"})
	assert.Error(t, err)
}
