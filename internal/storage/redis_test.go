package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-sync/internal/config"
)

func TestNewRedisStore_Unreachable(t *testing.T) {
	_, mr := newMiniredisStore(t)
	host, port := mr.Host(), mr.Port()
	mr.Close()

	_, err := NewRedisStore(testContext(t), &config.RedisConfig{Host: host, Port: port})
	assert.Error(t, err)
}

func TestRedisStore_ValuesHaveNoExpiry(t *testing.T) {
	store, mr := newMiniredisStore(t)
	ctx := testContext(t)

	require.NoError(t, store.Set(ctx, PreferencesKey, []byte(`{"enabled":true}`)))
	assert.Equal(t, int64(0), int64(mr.TTL(PreferencesKey)))

	raw, err := mr.Get(PreferencesKey)
	require.NoError(t, err)
	assert.JSONEq(t, `{"enabled":true}`, raw)
	assert.NoError(t, store.Ping(ctx))
}

func TestRedisStore_SharedAcrossClients(t *testing.T) {
	first, mr := newMiniredisStore(t)
	ctx := testContext(t)

	second, err := NewRedisStore(ctx, &config.RedisConfig{Host: mr.Host(), Port: mr.Port()})
	require.NoError(t, err)
	defer func() { _ = second.Close() }()

	require.NoError(t, first.Set(ctx, "shared", []byte("one")))
	require.NoError(t, second.Set(ctx, "shared", []byte("two")))

	got, err := first.Get(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got, "last write wins")
}
