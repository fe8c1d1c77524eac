package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	enc, err := NewEncryption(make([]byte, 32))
	require.NoError(t, err)

	return NewRedisStoreWithClient(client, enc, ""), mr
}

func TestRedisStore_ReadWrite(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	_, ok, err := store.Read(ctx, KeyOpenAI)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Write(ctx, KeyOpenAI, "sk-abc123"))

	value, ok, err := store.Read(ctx, KeyOpenAI)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "sk-abc123", value)
}

func TestRedisStore_EncryptedAtRest(t *testing.T) {
	store, mr := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, KeyClaude, "ak-topsecret"))

	raw, err := mr.Get("secrets:" + KeyClaude)
	require.NoError(t, err)
	assert.NotContains(t, raw, "ak-topsecret")
}

func TestRedisStore_OverwriteKeepsLastValue(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, KeyGemini, "gk-old"))
	require.NoError(t, store.Write(ctx, KeyGemini, "gk-new"))

	value, ok, err := store.Read(ctx, KeyGemini)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "gk-new", value)
}

func TestRedisStore_UnreachableServer(t *testing.T) {
	store, mr := setupRedisStore(t)
	mr.Close()
	ctx := context.Background()

	_, _, err := store.Read(ctx, KeyOpenAI)
	assert.True(t, errors.Is(err, ErrStoreUnavailable))

	err = store.Write(ctx, KeyOpenAI, "sk-abc")
	assert.True(t, errors.Is(err, ErrStoreUnavailable))
}

func TestMemoryStore_ReadWrite(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, ok, err := store.Read(ctx, KeyOpenAI)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Write(ctx, KeyOpenAI, "sk-abc"))

	value, ok, err := store.Read(ctx, KeyOpenAI)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "sk-abc", value)
}

func TestMemoryStore_HonorsContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := store.Read(ctx, KeyOpenAI)
	assert.Error(t, err)

	err = store.Write(ctx, KeyOpenAI, "sk-abc")
	assert.Error(t, err)
}
