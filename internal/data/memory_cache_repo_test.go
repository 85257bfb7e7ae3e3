package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheSetGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cache := NewMemoryCacheRepo()

	require.NoError(t, cache.Set(ctx, "k", []byte("v"), 0))

	got, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	missing, err := cache.Get(ctx, "other")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryCacheExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cache := NewMemoryCacheRepo()

	now := time.Now()
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Set(ctx, "k", []byte("v"), time.Minute))

	got, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	now = now.Add(time.Minute + time.Second)

	got, err = cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got, "expired entry must read as absent")

	exists, err := cache.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryCacheSetIfNotExists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cache := NewMemoryCacheRepo()

	now := time.Now()
	cache.now = func() time.Time { return now }

	set, err := cache.SetIfNotExists(ctx, "lock", []byte("a"), time.Minute)
	require.NoError(t, err)
	assert.True(t, set)

	set, err = cache.SetIfNotExists(ctx, "lock", []byte("b"), time.Minute)
	require.NoError(t, err)
	assert.False(t, set, "second acquire must fail while entry is live")

	got, err := cache.Get(ctx, "lock")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), got, "loser must not overwrite the holder")

	// An expired lock can be re-acquired.
	now = now.Add(2 * time.Minute)
	set, err = cache.SetIfNotExists(ctx, "lock", []byte("b"), time.Minute)
	require.NoError(t, err)
	assert.True(t, set)
}

func TestMemoryCacheDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cache := NewMemoryCacheRepo()

	require.NoError(t, cache.Set(ctx, "k", []byte("v"), 0))

	deleted, err := cache.Delete(ctx, "k")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = cache.Delete(ctx, "k")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestMemoryCacheDeleteIfEquals(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cache := NewMemoryCacheRepo()

	require.NoError(t, cache.Set(ctx, "k", []byte("owner-a"), 0))

	deleted, err := cache.DeleteIfEquals(ctx, "k", []byte("owner-b"))
	require.NoError(t, err)
	assert.False(t, deleted, "mismatched value must not delete")

	got, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("owner-a"), got)

	deleted, err = cache.DeleteIfEquals(ctx, "k", []byte("owner-a"))
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = cache.DeleteIfEquals(ctx, "k", []byte("owner-a"))
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestMemoryCacheEmptyKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cache := NewMemoryCacheRepo()

	assert.Error(t, cache.Set(ctx, "", []byte("v"), 0))
	_, err := cache.Get(ctx, "")
	assert.Error(t, err)
	_, err = cache.Delete(ctx, "")
	assert.Error(t, err)
	_, err = cache.SetIfNotExists(ctx, "", nil, time.Second)
	assert.Error(t, err)
	_, err = cache.DeleteIfEquals(ctx, "", nil)
	assert.Error(t, err)
}
