package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreReserve(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ok, err := store.Reserve(ctx, "callback:TX-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Reserve(ctx, "callback:TX-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Release(ctx, "callback:TX-1"))

	ok, err = store.Reserve(ctx, "callback:TX-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()
	store.now = func() time.Time { return now }

	ok, _ := store.Reserve(context.Background(), "k", time.Second)
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	ok, _ = store.Reserve(context.Background(), "k", time.Second)
	assert.True(t, ok)
}
