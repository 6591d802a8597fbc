package state

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_GetSetDelete(t *testing.T) {
	m, err := NewMemory(time.Hour, 10)
	require.NoError(t, err)
	ctx := context.Background()

	_, ok, err := m.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	value := []byte("hello")
	require.NoError(t, m.Set(ctx, "k", value, 0))
	value[0] = 'J'

	got, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", string(got), "stored value must not alias the caller's slice")

	got[0] = 'Y'
	again, _, _ := m.Get(ctx, "k")
	assert.Equal(t, "hello", string(again), "returned value must not alias the stored slice")

	require.NoError(t, m.Delete(ctx, "k"))
	_, ok, _ = m.Get(ctx, "k")
	assert.False(t, ok)
	assert.Zero(t, m.Len())
}

func TestMemory_TTL(t *testing.T) {
	m, err := NewMemory(time.Hour, 10)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "short", []byte("x"), 20*time.Millisecond))
	_, ok, _ := m.Get(ctx, "short")
	require.True(t, ok)

	time.Sleep(40 * time.Millisecond)
	_, ok, _ = m.Get(ctx, "short")
	assert.False(t, ok)
}

func TestMemory_EvictsLeastRecentlyUsed(t *testing.T) {
	m, err := NewMemory(time.Hour, 3)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, m.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"), 0))
	}
	// touch k0 so k1 becomes the eviction candidate
	_, ok, _ := m.Get(ctx, "k0")
	require.True(t, ok)

	require.NoError(t, m.Set(ctx, "k3", []byte("v"), 0))

	_, ok, _ = m.Get(ctx, "k1")
	assert.False(t, ok)
	for _, k := range []string{"k0", "k2", "k3"} {
		_, ok, _ = m.Get(ctx, k)
		assert.True(t, ok, k)
	}
	assert.Equal(t, 3, m.Len())
}

func TestMemory_RejectsBadSize(t *testing.T) {
	_, err := NewMemory(time.Hour, 0)
	assert.Error(t, err)
}

func TestMemory_CapOnlyBoundsPrefixedKeys(t *testing.T) {
	m, err := NewMemory(2*time.Hour, 100, "conv:")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "stepup:S1", []byte("grant"), 10*time.Minute))
	require.NoError(t, m.Set(ctx, "chat_session:42", []byte("token"), time.Hour))

	for i := 0; i < 250; i++ {
		require.NoError(t, m.Set(ctx, fmt.Sprintf("conv:guest:%d", i), []byte("log"), 0))
	}

	for _, k := range []string{"stepup:S1", "chat_session:42"} {
		_, ok, err := m.Get(ctx, k)
		require.NoError(t, err)
		assert.True(t, ok, "%s must survive a flood of guest conversations", k)
	}

	_, ok, _ := m.Get(ctx, "conv:guest:0")
	assert.False(t, ok, "oldest conversation should be evicted")
	_, ok, _ = m.Get(ctx, "conv:guest:249")
	assert.True(t, ok)
	assert.Equal(t, 100, m.Len())
}
