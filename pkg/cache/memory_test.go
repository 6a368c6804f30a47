package cache

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemory(t *testing.T, opts ...MemoryOption) (*MemoryCache, interface{ Advance(time.Duration) }) {
	t.Helper()
	clk := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	mc := NewMemoryCache(append([]MemoryOption{WithMemoryClock(clk), WithMemoryCleanup(0)}, opts...)...)
	t.Cleanup(func() { _ = mc.Close() })
	return mc, clk
}

func TestMemoryCache_ExpiryBoundary(t *testing.T) {
	ctx := context.Background()
	mc, clk := newTestMemory(t)
	ttl := 5 * time.Minute

	require.NoError(t, mc.Set(ctx, "k", "v", ttl))

	clk.Advance(ttl - time.Nanosecond)
	var got string
	require.NoError(t, mc.Get(ctx, "k", &got))
	assert.Equal(t, "v", got)

	clk.Advance(time.Nanosecond)
	assert.ErrorIs(t, mc.Get(ctx, "k", &got), ErrCacheMiss, "entry is gone exactly at ttl")
	assert.Equal(t, 0, mc.Len(), "expired entry is dropped on read")
}

func TestMemoryCache_AssignTypes(t *testing.T) {
	ctx := context.Background()
	mc, _ := newTestMemory(t)

	type payload struct{ N int }
	require.NoError(t, mc.Set(ctx, "struct", payload{N: 7}, time.Minute))
	require.NoError(t, mc.Set(ctx, "bytes", []byte("raw"), time.Minute))

	var p payload
	require.NoError(t, mc.Get(ctx, "struct", &p))
	assert.Equal(t, 7, p.N)

	var b []byte
	require.NoError(t, mc.Get(ctx, "bytes", &b))
	assert.Equal(t, []byte("raw"), b)

	var s string
	assert.Error(t, mc.Get(ctx, "struct", &s))
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc, clk := newTestMemory(t, WithMemoryMaxSize(2))

	require.NoError(t, mc.Set(ctx, "a", "1", time.Hour))
	clk.Advance(time.Second)
	require.NoError(t, mc.Set(ctx, "b", "2", time.Hour))
	clk.Advance(time.Second)

	var v string
	require.NoError(t, mc.Get(ctx, "a", &v))
	clk.Advance(time.Second)

	require.NoError(t, mc.Set(ctx, "c", "3", time.Hour))

	ok, _ := mc.Exists(ctx, "b")
	assert.False(t, ok, "b was least recently used")
	ok, _ = mc.Exists(ctx, "a", "c")
	assert.True(t, ok)
	assert.Equal(t, 2, mc.Len())
}

func TestMemoryCache_DeleteByPattern(t *testing.T) {
	ctx := context.Background()
	mc, _ := newTestMemory(t)

	require.NoError(t, mc.Set(ctx, "result:forecast:1", "x", time.Hour))
	require.NoError(t, mc.Set(ctx, "result:table:2", "y", time.Hour))
	require.NoError(t, mc.Set(ctx, "other:3", "z", time.Hour))

	require.NoError(t, mc.DeleteByPattern(ctx, BuildPattern("result:")))

	ok, _ := mc.Exists(ctx, "result:forecast:1", "result:table:2")
	assert.False(t, ok)
	ok, _ = mc.Exists(ctx, "other:3")
	assert.True(t, ok)
}

func TestLayeredCache_PromotedEntryKeepsRemainingTTL(t *testing.T) {
	ctx := context.Background()
	clk := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	remote := NewMemoryCache(WithMemoryClock(clk), WithMemoryCleanup(0))
	lc := NewLayeredCache(remote, WithLayeredMemory(WithMemoryClock(clk), WithMemoryCleanup(0)))
	defer lc.Close()

	require.NoError(t, remote.Set(ctx, "k", "shared", 10*time.Minute))
	clk.Advance(6 * time.Minute)

	var v string
	require.NoError(t, lc.Get(ctx, "k", &v))
	assert.Equal(t, "shared", v)

	remaining, err := lc.memCache.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 4*time.Minute, remaining)

	clk.Advance(4 * time.Minute)
	assert.ErrorIs(t, lc.Get(ctx, "k", &v), ErrCacheMiss)
}
