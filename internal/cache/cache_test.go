package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/podguard/internal/clock"
)

func newFakeCache(t *testing.T) (*Memory[string], *clock.FakeClock) {
	t.Helper()
	clk := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return NewMemory[string]("test", clk), clk
}

func TestGetAfterSet(t *testing.T) {
	c, _ := newFakeCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestEntryExpiresAtTTL(t *testing.T) {
	c, clk := newFakeCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 5*time.Minute))

	clk.Advance(5*time.Minute - time.Second)
	_, ok, _ := c.Get(ctx, "k")
	assert.True(t, ok, "entry should survive until TTL")

	clk.Advance(time.Second)
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok, "entry should expire at TTL")
	assert.Equal(t, 0, c.Len())
}

func TestDelete(t *testing.T) {
	c, _ := newFakeCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, c.Delete(ctx, "k"))
	_, ok, _ := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestSweep(t *testing.T) {
	c, clk := newFakeCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", "a", time.Minute))
	require.NoError(t, c.Set(ctx, "long", "b", time.Hour))
	clk.Advance(2 * time.Minute)

	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())
}

func TestGetOrLoadCachesResult(t *testing.T) {
	c, clk := newFakeCache(t)
	ctx := context.Background()
	calls := 0
	load := func(context.Context) (string, error) {
		calls++
		return "loaded", nil
	}

	v, err := GetOrLoad[string](ctx, c, "k", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, "loaded", v)

	_, err = GetOrLoad[string](ctx, c, "k", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	clk.Advance(time.Minute)
	_, err = GetOrLoad[string](ctx, c, "k", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestGetOrLoadDoesNotCacheErrors(t *testing.T) {
	c, _ := newFakeCache(t)
	ctx := context.Background()
	boom := errors.New("store down")

	_, err := GetOrLoad[string](ctx, c, "k", time.Minute, func(context.Context) (string, error) {
		return "", boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())
}

func TestConcurrentAccess(t *testing.T) {
	c, _ := newFakeCache(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Set(ctx, "k", "v", time.Minute)
			_, _, _ = c.Get(ctx, "k")
		}()
	}
	wg.Wait()

	v, ok, _ := c.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}
