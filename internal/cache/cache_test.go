package cache

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name     string `json:"name"`
	Verified bool   `json:"verified"`
}

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewMemory[record](0)

	_, ok, err := c.Get(ctx, "abs")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "abs", record{Name: "abs", Verified: true}))
	got, ok, err := c.Get(ctx, "abs")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, record{Name: "abs", Verified: true}, got)

	require.NoError(t, c.Delete(ctx, "abs"))
	_, ok, _ = c.Get(ctx, "abs")
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "a", record{}))
	require.NoError(t, c.Set(ctx, "b", record{}))
	require.NoError(t, c.Clear(ctx))
	assert.Equal(t, 0, c.Len())
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory[record](time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "abs", record{Name: "abs"}))
	_, ok, _ := c.Get(ctx, "abs")
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok, _ = c.Get(ctx, "abs")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := NewMemory[int](0)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("fn%d", i%4)
			_ = c.Set(ctx, key, i)
			_, _, _ = c.Get(ctx, key)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 4, c.Len())
}

// TestRedisIntegration requires a running Redis and skips otherwise.
func TestRedisIntegration(t *testing.T) {
	addr := os.Getenv("CONTRACTCHECK_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	ctx := context.Background()
	c := NewRedis[record](addr, "", 0, time.Minute)
	defer c.Close()
	if err := c.Ping(ctx); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}
	c.prefix = fmt.Sprintf("contractcheck-test-%d:", time.Now().UnixNano())

	require.NoError(t, c.Set(ctx, "abs", record{Name: "abs", Verified: true}))
	got, ok, err := c.Get(ctx, "abs")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, record{Name: "abs", Verified: true}, got)

	require.NoError(t, c.Clear(ctx))
	_, ok, err = c.Get(ctx, "abs")
	require.NoError(t, err)
	assert.False(t, ok)
}
