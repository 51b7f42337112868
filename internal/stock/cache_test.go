package stock

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *SummaryCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSummaryCache(client, time.Minute)
}

func TestSummaryCacheRoundTrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	_, ok := cache.Get(ctx, "t1")
	require.False(t, ok)

	want := rollups{
		Summary: Summary{TotalItems: 12, TotalQuantity: 340, TotalValue: 125000},
		CategoryBreakdown: map[string]CategoryRollup{
			"hardware": {Count: 4, TotalQty: 90, TotalValue: 5400},
		},
	}
	cache.Set(ctx, "t1", want)

	got, ok := cache.Get(ctx, "t1")
	require.True(t, ok)
	require.Equal(t, want.Summary, got.Summary)
	require.Equal(t, want.CategoryBreakdown, got.CategoryBreakdown)

	// tenants do not share entries
	_, ok = cache.Get(ctx, "t2")
	require.False(t, ok)
}

func TestSummaryCacheInvalidate(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, "t1", rollups{Summary: Summary{TotalItems: 1}})
	cache.Invalidate(ctx, "t1")

	_, ok := cache.Get(ctx, "t1")
	require.False(t, ok)
}

func TestSummaryCacheNilSafe(t *testing.T) {
	var cache *SummaryCache
	ctx := context.Background()

	cache.Set(ctx, "t1", rollups{})
	cache.Invalidate(ctx, "t1")
	_, ok := cache.Get(ctx, "t1")
	require.False(t, ok)
}
