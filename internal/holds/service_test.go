package holds

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/craftline-erp/craftline-erp/internal/platform/httpx"
)

type memoryRepo struct {
	holds []Hold
}

func (r *memoryRepo) InsertBatch(ctx context.Context, hs []Hold) error {
	r.holds = append(r.holds, hs...)
	return nil
}

func (r *memoryRepo) List(ctx context.Context, tenantID, quoteID string) ([]Hold, error) {
	var out []Hold
	for _, h := range r.holds {
		if h.TenantID != tenantID {
			continue
		}
		if quoteID != "" && h.QuoteID != quoteID {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

func (r *memoryRepo) DeleteByQuote(ctx context.Context, tenantID, quoteID string) (int64, error) {
	var kept []Hold
	var released int64
	for _, h := range r.holds {
		if h.TenantID == tenantID && h.QuoteID == quoteID {
			released++
			continue
		}
		kept = append(kept, h)
	}
	r.holds = kept
	return released, nil
}

func (r *memoryRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var kept []Hold
	var dropped int64
	for _, h := range r.holds {
		if h.ExpiresAt != nil && h.ExpiresAt.Before(now) {
			dropped++
			continue
		}
		kept = append(kept, h)
	}
	r.holds = kept
	return dropped, nil
}

func TestCreateAndListGroupedByQuote(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, "t1", CreateInput{
		QuoteID: "q1",
		Items: []HoldItem{
			{MaterialID: "m1", WarehouseID: "w1", Quantity: 3},
			{MaterialID: "m2", WarehouseID: "w1", Quantity: 1},
		},
	})
	require.NoError(t, err)
	require.Len(t, created, 2)

	_, err = svc.Create(ctx, "t1", CreateInput{
		QuoteID: "q2",
		Items:   []HoldItem{{MaterialID: "m1", WarehouseID: "w2", Quantity: 5}},
	})
	require.NoError(t, err)

	grouped, err := svc.ListByQuote(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, grouped, 2)
	require.Len(t, grouped["q1"], 2)
	require.Len(t, grouped["q2"], 1)
}

func TestCreateRejectsEmptyBatch(t *testing.T) {
	svc := NewService(&memoryRepo{}, nil, nil)
	_, err := svc.Create(context.Background(), "t1", CreateInput{QuoteID: "q1"})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestReleaseRemovesAllHoldsOfQuote(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, "t1", CreateInput{
		QuoteID: "q1",
		Items: []HoldItem{
			{MaterialID: "m1", WarehouseID: "w1", Quantity: 3},
			{MaterialID: "m2", WarehouseID: "w1", Quantity: 1},
		},
	})
	require.NoError(t, err)

	result, err := svc.Release(ctx, "t1", "q1", "u1")
	require.NoError(t, err)
	require.Equal(t, int64(2), result.Released)

	remaining, err := svc.List(ctx, "t1", "q1")
	require.NoError(t, err)
	require.Empty(t, remaining)
}

func TestReleaseWithNoHoldsSucceeds(t *testing.T) {
	svc := NewService(&memoryRepo{}, nil, nil)
	result, err := svc.Release(context.Background(), "t1", "missing-quote", "u1")
	require.NoError(t, err)
	require.Equal(t, int64(0), result.Released)
}

func TestSweepExpired(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	_, err := svc.Create(ctx, "t1", CreateInput{
		QuoteID:   "q1",
		Items:     []HoldItem{{MaterialID: "m1", WarehouseID: "w1", Quantity: 1}},
		ExpiresAt: &past,
	})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "t1", CreateInput{
		QuoteID: "q2",
		Items:   []HoldItem{{MaterialID: "m2", WarehouseID: "w1", Quantity: 1}},
	})
	require.NoError(t, err)

	n, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	grouped, err := svc.ListByQuote(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, grouped, 1)
	require.Contains(t, grouped, "q2")
}
