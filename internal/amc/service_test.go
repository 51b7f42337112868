package amc

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/craftline-erp/craftline-erp/internal/platform/httpx"
)

type memoryRepo struct {
	contracts map[string]Contract
	seqs      map[string]int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{contracts: make(map[string]Contract), seqs: make(map[string]int64)}
}

func (r *memoryRepo) NextSequence(ctx context.Context, tenantID string, year int) (int64, error) {
	key := fmt.Sprintf("%s:%d", tenantID, year)
	r.seqs[key]++
	return r.seqs[key], nil
}

func (r *memoryRepo) Insert(ctx context.Context, c Contract) error {
	r.contracts[c.ID] = c
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, tenantID, contractID string) (Contract, error) {
	if c, ok := r.contracts[contractID]; ok && c.TenantID == tenantID {
		return c, nil
	}
	return Contract{}, ErrNotFound
}

func (r *memoryRepo) List(ctx context.Context, tenantID string, status Status) ([]Contract, error) {
	var out []Contract
	for _, c := range r.contracts {
		if c.TenantID != tenantID {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *memoryRepo) AppendVisit(ctx context.Context, tenantID, contractID string, rec ServiceRecord, charge decimal.Decimal) (int, error) {
	c, ok := r.contracts[contractID]
	if !ok || c.TenantID != tenantID {
		return 0, ErrNotFound
	}
	c.UsedVisits++
	if c.UsedVisits > c.FreeVisits {
		rec.OverFreeAllowance = true
		rec.VisitCharge = charge
	}
	c.ServiceHistory = append(c.ServiceHistory, rec)
	c.NextServiceDate = rec.NextServiceRecommended
	r.contracts[contractID] = c
	return c.UsedVisits, nil
}

func (r *memoryRepo) UpdateStatus(ctx context.Context, tenantID, contractID string, status Status, nextServiceDate *time.Time) error {
	c, ok := r.contracts[contractID]
	if !ok || c.TenantID != tenantID {
		return ErrNotFound
	}
	c.Status = status
	if status == StatusActive && c.ActivatedAt == nil {
		now := time.Now()
		c.ActivatedAt = &now
	}
	if nextServiceDate != nil {
		c.NextServiceDate = nextServiceDate
	}
	r.contracts[contractID] = c
	return nil
}

func (r *memoryRepo) ExpireLapsed(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	for id, c := range r.contracts {
		if c.Status == StatusActive && c.EndDate.Before(now) {
			c.Status = StatusExpired
			r.contracts[id] = c
			n++
		}
	}
	return n, nil
}

func (r *memoryRepo) Stats(ctx context.Context, tenantID string) (Stats, error) {
	return Stats{}, nil
}

func TestCreateInstallmentDerivation(t *testing.T) {
	cases := []struct {
		freq     PaymentFrequency
		period   int
		value    int64
		expected string
	}{
		{FrequencyMonthly, 12, 12000, "1000"},
		{FrequencyQuarterly, 12, 12000, "3000"},
		{FrequencyAnnual, 12, 12000, "12000"},
		{FrequencyMonthly, 24, 24000, "1000"},
		{FrequencyQuarterly, 6, 6000, "3000"},
	}
	for _, tc := range cases {
		repo := newMemoryRepo()
		svc := NewService(repo, nil, nil, CapReport, nil)
		c, err := svc.Create(context.Background(), "t1", CreateInput{
			CustomerName:     "K. Rao",
			ContractPeriod:   tc.period,
			Value:            decimal.NewFromInt(tc.value),
			PaymentFrequency: tc.freq,
		})
		require.NoError(t, err)
		require.True(t, decimal.RequireFromString(tc.expected).Equal(c.InstallmentAmount),
			"%s over %d months of %d: got %s", tc.freq, tc.period, tc.value, c.InstallmentAmount)
	}
}

func TestCreateDefaults(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, CapReport, nil)

	c, err := svc.Create(context.Background(), "t1", CreateInput{CustomerName: "K. Rao"})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(c.AMCNumber, "AMC-"))
	require.Equal(t, StatusPending, c.Status)
	require.Equal(t, 12, c.ContractPeriod)
	require.Equal(t, c.StartDate.AddDate(0, 12, 0), c.EndDate)
	require.Equal(t, FrequencyAnnual, c.PaymentFrequency)
	require.Equal(t, 4, c.FreeVisits)
	require.Zero(t, c.UsedVisits)
	require.True(t, decimal.NewFromInt(500).Equal(c.AdditionalVisitCharge))
	require.Equal(t, DefaultServices, c.ServicesIncluded)
	require.Nil(t, c.ActivatedAt)
}

func TestCreateRejectsUnknownFrequency(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, CapReport, nil)
	_, err := svc.Create(context.Background(), "t1", CreateInput{PaymentFrequency: "fortnightly"})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestLogVisitAppendsAndCounts(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, CapReport, nil)
	ctx := context.Background()

	c, err := svc.Create(ctx, "t1", CreateInput{CustomerName: "K. Rao"})
	require.NoError(t, err)

	next := time.Now().AddDate(0, 3, 0)
	rec, err := svc.LogVisit(ctx, "t1", c.ID, VisitInput{
		Technician:        "Suresh",
		ServicesPerformed: []string{"lubrication"},
		NextServiceDate:   &next,
		ActorID:           "u1",
	})
	require.NoError(t, err)
	require.False(t, rec.OverFreeAllowance)
	require.True(t, rec.VisitCharge.IsZero())

	stored, err := svc.Get(ctx, "t1", c.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stored.UsedVisits)
	require.Len(t, stored.ServiceHistory, 1)
	require.NotNil(t, stored.NextServiceDate)
	require.True(t, stored.NextServiceDate.Equal(next))
}

func TestLogVisitOverAllowanceNeverBlocks(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, CapReport, nil)
	ctx := context.Background()

	c, err := svc.Create(ctx, "t1", CreateInput{CustomerName: "K. Rao", FreeVisits: 1})
	require.NoError(t, err)

	_, err = svc.LogVisit(ctx, "t1", c.ID, VisitInput{Technician: "Suresh"})
	require.NoError(t, err)
	rec, err := svc.LogVisit(ctx, "t1", c.ID, VisitInput{Technician: "Suresh"})
	require.NoError(t, err)
	require.True(t, rec.OverFreeAllowance)
	require.True(t, rec.VisitCharge.IsZero(), "report policy does not price the visit")

	stored, _ := svc.Get(ctx, "t1", c.ID)
	require.Equal(t, 2, stored.UsedVisits)
}

func TestLogVisitChargePolicy(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, CapCharge, nil)
	ctx := context.Background()

	c, err := svc.Create(ctx, "t1", CreateInput{
		CustomerName: "K. Rao", FreeVisits: 1,
		AdditionalVisitCharge: decimal.NewFromInt(750),
	})
	require.NoError(t, err)

	first, err := svc.LogVisit(ctx, "t1", c.ID, VisitInput{Technician: "Suresh"})
	require.NoError(t, err)
	require.True(t, first.VisitCharge.IsZero())

	second, err := svc.LogVisit(ctx, "t1", c.ID, VisitInput{Technician: "Suresh"})
	require.NoError(t, err)
	require.True(t, second.OverFreeAllowance)
	require.True(t, decimal.NewFromInt(750).Equal(second.VisitCharge))
}

// staleCountRepo serves contract reads with the visit counter pinned at zero,
// the way a concurrent logger would see it before the other visit lands.
type staleCountRepo struct {
	*memoryRepo
}

func (r *staleCountRepo) Get(ctx context.Context, tenantID, contractID string) (Contract, error) {
	c, err := r.memoryRepo.Get(ctx, tenantID, contractID)
	c.UsedVisits = 0
	return c, err
}

func TestLogVisitFlagsFromAtomicCounter(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(&staleCountRepo{repo}, nil, nil, CapCharge, nil)
	ctx := context.Background()

	c, err := svc.Create(ctx, "t1", CreateInput{
		CustomerName: "K. Rao", FreeVisits: 1,
		AdditionalVisitCharge: decimal.NewFromInt(750),
	})
	require.NoError(t, err)

	first, err := svc.LogVisit(ctx, "t1", c.ID, VisitInput{Technician: "Suresh"})
	require.NoError(t, err)
	require.False(t, first.OverFreeAllowance)

	second, err := svc.LogVisit(ctx, "t1", c.ID, VisitInput{Technician: "Suresh"})
	require.NoError(t, err)
	require.True(t, second.OverFreeAllowance, "stale contract read must not escape the cap")
	require.True(t, decimal.NewFromInt(750).Equal(second.VisitCharge))

	stored, err := repo.Get(ctx, "t1", c.ID)
	require.NoError(t, err)
	require.True(t, stored.ServiceHistory[1].OverFreeAllowance)
}

func TestActivateStampsActivatedAt(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, CapReport, nil)
	ctx := context.Background()

	c, err := svc.Create(ctx, "t1", CreateInput{CustomerName: "K. Rao"})
	require.NoError(t, err)

	activated, err := svc.UpdateStatus(ctx, "t1", c.ID, StatusActive, nil, "u1")
	require.NoError(t, err)
	require.Equal(t, StatusActive, activated.Status)
	require.NotNil(t, activated.ActivatedAt)

	_, err = svc.UpdateStatus(ctx, "t1", c.ID, "hibernating", nil, "u1")
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestSweepExpired(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, CapReport, nil)
	ctx := context.Background()

	c, err := svc.Create(ctx, "t1", CreateInput{CustomerName: "K. Rao"})
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, "t1", c.ID, StatusActive, nil, "u1")
	require.NoError(t, err)

	lapsed := repo.contracts[c.ID]
	lapsed.EndDate = time.Now().Add(-time.Hour)
	repo.contracts[c.ID] = lapsed

	n, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.Equal(t, StatusExpired, repo.contracts[c.ID].Status)
}
