package warranty

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/craftline-erp/craftline-erp/internal/payments"
	"github.com/craftline-erp/craftline-erp/internal/platform/httpx"
)

type memoryRepo struct {
	warranties map[string]Warranty
	seqs       map[string]int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{warranties: make(map[string]Warranty), seqs: make(map[string]int64)}
}

func (r *memoryRepo) NextSequence(ctx context.Context, tenantID string, year int) (int64, error) {
	key := fmt.Sprintf("%s:%d", tenantID, year)
	r.seqs[key]++
	return r.seqs[key], nil
}

func (r *memoryRepo) Insert(ctx context.Context, w Warranty) error {
	r.warranties[w.ID] = w
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, tenantID, warrantyID string) (Warranty, error) {
	if w, ok := r.warranties[warrantyID]; ok && w.TenantID == tenantID {
		return w, nil
	}
	return Warranty{}, ErrNotFound
}

func (r *memoryRepo) List(ctx context.Context, tenantID string, status Status) ([]Warranty, error) {
	var out []Warranty
	for _, w := range r.warranties {
		if w.TenantID != tenantID {
			continue
		}
		if status != "" && w.Status != status {
			continue
		}
		out = append(out, w)
	}
	return out, nil
}

func (r *memoryRepo) AppendClaim(ctx context.Context, tenantID, warrantyID string, c Claim) error {
	w, ok := r.warranties[warrantyID]
	if !ok || w.TenantID != tenantID {
		return ErrNotFound
	}
	w.Claims = append(w.Claims, c)
	w.ClaimsCount++
	r.warranties[warrantyID] = w
	return nil
}

func (r *memoryRepo) UpdateStatus(ctx context.Context, tenantID, warrantyID string, status Status) error {
	w, ok := r.warranties[warrantyID]
	if !ok || w.TenantID != tenantID {
		return ErrNotFound
	}
	w.Status = status
	r.warranties[warrantyID] = w
	return nil
}

func (r *memoryRepo) ExpireLapsed(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	for id, w := range r.warranties {
		if w.Status == StatusActive && w.EndDate.Before(now) {
			w.Status = StatusExpired
			r.warranties[id] = w
			n++
		}
	}
	return n, nil
}

func (r *memoryRepo) Stats(ctx context.Context, tenantID string) (Stats, error) {
	var s Stats
	for _, w := range r.warranties {
		if w.TenantID != tenantID {
			continue
		}
		s.Total++
		switch w.Status {
		case StatusActive:
			s.Active++
		case StatusExpired:
			s.Expired++
		}
		s.TotalClaims += w.ClaimsCount
	}
	return s, nil
}

type stubInvoices struct {
	invoice payments.Invoice
}

func (s *stubInvoices) GetInvoice(ctx context.Context, tenantID, invoiceID string) (payments.Invoice, error) {
	if s.invoice.ID == invoiceID {
		return s.invoice, nil
	}
	return payments.Invoice{}, payments.ErrInvoiceNotFound
}

func TestRegisterDefaultsAndInvoiceFallback(t *testing.T) {
	repo := newMemoryRepo()
	invoices := &stubInvoices{invoice: payments.Invoice{
		ID: "inv-1", InvoiceNumber: "INV-2026-00007",
		CustomerName: "Meera Interiors", CustomerPhone: "9876543210",
	}}
	svc := NewService(repo, invoices, nil, nil)

	w, err := svc.Register(context.Background(), "t1", RegisterInput{
		InvoiceID: "inv-1",
		Items:     []RegisterItem{{Description: "Sliding door"}},
		ActorID:   "u1",
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(w.WarrantyNumber, "WRN-"))
	require.Equal(t, "Meera Interiors", w.CustomerName)
	require.Equal(t, "INV-2026-00007", w.InvoiceNumber)
	require.Equal(t, "standard", w.WarrantyType)
	require.Equal(t, 12, w.WarrantyPeriod)
	require.Equal(t, w.StartDate.AddDate(0, 12, 0), w.EndDate)
	require.Equal(t, StatusActive, w.Status)
	require.Equal(t, 1, w.ItemsCovered)
	require.Equal(t, "manufacturing_defects", w.Items[0].Coverage)
	require.Equal(t, DefaultExclusions, w.Exclusions)
	require.Zero(t, w.ClaimsCount)
}

func TestFileClaimAppendsAndCounts(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	w, err := svc.Register(ctx, "t1", RegisterInput{CustomerName: "K. Rao", ActorID: "u1"})
	require.NoError(t, err)

	claim, err := svc.FileClaim(ctx, "t1", w.ID, ClaimInput{
		IssueType:        "hardware",
		IssueDescription: "hinge misaligned",
		ActorID:          "u2",
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(claim.ClaimNumber, "CLM-"))
	require.Equal(t, ClaimPending, claim.Status)
	require.Equal(t, "u2", claim.FiledBy)

	stored, err := svc.Get(ctx, "t1", w.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stored.ClaimsCount)
	require.Len(t, stored.Claims, 1)
	require.Equal(t, claim.ID, stored.Claims[0].ID)
}

func TestFileClaimGateOrder(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	// Missing warranty: not found wins over everything else.
	_, err := svc.FileClaim(ctx, "t1", "ghost", ClaimInput{IssueType: "x", IssueDescription: "y"})
	require.ErrorIs(t, err, httpx.ErrNotFound)

	// Voided warranty: the active gate fires even when also past end date.
	w, err := svc.Register(ctx, "t1", RegisterInput{CustomerName: "K. Rao"})
	require.NoError(t, err)
	stored := repo.warranties[w.ID]
	stored.Status = StatusVoided
	stored.EndDate = time.Now().Add(-time.Hour)
	repo.warranties[w.ID] = stored

	_, err = svc.FileClaim(ctx, "t1", w.ID, ClaimInput{IssueType: "x", IssueDescription: "y"})
	require.ErrorIs(t, err, httpx.ErrInvalidState)

	// Active but lapsed: expired gate fires.
	stored.Status = StatusActive
	repo.warranties[w.ID] = stored
	_, err = svc.FileClaim(ctx, "t1", w.ID, ClaimInput{IssueType: "x", IssueDescription: "y"})
	require.ErrorIs(t, err, httpx.ErrExpired)
}

func TestSweepExpired(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	w, err := svc.Register(ctx, "t1", RegisterInput{CustomerName: "K. Rao"})
	require.NoError(t, err)
	lapsed := repo.warranties[w.ID]
	lapsed.EndDate = time.Now().Add(-24 * time.Hour)
	repo.warranties[w.ID] = lapsed

	fresh, err := svc.Register(ctx, "t1", RegisterInput{CustomerName: "S. Iyer"})
	require.NoError(t, err)

	n, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.Equal(t, StatusExpired, repo.warranties[w.ID].Status)
	require.Equal(t, StatusActive, repo.warranties[fresh.ID].Status)
}

func TestStats(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	w, err := svc.Register(ctx, "t1", RegisterInput{CustomerName: "A"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, "t1", RegisterInput{CustomerName: "B"})
	require.NoError(t, err)
	_, err = svc.FileClaim(ctx, "t1", w.ID, ClaimInput{IssueType: "glass", IssueDescription: "crack"})
	require.NoError(t, err)

	stats, err := svc.Stats(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, 2, stats.Total)
	require.Equal(t, 2, stats.Active)
	require.Equal(t, 1, stats.TotalClaims)
}
