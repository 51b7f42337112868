package stock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/craftline-erp/craftline-erp/internal/catalog"
	"github.com/craftline-erp/craftline-erp/internal/platform/httpx"
	"github.com/craftline-erp/craftline-erp/internal/shared"
)

type memoryRepo struct {
	entries map[string]LedgerEntry
	txns    []Transaction
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{entries: make(map[string]LedgerEntry)}
}

func entryKey(tenantID, materialID, warehouseID string) string {
	return fmt.Sprintf("%s:%s:%s", tenantID, materialID, warehouseID)
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (tx *memoryTx) GetEntryForUpdate(ctx context.Context, tenantID, materialID, warehouseID string) (LedgerEntry, error) {
	if e, ok := tx.repo.entries[entryKey(tenantID, materialID, warehouseID)]; ok {
		return e, nil
	}
	return LedgerEntry{}, ErrItemNotFound
}

func (tx *memoryTx) InsertEntry(ctx context.Context, e LedgerEntry) error {
	tx.repo.entries[entryKey(e.TenantID, e.MaterialID, e.WarehouseID)] = e
	return nil
}

func (tx *memoryTx) UpdateEntryQuantity(ctx context.Context, tenantID, entryID string, quantity int64) error {
	if quantity < 0 {
		return ErrNegativeStock
	}
	for k, e := range tx.repo.entries {
		if e.TenantID == tenantID && e.ID == entryID {
			e.Quantity = quantity
			tx.repo.entries[k] = e
			return nil
		}
	}
	return ErrItemNotFound
}

func (tx *memoryTx) InsertTransaction(ctx context.Context, t Transaction) error {
	tx.repo.txns = append(tx.repo.txns, t)
	return nil
}

func (r *memoryRepo) UpsertImport(ctx context.Context, tenantID, actorID string, item BulkImportItem) error {
	k := entryKey(tenantID, item.MaterialID, item.WarehouseID)
	e, ok := r.entries[k]
	if !ok {
		e = LedgerEntry{
			ID: fmt.Sprintf("entry-%d", len(r.entries)+1), TenantID: tenantID,
			MaterialID: item.MaterialID, WarehouseID: item.WarehouseID,
			MaterialCode: item.MaterialCode, MaterialName: item.MaterialName,
			Category: item.Category, UnitOfMeasure: item.UnitOfMeasure, IsActive: true,
		}
	}
	e.Quantity = item.Quantity
	e.AvgCost = item.AvgCost
	r.entries[k] = e
	return nil
}

func (r *memoryRepo) GetEntry(ctx context.Context, tenantID, entryID string) (LedgerEntry, error) {
	for _, e := range r.entries {
		if e.TenantID == tenantID && e.ID == entryID && e.IsActive {
			return e, nil
		}
	}
	return LedgerEntry{}, ErrItemNotFound
}

func (r *memoryRepo) Deactivate(ctx context.Context, tenantID, entryID string) error {
	for k, e := range r.entries {
		if e.TenantID == tenantID && e.ID == entryID && e.IsActive {
			e.IsActive = false
			r.entries[k] = e
			return nil
		}
	}
	return ErrItemNotFound
}

func (r *memoryRepo) List(ctx context.Context, tenantID string, f ListFilter) ([]LedgerEntry, error) {
	var out []LedgerEntry
	for _, e := range r.entries {
		if e.TenantID != tenantID || !e.IsActive {
			continue
		}
		if f.WarehouseID != "" && e.WarehouseID != f.WarehouseID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *memoryRepo) Summary(ctx context.Context, tenantID string) (Summary, error) {
	var s Summary
	for _, e := range r.entries {
		if e.TenantID != tenantID || !e.IsActive {
			continue
		}
		s.TotalItems++
		s.TotalQuantity += e.Quantity
		s.TotalValue += float64(e.Quantity) * e.AvgCost
	}
	return s, nil
}

func (r *memoryRepo) CategoryBreakdown(ctx context.Context, tenantID string) (map[string]CategoryRollup, error) {
	out := make(map[string]CategoryRollup)
	for _, e := range r.entries {
		if e.TenantID != tenantID || !e.IsActive {
			continue
		}
		roll := out[e.Category]
		roll.Count++
		roll.TotalQty += e.Quantity
		roll.TotalValue += float64(e.Quantity) * e.AvgCost
		out[e.Category] = roll
	}
	return out, nil
}

func (r *memoryRepo) ListTransactions(ctx context.Context, tenantID, materialID string, limit int) ([]Transaction, error) {
	var out []Transaction
	for _, t := range r.txns {
		if t.TenantID != tenantID {
			continue
		}
		if materialID != "" && t.MaterialID != materialID {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

type memoryCatalog struct {
	materials map[string]catalog.Material
}

func (c *memoryCatalog) GetMaterial(ctx context.Context, tenantID, materialID string) (catalog.Material, error) {
	if m, ok := c.materials[materialID]; ok {
		return m, nil
	}
	return catalog.Material{}, catalog.ErrMaterialNotFound
}

func (c *memoryCatalog) ReorderLevels(ctx context.Context, tenantID string) (map[string]int64, error) {
	levels := make(map[string]int64)
	for id, m := range c.materials {
		levels[id] = m.ReorderLevel
	}
	return levels, nil
}

type memoryIdem struct {
	keys map[string]bool
}

func (m *memoryIdem) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys == nil {
		m.keys = make(map[string]bool)
	}
	k := module + ":" + key
	if m.keys[k] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[k] = true
	return nil
}

func (m *memoryIdem) Delete(ctx context.Context, key string) error {
	for k := range m.keys {
		if strings.HasSuffix(k, ":"+key) {
			delete(m.keys, k)
		}
	}
	return nil
}

func newTestService(repo *memoryRepo, cat *memoryCatalog) *Service {
	if cat == nil {
		cat = &memoryCatalog{materials: map[string]catalog.Material{}}
	}
	return NewService(repo, cat, nil, nil, nil, nil, nil)
}

func TestAdjustCreatesEntryFromCatalog(t *testing.T) {
	repo := newMemoryRepo()
	cat := &memoryCatalog{materials: map[string]catalog.Material{
		"mat-1": {ID: "mat-1", Code: "CBL-01", Name: "Copper Cable", Category: "cables", UnitOfMeasure: "m", UnitCost: 42.5, ReorderLevel: 20},
	}}
	svc := newTestService(repo, cat)
	ctx := context.Background()

	res, err := svc.Adjust(ctx, "t1", AdjustInput{
		MaterialID: "mat-1", WarehouseID: "wh-1", AdjustmentType: AdjustmentAdd, Quantity: 50, ActorID: "u1",
	})
	require.NoError(t, err)
	require.Equal(t, int64(50), res.NewQuantity)
	require.NotEmpty(t, res.TransactionID)

	e := repo.entries[entryKey("t1", "mat-1", "wh-1")]
	require.Equal(t, "Copper Cable", e.MaterialName)
	require.Equal(t, "cables", e.Category)
	require.InDelta(t, 42.5, e.AvgCost, 0.0001)
	require.Len(t, repo.txns, 1)
	require.Equal(t, TransactionTypeIn, repo.txns[0].Type)
	require.Equal(t, int64(0), repo.txns[0].PreviousQty)
	require.Equal(t, int64(50), repo.txns[0].NewQty)
}

func TestAdjustSetAndRemove(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, "t1", AdjustInput{MaterialID: "m", WarehouseID: "w", AdjustmentType: AdjustmentSet, Quantity: 30})
	require.NoError(t, err)

	res, err := svc.Adjust(ctx, "t1", AdjustInput{MaterialID: "m", WarehouseID: "w", AdjustmentType: AdjustmentRemove, Quantity: 12})
	require.NoError(t, err)
	require.Equal(t, int64(18), res.NewQuantity)

	require.Equal(t, TransactionTypeAdjustment, repo.txns[0].Type)
	require.Equal(t, TransactionTypeOut, repo.txns[1].Type)
}

func TestAdjustRejectsNegativeResult(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, "t1", AdjustInput{MaterialID: "m", WarehouseID: "w", AdjustmentType: AdjustmentAdd, Quantity: 5})
	require.NoError(t, err)

	_, err = svc.Adjust(ctx, "t1", AdjustInput{MaterialID: "m", WarehouseID: "w", AdjustmentType: AdjustmentRemove, Quantity: 6})
	require.ErrorIs(t, err, httpx.ErrInvalidOperation)

	// The failed removal must leave the quantity untouched.
	e := repo.entries[entryKey("t1", "m", "w")]
	require.Equal(t, int64(5), e.Quantity)
	require.Len(t, repo.txns, 1)
}

func TestAdjustRejectsUnknownTypeAndNegativeQuantity(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, "t1", AdjustInput{MaterialID: "m", WarehouseID: "w", AdjustmentType: "explode", Quantity: 1})
	require.ErrorIs(t, err, httpx.ErrInvalidOperation)

	_, err = svc.Adjust(ctx, "t1", AdjustInput{MaterialID: "m", WarehouseID: "w", AdjustmentType: AdjustmentAdd, Quantity: -1})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestTransferConservesTotalQuantity(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, "t1", AdjustInput{MaterialID: "m", WarehouseID: "wh-a", AdjustmentType: AdjustmentSet, Quantity: 100})
	require.NoError(t, err)

	txn, err := svc.Transfer(ctx, "t1", TransferInput{MaterialID: "m", FromWarehouseID: "wh-a", ToWarehouseID: "wh-b", Quantity: 40})
	require.NoError(t, err)
	require.Equal(t, TransactionTypeTransfer, txn.Type)

	src := repo.entries[entryKey("t1", "m", "wh-a")]
	dst := repo.entries[entryKey("t1", "m", "wh-b")]
	require.Equal(t, int64(60), src.Quantity)
	require.Equal(t, int64(40), dst.Quantity)
	require.Equal(t, int64(100), src.Quantity+dst.Quantity)
}

func TestTransferInsufficientStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, "t1", AdjustInput{MaterialID: "m", WarehouseID: "wh-a", AdjustmentType: AdjustmentSet, Quantity: 10})
	require.NoError(t, err)

	_, err = svc.Transfer(ctx, "t1", TransferInput{MaterialID: "m", FromWarehouseID: "wh-a", ToWarehouseID: "wh-b", Quantity: 11})
	require.ErrorIs(t, err, httpx.ErrInsufficientStock)

	// Nothing moved and no destination entry was created.
	require.Equal(t, int64(10), repo.entries[entryKey("t1", "m", "wh-a")].Quantity)
	_, exists := repo.entries[entryKey("t1", "m", "wh-b")]
	require.False(t, exists)
}

func TestTransferFromMissingSource(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)
	_, err := svc.Transfer(context.Background(), "t1", TransferInput{MaterialID: "ghost", FromWarehouseID: "a", ToWarehouseID: "b", Quantity: 1})
	require.ErrorIs(t, err, httpx.ErrInsufficientStock)
}

func TestTransferRejectsSameWarehouse(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)
	_, err := svc.Transfer(context.Background(), "t1", TransferInput{MaterialID: "m", FromWarehouseID: "a", ToWarehouseID: "a", Quantity: 1})
	require.ErrorIs(t, err, httpx.ErrInvalidOperation)
}

func TestBulkImportPartialSuccess(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	report, err := svc.BulkImport(ctx, "t1", "u1", []BulkImportItem{
		{MaterialID: "m1", WarehouseID: "w1", Quantity: 10, AvgCost: 5},
		{MaterialID: "", WarehouseID: "w1", Quantity: 10},
		{MaterialID: "m2", WarehouseID: "w1", Quantity: -3},
		{MaterialID: "m3", WarehouseID: "w1", ParseError: `quantity "12O" is not a whole number`},
		{MaterialID: "m4", WarehouseID: "w1", Quantity: 7, AvgCost: 1.5},
	})
	require.NoError(t, err)
	require.Equal(t, 2, report.Imported)
	require.Len(t, report.Errors, 3)
	require.Contains(t, report.Errors[0].Error, "materialId")
	require.Contains(t, report.Errors[1].Error, "quantity")
	require.Contains(t, report.Errors[2].Error, "12O")

	// the malformed row never reached the ledger
	_, zeroed := repo.entries[entryKey("t1", "m3", "w1")]
	require.False(t, zeroed)
}

func TestBulkImportRerunOverwrites(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	items := []BulkImportItem{{MaterialID: "m1", WarehouseID: "w1", Quantity: 10, AvgCost: 5}}
	_, err := svc.BulkImport(ctx, "t1", "u1", items)
	require.NoError(t, err)
	_, err = svc.BulkImport(ctx, "t1", "u1", items)
	require.NoError(t, err)

	require.Len(t, repo.entries, 1)
	e := repo.entries[entryKey("t1", "m1", "w1")]
	require.Equal(t, int64(10), e.Quantity)
	require.InDelta(t, 5.0, e.AvgCost, 0.0001)
}

func TestListAnnotatesLowStock(t *testing.T) {
	repo := newMemoryRepo()
	cat := &memoryCatalog{materials: map[string]catalog.Material{
		"m1": {ID: "m1", ReorderLevel: 20},
		"m2": {ID: "m2", ReorderLevel: 5},
	}}
	svc := newTestService(repo, cat)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, "t1", AdjustInput{MaterialID: "m1", WarehouseID: "w", AdjustmentType: AdjustmentSet, Quantity: 15})
	require.NoError(t, err)
	_, err = svc.Adjust(ctx, "t1", AdjustInput{MaterialID: "m2", WarehouseID: "w", AdjustmentType: AdjustmentSet, Quantity: 50})
	require.NoError(t, err)

	result, err := svc.List(ctx, "t1", ListFilter{})
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	require.Equal(t, 1, result.LowStockCount)
	require.Equal(t, 2, result.Summary.TotalItems)
	require.Equal(t, int64(65), result.Summary.TotalQuantity)

	low, err := svc.List(ctx, "t1", ListFilter{LowStockOnly: true})
	require.NoError(t, err)
	require.Len(t, low.Items, 1)
	require.Equal(t, "m1", low.Items[0].MaterialID)
	require.True(t, low.Items[0].IsLowStock)
}

func TestDeactivateHidesEntry(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, "t1", AdjustInput{MaterialID: "m", WarehouseID: "w", AdjustmentType: AdjustmentSet, Quantity: 5})
	require.NoError(t, err)

	var id string
	for _, e := range repo.entries {
		id = e.ID
	}
	require.NoError(t, svc.Deactivate(ctx, "t1", id, "u1"))
	_, err = svc.Get(ctx, "t1", id)
	require.ErrorIs(t, err, httpx.ErrNotFound)

	require.True(t, errors.Is(svc.Deactivate(ctx, "t1", id, "u1"), httpx.ErrNotFound))
}

func TestAdjustReplayedIdempotencyKey(t *testing.T) {
	repo := newMemoryRepo()
	idem := &memoryIdem{}
	svc := NewService(repo, &memoryCatalog{materials: map[string]catalog.Material{}}, nil, idem, nil, nil, nil)
	ctx := context.Background()

	in := AdjustInput{
		MaterialID: "m", WarehouseID: "w", AdjustmentType: AdjustmentSet, Quantity: 5,
		IdempotencyKey: "req-42",
	}
	_, err := svc.Adjust(ctx, "t1", in)
	require.NoError(t, err)

	_, err = svc.Adjust(ctx, "t1", in)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.ErrorIs(t, err, httpx.ErrConflict)

	require.Len(t, repo.txns, 1)
}

func TestListPaginatesEntries(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Adjust(ctx, "t1", AdjustInput{
			MaterialID: fmt.Sprintf("m%d", i), WarehouseID: "w1", AdjustmentType: AdjustmentSet, Quantity: 10,
		})
		require.NoError(t, err)
	}

	all, err := svc.List(ctx, "t1", ListFilter{})
	require.NoError(t, err)
	require.Len(t, all.Items, 5)
	require.Nil(t, all.Pagination)

	paged, err := svc.List(ctx, "t1", ListFilter{Page: 2, PerPage: 2})
	require.NoError(t, err)
	require.Len(t, paged.Items, 2)
	require.Equal(t, shared.Pagination{Page: 2, PerPage: 2, Total: 5, TotalPages: 3}, *paged.Pagination)

	last, err := svc.List(ctx, "t1", ListFilter{Page: 3, PerPage: 2})
	require.NoError(t, err)
	require.Len(t, last.Items, 1)

	past, err := svc.List(ctx, "t1", ListFilter{Page: 9, PerPage: 2})
	require.NoError(t, err)
	require.Empty(t, past.Items)
}
