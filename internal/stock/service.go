package stock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/craftline-erp/craftline-erp/internal/catalog"
	"github.com/craftline-erp/craftline-erp/internal/platform/httpx"
	"github.com/craftline-erp/craftline-erp/internal/shared"
)

// RepositoryPort abstracts ledger persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	UpsertImport(ctx context.Context, tenantID, actorID string, item BulkImportItem) error
	GetEntry(ctx context.Context, tenantID, entryID string) (LedgerEntry, error)
	Deactivate(ctx context.Context, tenantID, entryID string) error
	List(ctx context.Context, tenantID string, f ListFilter) ([]LedgerEntry, error)
	Summary(ctx context.Context, tenantID string) (Summary, error)
	CategoryBreakdown(ctx context.Context, tenantID string) (map[string]CategoryRollup, error)
	ListTransactions(ctx context.Context, tenantID, materialID string, limit int) ([]Transaction, error)
}

// CatalogPort supplies material master data.
type CatalogPort interface {
	GetMaterial(ctx context.Context, tenantID, materialID string) (catalog.Material, error)
	ReorderLevels(ctx context.Context, tenantID string) (map[string]int64, error)
}

// AuditPort records business-level audit entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards replayed mutation requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// MetricsPort counts ledger mutations.
type MetricsPort interface {
	ObserveStockMovement(movementType string)
}

// Service implements the stock ledger operations.
type Service struct {
	repo        RepositoryPort
	catalog     CatalogPort
	audit       AuditPort
	idempotency IdempotencyPort
	metrics     MetricsPort
	cache       *SummaryCache
	logger      *slog.Logger
}

func NewService(repo RepositoryPort, cat CatalogPort, audit AuditPort, idem IdempotencyPort, metrics MetricsPort, cache *SummaryCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, catalog: cat, audit: audit, idempotency: idem, metrics: metrics, cache: cache, logger: logger}
}

// Adjust applies an add/remove/set mutation to one ledger entry. The entry is
// created on first touch, seeded from the catalog when the material exists
// there. A result below zero rejects the whole operation.
func (s *Service) Adjust(ctx context.Context, tenantID string, in AdjustInput) (AdjustResult, error) {
	switch in.AdjustmentType {
	case AdjustmentAdd, AdjustmentRemove, AdjustmentSet:
	default:
		return AdjustResult{}, ErrInvalidAdjustment
	}
	if in.Quantity < 0 {
		return AdjustResult{}, fmt.Errorf("%w: quantity must not be negative", httpx.ErrValidation)
	}

	if in.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, in.IdempotencyKey, "stock"); err != nil {
			return AdjustResult{}, err
		}
	}

	var result AdjustResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetEntryForUpdate(ctx, tenantID, in.MaterialID, in.WarehouseID)
		if errors.Is(err, ErrItemNotFound) {
			entry, err = s.createEntry(ctx, tx, tenantID, in)
		}
		if err != nil {
			return err
		}

		prev := entry.Quantity
		var next int64
		switch in.AdjustmentType {
		case AdjustmentAdd:
			next = prev + in.Quantity
		case AdjustmentRemove:
			next = prev - in.Quantity
		case AdjustmentSet:
			next = in.Quantity
		}
		if next < 0 {
			return ErrNegativeStock
		}
		if err := tx.UpdateEntryQuantity(ctx, tenantID, entry.ID, next); err != nil {
			return err
		}

		txn := Transaction{
			ID:          uuid.NewString(),
			TenantID:    tenantID,
			Type:        movementType(in.AdjustmentType),
			MaterialID:  in.MaterialID,
			WarehouseID: in.WarehouseID,
			Quantity:    in.Quantity,
			PreviousQty: prev,
			NewQty:      next,
			Reason:      in.Reason,
			Reference:   in.Reference,
			PerformedBy: in.ActorID,
			PerformedAt: time.Now().UTC(),
		}
		if err := tx.InsertTransaction(ctx, txn); err != nil {
			return err
		}
		result = AdjustResult{NewQuantity: next, TransactionID: txn.ID}
		return nil
	})
	if err != nil {
		if in.IdempotencyKey != "" && s.idempotency != nil {
			_ = s.idempotency.Delete(ctx, in.IdempotencyKey)
		}
		return AdjustResult{}, err
	}

	s.cache.Invalidate(ctx, tenantID)
	if s.metrics != nil {
		s.metrics.ObserveStockMovement(string(in.AdjustmentType))
	}
	s.recordAudit(ctx, tenantID, in.ActorID, "stock.adjust", in.MaterialID, map[string]any{
		"warehouseId":    in.WarehouseID,
		"adjustmentType": in.AdjustmentType,
		"quantity":       in.Quantity,
		"newQuantity":    result.NewQuantity,
	})
	return result, nil
}

// Transfer moves quantity between two warehouses in a single transaction.
// Both entries change together or not at all; a short source fails with
// ErrInsufficientStock and leaves nothing written.
func (s *Service) Transfer(ctx context.Context, tenantID string, in TransferInput) (Transaction, error) {
	if in.Quantity <= 0 {
		return Transaction{}, fmt.Errorf("%w: transfer quantity must be positive", httpx.ErrValidation)
	}
	if in.FromWarehouseID == in.ToWarehouseID {
		return Transaction{}, fmt.Errorf("%w: source and destination warehouse are the same", httpx.ErrInvalidOperation)
	}

	if in.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, in.IdempotencyKey, "stock"); err != nil {
			return Transaction{}, err
		}
	}

	var txn Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		// Lock both rows in a fixed order so two opposing transfers
		// cannot deadlock each other.
		entries := make(map[string]LedgerEntry, 2)
		for _, wh := range orderedWarehouses(in.FromWarehouseID, in.ToWarehouseID) {
			e, err := tx.GetEntryForUpdate(ctx, tenantID, in.MaterialID, wh)
			if errors.Is(err, ErrItemNotFound) {
				if wh == in.FromWarehouseID {
					return ErrInsufficientStock
				}
				continue
			}
			if err != nil {
				return err
			}
			entries[wh] = e
		}

		src := entries[in.FromWarehouseID]
		if src.Quantity < in.Quantity {
			return ErrInsufficientStock
		}

		dst, ok := entries[in.ToWarehouseID]
		if !ok {
			var err error
			dst, err = s.createEntryFrom(ctx, tx, src, in.ToWarehouseID, in.ActorID)
			if err != nil {
				return err
			}
		}

		if err := tx.UpdateEntryQuantity(ctx, tenantID, src.ID, src.Quantity-in.Quantity); err != nil {
			return err
		}
		if err := tx.UpdateEntryQuantity(ctx, tenantID, dst.ID, dst.Quantity+in.Quantity); err != nil {
			return err
		}

		txn = Transaction{
			ID:              uuid.NewString(),
			TenantID:        tenantID,
			Type:            TransactionTypeTransfer,
			MaterialID:      in.MaterialID,
			FromWarehouseID: in.FromWarehouseID,
			ToWarehouseID:   in.ToWarehouseID,
			Quantity:        in.Quantity,
			PreviousQty:     src.Quantity,
			NewQty:          src.Quantity - in.Quantity,
			Reason:          in.Notes,
			PerformedBy:     in.ActorID,
			PerformedAt:     time.Now().UTC(),
		}
		return tx.InsertTransaction(ctx, txn)
	})
	if err != nil {
		if in.IdempotencyKey != "" && s.idempotency != nil {
			_ = s.idempotency.Delete(ctx, in.IdempotencyKey)
		}
		return Transaction{}, err
	}

	s.cache.Invalidate(ctx, tenantID)
	if s.metrics != nil {
		s.metrics.ObserveStockMovement(string(TransactionTypeTransfer))
	}
	s.recordAudit(ctx, tenantID, in.ActorID, "stock.transfer", in.MaterialID, map[string]any{
		"fromWarehouseId": in.FromWarehouseID,
		"toWarehouseId":   in.ToWarehouseID,
		"quantity":        in.Quantity,
	})
	return txn, nil
}

// BulkImport upserts many ledger rows with partial success. Each row stands
// alone: a bad row is reported and skipped, the rest still land. Re-running
// the same rows overwrites quantity and avg cost, so the import is
// re-runnable.
func (s *Service) BulkImport(ctx context.Context, tenantID, actorID string, items []BulkImportItem) (BulkImportReport, error) {
	report := BulkImportReport{Errors: []BulkImportError{}}
	for _, item := range items {
		if err := validateImportItem(item); err != nil {
			report.Errors = append(report.Errors, BulkImportError{Item: item, Error: err.Error()})
			continue
		}
		if err := s.repo.UpsertImport(ctx, tenantID, actorID, item); err != nil {
			s.logger.Warn("bulk import row failed",
				"tenant", tenantID, "material", item.MaterialID, "error", err)
			report.Errors = append(report.Errors, BulkImportError{Item: item, Error: err.Error()})
			continue
		}
		report.Imported++
	}
	if report.Imported > 0 {
		s.cache.Invalidate(ctx, tenantID)
		if s.metrics != nil {
			s.metrics.ObserveStockMovement("bulk_import")
		}
		s.recordAudit(ctx, tenantID, actorID, "stock.bulk_import", "batch", map[string]any{
			"imported": report.Imported,
			"failed":   len(report.Errors),
		})
	}
	return report, nil
}

func validateImportItem(item BulkImportItem) error {
	if item.ParseError != "" {
		return errors.New(item.ParseError)
	}
	if item.MaterialID == "" {
		return errors.New("materialId is required")
	}
	if item.WarehouseID == "" {
		return errors.New("warehouseId is required")
	}
	if item.Quantity < 0 {
		return errors.New("quantity must not be negative")
	}
	if item.AvgCost < 0 {
		return errors.New("avgCost must not be negative")
	}
	return nil
}

// List returns filtered entries plus tenant-wide rollups. Reorder levels and
// the low-stock flag are annotated from the catalog at read time.
func (s *Service) List(ctx context.Context, tenantID string, f ListFilter) (ListResult, error) {
	entries, err := s.repo.List(ctx, tenantID, f)
	if err != nil {
		return ListResult{}, err
	}
	levels, err := s.catalog.ReorderLevels(ctx, tenantID)
	if err != nil {
		return ListResult{}, err
	}

	lowStockCount := 0
	annotated := entries[:0]
	for _, e := range entries {
		e.ReorderLevel = levels[e.MaterialID]
		e.IsLowStock = e.ReorderLevel > 0 && e.Quantity <= e.ReorderLevel
		if e.IsLowStock {
			lowStockCount++
		}
		if f.LowStockOnly && !e.IsLowStock {
			continue
		}
		annotated = append(annotated, e)
	}
	if annotated == nil {
		annotated = []LedgerEntry{}
	}

	var pagination *shared.Pagination
	if f.Page > 0 || f.PerPage > 0 {
		p := shared.NewPagination(f.Page, f.PerPage, len(annotated))
		start, end := p.Window()
		annotated = annotated[start:end]
		pagination = &p
	}

	agg, err := s.aggregates(ctx, tenantID)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{
		Items:             annotated,
		Summary:           agg.Summary,
		CategoryBreakdown: agg.CategoryBreakdown,
		LowStockCount:     lowStockCount,
		Pagination:        pagination,
	}, nil
}

func (s *Service) aggregates(ctx context.Context, tenantID string) (rollups, error) {
	if cached, ok := s.cache.Get(ctx, tenantID); ok {
		return cached, nil
	}
	summary, err := s.repo.Summary(ctx, tenantID)
	if err != nil {
		return rollups{}, err
	}
	breakdown, err := s.repo.CategoryBreakdown(ctx, tenantID)
	if err != nil {
		return rollups{}, err
	}
	agg := rollups{Summary: summary, CategoryBreakdown: breakdown}
	s.cache.Set(ctx, tenantID, agg)
	return agg, nil
}

// Get fetches one entry with its low-stock annotation.
func (s *Service) Get(ctx context.Context, tenantID, entryID string) (LedgerEntry, error) {
	e, err := s.repo.GetEntry(ctx, tenantID, entryID)
	if err != nil {
		return LedgerEntry{}, err
	}
	if m, err := s.catalog.GetMaterial(ctx, tenantID, e.MaterialID); err == nil {
		e.ReorderLevel = m.ReorderLevel
		e.IsLowStock = m.ReorderLevel > 0 && e.Quantity <= m.ReorderLevel
	}
	return e, nil
}

// Deactivate soft-removes an entry from the active ledger.
func (s *Service) Deactivate(ctx context.Context, tenantID, entryID, actorID string) error {
	if err := s.repo.Deactivate(ctx, tenantID, entryID); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, tenantID)
	s.recordAudit(ctx, tenantID, actorID, "stock.deactivate", entryID, nil)
	return nil
}

// Transactions lists the movement log, newest first.
func (s *Service) Transactions(ctx context.Context, tenantID, materialID string, limit int) ([]Transaction, error) {
	return s.repo.ListTransactions(ctx, tenantID, materialID, limit)
}

func (s *Service) createEntry(ctx context.Context, tx TxRepository, tenantID string, in AdjustInput) (LedgerEntry, error) {
	now := time.Now().UTC()
	e := LedgerEntry{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		MaterialID:    in.MaterialID,
		MaterialCode:  in.MaterialCode,
		MaterialName:  in.MaterialName,
		Category:      in.Category,
		WarehouseID:   in.WarehouseID,
		UnitOfMeasure: in.UnitOfMeasure,
		AvgCost:       in.UnitCost,
		IsActive:      true,
		CreatedBy:     in.ActorID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if m, err := s.catalog.GetMaterial(ctx, tenantID, in.MaterialID); err == nil {
		e.MaterialCode = m.Code
		e.MaterialName = m.Name
		e.Category = m.Category
		e.UnitOfMeasure = m.UnitOfMeasure
		e.AvgCost = m.UnitCost
	} else if !errors.Is(err, catalog.ErrMaterialNotFound) {
		return LedgerEntry{}, err
	}
	if err := tx.InsertEntry(ctx, e); err != nil {
		return LedgerEntry{}, err
	}
	return e, nil
}

func (s *Service) createEntryFrom(ctx context.Context, tx TxRepository, src LedgerEntry, warehouseID, actorID string) (LedgerEntry, error) {
	now := time.Now().UTC()
	e := src
	e.ID = uuid.NewString()
	e.WarehouseID = warehouseID
	e.Quantity = 0
	e.CreatedBy = actorID
	e.CreatedAt = now
	e.UpdatedAt = now
	if err := tx.InsertEntry(ctx, e); err != nil {
		return LedgerEntry{}, err
	}
	return e, nil
}

func (s *Service) recordAudit(ctx context.Context, tenantID, actorID, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenantID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_ledger",
		EntityID: entityID,
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record failed", "action", action, "error", err)
	}
}

func movementType(t AdjustmentType) TransactionType {
	switch t {
	case AdjustmentAdd:
		return TransactionTypeIn
	case AdjustmentRemove:
		return TransactionTypeOut
	default:
		return TransactionTypeAdjustment
	}
}

func orderedWarehouses(a, b string) []string {
	ws := []string{a, b}
	sort.Strings(ws)
	return ws
}
