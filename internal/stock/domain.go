package stock

import (
	"fmt"
	"time"

	"github.com/craftline-erp/craftline-erp/internal/platform/httpx"
	"github.com/craftline-erp/craftline-erp/internal/shared"
)

// TransactionType enumerates stock movement kinds recorded in the audit log.
type TransactionType string

const (
	// TransactionTypeIn is an inbound movement (add adjustment).
	TransactionTypeIn TransactionType = "in"
	// TransactionTypeOut is an outbound movement (remove adjustment).
	TransactionTypeOut TransactionType = "out"
	// TransactionTypeAdjustment is an absolute set.
	TransactionTypeAdjustment TransactionType = "adjustment"
	// TransactionTypeTransfer moves quantity between warehouses.
	TransactionTypeTransfer TransactionType = "transfer"
)

// AdjustmentType enumerates supported adjust operations.
type AdjustmentType string

const (
	AdjustmentAdd    AdjustmentType = "add"
	AdjustmentRemove AdjustmentType = "remove"
	AdjustmentSet    AdjustmentType = "set"
)

// LedgerEntry is the per-(material, warehouse) quantity record. Entries are
// soft-deactivated, never deleted, and unique per active
// (tenant, material, warehouse).
type LedgerEntry struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"-"`
	MaterialID    string    `json:"materialId"`
	MaterialCode  string    `json:"materialCode"`
	MaterialName  string    `json:"materialName"`
	Category      string    `json:"category"`
	WarehouseID   string    `json:"warehouseId"`
	Quantity      int64     `json:"quantity"`
	UnitOfMeasure string    `json:"unitOfMeasure"`
	AvgCost       float64   `json:"avgCost"`
	IsActive      bool      `json:"isActive"`
	CreatedBy     string    `json:"createdBy,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`

	// Annotated at read time from the catalog, not stored on the entry.
	ReorderLevel int64 `json:"reorderLevel"`
	IsLowStock   bool  `json:"isLowStock"`
}

// Transaction is an immutable audit record of a quantity change. Transfers
// produce a single row referencing both warehouses.
type Transaction struct {
	ID              string          `json:"id"`
	TenantID        string          `json:"-"`
	Type            TransactionType `json:"type"`
	MaterialID      string          `json:"materialId"`
	WarehouseID     string          `json:"warehouseId,omitempty"`
	FromWarehouseID string          `json:"fromWarehouseId,omitempty"`
	ToWarehouseID   string          `json:"toWarehouseId,omitempty"`
	Quantity        int64           `json:"quantity"`
	PreviousQty     int64           `json:"previousQty"`
	NewQty          int64           `json:"newQty"`
	Reason          string          `json:"reason,omitempty"`
	Reference       string          `json:"reference,omitempty"`
	PerformedBy     string          `json:"performedBy"`
	PerformedAt     time.Time       `json:"performedAt"`
}

// AdjustInput describes an adjust request.
type AdjustInput struct {
	MaterialID     string         `json:"materialId" validate:"required"`
	WarehouseID    string         `json:"warehouseId" validate:"required"`
	AdjustmentType AdjustmentType `json:"adjustmentType" validate:"required,oneof=add remove set"`
	Quantity       int64          `json:"quantity"`
	Reason         string         `json:"reason"`
	Reference      string         `json:"reference"`
	IdempotencyKey string         `json:"idempotencyKey"`
	ActorID        string         `json:"-"`

	// Fallbacks when the material is absent from the catalog.
	MaterialCode  string  `json:"materialCode"`
	MaterialName  string  `json:"materialName"`
	Category      string  `json:"category"`
	UnitOfMeasure string  `json:"unitOfMeasure"`
	UnitCost      float64 `json:"unitCost"`
}

// AdjustResult reports the outcome of an adjust.
type AdjustResult struct {
	NewQuantity   int64  `json:"newQuantity"`
	TransactionID string `json:"transactionId"`
}

// TransferInput describes a warehouse-to-warehouse transfer.
type TransferInput struct {
	MaterialID      string `json:"materialId" validate:"required"`
	FromWarehouseID string `json:"fromWarehouseId" validate:"required"`
	ToWarehouseID   string `json:"toWarehouseId" validate:"required,nefield=FromWarehouseID"`
	Quantity        int64  `json:"quantity" validate:"gt=0"`
	Notes           string `json:"notes"`
	IdempotencyKey  string `json:"idempotencyKey"`
	ActorID         string `json:"-"`
}

// BulkImportItem is one upsert row of a bulk import.
type BulkImportItem struct {
	MaterialID    string  `json:"materialId"`
	WarehouseID   string  `json:"warehouseId"`
	Quantity      int64   `json:"quantity"`
	AvgCost       float64 `json:"avgCost"`
	MaterialCode  string  `json:"materialCode"`
	MaterialName  string  `json:"materialName"`
	Category      string  `json:"category"`
	UnitOfMeasure string  `json:"unitOfMeasure"`
	ParseError    string  `json:"-"`
}

// BulkImportError pairs a failed row with its error message.
type BulkImportError struct {
	Item  BulkImportItem `json:"item"`
	Error string         `json:"error"`
}

// BulkImportReport summarises a partial-success import.
type BulkImportReport struct {
	Imported int               `json:"imported"`
	Errors   []BulkImportError `json:"errors"`
}

// ListFilter narrows the ledger listing.
type ListFilter struct {
	WarehouseID  string
	MaterialID   string
	Category     string
	Search       string
	LowStockOnly bool
	SortBy       string
	SortOrder    string
	Page         int
	PerPage      int
}

// Summary aggregates the active ledger.
type Summary struct {
	TotalItems    int     `json:"totalItems"`
	TotalQuantity int64   `json:"totalQuantity"`
	TotalValue    float64 `json:"totalValue"`
}

// CategoryRollup aggregates one category.
type CategoryRollup struct {
	Count      int     `json:"count"`
	TotalQty   int64   `json:"totalQty"`
	TotalValue float64 `json:"totalValue"`
}

// ListResult is the full GET payload: items plus rollups. Pagination is set
// only when the request asked for a page.
type ListResult struct {
	Items             []LedgerEntry             `json:"inventory"`
	Summary           Summary                   `json:"summary"`
	CategoryBreakdown map[string]CategoryRollup `json:"categoryBreakdown"`
	LowStockCount     int                       `json:"lowStockCount"`
	Pagination        *shared.Pagination        `json:"pagination,omitempty"`
}

// Domain errors wrap the platform sentinels so handlers map them uniformly.
var (
	ErrNegativeStock     = fmt.Errorf("%w: cannot reduce stock below zero", httpx.ErrInvalidOperation)
	ErrInsufficientStock = fmt.Errorf("%w in source warehouse", httpx.ErrInsufficientStock)
	ErrItemNotFound      = fmt.Errorf("stock item %w", httpx.ErrNotFound)
	ErrInvalidAdjustment = fmt.Errorf("%w: unknown adjustment type", httpx.ErrInvalidOperation)
)
