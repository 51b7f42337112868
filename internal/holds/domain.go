package holds

import (
	"fmt"
	"time"

	"github.com/craftline-erp/craftline-erp/internal/platform/httpx"
)

// Hold is a soft reservation of stock against a quote. Holds do not decrement
// the ledger; they only record the claim until the quote converts or lapses.
type Hold struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"-"`
	QuoteID     string     `json:"quoteId"`
	MaterialID  string     `json:"materialId"`
	WarehouseID string     `json:"warehouseId"`
	Quantity    int64      `json:"quantity"`
	CreatedBy   string     `json:"createdBy,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// HoldItem is one line of a create request.
type HoldItem struct {
	MaterialID  string `json:"materialId" validate:"required"`
	WarehouseID string `json:"warehouseId" validate:"required"`
	Quantity    int64  `json:"quantity" validate:"gt=0"`
}

// CreateInput creates all holds for a quote in one batch.
type CreateInput struct {
	QuoteID   string     `json:"quoteId" validate:"required"`
	Items     []HoldItem `json:"items" validate:"required,min=1,dive"`
	ExpiresAt *time.Time `json:"expiresAt"`
	ActorID   string     `json:"-"`
}

// ReleaseResult reports how many holds a release removed.
type ReleaseResult struct {
	QuoteID  string `json:"quoteId"`
	Released int64  `json:"released"`
}

var ErrEmptyBatch = fmt.Errorf("%w: hold batch requires at least one item", httpx.ErrValidation)
