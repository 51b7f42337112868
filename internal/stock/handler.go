package stock

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/craftline-erp/craftline-erp/internal/platform/httpx"
	"github.com/craftline-erp/craftline-erp/internal/shared"
)

// Action enumerates the POST mutation dispatch.
type Action string

const (
	ActionAdjust     Action = "adjust"
	ActionTransfer   Action = "transfer"
	ActionBulkImport Action = "bulk_import"
)

type mutationRequest struct {
	Action  Action          `json:"action" validate:"required,oneof=adjust transfer bulk_import"`
	Payload json.RawMessage `json:"payload" validate:"required"`
}

type bulkImportPayload struct {
	Items []BulkImportItem `json:"items" validate:"required,min=1"`
}

// Handler exposes the stock ledger over HTTP.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validate: validator.New()}
}

// MountRoutes registers the stock ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/transactions", h.transactions)
	r.Post("/", h.mutate)
	r.Post("/import", h.importWorkbook)
	r.Delete("/{id}", h.deactivate)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	q := r.URL.Query()

	if id := q.Get("id"); id != "" {
		entry, err := h.service.Get(r.Context(), tenantID, id)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.Success(w, http.StatusOK, entry)
		return
	}

	filter := ListFilter{
		WarehouseID:  q.Get("warehouseId"),
		MaterialID:   q.Get("materialId"),
		Category:     q.Get("category"),
		Search:       q.Get("search"),
		LowStockOnly: q.Get("lowStock") == "true",
		SortBy:       q.Get("sortBy"),
		SortOrder:    q.Get("sortOrder"),
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("perPage"))
	result, err := h.service.List(r.Context(), tenantID, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, result)
}

func (h *Handler) transactions(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	txns, err := h.service.Transactions(r.Context(), tenantID, r.URL.Query().Get("materialId"), limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if txns == nil {
		txns = []Transaction{}
	}
	httpx.Success(w, http.StatusOK, txns)
}

func (h *Handler) mutate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := shared.TenantFromContext(ctx)
	actorID := shared.ActorFromContext(ctx)

	var req mutationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	switch req.Action {
	case ActionAdjust:
		var in AdjustInput
		if err := h.decodePayload(req.Payload, &in); err != nil {
			httpx.Error(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		in.ActorID = actorID
		result, err := h.service.Adjust(ctx, tenantID, in)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.Success(w, http.StatusOK, result)

	case ActionTransfer:
		var in TransferInput
		if err := h.decodePayload(req.Payload, &in); err != nil {
			httpx.Error(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		in.ActorID = actorID
		txn, err := h.service.Transfer(ctx, tenantID, in)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.Success(w, http.StatusOK, txn)

	case ActionBulkImport:
		var in bulkImportPayload
		if err := h.decodePayload(req.Payload, &in); err != nil {
			httpx.Error(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		report, err := h.service.BulkImport(ctx, tenantID, actorID, in.Items)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.Success(w, http.StatusOK, report)

	default:
		httpx.Error(w, http.StatusBadRequest, "Bad Request", fmt.Sprintf("unknown action %q", req.Action))
	}
}

func (h *Handler) decodePayload(raw json.RawMessage, target any) error {
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return h.validate.Struct(target)
}

func (h *Handler) importWorkbook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := shared.TenantFromContext(ctx)
	actorID := shared.ActorFromContext(ctx)

	file, _, err := r.FormFile("file")
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "Bad Request", "multipart field 'file' is required")
		return
	}
	defer file.Close()

	items, err := ParseWorkbook(file)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	report, err := h.service.BulkImport(ctx, tenantID, actorID, items)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, report)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	err := h.service.Deactivate(ctx, shared.TenantFromContext(ctx), chi.URLParam(r, "id"), shared.ActorFromContext(ctx))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, map[string]any{"deactivated": true})
}
