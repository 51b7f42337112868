package fulfillment

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/craftline-erp/craftline-erp/internal/amc"
	"github.com/craftline-erp/craftline-erp/internal/payments"
	"github.com/craftline-erp/craftline-erp/internal/platform/httpx"
	"github.com/craftline-erp/craftline-erp/internal/shared"
	"github.com/craftline-erp/craftline-erp/internal/warranty"
)

// Command enumerates the POST dispatch for the fulfillment workflow.
type Command string

const (
	CmdCreateChallan      Command = "create-challan"
	CmdCreateInstallation Command = "create-installation"
	CmdRecordPayment      Command = "record-payment"
	CmdGenerateReceipt    Command = "generate-receipt"
	CmdRegisterWarranty   Command = "register-warranty"
	CmdCreateAMC          Command = "create-amc"
	CmdCreateJobCard      Command = "create-jobcard"
)

type commandRequest struct {
	Action  Command         `json:"action" validate:"required,oneof=create-challan create-installation record-payment generate-receipt register-warranty create-amc create-jobcard"`
	Payload json.RawMessage `json:"payload" validate:"required"`
}

// updateRequest routes PUT /{id} based on the document type.
type updateRequest struct {
	Type    string          `json:"type" validate:"required,oneof=challan installation jobcard payment warranty-claim warranty-status amc-visit amc-status"`
	Payload json.RawMessage `json:"payload" validate:"required"`
}

type paymentStatusPayload struct {
	Status payments.PaymentStatus `json:"status" validate:"required"`
}

type warrantyStatusPayload struct {
	Status warranty.Status `json:"status" validate:"required"`
}

type amcStatusPayload struct {
	Status          amc.Status `json:"status" validate:"required"`
	NextServiceDate *time.Time `json:"nextServiceDate"`
}

// Handler exposes the post-sale fulfillment workflow over HTTP. Challans,
// installations and job cards are served directly; payments, warranties and
// AMC contracts are delegated to their services.
type Handler struct {
	service    *Service
	payments   *payments.Service
	warranties *warranty.Service
	contracts  *amc.Service
	validate   *validator.Validate
}

func NewHandler(service *Service, pay *payments.Service, wrn *warranty.Service, contracts *amc.Service) *Handler {
	return &Handler{
		service:    service,
		payments:   pay,
		warranties: wrn,
		contracts:  contracts,
		validate:   validator.New(),
	}
}

// MountRoutes registers the fulfillment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/stats", h.stats)
	r.Post("/", h.command)
	r.Put("/{id}", h.update)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := shared.TenantFromContext(ctx)
	q := r.URL.Query()
	docType := q.Get("type")
	id := q.Get("id")
	status := q.Get("status")

	var (
		data any
		err  error
	)
	invoiceID := q.Get("invoiceId")
	orderID := q.Get("orderId")
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("perPage"))

	switch docType {
	case "challan":
		if id != "" {
			data, err = h.service.GetChallan(ctx, tenantID, id)
		} else {
			var challans []Challan
			challans, err = h.service.ListChallans(ctx, tenantID, ChallanStatus(status))
			data = pageItems(filterSlice(challans, func(c Challan) bool {
				return (invoiceID == "" || c.InvoiceID == invoiceID) && (orderID == "" || c.OrderID == orderID)
			}), page, perPage)
		}
	case "installation":
		if id != "" {
			data, err = h.service.GetInstallation(ctx, tenantID, id)
		} else {
			var installations []Installation
			installations, err = h.service.ListInstallations(ctx, tenantID, InstallationStatus(status))
			data = pageItems(filterSlice(installations, func(i Installation) bool {
				return (invoiceID == "" || i.InvoiceID == invoiceID) && (orderID == "" || i.OrderID == orderID)
			}), page, perPage)
		}
	case "jobcard":
		if id != "" {
			data, err = h.service.GetJobCard(ctx, tenantID, id)
		} else {
			var jobCards []JobCard
			jobCards, err = h.service.ListJobCards(ctx, tenantID, JobCardStatus(status))
			data = pageItems(filterSlice(jobCards, func(jc JobCard) bool {
				return invoiceID == "" || jc.InvoiceID == invoiceID
			}), page, perPage)
		}
	case "payment":
		if id != "" {
			data, err = h.payments.Get(ctx, tenantID, id)
		} else {
			data, err = h.payments.List(ctx, tenantID, q.Get("invoiceId"))
		}
	case "receipt":
		data, err = h.payments.ListReceipts(ctx, tenantID)
	case "warranty":
		if id != "" {
			data, err = h.warranties.Get(ctx, tenantID, id)
		} else {
			data, err = h.warranties.List(ctx, tenantID, warranty.Status(status))
		}
	case "amc":
		if id != "" {
			data, err = h.contracts.Get(ctx, tenantID, id)
		} else {
			data, err = h.contracts.List(ctx, tenantID, amc.Status(status))
		}
	case "", "all":
		h.overview(w, r)
		return
	default:
		httpx.Error(w, http.StatusBadRequest, "Bad Request", fmt.Sprintf("unknown type %q", docType))
		return
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, data)
}

// overview returns the documents a fulfillment dashboard needs in one call.
func (h *Handler) overview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := shared.TenantFromContext(ctx)

	challans, err := h.service.ListChallans(ctx, tenantID, "")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	installations, err := h.service.ListInstallations(ctx, tenantID, "")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	jobCards, err := h.service.ListJobCards(ctx, tenantID, "")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	pays, err := h.payments.List(ctx, tenantID, "")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	warranties, err := h.warranties.List(ctx, tenantID, "")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	contracts, err := h.contracts.List(ctx, tenantID, "")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, map[string]any{
		"challans":      challans,
		"installations": installations,
		"jobCards":      jobCards,
		"payments":      pays,
		"warranties":    warranties,
		"amcContracts":  contracts,
	})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := shared.TenantFromContext(ctx)

	fulfillment, err := h.service.Stats(ctx, tenantID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	payStats, err := h.payments.Stats(ctx, tenantID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	warrantyStats, err := h.warranties.Stats(ctx, tenantID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	amcStats, err := h.contracts.Stats(ctx, tenantID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, map[string]any{
		"fulfillment": fulfillment,
		"payments":    payStats,
		"warranties":  warrantyStats,
		"amc":         amcStats,
	})
}

func (h *Handler) command(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := shared.TenantFromContext(ctx)
	actorID := shared.ActorFromContext(ctx)

	var req commandRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	var (
		data any
		err  error
	)
	switch req.Action {
	case CmdCreateChallan:
		var in CreateChallanInput
		if err = h.decodePayload(req.Payload, &in); err == nil {
			in.ActorID = actorID
			data, err = h.service.CreateChallan(ctx, tenantID, in)
		}
	case CmdCreateInstallation:
		var in CreateInstallationInput
		if err = h.decodePayload(req.Payload, &in); err == nil {
			in.ActorID = actorID
			data, err = h.service.CreateInstallation(ctx, tenantID, in)
		}
	case CmdRecordPayment:
		var in payments.RecordInput
		if err = h.decodePayload(req.Payload, &in); err == nil {
			in.ActorID = actorID
			data, err = h.payments.Record(ctx, tenantID, in)
		}
	case CmdGenerateReceipt:
		var in payments.ReceiptInput
		if err = h.decodePayload(req.Payload, &in); err == nil {
			in.ActorID = actorID
			data, err = h.payments.GenerateReceipt(ctx, tenantID, in)
		}
	case CmdRegisterWarranty:
		var in warranty.RegisterInput
		if err = h.decodePayload(req.Payload, &in); err == nil {
			in.ActorID = actorID
			data, err = h.warranties.Register(ctx, tenantID, in)
		}
	case CmdCreateAMC:
		var in amc.CreateInput
		if err = h.decodePayload(req.Payload, &in); err == nil {
			in.ActorID = actorID
			data, err = h.contracts.Create(ctx, tenantID, in)
		}
	case CmdCreateJobCard:
		var in CreateJobCardInput
		if err = h.decodePayload(req.Payload, &in); err == nil {
			in.ActorID = actorID
			data, err = h.service.CreateJobCard(ctx, tenantID, in)
		}
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, http.StatusCreated, data)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := shared.TenantFromContext(ctx)
	actorID := shared.ActorFromContext(ctx)
	id := chi.URLParam(r, "id")

	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	var (
		data any
		err  error
	)
	switch req.Type {
	case "challan":
		var in ChallanUpdateInput
		if err = h.decodePayload(req.Payload, &in); err == nil {
			in.ActorID = actorID
			data, err = h.service.UpdateChallan(ctx, tenantID, id, in)
		}
	case "installation":
		var in InstallationUpdateInput
		if err = h.decodePayload(req.Payload, &in); err == nil {
			in.ActorID = actorID
			data, err = h.service.UpdateInstallation(ctx, tenantID, id, in)
		}
	case "jobcard":
		var in JobCardUpdateInput
		if err = h.decodePayload(req.Payload, &in); err == nil {
			in.ActorID = actorID
			data, err = h.service.UpdateJobCard(ctx, tenantID, id, in)
		}
	case "payment":
		var in paymentStatusPayload
		if err = h.decodePayload(req.Payload, &in); err == nil {
			data, err = h.payments.UpdateStatus(ctx, tenantID, id, in.Status, actorID)
		}
	case "warranty-claim":
		var in warranty.ClaimInput
		if err = h.decodePayload(req.Payload, &in); err == nil {
			in.ActorID = actorID
			data, err = h.warranties.FileClaim(ctx, tenantID, id, in)
		}
	case "warranty-status":
		var in warrantyStatusPayload
		if err = h.decodePayload(req.Payload, &in); err == nil {
			data, err = h.warranties.UpdateStatus(ctx, tenantID, id, in.Status, actorID)
		}
	case "amc-visit":
		var in amc.VisitInput
		if err = h.decodePayload(req.Payload, &in); err == nil {
			in.ActorID = actorID
			data, err = h.contracts.LogVisit(ctx, tenantID, id, in)
		}
	case "amc-status":
		var in amcStatusPayload
		if err = h.decodePayload(req.Payload, &in); err == nil {
			data, err = h.contracts.UpdateStatus(ctx, tenantID, id, in.Status, in.NextServiceDate, actorID)
		}
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, data)
}

func filterSlice[T any](items []T, keep func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}

type pagedList[T any] struct {
	Items      []T               `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

// pageItems windows a list when the request asked for a page; without page
// params the plain slice is returned unchanged.
func pageItems[T any](items []T, page, perPage int) any {
	if page <= 0 && perPage <= 0 {
		return items
	}
	p := shared.NewPagination(page, perPage, len(items))
	start, end := p.Window()
	return pagedList[T]{Items: items[start:end], Pagination: p}
}

func (h *Handler) decodePayload(raw json.RawMessage, target any) error {
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("%w: invalid payload", httpx.ErrValidation)
	}
	if err := h.validate.Struct(target); err != nil {
		return fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error())
	}
	return nil
}
