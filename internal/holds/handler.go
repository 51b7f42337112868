package holds

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/craftline-erp/craftline-erp/internal/platform/httpx"
	"github.com/craftline-erp/craftline-erp/internal/shared"
)

// Handler exposes inventory holds over HTTP.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validate: validator.New()}
}

// MountRoutes registers the hold routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Delete("/{quoteID}", h.release)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())

	if quoteID := r.URL.Query().Get("quoteId"); quoteID != "" {
		hs, err := h.service.List(r.Context(), tenantID, quoteID)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		if hs == nil {
			hs = []Hold{}
		}
		httpx.Success(w, http.StatusOK, hs)
		return
	}

	grouped, err := h.service.ListByQuote(r.Context(), tenantID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, grouped)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	in.ActorID = shared.ActorFromContext(ctx)

	hs, err := h.service.Create(ctx, shared.TenantFromContext(ctx), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, http.StatusCreated, hs)
}

func (h *Handler) release(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	result, err := h.service.Release(ctx,
		shared.TenantFromContext(ctx), chi.URLParam(r, "quoteID"), shared.ActorFromContext(ctx))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, result)
}
