package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/craftline-erp/craftline-erp/internal/fulfillment"
	"github.com/craftline-erp/craftline-erp/internal/holds"
	"github.com/craftline-erp/craftline-erp/internal/observability"
	"github.com/craftline-erp/craftline-erp/internal/stock"
	"github.com/craftline-erp/craftline-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	StockHandler       *stock.Handler
	HoldsHandler       *holds.Handler
	FulfillmentHandler *fulfillment.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with Craftline defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(TenantMiddleware)
		r.Route("/stock-ledger", params.StockHandler.MountRoutes)
		r.Route("/inventory/holds", params.HoldsHandler.MountRoutes)
		r.Route("/fulfillment", params.FulfillmentHandler.MountRoutes)
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
