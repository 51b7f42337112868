package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	stockMovements   *prometheus.CounterVec
	paymentsRecorded prometheus.Counter
	outboxEvents     *prometheus.CounterVec
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "craftline_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "craftline_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	stockMovements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "craftline_stock_movements_total",
		Help: "Stock ledger mutations by movement type.",
	}, []string{"type"})
	paymentsRecorded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "craftline_payments_recorded_total",
		Help: "Payments recorded against invoices.",
	})
	outboxEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "craftline_finance_outbox_events_total",
		Help: "Finance outbox events by drain outcome.",
	}, []string{"outcome"})
	registry.MustRegister(requests, duration, stockMovements, paymentsRecorded, outboxEvents)
	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:    requests,
		requestDuration:  duration,
		stockMovements:   stockMovements,
		paymentsRecorded: paymentsRecorded,
		outboxEvents:     outboxEvents,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveStockMovement counts a ledger mutation.
func (m *Metrics) ObserveStockMovement(movementType string) {
	if m == nil {
		return
	}
	m.stockMovements.WithLabelValues(movementType).Inc()
}

// ObservePaymentRecorded counts a recorded payment.
func (m *Metrics) ObservePaymentRecorded() {
	if m == nil {
		return
	}
	m.paymentsRecorded.Inc()
}

// ObserveOutboxEvent counts a drained/failed/dead outbox event.
func (m *Metrics) ObserveOutboxEvent(outcome string) {
	if m == nil {
		return
	}
	m.outboxEvents.WithLabelValues(outcome).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
