package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	ledgerAppends    *prometheus.CounterVec
	classifyDuration prometheus.Histogram
	suggestionsTotal *prometheus.CounterVec
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "atlas_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	appends := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_ledger_appends_total",
		Help: "Ledger entries appended by kind.",
	}, []string{"kind"})
	classify := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "atlas_classification_run_duration_seconds",
		Help:    "Duration of full-catalog classification passes.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
	})
	suggestions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_reorder_suggestions_total",
		Help: "Reorder suggestions created by urgency.",
	}, []string{"urgency"})
	registry.MustRegister(requests, duration, appends, classify, suggestions)
	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:    requests,
		requestDuration:  duration,
		ledgerAppends:    appends,
		classifyDuration: classify,
		suggestionsTotal: suggestions,
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

// Middleware records metrics for each HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveLedgerAppend counts an accepted ledger append by entry kind.
func (m *Metrics) ObserveLedgerAppend(kind string) {
	if m == nil {
		return
	}
	m.ledgerAppends.WithLabelValues(kind).Inc()
}

// ObserveClassificationRun records a full classification pass duration.
func (m *Metrics) ObserveClassificationRun(d time.Duration) {
	if m == nil {
		return
	}
	m.classifyDuration.Observe(d.Seconds())
}

// ObserveSuggestion counts a created reorder suggestion by urgency.
func (m *Metrics) ObserveSuggestion(urgency string) {
	if m == nil {
		return
	}
	m.suggestionsTotal.WithLabelValues(urgency).Inc()
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
