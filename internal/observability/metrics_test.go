package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMetricsMiddlewareRecordsRequests(t *testing.T) {
	m := NewMetrics()
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/ledger/balance/item-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTeapot, rec.Code)

	scrape := httptest.NewRecorder()
	m.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := scrape.Body.String()
	require.Contains(t, body, "atlas_http_requests_total")
	require.Contains(t, body, `code="418"`)
}

func TestEngineMetricsExposed(t *testing.T) {
	m := NewMetrics()
	m.ObserveLedgerAppend("RECEIPT")
	m.ObserveClassificationRun(1200 * time.Millisecond)
	m.ObserveSuggestion("CRITICAL")

	scrape := httptest.NewRecorder()
	m.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := scrape.Body.String()
	require.Contains(t, body, `atlas_ledger_appends_total{kind="RECEIPT"} 1`)
	require.Contains(t, body, `atlas_reorder_suggestions_total{urgency="CRITICAL"} 1`)
	require.True(t, strings.Contains(body, "atlas_classification_run_duration_seconds"))
}

func TestNilMetricsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveLedgerAppend("ISSUE")
	m.ObserveClassificationRun(time.Second)
	m.ObserveSuggestion("LOW")
	require.NotNil(t, m.Handler())
}
