package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveOperation(t *testing.T) {
	m := New()
	m.ObserveOperation("create", "committed", 10*time.Millisecond)
	m.ObserveOperation("create", "committed", 10*time.Millisecond)
	m.ObserveOperation("create", "insufficient_stock", time.Millisecond)

	if got := testutil.ToFloat64(m.operationsTotal.WithLabelValues("create", "committed")); got != 2 {
		t.Errorf("committed = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.operationsTotal.WithLabelValues("create", "insufficient_stock")); got != 1 {
		t.Errorf("insufficient_stock = %v, want 1", got)
	}
}

func TestObserveStockAdjustment(t *testing.T) {
	m := New()
	m.ObserveStockAdjustment(1, -3)
	m.ObserveStockAdjustment(2, 2)
	m.ObserveStockAdjustment(2, 0)

	if got := testutil.ToFloat64(m.stockAdjustments.WithLabelValues("debit")); got != 3 {
		t.Errorf("debit = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.stockAdjustments.WithLabelValues("credit")); got != 2 {
		t.Errorf("credit = %v, want 2", got)
	}
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/orders/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", m.Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/17", nil))

	if got := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/orders/{id}", "404")); got != 1 {
		t.Errorf("requests = %v, want 1", got)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "http_requests_total") {
		t.Error("metrics endpoint does not expose http_requests_total")
	}
}
