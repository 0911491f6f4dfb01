package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/sources", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/search", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	ok := httpRequestsTotal.WithLabelValues("GET", "200")
	bad := httpRequestsTotal.WithLabelValues("POST", "400")
	okBefore := testutil.ToFloat64(ok)
	badBefore := testutil.ToFloat64(bad)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sources", nil))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/search", nil))

	if val := testutil.ToFloat64(ok); val != okBefore+1 {
		t.Errorf("Expected httpRequestsTotal for GET /sources to grow by 1, got %f", val-okBefore)
	}
	if val := testutil.ToFloat64(bad); val != badBefore+1 {
		t.Errorf("Expected httpRequestsTotal for POST /search to grow by 1, got %f", val-badBefore)
	}
	if val := testutil.CollectAndCount(httpRequestDurationSeconds); val <= 0 {
		t.Errorf("Expected httpRequestDurationSeconds to be observed, got %d", val)
	}
}
