package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func scrape(t *testing.T) []byte {
	t.Helper()
	w := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("/metrics status=%d", w.Code)
	}
	return w.Body.Bytes()
}

func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	r.Get("/things/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/things/42", nil))
	if w.Code != http.StatusAccepted {
		t.Fatalf("status=%d", w.Code)
	}
	body := scrape(t)
	if !bytes.Contains(body, []byte(`diffusiond_http_requests_total{method="GET",path="/things/{id}",status="202"}`)) {
		t.Fatalf("route pattern label missing from metrics")
	}
}

func TestRoutePatternOrPath_FallsBackToPath(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/plain", nil)
	if got := routePatternOrPath(r); got != "/plain" {
		t.Fatalf("got %q", got)
	}
}

func TestIncrementBackpressure(t *testing.T) {
	IncrementBackpressure("")
	IncrementBackpressure("queue_full")
	body := scrape(t)
	for _, want := range []string{`reason="unspecified"`, `reason="queue_full"`} {
		if !bytes.Contains(body, []byte(want)) {
			t.Fatalf("missing %s", want)
		}
	}
}
