package metrics

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware(slog.New(slog.NewTextHandler(io.Discard, nil))))
	r.Get("/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	before := testutil.ToFloat64(HTTPRequestTotal.WithLabelValues("GET", "/orders/{id}", "404"))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/42", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	after := testutil.ToFloat64(HTTPRequestTotal.WithLabelValues("GET", "/orders/{id}", "404"))
	require.Equal(t, before+1, after)
}

func TestMiddleware_UnmatchedPathsShareOneLabel(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware(slog.New(slog.NewTextHandler(io.Discard, nil))))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {})

	before := testutil.ToFloat64(HTTPRequestTotal.WithLabelValues("GET", "unmatched", "404"))
	for _, path := range []string{"/wp-login.php", "/.env", "/admin/config.php"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}
	require.Equal(t, before+3, testutil.ToFloat64(HTTPRequestTotal.WithLabelValues("GET", "unmatched", "404")))
	require.Zero(t, testutil.ToFloat64(HTTPRequestTotal.WithLabelValues("GET", "/.env", "404")))
}
