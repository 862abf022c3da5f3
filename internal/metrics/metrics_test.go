package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveRequest(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := NewHTTP(reg)
	require.NoError(t, err)

	m.ObserveRequest(http.MethodGet, "/v1/runs", http.StatusOK, 20*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "/v1/runs", http.StatusOK, 30*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "/v1/runs/{run_id}", http.StatusNotFound, time.Millisecond)

	require.InDelta(t, 2, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/v1/runs", "200")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/v1/runs/{run_id}", "404")), 0)
	require.Equal(t, 2, testutil.CollectAndCount(m.duration))
}

func TestNewHTTPReusesRegisteredCollectors(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	first, err := NewHTTP(reg)
	require.NoError(t, err)
	second, err := NewHTTP(reg)
	require.NoError(t, err)
	require.Same(t, first.requests, second.requests)

	var nilMetrics *HTTP
	nilMetrics.ObserveRequest("GET", "/", 200, time.Second)
}

func TestHandlerServesRegistry(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := NewHTTP(reg)
	require.NoError(t, err)
	m.ObserveRequest(http.MethodGet, "/healthz", http.StatusOK, time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "content_crawler_http_requests_total"))
}
