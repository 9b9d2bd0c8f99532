package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetricsMiddlewareCountsRequests(t *testing.T) {
	m := NewMetrics(func() int { return 3 })
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/roles", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	m.ObserveAuth("valid")
	m.ObserveAuthz(true)
	m.ObserveAuthz(false)
	m.ObserveRateLimit("login", false)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	require.True(t, strings.Contains(body, `gatewarden_http_requests_total{code="418",route="unknown"} 1`), body)
	require.Contains(t, body, `gatewarden_auth_verifications_total{outcome="valid"} 1`)
	require.Contains(t, body, `gatewarden_authz_decisions_total{decision="allow"} 1`)
	require.Contains(t, body, `gatewarden_authz_decisions_total{decision="deny"} 1`)
	require.Contains(t, body, `gatewarden_ratelimit_decisions_total{class="login",decision="deny"} 1`)
	require.Contains(t, body, `gatewarden_ratelimit_tracked_callers 3`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAuth("valid")
	m.ObserveAuthz(true)
	m.ObserveRateLimit("login", true)

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
