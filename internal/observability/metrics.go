// Package observability exposes Prometheus metrics for the HTTP surface and
// the authorization pipeline.
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
	authDecisions   *prometheus.CounterVec
	authzDecisions  *prometheus.CounterVec
	rateDecisions   *prometheus.CounterVec
	trackedCallers  prometheus.GaugeFunc
}

// NewMetrics initialises the registry and the base metric set.
func NewMetrics(callerCount func() int) *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gatewarden_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gatewarden_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	authDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gatewarden_auth_verifications_total",
		Help: "Token verifications by outcome.",
	}, []string{"outcome"})
	authzDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gatewarden_authz_decisions_total",
		Help: "Permission evaluations by decision.",
	}, []string{"decision"})
	rateDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gatewarden_ratelimit_decisions_total",
		Help: "Rate governor admissions and rejections by traffic class.",
	}, []string{"class", "decision"})
	registry.MustRegister(requests, duration, authDecisions, authzDecisions, rateDecisions)

	m := &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		authDecisions:   authDecisions,
		authzDecisions:  authzDecisions,
		rateDecisions:   rateDecisions,
	}
	if callerCount != nil {
		m.trackedCallers = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "gatewarden_ratelimit_tracked_callers",
			Help: "Callers currently tracked by the rate governor.",
		}, func() float64 { return float64(callerCount()) })
		registry.MustRegister(m.trackedCallers)
	}
	return m
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

// Middleware records request metrics for every HTTP request.
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

// ObserveAuth counts one token verification outcome.
func (m *Metrics) ObserveAuth(outcome string) {
	if m == nil {
		return
	}
	m.authDecisions.WithLabelValues(outcome).Inc()
}

// ObserveAuthz counts one permission evaluation.
func (m *Metrics) ObserveAuthz(allowed bool) {
	if m == nil {
		return
	}
	m.authzDecisions.WithLabelValues(decisionLabel(allowed)).Inc()
}

// ObserveRateLimit counts one admission decision.
func (m *Metrics) ObserveRateLimit(class string, allowed bool) {
	if m == nil {
		return
	}
	m.rateDecisions.WithLabelValues(class, decisionLabel(allowed)).Inc()
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

func decisionLabel(allowed bool) string {
	if allowed {
		return "allow"
	}
	return "deny"
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
