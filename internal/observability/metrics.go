// Package observability exposes the console's Prometheus metrics.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/security-console/internal/access"
)

// Metrics collects Prometheus metrics for the console.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	gateDecisions   *prometheus.CounterVec
	auditRecords    *prometheus.CounterVec
	auditFailures   *prometheus.CounterVec
	commits         *prometheus.CounterVec
}

// NewMetrics initialises the registry and every console collector.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "console_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "console_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "console_gate_decisions_total",
		Help: "Authorization decisions by permission code and outcome.",
	}, []string{"code", "decision"})
	records := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "console_audit_records_total",
		Help: "Audit records dispatched by function code and outcome of the audited operation.",
	}, []string{"function", "outcome"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "console_audit_dispatch_failures_total",
		Help: "Audit records that could not be handed to the sink.",
	}, []string{"function"})
	commits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "console_assignment_commits_total",
		Help: "Assignment commits by relation and status.",
	}, []string{"relation", "status"})
	registry.MustRegister(requests, duration, decisions, records, failures, commits)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		gateDecisions:   decisions,
		auditRecords:    records,
		auditFailures:   failures,
		commits:         commits,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
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
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveDecision counts a gate decision.
func (m *Metrics) ObserveDecision(code string, decision access.Decision) {
	if m == nil {
		return
	}
	m.gateDecisions.WithLabelValues(code, decision.String()).Inc()
}

// ObserveAudit counts a dispatched audit record.
func (m *Metrics) ObserveAudit(functionCode string, success bool, dispatchErr error) {
	if m == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.auditRecords.WithLabelValues(functionCode, outcome).Inc()
	if dispatchErr != nil {
		m.auditFailures.WithLabelValues(functionCode).Inc()
	}
}

// ObserveCommit counts an assignment commit.
func (m *Metrics) ObserveCommit(relation string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.commits.WithLabelValues(relation, status).Inc()
}

// Registerer exposes the registry for custom collectors.
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
