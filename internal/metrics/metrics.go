// Package metrics holds the Prometheus collectors shared by the storefront
// services. Each process builds its own registry so tests can create as many
// instances as they like.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const unmatchedRoute = "unmatched"

type Metrics struct {
	registry *prometheus.Registry

	Requests       *prometheus.CounterVec
	Duration       *prometheus.HistogramVec
	AuthRejections *prometheus.CounterVec
	Upstream       *prometheus.CounterVec
	Orders         *prometheus.CounterVec
	Events         *prometheus.CounterVec
}

func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		AuthRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "auth_rejections_total",
			Help: "Requests refused before forwarding, by reason.",
		}, []string{"reason"}),
		Upstream: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "upstream_requests_total",
			Help: "Outbound calls by target service and outcome.",
		}, []string{"target", "outcome"}),
		Orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_total",
			Help: "Order placements by outcome.",
		}, []string{"outcome"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_published_total",
			Help: "Domain event publications by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.Requests, m.Duration, m.AuthRejections, m.Upstream, m.Orders, m.Events)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RouteFunc returns the low-cardinality route template of a served request.
// It runs after the handler has returned.
type RouteFunc func(*http.Request) string

// PatternRoute reads the pattern set by http.ServeMux.
func PatternRoute(r *http.Request) string {
	return r.Pattern
}

// Middleware records request count and latency. route may be nil, in which
// case PatternRoute is used.
func (m *Metrics) Middleware(route RouteFunc) func(http.Handler) http.Handler {
	if route == nil {
		route = PatternRoute
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			label := route(r)
			if label == "" {
				label = unmatchedRoute
			}
			status := strconv.Itoa(rec.status)
			m.Requests.WithLabelValues(r.Method, label, status).Inc()
			m.Duration.WithLabelValues(r.Method, label, status).Observe(time.Since(start).Seconds())
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Unwrap() http.ResponseWriter { return w.ResponseWriter }
