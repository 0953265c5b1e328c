/*
Package metrics implements the prometheus instrumentation of the
gateway edge: request counts and latency by route rule and status,
breaker state transitions and authentication failures by kind.
*/
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	promNamespace        = "gateway"
	promServeSubsystem   = "serve"
	promBreakerSubsystem = "breaker"
	promAuthSubsystem    = "auth"
	promProxySubsystem   = "backend"
)

// Options for initializing metrics collection.
type Options struct {
	// Prefix overrides the default metric namespace.
	Prefix string

	// EnableRuntimeMetrics adds the Go runtime collectors.
	EnableRuntimeMetrics bool
}

// Metrics is the prometheus backend of the gateway instrumentation.
type Metrics struct {
	serveRouteM        *prometheus.HistogramVec
	serveRouteCounterM *prometheus.CounterVec
	routeErrorsM       prometheus.Counter
	breakerM           *prometheus.CounterVec
	breakerRejectedM   *prometheus.CounterVec
	authFailuresM      *prometheus.CounterVec
	backendRetriesM    *prometheus.CounterVec

	registry *prometheus.Registry
	handler  http.Handler
}

// New returns an initialized prometheus metrics backend.
func New(opts Options) *Metrics {
	namespace := promNamespace
	if opts.Prefix != "" {
		namespace = opts.Prefix
	}

	serveRoute := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: promServeSubsystem,
		Name:      "route_duration_seconds",
		Help:      "Duration in seconds of serving a route.",
	}, []string{"route", "code"})

	serveRouteCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: promServeSubsystem,
		Name:      "route_count",
		Help:      "Total number of requests by route and status code.",
	}, []string{"route", "code"})

	routeErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: promServeSubsystem,
		Name:      "route_error_total",
		Help:      "Total number of requests that matched no route.",
	})

	breaker := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: promBreakerSubsystem,
		Name:      "transition_total",
		Help:      "Total number of circuit breaker state transitions.",
	}, []string{"breaker", "from", "to"})

	breakerRejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: promBreakerSubsystem,
		Name:      "rejected_total",
		Help:      "Total number of requests short-circuited by an open breaker.",
	}, []string{"breaker"})

	authFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: promAuthSubsystem,
		Name:      "failure_total",
		Help:      "Total number of rejected tokens by rejection kind.",
	}, []string{"kind"})

	backendRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: promProxySubsystem,
		Name:      "retry_total",
		Help:      "Total number of retried upstream attempts.",
	}, []string{"service"})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		serveRoute,
		serveRouteCounter,
		routeErrors,
		breaker,
		breakerRejected,
		authFailures,
		backendRetries,
	)

	if opts.EnableRuntimeMetrics {
		registry.MustRegister(
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewGoCollector(),
		)
	}

	return &Metrics{
		serveRouteM:        serveRoute,
		serveRouteCounterM: serveRouteCounter,
		routeErrorsM:       routeErrors,
		breakerM:           breaker,
		breakerRejectedM:   breakerRejected,
		authFailuresM:      authFailures,
		backendRetriesM:    backendRetries,
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
}

// MeasureServe records one served request.
func (m *Metrics) MeasureServe(route string, code int, start time.Time) {
	labels := prometheus.Labels{"route": route, "code": strconv.Itoa(code)}
	m.serveRouteM.With(labels).Observe(time.Since(start).Seconds())
	m.serveRouteCounterM.With(labels).Inc()
}

// IncRoutingFailures counts a request without a matching rule.
func (m *Metrics) IncRoutingFailures() {
	m.routeErrorsM.Inc()
}

// IncBreakerTransition counts a breaker state change.
func (m *Metrics) IncBreakerTransition(breaker, from, to string) {
	m.breakerM.With(prometheus.Labels{"breaker": breaker, "from": from, "to": to}).Inc()
}

// IncBreakerRejected counts a request short-circuited by an open breaker.
func (m *Metrics) IncBreakerRejected(breaker string) {
	m.breakerRejectedM.With(prometheus.Labels{"breaker": breaker}).Inc()
}

// IncAuthFailure counts a rejected token by rejection kind.
func (m *Metrics) IncAuthFailure(kind string) {
	m.authFailuresM.With(prometheus.Labels{"kind": kind}).Inc()
}

// IncBackendRetry counts a retried attempt against a service.
func (m *Metrics) IncBackendRetry(service string) {
	m.backendRetriesM.With(prometheus.Labels{"service": service}).Inc()
}

// Handler exposes the collected metrics for scraping.
func (m *Metrics) Handler() http.Handler {
	return m.handler
}
