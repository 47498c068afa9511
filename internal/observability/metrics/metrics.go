package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"AgentTodo/internal/delegate"
	xerrors "AgentTodo/internal/errors"
)

const namespace = "agenttodo"

// Metrics holds the Prometheus collectors exported by agentd.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpErrors    *prometheus.CounterVec
	httpLatency   *prometheus.HistogramVec
	delegations   *prometheus.CounterVec
	delegationDur *prometheus.HistogramVec
	todoStatus    *prometheus.CounterVec
	plansCreated  prometheus.Counter
}

// New creates a Metrics instance backed by its own registry. Go runtime and
// process collectors are included so /metrics is useful on its own.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests processed.",
		}, []string{"handler", "method", "code"}),
		httpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_errors_total",
			Help:      "Total number of HTTP requests that resulted in a server error.",
		}, []string{"handler", "method"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"handler", "method"}),
		delegations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delegation",
			Name:      "calls_total",
			Help:      "Delegation calls by server, mode and outcome code.",
		}, []string{"server", "mode", "code"}),
		delegationDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "delegation",
			Name:      "duration_seconds",
			Help:      "Time spent waiting on delegated servers.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"server", "mode"}),
		todoStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "todo",
			Name:      "status_transitions_total",
			Help:      "Todo status transitions applied by the processor and API.",
		}, []string{"status"}),
		plansCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "planner",
			Name:      "plans_created_total",
			Help:      "Work plans created.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpErrors, m.httpLatency,
		m.delegations, m.delegationDur,
		m.todoStatus, m.plansCreated,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func (m *Metrics) ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	if status >= 500 {
		m.httpErrors.WithLabelValues(handler, method).Inc()
	}
	m.httpLatency.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// ObserveDelegation implements delegate.Observer. Successful calls carry code "OK".
func (m *Metrics) ObserveDelegation(ev delegate.Event) {
	if m == nil {
		return
	}
	code := "OK"
	if ev.Err != nil {
		code = string(xerrors.CodeOf(ev.Err))
	}
	mode := string(ev.Mode)
	if mode == "" {
		mode = "unknown"
	}
	m.delegations.WithLabelValues(ev.Server, mode, code).Inc()
	if ev.Mode != "" {
		m.delegationDur.WithLabelValues(ev.Server, mode).Observe(ev.Duration.Seconds())
	}
}

// ObserveTodoStatus counts a todo status transition.
func (m *Metrics) ObserveTodoStatus(status string) {
	if m == nil {
		return
	}
	m.todoStatus.WithLabelValues(status).Inc()
}

// ObservePlanCreated counts a created work plan.
func (m *Metrics) ObservePlanCreated() {
	if m == nil {
		return
	}
	m.plansCreated.Inc()
}

// Handler exposes the metrics in Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

var _ delegate.Observer = (*Metrics)(nil)
