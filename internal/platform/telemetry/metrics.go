package telemetry

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "symptra"

var opBuckets = []float64{
	0.0005, 0.001, 0.002, 0.005,
	0.01, 0.02, 0.05, 0.1,
	0.2, 0.5, 1, 2,
}

// Metrics holds every collector the server exports on /metrics.
type Metrics struct {
	registry *prometheus.Registry

	RequestsSubmitted *prometheus.CounterVec
	RequestsDecided   *prometheus.CounterVec
	OpDuration        *prometheus.HistogramVec
	EventsPublished   *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	WorkflowChanges   *prometheus.CounterVec
}

// NewMetrics registers collectors on a private registry so tests can build
// as many instances as they like.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestsSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_submitted_total",
			Help:      "Submission attempts by request type and result.",
		}, []string{"type", "result"}),
		RequestsDecided: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_decided_total",
			Help:      "Review decisions by outcome and result.",
		}, []string{"decision", "result"}),
		OpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_op_seconds",
			Help:      "Latency of request workflow operations.",
			Buckets:   opBuckets,
		}, []string{"op"}),
		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Decision events handed to each sink, by result.",
		}, []string{"sink", "result"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		WorkflowChanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_changes_total",
			Help:      "Audited state-changing API calls by action and HTTP status.",
		}, []string{"action", "status"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveOp records how long op took.
func (m *Metrics) ObserveOp(op string, start time.Time) {
	m.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// RecordWorkflowChange counts one audited call.
func (m *Metrics) RecordWorkflowChange(action string, status int) {
	m.WorkflowChanges.WithLabelValues(action, strconv.Itoa(status)).Inc()
}

// RegisterPoolGauges exports database pool occupancy read through stat.
func (m *Metrics) RegisterPoolGauges(stat func() (total, idle, acquired int32)) {
	gauge := func(name, help string, pick func(t, i, a int32) int32) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db_pool",
			Name:      name,
			Help:      help,
		}, func() float64 {
			t, i, a := stat()
			return float64(pick(t, i, a))
		})
	}
	m.registry.MustRegister(
		gauge("total_conns", "Open connections.", func(t, _, _ int32) int32 { return t }),
		gauge("idle_conns", "Idle connections.", func(_, i, _ int32) int32 { return i }),
		gauge("acquired_conns", "Connections in use.", func(_, _, a int32) int32 { return a }),
	)
}

// Middleware counts and times HTTP requests by route template.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			method := c.Request().Method
			m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.HTTPDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
