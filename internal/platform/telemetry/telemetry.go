// Package telemetry exposes Prometheus metrics for the HTTP layer and the
// ward workflows.
package telemetry

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ward"

// Metrics owns a private registry so several instances (tests) never
// collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	admissions  *prometheus.CounterVec
	transfers   *prometheus.CounterVec
	discharges  *prometheus.CounterVec
	cascadeStep *prometheus.CounterVec
	events      *prometheus.CounterVec
	logins      *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status_code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Patient admissions by outcome",
		}, []string{"outcome"}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Patient bed transfers by outcome",
		}, []string{"outcome"}),
		discharges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discharges_total",
			Help:      "Patient discharges by outcome",
		}, []string{"outcome"}),
		cascadeStep: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "care_unit_cascade_steps_total",
			Help:      "Care unit deletion cascade steps by step and outcome",
		}, []string{"step", "outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Ward events handed to the broker by type and outcome",
		}, []string{"type", "outcome"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpDuration,
		m.admissions, m.transfers, m.discharges,
		m.cascadeStep, m.events, m.logins,
	)
	return m
}

// Outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomeConflict = "conflict"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

func (m *Metrics) Admission(outcome string) { m.admissions.WithLabelValues(outcome).Inc() }
func (m *Metrics) Transfer(outcome string)  { m.transfers.WithLabelValues(outcome).Inc() }
func (m *Metrics) Discharge(outcome string) { m.discharges.WithLabelValues(outcome).Inc() }
func (m *Metrics) Login(outcome string)     { m.logins.WithLabelValues(outcome).Inc() }

func (m *Metrics) CascadeStep(step, outcome string) {
	m.cascadeStep.WithLabelValues(step, outcome).Inc()
}

func (m *Metrics) EventPublished(eventType, outcome string) {
	m.events.WithLabelValues(eventType, outcome).Inc()
}

// Middleware records request count and latency per registered route, so
// ids in the URL do not explode label cardinality.
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
			if err != nil {
				status = statusOf(err)
			}

			method := c.Request().Method
			m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

type statusCoder interface{ Status() int }

func statusOf(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.Status()
	}
	return http.StatusInternalServerError
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
