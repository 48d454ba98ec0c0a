// Package metrics exposes Prometheus counters for HTTP traffic and ward
// activity.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Manager struct {
	namespace string
	buckets   []float64
	registry  *prometheus.Registry

	httpRequests         *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	episodesAdmitted     prometheus.Counter
	consistencyConflicts *prometheus.CounterVec
	eventsPublished      *prometheus.CounterVec
	loginFailures        prometheus.Counter
}

type Option func(*Manager)

func WithNamespace(ns string) Option {
	return func(m *Manager) {
		if ns != "" {
			m.namespace = ns
		}
	}
}

func WithRegistry(r *prometheus.Registry) Option {
	return func(m *Manager) {
		if r != nil {
			m.registry = r
		}
	}
}

func WithHistogramBuckets(b []float64) Option {
	return func(m *Manager) {
		if len(b) > 0 {
			m.buckets = b
		}
	}
}

// NewManager registers all collectors on its own registry so that tests can
// create as many managers as they like.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "tracker",
		buckets:   prometheus.DefBuckets,
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}

	auto := promauto.With(m.registry)
	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method and route.",
		Buckets:   m.buckets,
	}, []string{"method", "route"})
	m.episodesAdmitted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "episodes_admitted_total",
		Help:      "Episodes created through admission or copy to category.",
	})
	m.consistencyConflicts = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "consistency_conflicts_total",
		Help:      "Updates rejected because the item had changed.",
	}, []string{"kind"})
	m.eventsPublished = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "events_published_total",
		Help:      "Domain events published by type and outcome.",
	}, []string{"type", "outcome"})
	m.loginFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "login_failures_total",
		Help:      "Rejected login attempts.",
	})
	return m
}

func (m *Manager) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// Middleware records request counts and latency keyed by the matched route
// pattern, so path parameters do not explode label cardinality.
func (m *Manager) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				status = http.StatusInternalServerError
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.httpRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func (m *Manager) EpisodeAdmitted() {
	if m == nil {
		return
	}
	m.episodesAdmitted.Inc()
}

func (m *Manager) ConsistencyConflict(kind string) {
	if m == nil {
		return
	}
	m.consistencyConflicts.WithLabelValues(kind).Inc()
}

func (m *Manager) EventPublished(eventType string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.eventsPublished.WithLabelValues(eventType, outcome).Inc()
}

func (m *Manager) LoginFailed() {
	if m == nil {
		return
	}
	m.loginFailures.Inc()
}
