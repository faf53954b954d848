// Package metrics holds the Prometheus collectors of the simulator.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "valora"

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	gatherer prometheus.Gatherer

	TicksTotal       *prometheus.CounterVec
	TickDuration     prometheus.Histogram
	SnapshotDuration prometheus.Histogram
	Products         prometheus.Gauge
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		gatherer: reg,
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Simulation ticks by result.",
		}, []string{"result"}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent producing and storing one price.",
			Buckets:   prometheus.DefBuckets,
		}),
		SnapshotDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_duration_seconds",
			Help:      "Time spent building a dashboard snapshot.",
			Buckets:   prometheus.DefBuckets,
		}),
		Products: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "products",
			Help:      "Products seen by the last snapshot.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(
		m.TicksTotal, m.TickDuration, m.SnapshotDuration, m.Products,
		m.HTTPRequests, m.HTTPDuration,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) ObserveTick(start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.TicksTotal.WithLabelValues(result).Inc()
	m.TickDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveSnapshot(start time.Time, products int) {
	if m == nil {
		return
	}
	m.SnapshotDuration.Observe(time.Since(start).Seconds())
	m.Products.Set(float64(products))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// GinMiddleware records every request under its route template.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
