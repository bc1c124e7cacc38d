// Package metrics holds the Prometheus collectors for the HTTP surface and
// the maintenance workflow. All recording methods are safe on a nil
// *Metrics so services can run without instrumentation.
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

const namespace = "garage"

type Metrics struct {
	Registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	recordsCreated  *prometheus.CounterVec
	recordFailures  prometheus.Counter
	mileageSync     *prometheus.CounterVec
	indexFallbacks  prometheus.Counter
	liveSubscribers *prometheus.GaugeVec
	orphanedRecords prometheus.Gauge
	cacheLookups    *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "path"}),
		recordsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "maintenance",
			Name:      "records_created_total",
			Help:      "Maintenance records written, by type.",
		}, []string{"type"}),
		recordFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "maintenance",
			Name:      "record_write_failures_total",
			Help:      "Maintenance record writes that failed.",
		}),
		mileageSync: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "maintenance",
			Name:      "mileage_sync_total",
			Help:      "Vehicle mileage updates after a record write, by outcome.",
		}, []string{"outcome"}),
		indexFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "maintenance",
			Name:      "index_fallbacks_total",
			Help:      "History reads that fell back to an unordered query.",
		}),
		liveSubscribers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "subscriptions",
			Help:      "Open live query subscriptions, by view.",
		}, []string{"view"}),
		orphanedRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "maintenance",
			Name:      "orphaned_vehicle_ids",
			Help:      "Vehicle IDs referenced by maintenance records but no longer stored.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups, by kind and result.",
		}, []string{"kind", "result"}),
	}

	m.Registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.recordsCreated,
		m.recordFailures,
		m.mileageSync,
		m.indexFallbacks,
		m.liveSubscribers,
		m.orphanedRecords,
		m.cacheLookups,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Middleware records request count and latency keyed by the matched route,
// so /vehicles/:id is one series rather than one per vehicle.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil || c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) RecordCreated(recordType string) {
	if m != nil {
		m.recordsCreated.WithLabelValues(recordType).Inc()
	}
}

func (m *Metrics) RecordWriteFailed() {
	if m != nil {
		m.recordFailures.Inc()
	}
}

// MileageSynced counts a post-write mileage update; outcome is "ok",
// "decreased" or "failed".
func (m *Metrics) MileageSynced(outcome string) {
	if m != nil {
		m.mileageSync.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IndexFallback() {
	if m != nil {
		m.indexFallbacks.Inc()
	}
}

func (m *Metrics) SubscriptionOpened(view string) {
	if m != nil {
		m.liveSubscribers.WithLabelValues(view).Inc()
	}
}

func (m *Metrics) SubscriptionClosed(view string) {
	if m != nil {
		m.liveSubscribers.WithLabelValues(view).Dec()
	}
}

func (m *Metrics) SetOrphanedVehicles(n int) {
	if m != nil {
		m.orphanedRecords.Set(float64(n))
	}
}

func (m *Metrics) CacheLookup(kind string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(kind, result).Inc()
}
