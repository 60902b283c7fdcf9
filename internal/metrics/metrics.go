package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	MarkAttempts *prometheus.CounterVec
	MarkDuration prometheus.Histogram
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	Archived     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MarkAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "mark_attempts_total",
			Help:      "Mark calls by outcome and failure reason.",
		}, []string{"outcome", "reason"}),
		MarkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "attendance",
			Name:      "mark_duration_seconds",
			Help:      "Wall time of a mark call including face verification.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "attendance",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		Archived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "evidence_archived_total",
			Help:      "Failed-attempt captures processed by the worker.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.MarkAttempts, m.MarkDuration, m.HTTPRequests, m.HTTPDuration, m.Archived)
	return m
}

// ObserveMark records one mark call.
func (m *Metrics) ObserveMark(outcome, reason string, elapsed time.Duration) {
	m.MarkAttempts.WithLabelValues(outcome, reason).Inc()
	m.MarkDuration.Observe(elapsed.Seconds())
}

// ObserveArchive records one evidence archiving result.
func (m *Metrics) ObserveArchive(result string) {
	m.Archived.WithLabelValues(result).Inc()
}

// GinMiddleware counts requests by matched route so path parameters do not
// explode label cardinality.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
