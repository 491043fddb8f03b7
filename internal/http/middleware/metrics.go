// Prometheus instrumentation for HTTP traffic and capture outcomes.
//
// Label cardinality is bounded: "path" is the registered route template
// (/record/:slug, never the concrete slug) and unmatched requests share the
// "unmatched" label.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Capture outcomes reported through ObserveCapture.
const (
	CaptureStored   = "stored"
	CaptureNotFound = "not_found"
	CaptureFailed   = "failed"
	CaptureViewer   = "viewer"
)

const unmatchedPath = "unmatched"

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	// Status is left out to keep the histogram small.
	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	httpRespSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_response_size_bytes",
			Help: "Size of HTTP responses in bytes.",
			Buckets: []float64{
				64, 256, 1 << 10, 4 << 10, 16 << 10,
				64 << 10, 256 << 10, 1 << 20, 4 << 20,
			},
		},
		[]string{"method", "path"},
	)

	captures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "captures_total",
			Help: "Calls to /record/:slug by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize, captures)
}

// ObserveCapture counts one /record call under outcome.
func ObserveCapture(outcome string) {
	captures.WithLabelValues(outcome).Inc()
}

// Metrics records request count, latency, in-flight gauge and response size
// per route. Hijacked connections (websockets) report no size and are
// skipped by the size histogram.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = unmatchedPath
		}
		method := c.Request.Method

		httpReqs.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}
