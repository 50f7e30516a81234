// Package metrics provides Prometheus metrics for the sandbox filesystem, the
// change notification bus and the live preview pipeline.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fsOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "litterbox_vfs_operations_total",
			Help: "Total number of virtual filesystem operations",
		},
		[]string{"op", "result"},
	)

	notifyEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "litterbox_notify_events_total",
			Help: "Change events by stage (emitted, delivered, dropped)",
		},
		[]string{"stage"},
	)

	notifyFlushesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "litterbox_notify_flushes_total",
			Help: "Total number of change bus flushes",
		},
	)

	previewRebuildsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "litterbox_preview_rebuilds_total",
			Help: "Total number of full document rebuilds",
		},
	)

	previewStylePatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "litterbox_preview_style_patches_total",
			Help: "Total number of style-only updates pushed without a rebuild",
		},
	)

	composeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "litterbox_compose_duration_seconds",
			Help:    "Document composition duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
	)

	bridgeMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "litterbox_bridge_messages_total",
			Help: "Messages crossing the rendering surface bridge",
		},
		[]string{"direction", "command"},
	)

	websocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "litterbox_websocket_clients",
			Help: "Currently connected rendering surface clients",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "litterbox_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "litterbox_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordFSOperation counts a store operation; err == nil counts as "ok".
func RecordFSOperation(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	fsOperationsTotal.WithLabelValues(op, result).Inc()
}

// RecordEvents counts change events at a bus stage.
func RecordEvents(stage string, n int) {
	if n <= 0 {
		return
	}
	notifyEventsTotal.WithLabelValues(stage).Add(float64(n))
}

// RecordFlush counts one bus flush.
func RecordFlush() {
	notifyFlushesTotal.Inc()
}

// RecordRebuild counts a full rebuild and its composition time.
func RecordRebuild(duration time.Duration) {
	previewRebuildsTotal.Inc()
	composeDuration.Observe(duration.Seconds())
}

// RecordStylePatch counts a style-only update.
func RecordStylePatch() {
	previewStylePatchesTotal.Inc()
}

// RecordBridgeMessage counts a message; direction is "in" or "out".
func RecordBridgeMessage(direction, command string) {
	bridgeMessagesTotal.WithLabelValues(direction, command).Inc()
}

// SetWebSocketClients sets the connected client gauge.
func SetWebSocketClients(n int) {
	websocketClients.Set(float64(n))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack keeps WebSocket upgrades working behind the middleware.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: underlying ResponseWriter is not a Hijacker")
	}
	rw.statusCode = http.StatusSwitchingProtocols

	return hj.Hijack()
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request counts and durations by route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		RecordHTTPRequest(r.Method, route, rw.statusCode, time.Since(start))
	})
}
