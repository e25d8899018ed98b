// Package metrics exposes Prometheus instrumentation for the relay: one
// gauge/counter family per component (C3 Ingester, C4 Subscriber Session,
// C7 HTTP surface).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors registered by this process,
// against its own Registry rather than the global default — this keeps
// multiple Metrics instances (as in tests, one per case) from colliding on
// duplicate collector registration.
type Metrics struct {
	Registry *prometheus.Registry

	ActiveStreams      prometheus.Gauge
	IngesterErrors     *prometheus.CounterVec
	FramesPublished    *prometheus.CounterVec
	FramesDropped      *prometheus.CounterVec
	KeyframesPublished *prometheus.CounterVec

	ActiveSubscribers prometheus.Gauge
	SubscriberLags    *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New creates and registers all metrics against a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		ActiveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rtsp2ws_active_streams",
			Help: "Number of streams whose Ingester is currently in the Playing state",
		}),
		IngesterErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtsp2ws_ingester_errors_total",
				Help: "Fatal Ingester errors by stream path and state",
			},
			[]string{"path", "state"},
		),
		FramesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtsp2ws_frames_published_total",
				Help: "DataFrames published to a stream's broadcast channel",
			},
			[]string{"path"},
		),
		FramesDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtsp2ws_frames_dropped_total",
				Help: "Access units dropped due to a repackaging error",
			},
			[]string{"path", "reason"},
		),
		KeyframesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtsp2ws_keyframes_published_total",
				Help: "Keyframe DataFrames published to a stream's broadcast channel",
			},
			[]string{"path"},
		),
		ActiveSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rtsp2ws_active_subscribers",
			Help: "Number of currently attached Subscriber Sessions across all streams",
		}),
		SubscriberLags: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtsp2ws_subscriber_lags_total",
				Help: "Lag signals observed by Subscriber Sessions",
			},
			[]string{"path"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtsp2ws_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rtsp2ws_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// RecordIngesterStart marks a stream's Ingester reaching the Playing state.
func (m *Metrics) RecordIngesterStart() {
	m.ActiveStreams.Inc()
}

// RecordIngesterStop marks a stream's Ingester leaving the Playing state for
// good (Terminating/Done).
func (m *Metrics) RecordIngesterStop() {
	m.ActiveStreams.Dec()
}

// RecordIngesterError records a fatal error for a stream at a given state.
func (m *Metrics) RecordIngesterError(path, state string) {
	m.IngesterErrors.WithLabelValues(path, state).Inc()
}

// RecordFramePublished records a successfully repackaged access unit.
func (m *Metrics) RecordFramePublished(path string, isKeyframe bool) {
	m.FramesPublished.WithLabelValues(path).Inc()
	if isKeyframe {
		m.KeyframesPublished.WithLabelValues(path).Inc()
	}
}

// RecordFrameDropped records an access unit dropped due to a repackaging
// error.
func (m *Metrics) RecordFrameDropped(path, reason string) {
	m.FramesDropped.WithLabelValues(path, reason).Inc()
}

// RecordSubscriberStart marks a new Subscriber Session attaching.
func (m *Metrics) RecordSubscriberStart() {
	m.ActiveSubscribers.Inc()
}

// RecordSubscriberStop marks a Subscriber Session detaching.
func (m *Metrics) RecordSubscriberStop() {
	m.ActiveSubscribers.Dec()
}

// RecordSubscriberLag records a lag signal observed on a stream's channel.
func (m *Metrics) RecordSubscriberLag(path string) {
	m.SubscriberLags.WithLabelValues(path).Inc()
}

// RecordHTTPRequest records an HTTP request's outcome and latency.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, path, statusClass(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, path).Observe(durationSeconds)
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
