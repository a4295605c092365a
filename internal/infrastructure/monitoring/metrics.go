package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. Every instance owns its registry so
// several bridges (and tests) can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics (diagnostics server)
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Command metrics
	CallsTotal   *prometheus.CounterVec
	CallDuration *prometheus.HistogramVec
	CallsPending prometheus.Gauge
	Unmatched    prometheus.Counter

	// Event metrics
	EventsTotal      *prometheus.CounterVec
	ListenerFailures *prometheus.CounterVec

	// WebSocket metrics
	WSMessages *prometheus.CounterVec
	Reconnects *prometheus.CounterVec

	// Launcher metrics
	Launches          *prometheus.CounterVec
	HandshakeDuration prometheus.Histogram

	// Fetcher metrics
	Downloads     *prometheus.CounterVec
	DownloadBytes prometheus.Counter

	// Session metrics
	SessionsKnown prometheus.Gauge

	startTime time.Time

	// Snapshot for JSON API
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalCalls       int64
	FailedCalls      int64
	TotalEvents      int64
	ListenerFailures int64
	Unmatched        int64
	TotalDuration    float64 // sum of all call durations
}

// NewMetrics creates a new metrics collector on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devbridge_http_requests_total",
				Help: "Total number of diagnostics HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "devbridge_http_request_duration_seconds",
				Help:    "Diagnostics HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "path"},
		),

		CallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devbridge_calls_total",
				Help: "Total number of protocol commands sent",
			},
			[]string{"domain", "method", "status"},
		),
		CallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "devbridge_call_duration_seconds",
				Help:    "Protocol command round trip in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"domain", "method"},
		),
		CallsPending: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "devbridge_calls_pending",
				Help: "Number of commands awaiting a response",
			},
		),
		Unmatched: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "devbridge_unmatched_responses_total",
				Help: "Responses whose id matched no pending command",
			},
		),

		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devbridge_events_total",
				Help: "Total number of inbound events dispatched",
			},
			[]string{"method"},
		),
		ListenerFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devbridge_listener_failures_total",
				Help: "Listener invocations that returned an error or panicked",
			},
			[]string{"method"},
		),

		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devbridge_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
		Reconnects: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devbridge_reconnects_total",
				Help: "Reconnect attempts by outcome",
			},
			[]string{"result"},
		),

		Launches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devbridge_launches_total",
				Help: "Browser launches by outcome",
			},
			[]string{"result"},
		),
		HandshakeDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "devbridge_handshake_duration_seconds",
				Help:    "Time from spawn to endpoint discovery",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),

		Downloads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devbridge_downloads_total",
				Help: "Browser downloads by outcome",
			},
			[]string{"result"},
		),
		DownloadBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "devbridge_download_bytes_total",
				Help: "Bytes of browser archives downloaded",
			},
		),

		SessionsKnown: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "devbridge_sessions_known",
				Help: "Number of distinct target sessions observed",
			},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "devbridge_uptime_seconds",
			Help: "Bridge uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the registry backing these metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus exposition handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records a diagnostics HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordCall records a completed protocol command
func (m *Metrics) RecordCall(domain, method, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.CallsTotal.WithLabelValues(domain, method, status).Inc()
	m.CallDuration.WithLabelValues(domain, method).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalCalls++
	m.snapshot.TotalDuration += duration.Seconds()
	if status != StatusOK {
		m.snapshot.FailedCalls++
	}
	m.mu.Unlock()
}

// SetPending sets the number of in-flight commands
func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.CallsPending.Set(float64(n))
}

// IncUnmatched counts a response nobody was waiting for
func (m *Metrics) IncUnmatched() {
	if m == nil {
		return
	}
	m.Unmatched.Inc()
	m.mu.Lock()
	m.snapshot.Unmatched++
	m.mu.Unlock()
}

// RecordEvent records a dispatched event
func (m *Metrics) RecordEvent(method string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(method).Inc()
	m.mu.Lock()
	m.snapshot.TotalEvents++
	m.mu.Unlock()
}

// RecordListenerFailure records a listener that errored or panicked
func (m *Metrics) RecordListenerFailure(method string) {
	if m == nil {
		return
	}
	m.ListenerFailures.WithLabelValues(method).Inc()
	m.mu.Lock()
	m.snapshot.ListenerFailures++
	m.mu.Unlock()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// RecordReconnect records a reconnect attempt
func (m *Metrics) RecordReconnect(result string) {
	if m == nil {
		return
	}
	m.Reconnects.WithLabelValues(result).Inc()
}

// RecordLaunch records a browser launch and, on success, its handshake time
func (m *Metrics) RecordLaunch(result string, handshake time.Duration) {
	if m == nil {
		return
	}
	m.Launches.WithLabelValues(result).Inc()
	if result == StatusOK {
		m.HandshakeDuration.Observe(handshake.Seconds())
	}
}

// RecordDownload records a browser download
func (m *Metrics) RecordDownload(result string, bytes int64) {
	if m == nil {
		return
	}
	m.Downloads.WithLabelValues(result).Inc()
	m.DownloadBytes.Add(float64(bytes))
}

// SetSessionsKnown sets the number of known sessions
func (m *Metrics) SetSessionsKnown(n int) {
	if m == nil {
		return
	}
	m.SessionsKnown.Set(float64(n))
}
