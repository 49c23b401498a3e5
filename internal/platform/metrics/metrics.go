package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Path is where the metrics endpoint is mounted.
const Path = "/metrics"

// Transcoder exit results recorded by IncTranscoderExits.
const (
	ExitClean       = "clean"
	ExitError       = "error"
	ExitSpawnFailed = "spawn_failed"
	ExitStopped     = "stopped"
)

// Metrics holds Prometheus counters and gauges for the live stream service.
type Metrics struct {
	registry              *prometheus.Registry
	requestsTotal         prometheus.Counter
	errorsTotal           prometheus.Counter
	hookEventsTotal       *prometheus.CounterVec
	publishesTotal        prometheus.Counter
	publishRejectedTotal  prometheus.Counter
	kicksTotal            *prometheus.CounterVec
	transcoderStartsTotal prometheus.Counter
	transcoderExitsTotal  *prometheus.CounterVec
	live                  prometheus.Gauge
	viewers               prometheus.Gauge
	activeSessions        prometheus.Gauge
}

// New creates and registers Prometheus metrics for the service.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "live_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "live_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	hookEventsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "live_hook_events_total",
		Help: "Lifecycle hook events received from the ingest server, by event",
	}, []string{"event"})
	publishesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "live_publishes_total",
		Help: "Total number of publish sessions that went live",
	})
	publishRejectedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "live_publish_rejected_total",
		Help: "Total number of publish attempts rejected for a bad stream key",
	})
	kicksTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "live_kicks_total",
		Help: "Ingest sessions the ingest server was asked to drop, by result",
	}, []string{"result"})
	transcoderStartsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "live_transcoder_starts_total",
		Help: "Total number of ffmpeg processes launched",
	})
	transcoderExitsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "live_transcoder_exits_total",
		Help: "Total number of ffmpeg process exits, by result",
	}, []string{"result"})
	live := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "live_stream_live",
		Help: "1 while a publish session is live, 0 otherwise",
	})
	viewers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "live_viewers",
		Help: "Number of connected players",
	})
	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "live_active_sessions",
		Help: "Number of registered publish sessions",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		hookEventsTotal,
		publishesTotal,
		publishRejectedTotal,
		kicksTotal,
		transcoderStartsTotal,
		transcoderExitsTotal,
		live,
		viewers,
		activeSessions,
	)

	return &Metrics{
		registry:              registry,
		requestsTotal:         requestsTotal,
		errorsTotal:           errorsTotal,
		hookEventsTotal:       hookEventsTotal,
		publishesTotal:        publishesTotal,
		publishRejectedTotal:  publishRejectedTotal,
		kicksTotal:            kicksTotal,
		transcoderStartsTotal: transcoderStartsTotal,
		transcoderExitsTotal:  transcoderExitsTotal,
		live:                  live,
		viewers:               viewers,
		activeSessions:        activeSessions,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncHookEvent counts one lifecycle hook delivery.
func (m *Metrics) IncHookEvent(event string) {
	m.hookEventsTotal.WithLabelValues(event).Inc()
}

// IncPublishes increments the accepted publishes counter.
func (m *Metrics) IncPublishes() {
	m.publishesTotal.Inc()
}

// IncPublishRejected increments the rejected publishes counter.
func (m *Metrics) IncPublishRejected() {
	m.publishRejectedTotal.Inc()
}

// IncKicks counts one kick request; ok reports whether the ingest server accepted it.
func (m *Metrics) IncKicks(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.kicksTotal.WithLabelValues(result).Inc()
}

// IncTranscoderStarts increments the ffmpeg launch counter.
func (m *Metrics) IncTranscoderStarts() {
	m.transcoderStartsTotal.Inc()
}

// IncTranscoderExits counts one ffmpeg exit. result is one of the Exit* constants.
func (m *Metrics) IncTranscoderExits(result string) {
	m.transcoderExitsTotal.WithLabelValues(result).Inc()
}

// SetLive sets the live gauge.
func (m *Metrics) SetLive(live bool) {
	if live {
		m.live.Set(1)
		return
	}
	m.live.Set(0)
}

// SetViewers sets the viewers gauge.
func (m *Metrics) SetViewers(n int) {
	m.viewers.Set(float64(n))
}

// SetActiveSessions sets the registered sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
