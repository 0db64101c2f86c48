package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch results used as the "result" label of chapterstream_chunk_fetches_total.
const (
	ResultOK        = "ok"
	ResultRetry     = "retry"
	ResultFatal     = "fatal"
	ResultDiscarded = "discarded"
)

// Metrics holds Prometheus counters and gauges for the streaming engine and
// its control API. All methods are no-ops on a nil *Metrics.
type Metrics struct {
	registry            *prometheus.Registry
	requestsTotal       *prometheus.CounterVec
	chunkFetchesTotal   *prometheus.CounterVec
	bytesAppendedTotal  prometheus.Counter
	metadataTotal       *prometheus.CounterVec
	transitionsTotal    prometheus.Counter
	appendRejectedTotal prometheus.Counter
	endOfStreamTotal    prometheus.Counter
	ready               prometheus.Gauge
	bufferedAhead       prometheus.Gauge
}

// New creates and registers Prometheus metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chapterstream_control_requests_total",
			Help: "Control API requests by route pattern and status class (2xx, 4xx, 5xx)",
		}, []string{"route", "status"}),
		chunkFetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chapterstream_chunk_fetches_total",
			Help: "Ranged chunk fetches by result (ok, retry, fatal, discarded)",
		}, []string{"result"}),
		bytesAppendedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chapterstream_bytes_appended_total",
			Help: "Bytes appended to the playback sink",
		}),
		metadataTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chapterstream_metadata_requests_total",
			Help: "Chapter metadata negotiations by result",
		}, []string{"result"}),
		transitionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chapterstream_chapter_transitions_total",
			Help: "Number of chapter transitions (load, next, previous, auto-advance)",
		}),
		appendRejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chapterstream_append_rejected_total",
			Help: "Appends rejected because their offset did not match the expected next offset",
		}),
		endOfStreamTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chapterstream_end_of_stream_total",
			Help: "Sessions that signalled end of stream to the sink",
		}),
		ready: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chapterstream_can_play",
			Help: "1 when the active session has buffered data and can play",
		}),
		bufferedAhead: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chapterstream_buffered_ahead_seconds",
			Help: "Seconds of audio buffered ahead of the playback position",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.chunkFetchesTotal,
		m.bytesAppendedTotal,
		m.metadataTotal,
		m.transitionsTotal,
		m.appendRejectedTotal,
		m.endOfStreamTotal,
		m.ready,
		m.bufferedAhead,
	)

	return m
}

// ObserveRequest counts one control request. route is the matched route
// pattern, so path parameters such as a chapter index do not become labels.
func (m *Metrics) ObserveRequest(route string, status int) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(route, strconv.Itoa(status/100)+"xx").Inc()
}

// ObserveChunkFetch counts one chunk fetch outcome.
func (m *Metrics) ObserveChunkFetch(result string) {
	if m == nil {
		return
	}
	m.chunkFetchesTotal.WithLabelValues(result).Inc()
}

// AddBytesAppended records bytes accepted by the sink.
func (m *Metrics) AddBytesAppended(n int) {
	if m == nil {
		return
	}
	m.bytesAppendedTotal.Add(float64(n))
}

// ObserveMetadata counts one metadata negotiation outcome.
func (m *Metrics) ObserveMetadata(result string) {
	if m == nil {
		return
	}
	m.metadataTotal.WithLabelValues(result).Inc()
}

// IncTransitions increments the chapter transition counter.
func (m *Metrics) IncTransitions() {
	if m == nil {
		return
	}
	m.transitionsTotal.Inc()
}

// IncAppendRejected increments the rejected append counter.
func (m *Metrics) IncAppendRejected() {
	if m == nil {
		return
	}
	m.appendRejectedTotal.Inc()
}

// IncEndOfStream increments the end-of-stream counter.
func (m *Metrics) IncEndOfStream() {
	if m == nil {
		return
	}
	m.endOfStreamTotal.Inc()
}

// SetCanPlay sets the readiness gauge.
func (m *Metrics) SetCanPlay(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.ready.Set(1)
		return
	}
	m.ready.Set(0)
}

// SetBufferedAhead sets the buffered-ahead gauge.
func (m *Metrics) SetBufferedAhead(seconds float64) {
	if m == nil {
		return
	}
	m.bufferedAhead.Set(seconds)
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
