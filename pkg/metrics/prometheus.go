package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "emspark"

// Recorder implements the domain metrics interfaces using Prometheus.
type Recorder struct {
	parses          *prometheus.CounterVec
	specsPerParse   prometheus.Histogram
	fallbackCalls   *prometheus.CounterVec
	fallbackLatency prometheus.Histogram
	fetchLatency    *prometheus.HistogramVec
	fetchRows       *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	reportLatency   *prometheus.HistogramVec
	messagesSent    *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpLatency     *prometheus.HistogramVec
	httpInFlight    prometheus.Gauge
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		parses: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "query_parses_total",
				Help:      "Resolved queries by the stage that produced them",
			},
			[]string{"source"},
		),
		specsPerParse: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_specs_per_parse",
				Help:      "Number of query specs produced per question",
				Buckets:   []float64{0, 1, 2, 3, 4, 6, 8, 12, 24},
			},
		),
		fallbackCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallback_requests_total",
				Help:      "LLM fallback classifier calls by outcome",
			},
			[]string{"outcome"},
		),
		fallbackLatency: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fallback_duration_seconds",
				Help:      "LLM fallback classifier latency",
				Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 12},
			},
		),
		fetchLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_fetch_duration_seconds",
				Help:      "Price store fetch latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"backend", "granularity", "status"},
		),
		fetchRows: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_rows_total",
				Help:      "Rows returned by the price store",
			},
			[]string{"backend", "granularity"},
		),
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Price cache lookups by result",
			},
			[]string{"result"},
		),
		reportLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "report_duration_seconds",
				Help:      "End-to-end report build latency",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 45},
			},
			[]string{"outcome"},
		),
		messagesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_sent_total",
				Help:      "Messages published to the broker",
			},
			[]string{"topic"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors encountered",
			},
			[]string{"type"},
		),
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		httpLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"route", "method"},
		),
		httpInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_in_flight_requests",
				Help:      "Current number of in-flight HTTP requests",
			},
		),
	}
}

// RecordParse counts one resolved question.
func (r *Recorder) RecordParse(source string, specs int) {
	r.parses.WithLabelValues(source).Inc()
	r.specsPerParse.Observe(float64(specs))
}

// RecordFallback records one LLM classifier call.
func (r *Recorder) RecordFallback(ok bool, d time.Duration) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	r.fallbackCalls.WithLabelValues(outcome).Inc()
	r.fallbackLatency.Observe(d.Seconds())
}

// RecordFetch records one store round trip.
func (r *Recorder) RecordFetch(backend, granularity string, rows int, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.fetchLatency.WithLabelValues(backend, granularity, status).Observe(d.Seconds())
	r.fetchRows.WithLabelValues(backend, granularity).Add(float64(rows))
}

// RecordCache records a cache hit or miss.
func (r *Recorder) RecordCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(result).Inc()
}

// RecordReport records one report build.
func (r *Recorder) RecordReport(outcome string, d time.Duration) {
	r.reportLatency.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordMessageSent records a message sent to the broker.
func (r *Recorder) RecordMessageSent(topic string) {
	r.messagesSent.WithLabelValues(topic).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// HTTPStarted and HTTPFinished bracket one request.
func (r *Recorder) HTTPStarted() { r.httpInFlight.Inc() }

func (r *Recorder) HTTPFinished(route, method string, status int, d time.Duration) {
	r.httpInFlight.Dec()
	r.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	r.httpLatency.WithLabelValues(route, method).Observe(d.Seconds())
}
