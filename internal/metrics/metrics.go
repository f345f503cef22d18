// Package metrics exposes Prometheus instrumentation for conversions and
// the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace     = "pdf_narrator"
	statusSuccess = "success"
	unknownRoute  = "unmatched"
)

// Metrics owns a private registry so tests and multiple servers never
// collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	conversionsTotal   *prometheus.CounterVec
	conversionDuration *prometheus.HistogramVec
	conversionInFlight prometheus.Gauge
	audioSeconds       *prometheus.HistogramVec
	pagesExtracted     prometheus.Counter

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	conversionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversion",
			Name:      "total",
			Help:      "Conversions by mode and outcome (success or error kind).",
		},
		[]string{"mode", "status"},
	)
	conversionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "conversion",
			Name:      "duration_seconds",
			Help:      "Conversion wall time in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"mode", "status"},
	)
	conversionInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "conversion",
			Name:      "in_flight",
			Help:      "Conversions currently running.",
		},
	)
	audioSeconds := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "conversion",
			Name:      "audio_seconds",
			Help:      "Length of produced audio in seconds.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		},
		[]string{"mode"},
	)
	pagesExtracted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "document",
			Name:      "pages_extracted_total",
			Help:      "Non-empty pages extracted from PDFs.",
		},
	)
	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"method", "route", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	registry.MustRegister(
		conversionsTotal,
		conversionDuration,
		conversionInFlight,
		audioSeconds,
		pagesExtracted,
		requestTotal,
		requestDuration,
	)

	return &Metrics{
		registry:           registry,
		conversionsTotal:   conversionsTotal,
		conversionDuration: conversionDuration,
		conversionInFlight: conversionInFlight,
		audioSeconds:       audioSeconds,
		pagesExtracted:     pagesExtracted,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartConversion marks a conversion as running.
func (m *Metrics) StartConversion() {
	m.conversionInFlight.Inc()
}

// FinishConversion records the outcome of a conversion. status is
// "success" or the error kind.
func (m *Metrics) FinishConversion(mode, status string, duration time.Duration) {
	m.conversionInFlight.Dec()

	if status == "" {
		status = statusSuccess
	}

	m.conversionsTotal.WithLabelValues(mode, status).Inc()
	m.conversionDuration.WithLabelValues(mode, status).Observe(duration.Seconds())
}

// ObserveAudio records the length of produced audio.
func (m *Metrics) ObserveAudio(mode string, length time.Duration) {
	if length <= 0 {
		return
	}

	m.audioSeconds.WithLabelValues(mode).Observe(length.Seconds())
}

// AddPages counts extracted pages.
func (m *Metrics) AddPages(count int) {
	if count <= 0 {
		return
	}

	m.pagesExtracted.Add(float64(count))
}

// Middleware records request counts and latency labelled by the chi route
// pattern, so path parameters never explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(recorder, r)

		route := unknownRoute
		if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
			if pattern := routeCtx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		m.requestTotal.WithLabelValues(r.Method, route, strconv.Itoa(recorder.statusCode)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
