package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dcs"

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge
	rejectedTotal   *prometheus.CounterVec

	chatRequestsTotal *prometheus.CounterVec
	chatDuration      *prometheus.HistogramVec
	chatContextChunks *prometheus.HistogramVec
	llmTokensTotal    *prometheus.CounterVec
	uploadsTotal      *prometheus.CounterVec

	breakerState *prometheus.GaugeVec

	included prometheus.Gatherers
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	rejectedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rejected_total",
			Help:      "Requests rejected by admission control.",
		},
		[]string{"service", "reason"},
	)
	chatRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Chat requests by endpoint, answer source and outcome.",
		},
		[]string{"service", "endpoint", "source", "outcome"},
	)
	chatDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "duration_seconds",
			Help:      "Chat answer duration in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 15, 20, 25, 30},
		},
		[]string{"service", "endpoint"},
	)
	chatContextChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "context_chunks",
			Help:      "Document chunks placed in the grounded prompt.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "endpoint"},
	)
	llmTokensTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Approximate token usage by direction.",
		},
		[]string{"service", "endpoint", "direction", "model"},
	)
	uploadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "documents",
			Name:      "uploads_total",
			Help:      "Upload attempts by outcome code.",
		},
		[]string{"service", "outcome"},
	)
	breakerState := newBreakerStateGauge()

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		rejectedTotal,
		chatRequestsTotal,
		chatDuration,
		chatContextChunks,
		llmTokensTotal,
		uploadsTotal,
		breakerState,
	)

	return &HTTPServerMetrics{
		registry:          registry,
		requestTotal:      requestTotal,
		requestDuration:   requestDuration,
		requestInFlight:   requestInFlight,
		rejectedTotal:     rejectedTotal,
		chatRequestsTotal: chatRequestsTotal,
		chatDuration:      chatDuration,
		chatContextChunks: chatContextChunks,
		llmTokensTotal:    llmTokensTotal,
		uploadsTotal:      uploadsTotal,
		breakerState:      breakerState,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	gatherers := append(prometheus.Gatherers{m.registry}, m.included...)
	return promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{})
}

// Include exposes another registry on this handler. Call it before Handler.
func (m *HTTPServerMetrics) Include(g prometheus.Gatherer) {
	m.included = append(m.included, g)
}

func (m *HTTPServerMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses document ids so label cardinality stays bounded.
func normalizePath(path string) string {
	for _, prefix := range []string{"/api/v1/status/", "/api/v1/reanalyze/"} {
		if strings.HasPrefix(path, prefix) && len(path) > len(prefix) {
			return prefix + "{document_id}"
		}
	}
	const documents = "/api/v1/documents/"
	if strings.HasPrefix(path, documents) {
		rest := strings.TrimPrefix(path, documents)
		if rest != "" && rest != "upload" {
			return documents + "{document_id}"
		}
	}
	return path
}

func (m *HTTPServerMetrics) RecordRejection(service, reason string) {
	m.rejectedTotal.WithLabelValues(service, reason).Inc()
}

// RecordChat records one chat call. source is empty when the call failed before answering.
func (m *HTTPServerMetrics) RecordChat(service, endpoint, source, outcome string, contextChunks int, duration time.Duration) {
	if source == "" {
		source = "none"
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.chatRequestsTotal.WithLabelValues(service, endpoint, source, outcome).Inc()
	m.chatDuration.WithLabelValues(service, endpoint).Observe(duration.Seconds())
	if outcome == "ok" {
		m.chatContextChunks.WithLabelValues(service, endpoint).Observe(float64(contextChunks))
	}
}

func (m *HTTPServerMetrics) RecordTokenUsage(service, endpoint, model string, promptTokens, completionTokens int) {
	if model == "" {
		model = "unknown"
	}
	if promptTokens > 0 {
		m.llmTokensTotal.WithLabelValues(service, endpoint, "in", model).Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.llmTokensTotal.WithLabelValues(service, endpoint, "out", model).Add(float64(completionTokens))
	}
}

func (m *HTTPServerMetrics) RecordUpload(service, outcome string) {
	m.uploadsTotal.WithLabelValues(service, outcome).Inc()
}

func (m *HTTPServerMetrics) SetBreakerState(operation string, state int) {
	m.breakerState.WithLabelValues(operation).Set(float64(state))
}

// ApproxTokens estimates tokens as one per four runes, at least one for non-empty text.
func ApproxTokens(text string) int {
	n := len([]rune(strings.TrimSpace(text)))
	if n == 0 {
		return 0
	}
	if n < 4 {
		return 1
	}
	return n / 4
}

func newBreakerStateGauge() *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per operation (0 closed, 1 half-open, 2 open).",
		},
		[]string{"operation"},
	)
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
