package httpadapter

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kirillkom/doc-chat-service/internal/config"
	"github.com/kirillkom/doc-chat-service/internal/core/ports"
	"github.com/kirillkom/doc-chat-service/internal/observability/metrics"
)

const serviceName = "api"

// Services are the inbound use cases the HTTP API exposes.
type Services struct {
	Ingestor   ports.DocumentIngestor
	Documents  ports.DocumentReader
	Chat       ports.ChatService
	Analyzer   ports.DocumentAnalyzer
	Reanalyzer ports.ReanalysisRequester
}

type Router struct {
	cfg       config.Config
	services  Services
	metrics   *metrics.HTTPServerMetrics
	validator *requestValidator
}

func NewRouter(cfg config.Config, services Services, m *metrics.HTTPServerMetrics) (*Router, error) {
	validator, err := newRequestValidator()
	if err != nil {
		return nil, err
	}
	return &Router{cfg: cfg, services: services, metrics: m, validator: validator}, nil
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /openapi.yaml", rt.openAPIDocument)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	mux.HandleFunc("GET /api/v1/documents", rt.listDocuments)
	mux.HandleFunc("GET /api/v1/documents/{$}", rt.listDocuments)
	mux.HandleFunc("POST /api/v1/documents/upload", rt.uploadDocument)
	mux.HandleFunc("GET /api/v1/documents/{document_id}", rt.getDocument)
	mux.HandleFunc("GET /api/v1/status/{document_id}", rt.documentStatus)
	mux.HandleFunc("POST /api/v1/reanalyze/{document_id}", rt.reanalyzeDocument)
	mux.HandleFunc("POST /api/v1/analyze", rt.analyzeDocument)
	mux.HandleFunc("POST /api/v1/chat", rt.chat)
	mux.HandleFunc("POST /api/v1/chat/extended", rt.chatExtended)

	var handler http.Handler = mux
	handler = rt.validator.middleware(handler)
	handler = bearerAuthMiddleware(handler, rt.cfg.APIKey)
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, rt.backpressureWait(), rt.recordRejection)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, rt.recordRejection)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return requestLogMiddleware(handler)
}

func (rt *Router) backpressureWait() time.Duration {
	if rt.cfg.APIBackpressureWait > 0 {
		return rt.cfg.APIBackpressureWait
	}
	return 250 * time.Millisecond
}

func (rt *Router) recordRejection(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejection(serviceName, reason)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) openAPIDocument(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(OpenAPISpec())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
