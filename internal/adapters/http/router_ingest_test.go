package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/doc-chat-service/internal/config"
	"github.com/kirillkom/doc-chat-service/internal/core/domain"
	"github.com/kirillkom/doc-chat-service/internal/observability/metrics"
)

type ingestFake struct {
	err error
}

func (f ingestFake) Upload(_ context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, domain.WrapError(domain.ErrValidation, "upload", errors.New("empty file"))
	}

	now := time.Now().UTC()
	return &domain.Document{
		ID:          "doc-1",
		Filename:    filename,
		MimeType:    mimeType,
		StoragePath: "doc-1_" + filename,
		FileSize:    int64(len(raw)),
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

type docsFake struct {
	err       error
	docs      []domain.Document
	lastLimit int
}

func (f *docsFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Document{ID: id, Filename: "a.pdf", MimeType: "application/pdf", Status: domain.StatusUploaded}, nil
}

func (f *docsFake) List(_ context.Context, limit int) ([]domain.Document, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.docs, nil
}

type chatFake struct {
	err  error
	last domain.ChatRequest
}

func (f *chatFake) Answer(_ context.Context, req domain.ChatRequest) (*domain.ChatAnswer, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	if req.DocumentID == nil {
		return &domain.ChatAnswer{Answer: "general", Source: domain.SourceGeneral, Confidence: 0.3}, nil
	}
	return &domain.ChatAnswer{
		Answer:     "마감일은 3월 31일입니다.",
		Source:     domain.SourceDocument,
		DocumentID: *req.DocumentID,
		Confidence: 0.8,
		Sources:    []domain.GroundingChunk{{Index: 0, Snippet: "납부 마감일 3월 31일", Score: 1}},
	}, nil
}

type analyzerFake struct {
	err error
}

func (f analyzerFake) Analyze(_ context.Context, documentID, _ string) (*domain.Analysis, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Analysis{Summary: "tax notice", DocumentType: "tax", Importance: domain.ImportanceHigh}, nil
}

func (f analyzerFake) Status(_ context.Context, documentID string) (*domain.StatusSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.StatusSummary{DocumentID: documentID, Status: domain.StatusCompleted, HasText: true}, nil
}

type reanalyzerFake struct {
	err error
}

func (f reanalyzerFake) Reanalyze(_ context.Context, documentID string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Document{ID: documentID, Status: domain.StatusReanalyzing}, nil
}

func defaultServices() Services {
	return Services{
		Ingestor:   ingestFake{},
		Documents:  &docsFake{},
		Chat:       &chatFake{},
		Analyzer:   analyzerFake{},
		Reanalyzer: reanalyzerFake{},
	}
}

func newTestHandler(t *testing.T, cfg config.Config, services Services) http.Handler {
	t.Helper()
	router, err := NewRouter(cfg, services, metrics.NewHTTPServerMetrics(serviceName))
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	return router.Handler()
}

func multipartUpload(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return &body, writer.FormDataContentType()
}

func TestHealthzEndpoint(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, defaultServices())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated request id header")
	}
}

func TestUploadDocumentSuccess(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, defaultServices())

	body, contentType := multipartUpload(t, "file", "report.pdf", []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var docResp map[string]any
	if err := json.NewDecoder(res.Body).Decode(&docResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if docResp["document_id"] != "doc-1" || docResp["status"] != "uploaded" {
		t.Fatalf("unexpected response: %+v", docResp)
	}
	if _, leaked := docResp["storage_path"]; leaked {
		t.Fatalf("storage path must not be serialized: %+v", docResp)
	}
	if v, ok := docResp["extracted_content"]; !ok || v != nil {
		t.Fatalf("expected explicit null extracted_content, got %+v", docResp)
	}
}

func TestUploadDocumentMissingMultipartField(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, defaultServices())

	body, contentType := multipartUpload(t, "attachment", "report.pdf", []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestUploadDocumentTooLargeBody(t *testing.T) {
	handler := newTestHandler(t, config.Config{MaxUploadBytes: 8}, defaultServices())

	body, contentType := multipartUpload(t, "file", "big.pdf", bytes.Repeat([]byte("a"), 2<<20))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", res.Code, res.Body.String())
	}
}

func TestListDocumentsWithAndWithoutSlash(t *testing.T) {
	docs := &docsFake{docs: []domain.Document{{ID: "b", Status: domain.StatusCompleted}, {ID: "a", Status: domain.StatusUploaded}}}
	services := defaultServices()
	services.Documents = docs
	handler := newTestHandler(t, config.Config{ListDefaultLimit: 50}, services)

	for _, path := range []string{"/api/v1/documents/", "/api/v1/documents", "/api/v1/documents/?limit=7"} {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, path, nil))
		if res.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", path, res.Code, res.Body.String())
		}
		var list struct {
			Total     int `json:"total"`
			Documents []struct {
				ID string `json:"document_id"`
			} `json:"documents"`
		}
		if err := json.NewDecoder(res.Body).Decode(&list); err != nil {
			t.Fatalf("decode list: %v", err)
		}
		if list.Total != 2 || list.Documents[0].ID != "b" {
			t.Fatalf("%s: unexpected list %+v", path, list)
		}
	}
	if docs.lastLimit != 7 {
		t.Fatalf("expected bound limit 7, got %d", docs.lastLimit)
	}
}

func TestListDocumentsClampsToConfiguredMaximum(t *testing.T) {
	docs := &docsFake{}
	services := defaultServices()
	services.Documents = docs
	handler := newTestHandler(t, config.Config{ListDefaultLimit: 20, ListMaxLimit: 25}, services)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/v1/documents/?limit=500", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if docs.lastLimit != 25 {
		t.Fatalf("expected LIST_MAX_LIMIT 25 to cap the request, got %d", docs.lastLimit)
	}
}

func TestListDocumentsRejectsNonNumericLimit(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, defaultServices())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/v1/documents/?limit=many", nil))

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	var body errorResponse
	_ = json.NewDecoder(res.Body).Decode(&body)
	if body.Code != "validation_error" || !strings.Contains(body.Error, "limit") {
		t.Fatalf("unexpected error body %+v", body)
	}
}

func TestReanalyzeAndStatusEndpoints(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, defaultServices())

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/api/v1/reanalyze/doc-9", nil))
	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/v1/status/doc-9", nil))
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), `"has_text":true`) {
		t.Fatalf("unexpected status response %d %s", res.Code, res.Body.String())
	}
}

func TestAnalyzeEndpointFlattensAnalysis(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, defaultServices())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader(`{"document_id":"doc-1"}`))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Code != http.StatusOK || body["document_id"] != "doc-1" || body["summary"] != "tax notice" {
		t.Fatalf("unexpected analyze response %d %+v", res.Code, body)
	}
}

func TestOpenAPIDocumentIsServed(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, defaultServices())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), "/api/v1/chat/extended") {
		t.Fatalf("unexpected openapi response %d", res.Code)
	}
}
