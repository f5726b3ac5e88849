package httpadapter

import (
	"errors"
	"net/http"
	"strings"

	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/doc-chat-service/internal/core/domain"
)

// multipartOverhead is the room left for multipart framing on top of the file size limit.
const multipartOverhead = 1 << 20

type documentListResponse struct {
	Total     int               `json:"total"`
	Documents []domain.Document `json:"documents"`
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	var limit *int
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		writeError(w, r, domain.WrapError(domain.ErrValidation, "list documents", err))
		return
	}
	requested := 0
	if limit != nil {
		requested = *limit
	}
	if requested <= 0 && rt.cfg.ListDefaultLimit > 0 {
		requested = rt.cfg.ListDefaultLimit
	}
	if rt.cfg.ListMaxLimit > 0 && requested > rt.cfg.ListMaxLimit {
		requested = rt.cfg.ListMaxLimit
	}

	docs, err := rt.services.Documents.List(r.Context(), requested)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, documentListResponse{Total: len(docs), Documents: docs})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	maxBytes := rt.cfg.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			rt.recordUpload("file_too_large")
			writeError(w, r, domain.WrapError(domain.ErrFileTooLarge, "upload document", err))
			return
		}
		rt.recordUpload("validation_error")
		writeError(w, r, domain.WrapError(domain.ErrValidation, "upload document", errors.New("multipart field 'file' is required")))
		return
	}
	defer file.Close()

	doc, err := rt.services.Ingestor.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		rt.recordUpload(errorCode(err))
		writeError(w, r, err)
		return
	}
	rt.recordUpload("ok")
	noteDocument(r, doc.ID)
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	documentID, ok := bindDocumentID(w, r)
	if !ok {
		return
	}
	doc, err := rt.services.Documents.GetByID(r.Context(), documentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) documentStatus(w http.ResponseWriter, r *http.Request) {
	documentID, ok := bindDocumentID(w, r)
	if !ok {
		return
	}
	summary, err := rt.services.Analyzer.Status(r.Context(), documentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (rt *Router) reanalyzeDocument(w http.ResponseWriter, r *http.Request) {
	documentID, ok := bindDocumentID(w, r)
	if !ok {
		return
	}
	doc, err := rt.services.Reanalyzer.Reanalyze(r.Context(), documentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

type analyzeRequest struct {
	DocumentID string `json:"document_id"`
	ForceType  string `json:"force_type"`
}

type analyzeResponse struct {
	DocumentID string `json:"document_id"`
	*domain.Analysis
}

func (rt *Router) analyzeDocument(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	noteDocument(r, req.DocumentID)
	analysis, err := rt.services.Analyzer.Analyze(r.Context(), req.DocumentID, req.ForceType)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analyzeResponse{DocumentID: req.DocumentID, Analysis: analysis})
}

func bindDocumentID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var documentID string
	err := runtime.BindStyledParameterWithLocation("simple", false, "document_id", runtime.ParamLocationPath, r.PathValue("document_id"), &documentID)
	if err != nil || documentID == "" {
		if err == nil {
			err = errors.New("document_id is required")
		}
		writeError(w, r, domain.WrapError(domain.ErrValidation, "bind document_id", err))
		return "", false
	}
	noteDocument(r, documentID)
	return documentID, true
}

func (rt *Router) recordUpload(outcome string) {
	if rt.metrics != nil {
		rt.metrics.RecordUpload(serviceName, outcome)
	}
}
