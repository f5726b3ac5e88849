package httpadapter

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/kirillkom/doc-chat-service/internal/core/domain"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// mapErrorToHTTPStatus follows the client contract: 404 means there is no analyzable
// document, 500 a transient upstream failure and 504 an internal timeout.
func mapErrorToHTTPStatus(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes), domain.IsKind(err, domain.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case domain.IsKind(err, domain.ErrValidation):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrDocumentNotFound),
		domain.IsKind(err, domain.ErrDocumentNotReady),
		domain.IsKind(err, domain.ErrNoDocumentSelected):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrInvalidTransition), domain.IsKind(err, domain.ErrIngestionInFlight):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrUpstreamTimeout):
		return http.StatusGatewayTimeout
	case domain.IsKind(err, domain.ErrUpstreamUnavailable):
		return http.StatusInternalServerError
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(err error) string {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return "file_too_large"
	}
	return domain.ErrorCode(err)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	code := errorCode(err)
	message := err.Error()
	noteErrorCode(r, code)
	if code == "internal_error" {
		slog.ErrorContext(r.Context(), "request_failed", "path", r.URL.Path, "error", err)
		message = "internal server error"
	}
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}
