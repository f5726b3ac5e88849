package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("validation error")
	ErrDocumentNotFound    = errors.New("document not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrDocumentNotReady    = errors.New("document not ready")
	ErrNoDocumentSelected  = errors.New("no document selected")
	ErrUpstreamTimeout     = errors.New("upstream timeout")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrIngestionInFlight   = errors.New("ingestion already in flight")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrTemporary           = errors.New("temporary failure")

	// Sub-kinds of ErrValidation.
	ErrFileTooLarge    = fmt.Errorf("%w: file too large", ErrValidation)
	ErrUnsupportedType = fmt.Errorf("%w: unsupported file type", ErrValidation)
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ErrorCode returns the stable machine-readable name of the most specific kind in err.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case IsKind(err, ErrFileTooLarge):
		return "file_too_large"
	case IsKind(err, ErrUnsupportedType):
		return "unsupported_type"
	case IsKind(err, ErrValidation):
		return "validation_error"
	case IsKind(err, ErrDocumentNotFound):
		return "not_found"
	case IsKind(err, ErrInvalidTransition):
		return "invalid_transition"
	case IsKind(err, ErrDocumentNotReady):
		return "document_not_ready"
	case IsKind(err, ErrNoDocumentSelected):
		return "no_document_selected"
	case IsKind(err, ErrUpstreamTimeout):
		return "upstream_timeout"
	case IsKind(err, ErrUpstreamUnavailable):
		return "upstream_unavailable"
	case IsKind(err, ErrIngestionInFlight):
		return "ingestion_in_flight"
	case IsKind(err, ErrUnauthorized):
		return "unauthorized"
	case IsKind(err, ErrTemporary):
		return "temporary_failure"
	default:
		return "internal_error"
	}
}
