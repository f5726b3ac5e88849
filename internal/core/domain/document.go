package domain

import (
	"fmt"
	"strings"
	"time"
)

type DocumentStatus string

const (
	StatusUploaded    DocumentStatus = "uploaded"
	StatusAnalyzing   DocumentStatus = "analyzing"
	StatusReanalyzing DocumentStatus = "reanalyzing"
	StatusCompleted   DocumentStatus = "completed"
	StatusFailed      DocumentStatus = "failed"
)

var allowedTransitions = map[DocumentStatus][]DocumentStatus{
	StatusUploaded:    {StatusAnalyzing},
	StatusAnalyzing:   {StatusCompleted, StatusFailed},
	StatusCompleted:   {StatusReanalyzing},
	StatusReanalyzing: {StatusCompleted, StatusFailed},
}

func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusUploaded, StatusAnalyzing, StatusReanalyzing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s DocumentStatus) CanTransitionTo(next DocumentStatus) bool {
	for _, candidate := range allowedTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ValidateTransition returns ErrInvalidTransition for anything outside the lifecycle table.
func ValidateTransition(from, to DocumentStatus) error {
	if !to.Valid() {
		return WrapError(ErrInvalidTransition, "validate transition", fmt.Errorf("unknown status %q", to))
	}
	if !from.CanTransitionTo(to) {
		return WrapError(ErrInvalidTransition, "validate transition", fmt.Errorf("%s -> %s", from, to))
	}
	return nil
}

var legacyStatusLabels = map[string]DocumentStatus{
	"uploaded":        StatusUploaded,
	"analyzing":       StatusAnalyzing,
	"processing":      StatusAnalyzing,
	"reanalyzing":     StatusReanalyzing,
	"completed":       StatusCompleted,
	"analyzed":        StatusCompleted,
	"ready":           StatusCompleted,
	"failed":          StatusFailed,
	"analysis_failed": StatusFailed,
	"error":           StatusFailed,
	"업로드됨":            StatusUploaded,
	"업로드 완료":          StatusUploaded,
	"분석중":             StatusAnalyzing,
	"분석 중":            StatusAnalyzing,
	"재분석중":            StatusReanalyzing,
	"재분석 중":           StatusReanalyzing,
	"분석완료":            StatusCompleted,
	"분석 완료":           StatusCompleted,
	"완료":              StatusCompleted,
	"실패":              StatusFailed,
	"분석 실패":           StatusFailed,
}

// ParseStatus accepts the English enum plus legacy and Korean labels stored by older clients.
func ParseStatus(raw string) (DocumentStatus, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if status, ok := legacyStatusLabels[key]; ok {
		return status, nil
	}
	return "", WrapError(ErrValidation, "parse status", fmt.Errorf("unknown status %q", raw))
}

type Document struct {
	ID               string         `json:"document_id"`
	Filename         string         `json:"filename"`
	MimeType         string         `json:"mime_type"`
	StoragePath      string         `json:"-"`
	FileSize         int64          `json:"file_size"`
	FileHash         string         `json:"-"`
	PageCount        *int           `json:"page_count,omitempty"`
	Status           DocumentStatus `json:"status"`
	Error            string         `json:"error_message,omitempty"`
	ExtractedContent *string        `json:"extracted_content"`
	ContentHash      string         `json:"-"`
	Analysis         *Analysis      `json:"analysis,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// ReadableContent returns the content chat and analysis may use.
// A reanalyzing document keeps serving the content of its last completed run.
func (d *Document) ReadableContent() (string, bool) {
	if d == nil || d.ExtractedContent == nil {
		return "", false
	}
	switch d.Status {
	case StatusCompleted, StatusReanalyzing:
		return *d.ExtractedContent, true
	default:
		return "", false
	}
}

// StatusUpdate is applied atomically by the document store.
type StatusUpdate struct {
	Status      DocumentStatus
	Error       string
	Content     *string
	ContentHash string
	PageCount   *int
}

// Apply mutates doc according to u after the transition has been validated.
func (u StatusUpdate) Apply(doc *Document, now time.Time) {
	doc.Status = u.Status
	doc.UpdatedAt = now
	switch u.Status {
	case StatusCompleted:
		doc.Error = ""
		doc.ExtractedContent = u.Content
		doc.ContentHash = u.ContentHash
		if u.PageCount != nil {
			doc.PageCount = u.PageCount
		}
	case StatusFailed:
		doc.Error = u.Error
		doc.ExtractedContent = nil
		doc.ContentHash = ""
	default:
		doc.Error = ""
	}
}

type Extraction struct {
	Text      string
	PageCount *int
}
