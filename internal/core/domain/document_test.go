package domain

import (
	"errors"
	"testing"
	"time"
)

func TestValidateTransitionFollowsLifecycleTable(t *testing.T) {
	all := []DocumentStatus{StatusUploaded, StatusAnalyzing, StatusReanalyzing, StatusCompleted, StatusFailed}
	legal := map[[2]DocumentStatus]bool{
		{StatusUploaded, StatusAnalyzing}:    true,
		{StatusAnalyzing, StatusCompleted}:   true,
		{StatusAnalyzing, StatusFailed}:      true,
		{StatusCompleted, StatusReanalyzing}: true,
		{StatusReanalyzing, StatusCompleted}: true,
		{StatusReanalyzing, StatusFailed}:    true,
	}

	for _, from := range all {
		for _, to := range all {
			err := ValidateTransition(from, to)
			if legal[[2]DocumentStatus{from, to}] {
				if err != nil {
					t.Fatalf("%s -> %s should be legal, got %v", from, to, err)
				}
				continue
			}
			if !IsKind(err, ErrInvalidTransition) {
				t.Fatalf("%s -> %s should be rejected with ErrInvalidTransition, got %v", from, to, err)
			}
		}
	}
}

func TestValidateTransitionRejectsUnknownTarget(t *testing.T) {
	if err := ValidateTransition(StatusUploaded, "archived"); !IsKind(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestParseStatusMapsLegacyLabels(t *testing.T) {
	cases := map[string]DocumentStatus{
		"completed":  StatusCompleted,
		" Analyzed ": StatusCompleted,
		"processing": StatusAnalyzing,
		"분석중":        StatusAnalyzing,
		"재분석 중":      StatusReanalyzing,
		"분석완료":       StatusCompleted,
		"업로드됨":       StatusUploaded,
		"실패":         StatusFailed,
	}
	for raw, want := range cases {
		got, err := ParseStatus(raw)
		if err != nil {
			t.Fatalf("ParseStatus(%q) error = %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseStatus(%q) = %s, want %s", raw, got, want)
		}
	}

	if _, err := ParseStatus("archived"); !IsKind(err, ErrValidation) {
		t.Fatalf("expected validation error for unknown status, got %v", err)
	}
}

func TestStatusUpdateApplyKeepsContentInvariant(t *testing.T) {
	now := time.Now().UTC()
	content := "deadline 2025-03-31"
	pages := 2
	doc := &Document{ID: "d1", Status: StatusAnalyzing}

	StatusUpdate{Status: StatusCompleted, Content: &content, ContentHash: "h1", PageCount: &pages}.Apply(doc, now)
	if text, ok := doc.ReadableContent(); !ok || text != content {
		t.Fatalf("expected readable content after completion, got %q ok=%v", text, ok)
	}
	if doc.PageCount == nil || *doc.PageCount != 2 {
		t.Fatalf("expected page count 2, got %v", doc.PageCount)
	}

	StatusUpdate{Status: StatusReanalyzing}.Apply(doc, now)
	if _, ok := doc.ReadableContent(); !ok {
		t.Fatalf("expected old content to stay readable while reanalyzing")
	}

	StatusUpdate{Status: StatusFailed, Error: "corrupt"}.Apply(doc, now)
	if doc.ExtractedContent != nil || doc.ContentHash != "" {
		t.Fatalf("expected content cleared on failure, got %+v", doc)
	}
	if doc.Error != "corrupt" {
		t.Fatalf("expected failure reason, got %q", doc.Error)
	}
}

func TestErrorCodePrefersMostSpecificKind(t *testing.T) {
	err := WrapError(ErrFileTooLarge, "upload", errors.New("11MB"))
	if !IsKind(err, ErrValidation) {
		t.Fatalf("file too large must still be a validation error")
	}
	if got := ErrorCode(err); got != "file_too_large" {
		t.Fatalf("ErrorCode() = %q", got)
	}
	if got := ErrorCode(errors.New("boom")); got != "internal_error" {
		t.Fatalf("ErrorCode() = %q", got)
	}
}
