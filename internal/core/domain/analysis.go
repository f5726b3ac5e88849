package domain

import "time"

type Importance string

const (
	ImportanceHigh   Importance = "high"
	ImportanceMedium Importance = "medium"
	ImportanceLow    Importance = "low"
)

type ActionItem struct {
	Action   string  `json:"action"`
	Deadline *string `json:"deadline"`
	Amount   *int64  `json:"amount"`
	Method   *string `json:"method"`
}

type Entities struct {
	Dates        []string `json:"dates"`
	Amounts      []int64  `json:"amounts"`
	PhoneNumbers []string `json:"phone_numbers"`
	Accounts     []string `json:"accounts"`
}

type Analysis struct {
	Summary      string         `json:"summary"`
	DocumentType string         `json:"document_type"`
	Importance   Importance     `json:"importance"`
	KeyPoints    []string       `json:"key_points"`
	Actions      []ActionItem   `json:"actions"`
	Details      map[string]any `json:"details,omitempty"`
	Entities     Entities       `json:"entities"`
	Fallback     bool           `json:"fallback"`
	ContentHash  string         `json:"content_hash,omitempty"`
	AnalyzedAt   time.Time      `json:"analyzed_at"`
}

// StatusSummary is the lightweight view returned by the status endpoint.
type StatusSummary struct {
	DocumentID   string         `json:"document_id"`
	Filename     string         `json:"filename"`
	Status       DocumentStatus `json:"status"`
	DocumentType string         `json:"document_type,omitempty"`
	HasText      bool           `json:"has_text"`
	HasAnalysis  bool           `json:"has_analysis"`
	PageCount    *int           `json:"page_count,omitempty"`
	Error        string         `json:"error_message,omitempty"`
}
