package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/doc-chat-service/internal/core/domain"
	"github.com/kirillkom/doc-chat-service/internal/core/ports"
)

const (
	DefaultAnalysisTimeout = 60 * time.Second
	analysisMaxTokens      = 1024
	fallbackSummaryRunes   = 500
	highImportanceAmount   = 100000
)

var detailKeys = []string{"tax_details", "prescription_details", "contract_details", "notice_details", "insurance_details"}

type AnalyzeUseCase struct {
	repo    ports.DocumentRepository
	model   ports.LanguageModel
	timeout time.Duration
	now     func() time.Time
}

func NewAnalyzeUseCase(repo ports.DocumentRepository, model ports.LanguageModel, timeout time.Duration) *AnalyzeUseCase {
	if timeout <= 0 {
		timeout = DefaultAnalysisTimeout
	}
	return &AnalyzeUseCase{
		repo:    repo,
		model:   model,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Analyze returns the cached analysis for the current content or produces a new one.
// forceType bypasses the cache.
func (uc *AnalyzeUseCase) Analyze(ctx context.Context, documentID, forceType string) (*domain.Analysis, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load document for analysis: %w", err)
	}
	content, ok := doc.ReadableContent()
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotReady, "analyze document", fmt.Errorf("document %s is %s", doc.ID, doc.Status))
	}

	forceType = strings.TrimSpace(forceType)
	if forceType == "" && doc.Analysis != nil && doc.Analysis.ContentHash == doc.ContentHash {
		return doc.Analysis, nil
	}

	entities := ExtractEntities(content)
	analysis, err := uc.generate(ctx, doc, content, forceType)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		slog.WarnContext(ctx, "analysis_fallback", "document_id", doc.ID, "error", err)
		analysis = fallbackAnalysis(doc.Filename, content, entities)
	}
	if forceType != "" {
		analysis.DocumentType = forceType
	}
	analysis.Entities = entities
	analysis.ContentHash = doc.ContentHash
	analysis.AnalyzedAt = uc.now()

	if err := uc.repo.SaveAnalysis(ctx, doc.ID, analysis); err != nil {
		return nil, fmt.Errorf("save analysis: %w", err)
	}
	return &analysis, nil
}

func (uc *AnalyzeUseCase) Status(ctx context.Context, documentID string) (*domain.StatusSummary, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load document status: %w", err)
	}
	_, hasText := doc.ReadableContent()
	summary := &domain.StatusSummary{
		DocumentID:  doc.ID,
		Filename:    doc.Filename,
		Status:      doc.Status,
		HasText:     hasText,
		HasAnalysis: doc.Analysis != nil,
		PageCount:   doc.PageCount,
		Error:       doc.Error,
	}
	if doc.Analysis != nil {
		summary.DocumentType = doc.Analysis.DocumentType
	}
	return summary, nil
}

func (uc *AnalyzeUseCase) generate(ctx context.Context, doc *domain.Document, content, forceType string) (domain.Analysis, error) {
	callCtx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	raw, err := uc.model.Generate(callCtx, domain.Prompt{
		System:    analysisSystemPrompt,
		Turns:     []domain.ChatTurn{{Role: domain.RoleUser, Content: buildAnalysisPrompt(doc, content, forceType)}},
		MaxTokens: analysisMaxTokens,
		JSON:      true,
	})
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("generate analysis: %w", err)
	}
	return parseAnalysis(raw)
}

type modelAnalysis struct {
	Summary      string        `json:"summary"`
	DocumentType string        `json:"document_type"`
	Importance   string        `json:"importance"`
	KeyPoints    []string      `json:"key_points"`
	Actions      []modelAction `json:"actions"`
}

type modelAction struct {
	Action   string `json:"action"`
	Deadline any    `json:"deadline"`
	Amount   any    `json:"amount"`
	Method   any    `json:"method"`
}

func parseAnalysis(raw string) (domain.Analysis, error) {
	payload := extractJSONObject(raw)
	if payload == "" {
		return domain.Analysis{}, domain.WrapError(domain.ErrValidation, "parse analysis", errors.New("no json object in model output"))
	}

	var parsed modelAnalysis
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return domain.Analysis{}, domain.WrapError(domain.ErrValidation, "parse analysis", err)
	}
	if strings.TrimSpace(parsed.Summary) == "" {
		return domain.Analysis{}, domain.WrapError(domain.ErrValidation, "parse analysis", errors.New("empty summary"))
	}

	var extra map[string]any
	if err := json.Unmarshal([]byte(payload), &extra); err != nil {
		return domain.Analysis{}, domain.WrapError(domain.ErrValidation, "parse analysis", err)
	}

	analysis := domain.Analysis{
		Summary:      strings.TrimSpace(parsed.Summary),
		DocumentType: strings.TrimSpace(parsed.DocumentType),
		Importance:   normalizeImportance(parsed.Importance),
		KeyPoints:    nonEmptyStrings(parsed.KeyPoints),
		Actions:      make([]domain.ActionItem, 0, len(parsed.Actions)),
	}
	if analysis.DocumentType == "" {
		analysis.DocumentType = "general"
	}
	for _, action := range parsed.Actions {
		text := strings.TrimSpace(action.Action)
		if text == "" {
			continue
		}
		analysis.Actions = append(analysis.Actions, domain.ActionItem{
			Action:   text,
			Deadline: optionalString(action.Deadline),
			Amount:   optionalAmount(action.Amount),
			Method:   optionalString(action.Method),
		})
	}
	for _, key := range detailKeys {
		if value, ok := extra[key]; ok && value != nil {
			if analysis.Details == nil {
				analysis.Details = map[string]any{}
			}
			analysis.Details[key] = value
		}
	}
	return analysis, nil
}

// extractJSONObject trims prose or code fences models wrap around the JSON payload.
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

func normalizeImportance(raw string) domain.Importance {
	switch domain.Importance(strings.ToLower(strings.TrimSpace(raw))) {
	case domain.ImportanceHigh:
		return domain.ImportanceHigh
	case domain.ImportanceLow:
		return domain.ImportanceLow
	default:
		return domain.ImportanceMedium
	}
}

func optionalString(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	return &s
}

func optionalAmount(v any) *int64 {
	switch value := v.(type) {
	case float64:
		n := int64(value)
		return &n
	case string:
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, value)
		if digits == "" {
			return nil
		}
		n, err := strconv.ParseInt(digits, 10, 64)
		if err != nil {
			return nil
		}
		return &n
	default:
		return nil
	}
}

func nonEmptyStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

var documentTypeKeywords = []struct {
	docType  string
	keywords []string
}{
	{"tax", []string{"세금", "지방세", "재산세", "국세", "납세", "tax"}},
	{"medical", []string{"처방", "진료", "병원", "약국", "prescription"}},
	{"contract", []string{"계약", "임대차", "contract"}},
	{"insurance", []string{"보험", "insurance"}},
	{"bill", []string{"요금", "청구서", "고지서", "invoice", "bill"}},
	{"notice", []string{"안내", "통지", "공지", "notice"}},
}

var urgentKeywords = []string{"긴급", "즉시", "기한 내", "체납", "독촉", "urgent", "overdue"}

var actionKeywords = []struct {
	keyword string
	action  string
}{
	{"납부", "납부 기한 내 금액 납부"},
	{"제출", "필요 서류 제출"},
	{"신고", "기한 내 신고"},
	{"방문", "담당 기관 방문"},
	{"갱신", "계약 또는 자격 갱신"},
	{"pay", "Pay the amount due"},
}

// fallbackAnalysis is used when the model is unavailable or returns unusable output.
func fallbackAnalysis(filename, content string, entities domain.Entities) domain.Analysis {
	lower := strings.ToLower(content + " " + filename)

	docType := "general"
	for _, candidate := range documentTypeKeywords {
		if containsAny(lower, candidate.keywords) {
			docType = candidate.docType
			break
		}
	}

	importance := domain.ImportanceMedium
	for _, amount := range entities.Amounts {
		if amount > highImportanceAmount {
			importance = domain.ImportanceHigh
		}
	}
	if containsAny(lower, urgentKeywords) {
		importance = domain.ImportanceHigh
	}

	var deadline *string
	if len(entities.Dates) > 0 {
		deadline = &entities.Dates[0]
	}
	var amount *int64
	if len(entities.Amounts) > 0 {
		amount = &entities.Amounts[0]
	}

	actions := make([]domain.ActionItem, 0, 2)
	for _, candidate := range actionKeywords {
		if strings.Contains(lower, candidate.keyword) {
			actions = append(actions, domain.ActionItem{Action: candidate.action, Deadline: deadline, Amount: amount})
		}
	}

	keyPoints := make([]string, 0, 3)
	if deadline != nil {
		keyPoints = append(keyPoints, "date: "+*deadline)
	}
	if amount != nil {
		keyPoints = append(keyPoints, fmt.Sprintf("amount: %d", *amount))
	}
	if len(entities.PhoneNumbers) > 0 {
		keyPoints = append(keyPoints, "contact: "+entities.PhoneNumbers[0])
	}

	return domain.Analysis{
		Summary:      truncateRunes(strings.TrimSpace(content), fallbackSummaryRunes),
		DocumentType: docType,
		Importance:   importance,
		KeyPoints:    keyPoints,
		Actions:      actions,
		Fallback:     true,
	}
}

func containsAny(s string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(s, keyword) {
			return true
		}
	}
	return false
}
