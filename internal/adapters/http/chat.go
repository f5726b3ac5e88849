package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/doc-chat-service/internal/core/domain"
	"github.com/kirillkom/doc-chat-service/internal/observability/metrics"
)

const maxJSONBodyBytes = 1 << 20

type chatResponse struct {
	Answer     string              `json:"answer"`
	Source     domain.AnswerSource `json:"source"`
	DocumentID *string             `json:"document_id"`
	Confidence float64             `json:"confidence"`
}

type chatExtendedResponse struct {
	chatResponse
	Sources []domain.GroundingChunk `json:"sources"`
}

func (rt *Router) chat(w http.ResponseWriter, r *http.Request) {
	answer, ok := rt.answer(w, r, "chat")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toChatResponse(answer))
}

func (rt *Router) chatExtended(w http.ResponseWriter, r *http.Request) {
	answer, ok := rt.answer(w, r, "chat_extended")
	if !ok {
		return
	}
	sources := answer.Sources
	if sources == nil {
		sources = []domain.GroundingChunk{}
	}
	writeJSON(w, http.StatusOK, chatExtendedResponse{chatResponse: toChatResponse(answer), Sources: sources})
}

func (rt *Router) answer(w http.ResponseWriter, r *http.Request, endpoint string) (*domain.ChatAnswer, bool) {
	var req domain.ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return nil, false
	}
	if err := validateChatRequest(req); err != nil {
		writeError(w, r, err)
		return nil, false
	}
	if req.DocumentID != nil {
		noteDocument(r, *req.DocumentID)
	}

	start := time.Now()
	answer, err := rt.services.Chat.Answer(r.Context(), req)
	if rt.metrics != nil {
		rt.recordChat(endpoint, req, answer, err, time.Since(start))
	}
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return answer, true
}

func validateChatRequest(req domain.ChatRequest) error {
	if strings.TrimSpace(req.Question) == "" {
		return domain.WrapError(domain.ErrValidation, "chat request", errors.New("question is required"))
	}
	for i, turn := range req.History {
		if turn.Role != domain.RoleUser && turn.Role != domain.RoleAssistant {
			return domain.WrapError(domain.ErrValidation, "chat request", fmt.Errorf("history[%d].role must be user or assistant", i))
		}
	}
	return nil
}

func (rt *Router) recordChat(endpoint string, req domain.ChatRequest, answer *domain.ChatAnswer, err error, duration time.Duration) {
	if err != nil {
		rt.metrics.RecordChat(serviceName, endpoint, "", domain.ErrorCode(err), 0, duration)
		return
	}
	rt.metrics.RecordChat(serviceName, endpoint, string(answer.Source), "ok", len(answer.Sources), duration)
	rt.metrics.RecordTokenUsage(serviceName, endpoint, rt.modelLabel(), metrics.ApproxTokens(req.Question), metrics.ApproxTokens(answer.Answer))
}

func (rt *Router) modelLabel() string {
	switch rt.cfg.LLMProvider {
	case "gemini":
		return rt.cfg.GeminiModel
	case "anthropic":
		return rt.cfg.AnthropicModel
	default:
		return rt.cfg.OllamaGenModel
	}
}

func toChatResponse(answer *domain.ChatAnswer) chatResponse {
	resp := chatResponse{
		Answer:     answer.Answer,
		Source:     answer.Source,
		Confidence: answer.Confidence,
	}
	if answer.DocumentID != "" {
		id := answer.DocumentID
		resp.DocumentID = &id
	}
	return resp
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.WrapError(domain.ErrValidation, "decode request", errors.New("request body is required"))
		}
		return domain.WrapError(domain.ErrValidation, "decode request", fmt.Errorf("invalid json: %w", err))
	}
	return nil
}
