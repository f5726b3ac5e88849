package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/doc-chat-service/internal/core/domain"
	"github.com/kirillkom/doc-chat-service/internal/core/ports"
)

const (
	NoDocumentGeneric = "generic"
	NoDocumentReject  = "reject"

	DefaultChatMaxTokens    = 512
	MaxChatMaxTokens        = 4096
	DefaultChatTimeout      = 25 * time.Second
	DefaultChatContextChars = 6000
	chatHistoryTurns        = 5
)

type ChatPolicy struct {
	NoDocument   string
	Timeout      time.Duration
	ContextChars int
}

type ChatUseCase struct {
	repo    ports.DocumentRepository
	model   ports.LanguageModel
	chunker ports.Chunker
	policy  ChatPolicy
}

func NewChatUseCase(repo ports.DocumentRepository, model ports.LanguageModel, chunker ports.Chunker, policy ChatPolicy) *ChatUseCase {
	if policy.NoDocument != NoDocumentReject {
		policy.NoDocument = NoDocumentGeneric
	}
	if policy.Timeout <= 0 {
		policy.Timeout = DefaultChatTimeout
	}
	if policy.ContextChars <= 0 {
		policy.ContextChars = DefaultChatContextChars
	}
	return &ChatUseCase{repo: repo, model: model, chunker: chunker, policy: policy}
}

func (uc *ChatUseCase) Answer(ctx context.Context, req domain.ChatRequest) (*domain.ChatAnswer, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrValidation, "chat answer", errors.New("question is required"))
	}
	maxTokens := clampMaxTokens(req.MaxTokens)
	history := recentTurns(req.History)

	documentID := ""
	if req.DocumentID != nil {
		documentID = strings.TrimSpace(*req.DocumentID)
	}

	if documentID == "" {
		if uc.policy.NoDocument == NoDocumentReject {
			return nil, domain.WrapError(domain.ErrNoDocumentSelected, "chat answer", errors.New("document_id is required"))
		}
		text, err := uc.generate(ctx, domain.Prompt{
			System:    generalSystemPrompt,
			Turns:     append(history, domain.ChatTurn{Role: domain.RoleUser, Content: question}),
			MaxTokens: maxTokens,
		})
		if err != nil {
			return nil, err
		}
		return &domain.ChatAnswer{Answer: text, Source: domain.SourceGeneral}, nil
	}

	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load chat document: %w", err)
	}
	content, ok := doc.ReadableContent()
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotReady, "chat answer", fmt.Errorf("document %s is %s", doc.ID, doc.Status))
	}

	chunks := rankChunks(question, uc.chunker.Split(content), uc.policy.ContextChars)
	text, err := uc.generate(ctx, domain.Prompt{
		System:    buildGroundedSystem(doc, chunks),
		Turns:     append(history, domain.ChatTurn{Role: domain.RoleUser, Content: question}),
		MaxTokens: maxTokens,
	})
	if err != nil {
		return nil, err
	}

	return &domain.ChatAnswer{
		Answer:     text,
		Source:     domain.SourceDocument,
		DocumentID: doc.ID,
		Confidence: groundingConfidence(chunks),
		Sources:    chunks,
	}, nil
}

// generate bounds the model call by the chat deadline and maps failures onto the upstream kinds.
func (uc *ChatUseCase) generate(ctx context.Context, prompt domain.Prompt) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, uc.policy.Timeout)
	defer cancel()

	text, err := uc.model.Generate(callCtx, prompt)
	if err != nil {
		return "", classifyModelError(ctx, callCtx, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.WrapError(domain.ErrUpstreamUnavailable, "chat answer", errors.New("empty model answer"))
	}
	return text, nil
}

// classifyModelError reports an expired chat deadline as a timeout even when the
// client surfaced the last failed attempt instead of the context error.
func classifyModelError(parent, call context.Context, err error) error {
	switch {
	case errors.Is(parent.Err(), context.Canceled):
		// The caller went away; nothing upstream is at fault.
		return fmt.Errorf("chat answer: %w", parent.Err())
	case errors.Is(call.Err(), context.DeadlineExceeded):
		if domain.IsKind(err, domain.ErrUpstreamTimeout) {
			return err
		}
		return domain.WrapError(domain.ErrUpstreamTimeout, "chat answer", err)
	case domain.IsKind(err, domain.ErrUpstreamTimeout), domain.IsKind(err, domain.ErrUpstreamUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return domain.WrapError(domain.ErrUpstreamTimeout, "chat answer", err)
	default:
		return domain.WrapError(domain.ErrUpstreamUnavailable, "chat answer", err)
	}
}

func clampMaxTokens(n int) int {
	switch {
	case n <= 0:
		return DefaultChatMaxTokens
	case n > MaxChatMaxTokens:
		return MaxChatMaxTokens
	default:
		return n
	}
}

func recentTurns(history []domain.ChatTurn) []domain.ChatTurn {
	out := make([]domain.ChatTurn, 0, chatHistoryTurns+1)
	for _, turn := range history {
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		if turn.Role != domain.RoleUser && turn.Role != domain.RoleAssistant {
			continue
		}
		out = append(out, domain.ChatTurn{Role: turn.Role, Content: content})
	}
	if len(out) > chatHistoryTurns {
		out = out[len(out)-chatHistoryTurns:]
	}
	return out
}
