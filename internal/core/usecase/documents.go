package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/doc-chat-service/internal/core/domain"
	"github.com/kirillkom/doc-chat-service/internal/core/ports"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// ListPolicy bounds List. Zero values fall back to DefaultListLimit and MaxListLimit.
type ListPolicy struct {
	DefaultLimit int
	MaxLimit     int
}

// DocumentQueryUseCase is the read side used by the HTTP and MCP adapters.
type DocumentQueryUseCase struct {
	repo   ports.DocumentRepository
	policy ListPolicy
}

func NewDocumentQueryUseCase(repo ports.DocumentRepository, policy ListPolicy) *DocumentQueryUseCase {
	if policy.MaxLimit <= 0 {
		policy.MaxLimit = MaxListLimit
	}
	if policy.DefaultLimit <= 0 {
		policy.DefaultLimit = DefaultListLimit
	}
	if policy.DefaultLimit > policy.MaxLimit {
		policy.DefaultLimit = policy.MaxLimit
	}
	return &DocumentQueryUseCase{repo: repo, policy: policy}
}

func (uc *DocumentQueryUseCase) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.WrapError(domain.ErrValidation, "get document", errors.New("document_id is required"))
	}
	doc, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// List returns documents newest first. Non-positive limits use the default; larger ones are capped.
func (uc *DocumentQueryUseCase) List(ctx context.Context, limit int) ([]domain.Document, error) {
	switch {
	case limit <= 0:
		limit = uc.policy.DefaultLimit
	case limit > uc.policy.MaxLimit:
		limit = uc.policy.MaxLimit
	}
	docs, err := uc.repo.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}
