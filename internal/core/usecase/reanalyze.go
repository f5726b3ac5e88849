package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirillkom/doc-chat-service/internal/core/domain"
	"github.com/kirillkom/doc-chat-service/internal/core/ports"
)

type ReanalyzeUseCase struct {
	repo  ports.DocumentRepository
	lock  ports.DocumentLock
	queue ports.MessageQueue
}

func NewReanalyzeUseCase(repo ports.DocumentRepository, lock ports.DocumentLock, queue ports.MessageQueue) *ReanalyzeUseCase {
	return &ReanalyzeUseCase{repo: repo, lock: lock, queue: queue}
}

// Reanalyze moves a completed document to reanalyzing and schedules a new ingestion run.
// The previous content stays readable until the run replaces it.
func (uc *ReanalyzeUseCase) Reanalyze(ctx context.Context, documentID string) (*domain.Document, error) {
	locked, err := uc.lock.IsLocked(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("check ingestion lock: %w", err)
	}
	if locked {
		return nil, domain.WrapError(domain.ErrIngestionInFlight, "reanalyze document", errors.New(documentID))
	}

	doc, err := uc.repo.UpdateStatus(ctx, documentID, domain.StatusUpdate{Status: domain.StatusReanalyzing})
	if err != nil {
		return nil, fmt.Errorf("set status=reanalyzing: %w", err)
	}

	if err := uc.queue.PublishDocumentIngested(ctx, documentID); err != nil {
		slog.WarnContext(ctx, "publish_reanalysis_event_failed", "document_id", documentID, "error", err)
	}
	return doc, nil
}
