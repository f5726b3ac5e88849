package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/kirillkom/doc-chat-service/internal/core/domain"
	"github.com/kirillkom/doc-chat-service/internal/core/ports"
)

const (
	DefaultIngestLockTTL   = 6 * time.Minute
	defaultFailureTimeout  = 10 * time.Second
	maxFailureReasonLength = 500
)

type ProcessPolicy struct {
	LockTTL        time.Duration
	FailureTimeout time.Duration
}

type ProcessDocumentUseCase struct {
	repo      ports.DocumentRepository
	storage   ports.ObjectStorage
	extractor ports.TextExtractor
	lock      ports.DocumentLock
	policy    ProcessPolicy
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	extractor ports.TextExtractor,
	lock ports.DocumentLock,
	policy ProcessPolicy,
) *ProcessDocumentUseCase {
	if policy.LockTTL <= 0 {
		policy.LockTTL = DefaultIngestLockTTL
	}
	if policy.FailureTimeout <= 0 {
		policy.FailureTimeout = defaultFailureTimeout
	}
	return &ProcessDocumentUseCase{
		repo:      repo,
		storage:   storage,
		extractor: extractor,
		lock:      lock,
		policy:    policy,
	}
}

// ProcessByID runs one ingestion pass. Redelivered events for finished documents are no-ops.
func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	token, acquired, err := uc.lock.Acquire(ctx, documentID, uc.policy.LockTTL)
	if err != nil {
		return fmt.Errorf("acquire ingestion lock: %w", err)
	}
	if !acquired {
		return domain.WrapError(domain.ErrIngestionInFlight, "process document", errors.New(documentID))
	}
	defer uc.releaseLock(ctx, documentID, token)

	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetch document by id: %w", err)
	}

	switch doc.Status {
	case domain.StatusUploaded:
		doc, err = uc.repo.UpdateStatus(ctx, documentID, domain.StatusUpdate{Status: domain.StatusAnalyzing})
		if err != nil {
			return fmt.Errorf("set status=analyzing: %w", err)
		}
	case domain.StatusAnalyzing, domain.StatusReanalyzing:
		// Resuming a crashed run or an explicit re-analysis.
	default:
		slog.Info("ingestion_skipped", "document_id", documentID, "status", doc.Status)
		return nil
	}

	extraction, err := uc.extract(ctx, doc)
	if err != nil {
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	sum := sha256.Sum256([]byte(extraction.Text))
	content := extraction.Text
	if _, err := uc.repo.UpdateStatus(ctx, documentID, domain.StatusUpdate{
		Status:      domain.StatusCompleted,
		Content:     &content,
		ContentHash: hex.EncodeToString(sum[:]),
		PageCount:   extraction.PageCount,
	}); err != nil {
		if ctx.Err() != nil {
			if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
				return fmt.Errorf("%w; mark failed status: %v", err, failErr)
			}
		}
		return fmt.Errorf("set status=completed: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) extract(ctx context.Context, doc *domain.Document) (domain.Extraction, error) {
	reader, err := uc.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("open stored file: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("read stored file: %w", err)
	}

	extraction, err := uc.extractor.Extract(ctx, doc, raw)
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("extract text: %w", err)
	}

	extraction.Text = NormalizeExtractedText(extraction.Text)
	if extraction.Text == "" {
		return domain.Extraction{}, domain.WrapError(domain.ErrValidation, "extract text", errors.New("no extractable text"))
	}
	return extraction, nil
}

// markFailed records the failure on a context detached from ctx so a cancelled
// or timed out run never leaves the document in analyzing.
func (uc *ProcessDocumentUseCase) markFailed(ctx context.Context, documentID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.policy.FailureTimeout)
	defer cancel()

	_, err := uc.repo.UpdateStatus(failCtx, documentID, domain.StatusUpdate{
		Status: domain.StatusFailed,
		Error:  failureReason(processErr),
	})
	return err
}

func (uc *ProcessDocumentUseCase) releaseLock(ctx context.Context, documentID, token string) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.policy.FailureTimeout)
	defer cancel()
	if err := uc.lock.Release(releaseCtx, documentID, token); err != nil {
		slog.Warn("ingestion_lock_release_failed", "document_id", documentID, "error", err)
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "ingestion timed out"
	case errors.Is(err, context.Canceled):
		return "ingestion cancelled"
	}
	return truncateRunes(err.Error(), maxFailureReasonLength)
}
