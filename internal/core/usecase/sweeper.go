package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/doc-chat-service/internal/core/domain"
	"github.com/kirillkom/doc-chat-service/internal/core/ports"
)

const (
	DefaultRepublishAfter = 2 * time.Minute
	DefaultFailAfter      = 15 * time.Minute
	defaultSweepBatch     = 100
	sweepLockTTL          = 30 * time.Second
	abandonedReason       = "ingestion abandoned"
)

type SweepPolicy struct {
	RepublishAfter time.Duration
	FailAfter      time.Duration
	BatchSize      int
}

type SweepReport struct {
	Republished int
	Failed      int
}

// SweepStaleUseCase guarantees that no document stays in a non-terminal status forever.
type SweepStaleUseCase struct {
	repo   ports.DocumentRepository
	lock   ports.DocumentLock
	queue  ports.MessageQueue
	policy SweepPolicy
	now    func() time.Time
}

func NewSweepStaleUseCase(repo ports.DocumentRepository, lock ports.DocumentLock, queue ports.MessageQueue, policy SweepPolicy) *SweepStaleUseCase {
	if policy.RepublishAfter <= 0 {
		policy.RepublishAfter = DefaultRepublishAfter
	}
	if policy.FailAfter <= 0 {
		policy.FailAfter = DefaultFailAfter
	}
	if policy.BatchSize <= 0 {
		policy.BatchSize = defaultSweepBatch
	}
	return &SweepStaleUseCase{
		repo:   repo,
		lock:   lock,
		queue:  queue,
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (uc *SweepStaleUseCase) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	now := uc.now()
	failBefore := now.Add(-uc.policy.FailAfter)

	waiting, err := uc.repo.ListStale(ctx,
		[]domain.DocumentStatus{domain.StatusUploaded, domain.StatusReanalyzing},
		now.Add(-uc.policy.RepublishAfter), uc.policy.BatchSize)
	if err != nil {
		return report, fmt.Errorf("list waiting documents: %w", err)
	}
	for _, doc := range waiting {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if doc.UpdatedAt.Before(failBefore) {
			if uc.abandon(ctx, doc) {
				report.Failed++
			}
			continue
		}
		if uc.republish(ctx, doc) {
			report.Republished++
		}
	}

	stuck, err := uc.repo.ListStale(ctx, []domain.DocumentStatus{domain.StatusAnalyzing}, failBefore, uc.policy.BatchSize)
	if err != nil {
		return report, fmt.Errorf("list stuck documents: %w", err)
	}
	for _, doc := range stuck {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if uc.abandon(ctx, doc) {
			report.Failed++
		}
	}
	return report, nil
}

func (uc *SweepStaleUseCase) republish(ctx context.Context, doc domain.Document) bool {
	locked, err := uc.lock.IsLocked(ctx, doc.ID)
	if err != nil {
		slog.Warn("sweeper_lock_check_failed", "document_id", doc.ID, "error", err)
		return false
	}
	if locked {
		return false
	}
	if err := uc.queue.PublishDocumentIngested(ctx, doc.ID); err != nil {
		slog.Warn("sweeper_republish_failed", "document_id", doc.ID, "error", err)
		return false
	}
	slog.Info("sweeper_republished", "document_id", doc.ID, "status", doc.Status)
	return true
}

// abandon fails a document while holding its ingestion lock so it cannot race a live run.
// An uploaded document passes through analyzing first because uploaded -> failed is not a transition.
func (uc *SweepStaleUseCase) abandon(ctx context.Context, doc domain.Document) bool {
	token, acquired, err := uc.lock.Acquire(ctx, doc.ID, sweepLockTTL)
	if err != nil {
		slog.Warn("sweeper_lock_acquire_failed", "document_id", doc.ID, "error", err)
		return false
	}
	if !acquired {
		return false
	}
	defer func() {
		if err := uc.lock.Release(context.WithoutCancel(ctx), doc.ID, token); err != nil {
			slog.Warn("sweeper_lock_release_failed", "document_id", doc.ID, "error", err)
		}
	}()

	if doc.Status == domain.StatusUploaded {
		if _, err := uc.repo.UpdateStatus(ctx, doc.ID, domain.StatusUpdate{Status: domain.StatusAnalyzing}); err != nil {
			slog.Warn("sweeper_fail_failed", "document_id", doc.ID, "error", err)
			return false
		}
	}
	if _, err := uc.repo.UpdateStatus(ctx, doc.ID, domain.StatusUpdate{Status: domain.StatusFailed, Error: abandonedReason}); err != nil {
		slog.Warn("sweeper_fail_failed", "document_id", doc.ID, "error", err)
		return false
	}
	slog.Info("sweeper_failed_document", "document_id", doc.ID, "previous_status", doc.Status)
	return true
}
