package usecase

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/doc-chat-service/internal/core/domain"
	"github.com/kirillkom/doc-chat-service/internal/core/ports"
)

const DefaultMaxUploadBytes int64 = 10 << 20

type UploadPolicy struct {
	MaxBytes     int64
	AllowedTypes []string
	Deduplicate  bool
}

type IngestDocumentUseCase struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
	policy  UploadPolicy
	now     func() time.Time
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	policy UploadPolicy,
) *IngestDocumentUseCase {
	if policy.MaxBytes <= 0 {
		policy.MaxBytes = DefaultMaxUploadBytes
	}
	if len(policy.AllowedTypes) == 0 {
		policy.AllowedTypes = DefaultAllowedMimeTypes
	}
	return &IngestDocumentUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
		policy:  policy,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	filename, mimeType string,
	body io.Reader,
) (*domain.Document, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return nil, domain.WrapError(domain.ErrValidation, "upload document", errors.New("filename is required"))
	}

	raw, err := io.ReadAll(io.LimitReader(body, uc.policy.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload body: %w", err)
	}
	if int64(len(raw)) > uc.policy.MaxBytes {
		return nil, domain.WrapError(domain.ErrFileTooLarge, "upload document", fmt.Errorf("limit is %d bytes", uc.policy.MaxBytes))
	}
	if len(raw) == 0 {
		return nil, domain.WrapError(domain.ErrValidation, "upload document", errors.New("file is empty"))
	}

	resolved := ResolveMimeType(filename, mimeType, raw)
	if !MimeAllowed(resolved, uc.policy.AllowedTypes) {
		return nil, domain.WrapError(domain.ErrUnsupportedType, "upload document", fmt.Errorf("%q", resolved))
	}

	sum := sha256.Sum256(raw)
	fileHash := hex.EncodeToString(sum[:])
	if uc.policy.Deduplicate {
		existing, err := uc.findDuplicate(ctx, fileHash)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
	now := uc.now()

	if err := uc.storage.Save(ctx, storageKey, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	doc := &domain.Document{
		ID:          id,
		Filename:    filename,
		MimeType:    resolved,
		StoragePath: storageKey,
		FileSize:    int64(len(raw)),
		FileHash:    fileHash,
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	// The sweeper republishes documents left in uploaded.
	if err := uc.queue.PublishDocumentIngested(ctx, doc.ID); err != nil {
		slog.WarnContext(ctx, "publish_ingestion_event_failed", "document_id", doc.ID, "error", err)
	}

	return doc, nil
}

func (uc *IngestDocumentUseCase) findDuplicate(ctx context.Context, fileHash string) (*domain.Document, error) {
	existing, err := uc.repo.FindByFileHash(ctx, fileHash)
	if err != nil {
		if domain.IsKind(err, domain.ErrDocumentNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find duplicate upload: %w", err)
	}
	if existing.Status == domain.StatusFailed {
		return nil, nil
	}
	return existing, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == ".." {
		return "document.bin"
	}
	return base
}
