package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/doc-chat-service/internal/core/domain"
)

// DocumentRepository persists and reads document state.
// UpdateStatus must validate the transition and apply it atomically.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context, limit int) ([]domain.Document, error)
	UpdateStatus(ctx context.Context, id string, update domain.StatusUpdate) (*domain.Document, error)
	SaveAnalysis(ctx context.Context, id string, analysis domain.Analysis) error
	FindByFileHash(ctx context.Context, fileHash string) (*domain.Document, error)
	ListStale(ctx context.Context, statuses []domain.DocumentStatus, updatedBefore time.Time, limit int) ([]domain.Document, error)
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// DocumentLock guards the single in-flight ingestion run of a document.
// Acquire hands back a token for that acquisition; Release with a token whose
// lease expired or was taken over is a no-op.
type DocumentLock interface {
	Acquire(ctx context.Context, documentID string, ttl time.Duration) (token string, acquired bool, err error)
	Release(ctx context.Context, documentID, token string) error
	IsLocked(ctx context.Context, documentID string) (bool, error)
}

// TextExtractor turns raw file bytes into text.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document, raw []byte) (domain.Extraction, error)
}

// ImageTextRecognizer performs OCR on a single image.
type ImageTextRecognizer interface {
	RecognizeText(ctx context.Context, image []byte, mimeType string) (string, error)
}

// LanguageModel generates a completion for a provider-neutral prompt.
type LanguageModel interface {
	Generate(ctx context.Context, prompt domain.Prompt) (string, error)
}

// Chunker splits text into semantically usable chunks.
type Chunker interface {
	Split(text string) []string
}
