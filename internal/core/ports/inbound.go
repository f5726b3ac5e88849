package ports

import (
	"context"
	"io"

	"github.com/kirillkom/doc-chat-service/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error)
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context, limit int) ([]domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// ReanalysisRequester moves a completed document back through the pipeline.
type ReanalysisRequester interface {
	Reanalyze(ctx context.Context, documentID string) (*domain.Document, error)
}

// ChatService answers questions grounded in one document.
type ChatService interface {
	Answer(ctx context.Context, req domain.ChatRequest) (*domain.ChatAnswer, error)
}

// DocumentAnalyzer produces and caches structured document analyses.
type DocumentAnalyzer interface {
	Analyze(ctx context.Context, documentID, forceType string) (*domain.Analysis, error)
	Status(ctx context.Context, documentID string) (*domain.StatusSummary, error)
}
