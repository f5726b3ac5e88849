// Package extractor routes raw uploads to the format-specific text extractors.
package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/kirillkom/doc-chat-service/internal/core/domain"
	"github.com/kirillkom/doc-chat-service/internal/core/ports"
)

// Router picks an extractor by the document's stored mime type. Images are
// matched by the "image/" prefix. A missing or generic type is re-sniffed.
type Router struct {
	byMime map[string]ports.TextExtractor
	image  ports.TextExtractor
}

func NewRouter() *Router {
	return &Router{byMime: map[string]ports.TextExtractor{}}
}

// Register binds an extractor to exact mime types.
func (r *Router) Register(extractor ports.TextExtractor, mimeTypes ...string) *Router {
	for _, mt := range mimeTypes {
		r.byMime[strings.ToLower(mt)] = extractor
	}
	return r
}

// RegisterImages binds the OCR extractor for every image/* type.
func (r *Router) RegisterImages(extractor ports.TextExtractor) *Router {
	r.image = extractor
	return r
}

func (r *Router) Extract(ctx context.Context, doc *domain.Document, raw []byte) (domain.Extraction, error) {
	mt := strings.ToLower(strings.TrimSpace(doc.MimeType))
	extractor := r.lookup(mt)
	if extractor == nil {
		sniffed := mimetype.Detect(raw).String()
		if base, _, _ := strings.Cut(sniffed, ";"); base != mt {
			mt = base
			extractor = r.lookup(mt)
		}
	}
	if extractor == nil {
		return domain.Extraction{}, domain.WrapError(domain.ErrUnsupportedType, "extract document", fmt.Errorf("mime type %q", mt))
	}

	started := time.Now()
	out, err := extractor.Extract(ctx, doc, raw)
	slog.Debug("document_extracted",
		"document_id", doc.ID,
		"mime_type", mt,
		"duration_ms", time.Since(started).Milliseconds(),
		"chars", len([]rune(out.Text)),
		"error", err,
	)
	return out, err
}

func (r *Router) lookup(mt string) ports.TextExtractor {
	if e, ok := r.byMime[mt]; ok {
		return e
	}
	if strings.HasPrefix(mt, "image/") && r.image != nil {
		return r.image
	}
	return nil
}

// PageCount is a small helper for extractors that report a known page total.
func PageCount(n int) *int {
	if n <= 0 {
		return nil
	}
	return &n
}
