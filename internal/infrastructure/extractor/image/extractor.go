// Package image runs uploaded pictures through the configured OCR model.
package image

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirillkom/doc-chat-service/internal/core/domain"
	"github.com/kirillkom/doc-chat-service/internal/core/ports"
)

var ErrOCRUnavailable = errors.New("image text recognition is not configured")

type Extractor struct {
	ocr ports.ImageTextRecognizer
}

func NewExtractor(ocr ports.ImageTextRecognizer) *Extractor {
	return &Extractor{ocr: ocr}
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document, raw []byte) (domain.Extraction, error) {
	if e.ocr == nil {
		return domain.Extraction{}, ErrOCRUnavailable
	}
	text, err := e.ocr.RecognizeText(ctx, raw, doc.MimeType)
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("ocr %s: %w", doc.Filename, err)
	}
	pages := 1
	return domain.Extraction{Text: text, PageCount: &pages}, nil
}
