// Package pdf reads the text layer of PDF files and falls back to OCR of
// embedded page images for scanned documents.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	lpdf "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/kirillkom/doc-chat-service/internal/core/domain"
	"github.com/kirillkom/doc-chat-service/internal/core/ports"
)

const (
	// below this many runes the text layer is treated as missing
	minTextLayerRunes  = 100
	defaultMaxOCRPages = 20
)

type Extractor struct {
	ocr         ports.ImageTextRecognizer
	maxOCRPages int
}

// NewExtractor builds a PDF extractor. ocr may be nil, in which case scanned
// PDFs yield whatever little text the text layer has.
func NewExtractor(ocr ports.ImageTextRecognizer, maxOCRPages int) *Extractor {
	if maxOCRPages <= 0 {
		maxOCRPages = defaultMaxOCRPages
	}
	return &Extractor{ocr: ocr, maxOCRPages: maxOCRPages}
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document, raw []byte) (domain.Extraction, error) {
	pages, pageErr := pageCount(raw)
	text, textErr := textLayer(ctx, raw)
	if pageErr != nil && textErr != nil {
		return domain.Extraction{}, domain.WrapError(domain.ErrValidation, "parse pdf", fmt.Errorf("corrupt or unreadable pdf: %w", textErr))
	}
	if err := ctx.Err(); err != nil {
		return domain.Extraction{}, err
	}

	var count *int
	if pageErr == nil && pages > 0 {
		count = &pages
	}

	if utf8.RuneCountInString(strings.TrimSpace(text)) >= minTextLayerRunes || e.ocr == nil {
		return domain.Extraction{Text: text, PageCount: count}, nil
	}

	slog.Info("pdf_text_layer_missing", "document_id", doc.ID, "runes", utf8.RuneCountInString(text))
	ocrText, err := e.recognizePages(ctx, raw)
	if err != nil {
		if strings.TrimSpace(text) != "" {
			slog.Warn("pdf_ocr_failed", "document_id", doc.ID, "error", err)
			return domain.Extraction{Text: text, PageCount: count}, nil
		}
		return domain.Extraction{}, fmt.Errorf("pdf ocr: %w", err)
	}
	if strings.TrimSpace(ocrText) == "" {
		ocrText = text
	}
	return domain.Extraction{Text: ocrText, PageCount: count}, nil
}

func pageCount(raw []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCount(bytes.NewReader(raw), conf)
	if err != nil {
		return 0, fmt.Errorf("pdf page count: %w", err)
	}
	return n, nil
}

// textLayer reads page text in order. The parser panics on some malformed
// inputs, so a panic is reported as an error.
func textLayer(ctx context.Context, raw []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("pdf text layer: %v", r)
		}
	}()

	reader, err := lpdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	parts := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("read page %d: %w", i, err)
		}
		if strings.TrimSpace(pageText) != "" {
			parts = append(parts, pageText)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

type pageImage struct {
	page int
	name string
	mime string
	data []byte
}

func (e *Extractor) recognizePages(ctx context.Context, raw []byte) (string, error) {
	images, err := embeddedImages(raw, e.maxOCRPages)
	if err != nil {
		return "", err
	}

	byPage := map[int][]string{}
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := e.ocr.RecognizeText(ctx, img.data, img.mime)
		if err != nil {
			return "", fmt.Errorf("page %d image %s: %w", img.page, img.name, err)
		}
		if strings.TrimSpace(text) != "" {
			byPage[img.page] = append(byPage[img.page], strings.TrimSpace(text))
		}
	}

	pages := make([]int, 0, len(byPage))
	for p := range byPage {
		pages = append(pages, p)
	}
	sort.Ints(pages)

	var b strings.Builder
	for _, p := range pages {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "--- Page %d ---\n%s", p, strings.Join(byPage[p], "\n"))
	}
	return b.String(), nil
}

func embeddedImages(raw []byte, maxPages int) ([]pageImage, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	perPage, err := api.ExtractImagesRaw(bytes.NewReader(raw), nil, conf)
	if err != nil {
		return nil, fmt.Errorf("extract pdf images: %w", err)
	}

	out := make([]pageImage, 0)
	for _, images := range perPage {
		keys := make([]int, 0, len(images))
		for k := range images {
			keys = append(keys, k)
		}
		sort.Ints(keys)
		for _, k := range keys {
			img := images[k]
			if img.PageNr > maxPages {
				continue
			}
			mime, ok := imageMime(img.FileType)
			if !ok {
				continue
			}
			data, err := io.ReadAll(img)
			if err != nil {
				return nil, fmt.Errorf("read pdf image %s: %w", img.Name, err)
			}
			out = append(out, pageImage{page: img.PageNr, name: img.Name, mime: mime, data: data})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].page < out[j].page })
	return out, nil
}

func imageMime(fileType string) (string, bool) {
	switch strings.ToLower(fileType) {
	case "jpg", "jpeg":
		return "image/jpeg", true
	case "png":
		return "image/png", true
	case "tif", "tiff":
		return "image/tiff", true
	default:
		return "", false
	}
}
