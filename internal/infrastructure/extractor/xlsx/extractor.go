// Package xlsx flattens spreadsheet sheets into tab-separated text.
package xlsx

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/doc-chat-service/internal/core/domain"
)

type Extractor struct {
	maxRowsPerSheet int
}

func NewExtractor(maxRowsPerSheet int) *Extractor {
	if maxRowsPerSheet <= 0 {
		maxRowsPerSheet = 5000
	}
	return &Extractor{maxRowsPerSheet: maxRowsPerSheet}
}

// Extract reports the sheet count as the page count.
func (e *Extractor) Extract(ctx context.Context, _ *domain.Document, raw []byte) (domain.Extraction, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return domain.Extraction{}, domain.WrapError(domain.ErrValidation, "parse xlsx", err)
	}
	defer func() {
		_ = f.Close()
	}()

	sheets := f.GetSheetList()
	var b strings.Builder
	for _, sheet := range sheets {
		if err := ctx.Err(); err != nil {
			return domain.Extraction{}, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return domain.Extraction{}, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## %s\n", sheet)
		for i, row := range rows {
			if i >= e.maxRowsPerSheet {
				break
			}
			line := strings.TrimRight(strings.Join(row, "\t"), "\t ")
			if line != "" {
				b.WriteString(line)
				b.WriteByte('\n')
			}
		}
	}

	pages := len(sheets)
	return domain.Extraction{Text: b.String(), PageCount: &pages}, nil
}
