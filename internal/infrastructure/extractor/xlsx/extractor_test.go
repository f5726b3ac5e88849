package xlsx

import (
	"context"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/doc-chat-service/internal/core/domain"
)

func TestExtractSheetsAsRows(t *testing.T) {
	f := excelize.NewFile()
	_ = f.SetCellValue("Sheet1", "A1", "항목")
	_ = f.SetCellValue("Sheet1", "B1", "금액")
	_ = f.SetCellValue("Sheet1", "A2", "관리비")
	_ = f.SetCellValue("Sheet1", "B2", 125000)
	if _, err := f.NewSheet("Notes"); err != nil {
		t.Fatalf("NewSheet() error = %v", err)
	}
	_ = f.SetCellValue("Notes", "A1", "납부 마감 3월 31일")
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer() error = %v", err)
	}

	out, err := NewExtractor(0).Extract(context.Background(), &domain.Document{}, buf.Bytes())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	for _, want := range []string{"## Sheet1", "항목\t금액", "관리비\t125000", "## Notes", "납부 마감 3월 31일"} {
		if !strings.Contains(out.Text, want) {
			t.Fatalf("expected %q in %q", want, out.Text)
		}
	}
	if out.PageCount == nil || *out.PageCount != 2 {
		t.Fatalf("expected 2 sheets, got %v", out.PageCount)
	}
}

func TestExtractRejectsGarbage(t *testing.T) {
	_, err := NewExtractor(0).Extract(context.Background(), &domain.Document{}, []byte("not a workbook"))
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
