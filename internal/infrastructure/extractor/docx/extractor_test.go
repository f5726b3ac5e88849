package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/kirillkom/doc-chat-service/internal/core/domain"
)

func buildDocx(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range parts {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		_, _ = w.Write([]byte(body))
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

const ns = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

func TestExtractParagraphsTablesAndHeaders(t *testing.T) {
	raw := buildDocx(t, map[string]string{
		"word/document.xml": `<w:document ` + ns + `><w:body>
<w:p><w:r><w:t>재산세 납부 안내</w:t></w:r></w:p>
<w:p><w:r><w:t xml:space="preserve">납부 기한: </w:t></w:r><w:r><w:t>2025년 3월 31일</w:t></w:r></w:p>
<w:tbl><w:tr><w:tc><w:p><w:r><w:t>금액</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>150,000원</w:t></w:r></w:p></w:tc></w:tr></w:tbl>
</w:body></w:document>`,
		"word/header1.xml": `<w:hdr ` + ns + `><w:p><w:r><w:t>서울특별시</w:t></w:r></w:p></w:hdr>`,
		"docProps/app.xml": `<Properties><Pages>2</Pages></Properties>`,
	})

	out, err := NewExtractor().Extract(context.Background(), &domain.Document{}, raw)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	for _, want := range []string{"재산세 납부 안내", "납부 기한: 2025년 3월 31일", "금액", "150,000원", "서울특별시"} {
		if !strings.Contains(out.Text, want) {
			t.Fatalf("expected %q in %q", want, out.Text)
		}
	}
	if strings.Index(out.Text, "서울특별시") < strings.Index(out.Text, "150,000원") {
		t.Fatalf("expected header text after body")
	}
	if out.PageCount == nil || *out.PageCount != 2 {
		t.Fatalf("expected 2 pages, got %v", out.PageCount)
	}
}

func TestExtractRejectsNonArchive(t *testing.T) {
	_, err := NewExtractor().Extract(context.Background(), &domain.Document{}, []byte("plain text"))
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
