package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/kirillkom/doc-chat-service/internal/core/domain"
)

func TestCorruptPDFIsValidationError(t *testing.T) {
	e := NewExtractor(nil, 0)
	_, err := e.Extract(context.Background(), &domain.Document{ID: "doc-1"}, []byte("%PDF-1.4 this is not really a pdf"))
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for corrupt pdf, got %v", err)
	}
}

func TestImageMime(t *testing.T) {
	cases := map[string]string{"jpg": "image/jpeg", "PNG": "image/png", "tif": "image/tiff"}
	for in, want := range cases {
		if got, ok := imageMime(in); !ok || got != want {
			t.Fatalf("imageMime(%q) = %q, %v", in, got, ok)
		}
	}
	if _, ok := imageMime("jbig2"); ok {
		t.Fatalf("expected jbig2 to be skipped")
	}
}

func TestNewExtractorDefaults(t *testing.T) {
	if e := NewExtractor(nil, -1); e.maxOCRPages != defaultMaxOCRPages {
		t.Fatalf("unexpected max pages %d", e.maxOCRPages)
	}
}

// buildPDF assembles a minimal PDF with one Helvetica text line per page.
func buildPDF(pageTexts ...string) []byte {
	kids := make([]string, 0, len(pageTexts))
	for i := range pageTexts {
		kids = append(kids, fmt.Sprintf("%d 0 R", 4+2*i))
	}
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pageTexts)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}
	for i, text := range pageTexts {
		content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

type recognizerSpy struct {
	calls int
}

func (r *recognizerSpy) RecognizeText(context.Context, []byte, string) (string, error) {
	r.calls++
	return "ocr text", nil
}

func TestExtractReadsTextLayerOfEveryPage(t *testing.T) {
	const (
		first  = "Property tax notice for 2025 issued by the city treasury office"
		second = "Payment due date March 31 2025 amount 120000 KRW"
	)
	raw := buildPDF(first, second)
	ocr := &recognizerSpy{}
	e := NewExtractor(ocr, 0)
	doc := &domain.Document{ID: "doc-1", MimeType: "application/pdf"}

	got, err := e.Extract(context.Background(), doc, raw)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got.PageCount == nil || *got.PageCount != 2 {
		t.Fatalf("expected 2 pages, got %v", got.PageCount)
	}
	i, j := strings.Index(got.Text, first), strings.Index(got.Text, second)
	if i < 0 || j < 0 || i > j {
		t.Fatalf("expected both pages in order, got %q", got.Text)
	}
	if ocr.calls != 0 {
		t.Fatalf("text layer is present, OCR must not run (calls=%d)", ocr.calls)
	}

	for run := 0; run < 3; run++ {
		again, err := e.Extract(context.Background(), doc, raw)
		if err != nil {
			t.Fatalf("Extract() run %d error = %v", run, err)
		}
		if again.Text != got.Text || again.PageCount == nil || *again.PageCount != *got.PageCount {
			t.Fatalf("run %d differs: %q vs %q", run, again.Text, got.Text)
		}
	}
}

func TestExtractKeepsShortTextLayerWithoutRecognizer(t *testing.T) {
	raw := buildPDF("Receipt")
	got, err := NewExtractor(nil, 0).Extract(context.Background(), &domain.Document{ID: "doc-2"}, raw)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !strings.Contains(got.Text, "Receipt") || got.PageCount == nil || *got.PageCount != 1 {
		t.Fatalf("unexpected extraction %+v", got)
	}
}
