package usecase

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/doc-chat-service/internal/core/domain"
)

var pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

func newIngestForTest(repo *memRepo, storage *storageFake, queue *queueFake, policy UploadPolicy) *IngestDocumentUseCase {
	return NewIngestDocumentUseCase(repo, storage, queue, policy)
}

func TestIngestUploadSuccess(t *testing.T) {
	repo := newMemRepo()
	storage := newStorageFake()
	queue := &queueFake{}
	uc := newIngestForTest(repo, storage, queue, UploadPolicy{})

	doc, err := uc.Upload(context.Background(), "report 1.pdf", "application/octet-stream", bytes.NewReader(pdfBytes))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if doc.ID == "" {
		t.Fatalf("expected document id")
	}
	if doc.Status != domain.StatusUploaded {
		t.Fatalf("expected status uploaded, got %s", doc.Status)
	}
	if doc.MimeType != MimePDF {
		t.Fatalf("expected sniffed pdf type, got %s", doc.MimeType)
	}
	if doc.FileSize != int64(len(pdfBytes)) || doc.FileHash == "" {
		t.Fatalf("expected size and hash, got %+v", doc)
	}
	if doc.ExtractedContent != nil {
		t.Fatalf("uploaded document must not carry content")
	}
	if len(queue.published) != 1 || queue.published[0] != doc.ID {
		t.Fatalf("expected queued doc id %s, got %v", doc.ID, queue.published)
	}
	if !strings.HasSuffix(doc.StoragePath, "_report_1.pdf") {
		t.Fatalf("expected sanitized key suffix, got %s", doc.StoragePath)
	}
	if !bytes.Equal(storage.objects[doc.StoragePath], pdfBytes) {
		t.Fatalf("expected stored bytes to match upload")
	}
}

func TestIngestUploadRejectsOversizedFile(t *testing.T) {
	uc := newIngestForTest(newMemRepo(), newStorageFake(), &queueFake{}, UploadPolicy{MaxBytes: 16})

	_, err := uc.Upload(context.Background(), "big.pdf", "application/pdf", bytes.NewReader(pdfBytes))
	if !domain.IsKind(err, domain.ErrFileTooLarge) || !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected file too large validation error, got %v", err)
	}
}

func TestIngestUploadRejectsUnsupportedTypes(t *testing.T) {
	uc := newIngestForTest(newMemRepo(), newStorageFake(), &queueFake{}, UploadPolicy{})

	cases := map[string][]byte{
		"notes.txt":  []byte("plain notes"),
		"report.hwp": {0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1, 0, 0, 0, 0},
	}
	for name, body := range cases {
		_, err := uc.Upload(context.Background(), name, "", bytes.NewReader(body))
		if !domain.IsKind(err, domain.ErrUnsupportedType) {
			t.Fatalf("%s: expected unsupported type, got %v", name, err)
		}
	}

	if _, err := uc.Upload(context.Background(), "empty.pdf", "application/pdf", bytes.NewReader(nil)); !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for empty file, got %v", err)
	}
}

func TestIngestUploadAcceptsExtraTypes(t *testing.T) {
	policy := UploadPolicy{AllowedTypes: append(append([]string{}, DefaultAllowedMimeTypes...), MimeText)}
	uc := newIngestForTest(newMemRepo(), newStorageFake(), &queueFake{}, policy)

	doc, err := uc.Upload(context.Background(), "notes.txt", "text/plain", strings.NewReader("plain notes"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if doc.MimeType != MimeText {
		t.Fatalf("expected text/plain, got %s", doc.MimeType)
	}
}

func TestIngestUploadReturnsDuplicate(t *testing.T) {
	repo := newMemRepo()
	queue := &queueFake{}
	uc := newIngestForTest(repo, newStorageFake(), queue, UploadPolicy{Deduplicate: true})

	first, err := uc.Upload(context.Background(), "a.pdf", "", bytes.NewReader(pdfBytes))
	if err != nil {
		t.Fatalf("first Upload() error = %v", err)
	}
	second, err := uc.Upload(context.Background(), "b.pdf", "", bytes.NewReader(pdfBytes))
	if err != nil {
		t.Fatalf("second Upload() error = %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected duplicate to resolve to %s, got %s", first.ID, second.ID)
	}
	if len(queue.published) != 1 {
		t.Fatalf("expected a single ingestion event, got %v", queue.published)
	}
}

func TestIngestUploadKeepsDocumentWhenPublishFails(t *testing.T) {
	repo := newMemRepo()
	uc := newIngestForTest(repo, newStorageFake(), &queueFake{err: errors.New("queue down")}, UploadPolicy{})

	doc, err := uc.Upload(context.Background(), "report.pdf", "application/pdf", bytes.NewReader(pdfBytes))
	if err != nil {
		t.Fatalf("expected upload to succeed despite publish failure, got %v", err)
	}
	stored, err := repo.GetByID(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if stored.Status != domain.StatusUploaded {
		t.Fatalf("expected document to stay uploaded, got %s", stored.Status)
	}
}

func TestIngestUploadStorageError(t *testing.T) {
	storage := newStorageFake()
	storage.saveErr = errors.New("disk full")
	repo := newMemRepo()
	uc := newIngestForTest(repo, storage, &queueFake{}, UploadPolicy{})

	_, err := uc.Upload(context.Background(), "report.pdf", "application/pdf", bytes.NewReader(pdfBytes))
	if err == nil || !strings.Contains(err.Error(), "save to object storage") {
		t.Fatalf("expected storage error, got %v", err)
	}
	if len(repo.docs) != 0 {
		t.Fatalf("expected no metadata without stored bytes")
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"report 1.pdf":        "report_1.pdf",
		"../../etc/passwd":    "passwd",
		`C:\Users\me\tax.pdf`: "tax.pdf",
		"고지서.pdf":             "___.pdf",
		"..":                  "document.bin",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
