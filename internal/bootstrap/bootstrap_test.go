package bootstrap

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/doc-chat-service/internal/config"
	"github.com/kirillkom/doc-chat-service/internal/core/usecase"
)

func singleNodeConfig(t *testing.T) config.Config {
	dir := t.TempDir()
	return config.Config{
		DocumentStore:  "badger",
		BadgerPath:     filepath.Join(dir, "badger"),
		StorageBackend: "local",
		StoragePath:    filepath.Join(dir, "storage"),
		QueueBackend:   "inprocess",
		LockBackend:    "local",
		LLMProvider:    "ollama",
		OCRProvider:    "none",
		OllamaURL:      "http://127.0.0.1:1",
		OllamaGenModel: "gen",
		ChunkSize:      800,
		ChunkOverlap:   120,
	}
}

func TestNewWiresSingleNodeBackends(t *testing.T) {
	app, err := New(context.Background(), singleNodeConfig(t), Hooks{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	if !app.InProcess {
		t.Fatalf("expected in-process queue")
	}
	if app.IngestUC == nil || app.ProcessUC == nil || app.ChatUC == nil || app.AnalyzeUC == nil || app.ReanalyzeUC == nil || app.SweepUC == nil {
		t.Fatalf("expected every use case wired: %+v", app)
	}

	docs, err := app.QueryUC.List(context.Background(), 10)
	if err != nil || len(docs) != 0 {
		t.Fatalf("List() on empty store = %v, %v", docs, err)
	}
}

func TestNewRejectsUnknownBackends(t *testing.T) {
	cases := map[string]func(*config.Config){
		"DOCUMENT_STORE": func(c *config.Config) { c.DocumentStore = "mongo" },
		"QUEUE_BACKEND":  func(c *config.Config) { c.QueueBackend = "kafka" },
		"LOCK_BACKEND":   func(c *config.Config) { c.LockBackend = "zookeeper" },
		"LLM_PROVIDER":   func(c *config.Config) { c.LLMProvider = "openai" },
		"OCR_PROVIDER":   func(c *config.Config) { c.OCRProvider = "tesseract" },
	}
	for key, mutate := range cases {
		cfg := singleNodeConfig(t)
		mutate(&cfg)
		app, err := New(context.Background(), cfg, Hooks{})
		if err == nil || app != nil {
			t.Fatalf("%s: expected error, got app=%v", key, app)
		}
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("%s: error should name the setting, got %v", key, err)
		}
	}
}

func TestGeminiProviderRequiresKey(t *testing.T) {
	cfg := singleNodeConfig(t)
	cfg.LLMProvider = "gemini"
	if _, err := New(context.Background(), cfg, Hooks{}); err == nil {
		t.Fatalf("expected missing gemini key to fail")
	}
}

func TestAllowedMimeTypesAppendsExtras(t *testing.T) {
	got := allowedMimeTypes([]string{usecase.MimeXLSX, usecase.MimePDF, usecase.MimeText})
	if len(got) != len(usecase.DefaultAllowedMimeTypes)+2 {
		t.Fatalf("unexpected allowed types %v", got)
	}
	if len(usecase.DefaultAllowedMimeTypes) != 4 {
		t.Fatalf("defaults must not be mutated: %v", usecase.DefaultAllowedMimeTypes)
	}
}
