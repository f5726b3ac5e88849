package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/kirillkom/doc-chat-service/internal/config"
	"github.com/kirillkom/doc-chat-service/internal/core/ports"
	"github.com/kirillkom/doc-chat-service/internal/core/usecase"
	"github.com/kirillkom/doc-chat-service/internal/infrastructure/chunking"
	"github.com/kirillkom/doc-chat-service/internal/infrastructure/extractor"
	"github.com/kirillkom/doc-chat-service/internal/infrastructure/extractor/docx"
	"github.com/kirillkom/doc-chat-service/internal/infrastructure/extractor/image"
	"github.com/kirillkom/doc-chat-service/internal/infrastructure/extractor/msdoc"
	"github.com/kirillkom/doc-chat-service/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/doc-chat-service/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/doc-chat-service/internal/infrastructure/extractor/xlsx"
	"github.com/kirillkom/doc-chat-service/internal/infrastructure/llm/anthropic"
	"github.com/kirillkom/doc-chat-service/internal/infrastructure/llm/gemini"
	"github.com/kirillkom/doc-chat-service/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/doc-chat-service/internal/infrastructure/lock/local"
	redislock "github.com/kirillkom/doc-chat-service/internal/infrastructure/lock/redis"
	"github.com/kirillkom/doc-chat-service/internal/infrastructure/queue/inprocess"
	"github.com/kirillkom/doc-chat-service/internal/infrastructure/queue/nats"
	"github.com/kirillkom/doc-chat-service/internal/infrastructure/repository/badgerdb"
	"github.com/kirillkom/doc-chat-service/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/doc-chat-service/internal/infrastructure/resilience"
	"github.com/kirillkom/doc-chat-service/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/doc-chat-service/internal/infrastructure/storage/minio"
)

// Hooks lets the calling binary feed infrastructure events into its own metrics.
type Hooks struct {
	BreakerState func(operation string, state int)
	QueueLag     func(time.Duration)
}

type App struct {
	Config config.Config

	Queue     ports.MessageQueue
	InProcess bool
	Repo      ports.DocumentRepository

	IngestUC    ports.DocumentIngestor
	QueryUC     ports.DocumentReader
	ProcessUC   ports.DocumentProcessor
	ReanalyzeUC ports.ReanalysisRequester
	ChatUC      ports.ChatService
	AnalyzeUC   ports.DocumentAnalyzer
	SweepUC     *usecase.SweepStaleUseCase

	closers []func()
}

func New(ctx context.Context, cfg config.Config, hooks Hooks) (app *App, err error) {
	app = &App{Config: cfg}
	defer func() {
		if err != nil {
			app.Close()
			app = nil
		}
	}()

	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    cfg.RetryMaxAttempts,
		RetryInitialBackoff: cfg.RetryInitialBackoff,
		RetryMaxBackoff:     cfg.RetryMaxBackoff,
		BreakerEnabled:      cfg.CircuitBreakerEnabled,
		BreakerOpenTimeout:  cfg.CircuitBreakerOpenTime,
		OnStateChange: func(operation string, state resilience.State) {
			slog.Warn("circuit_breaker_state_changed", "operation", operation, "state", state.String())
			if hooks.BreakerState != nil {
				hooks.BreakerState(operation, int(state))
			}
		},
	})

	repo, err := app.openRepository(ctx, cfg)
	if err != nil {
		return app, err
	}
	app.Repo = repo

	storage, err := openStorage(ctx, cfg)
	if err != nil {
		return app, err
	}

	queue, err := app.openQueue(cfg, executor, hooks)
	if err != nil {
		return app, err
	}
	app.Queue = queue

	lock, err := app.openLock(ctx, cfg)
	if err != nil {
		return app, err
	}

	model, err := newLanguageModel(ctx, cfg, executor)
	if err != nil {
		return app, err
	}
	ocr, err := newRecognizer(ctx, cfg, executor)
	if err != nil {
		return app, err
	}

	router := extractor.NewRouter().
		Register(pdf.NewExtractor(ocr, cfg.PDFMaxOCRPages), usecase.MimePDF).
		Register(docx.NewExtractor(), usecase.MimeDOCX).
		Register(msdoc.NewExtractor(), usecase.MimeDOC).
		Register(xlsx.NewExtractor(0), usecase.MimeXLSX).
		Register(plaintext.NewExtractor(), usecase.MimeText, "text/csv", "text/markdown").
		RegisterImages(image.NewExtractor(ocr))

	app.IngestUC = usecase.NewIngestDocumentUseCase(repo, storage, queue, usecase.UploadPolicy{
		MaxBytes:     cfg.MaxUploadBytes,
		AllowedTypes: allowedMimeTypes(cfg.UploadExtraMimeTypes),
		Deduplicate:  cfg.UploadDeduplicate,
	})
	app.QueryUC = usecase.NewDocumentQueryUseCase(repo, usecase.ListPolicy{
		DefaultLimit: cfg.ListDefaultLimit,
		MaxLimit:     cfg.ListMaxLimit,
	})
	app.ProcessUC = usecase.NewProcessDocumentUseCase(repo, storage, router, lock, usecase.ProcessPolicy{
		LockTTL: cfg.IngestLockTTL,
	})
	app.ReanalyzeUC = usecase.NewReanalyzeUseCase(repo, lock, queue)
	app.ChatUC = usecase.NewChatUseCase(repo, model, chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap), usecase.ChatPolicy{
		NoDocument:   cfg.ChatNoDocument,
		Timeout:      cfg.ChatTimeout,
		ContextChars: cfg.ChatContextChars,
	})
	app.AnalyzeUC = usecase.NewAnalyzeUseCase(repo, model, cfg.AnalyzeTimeout)
	app.SweepUC = usecase.NewSweepStaleUseCase(repo, lock, queue, usecase.SweepPolicy{
		RepublishAfter: cfg.SweepRepublishAfter,
		FailAfter:      cfg.SweepFailAfter,
	})

	slog.Info("bootstrap_ready",
		"document_store", cfg.DocumentStore,
		"storage_backend", cfg.StorageBackend,
		"queue_backend", cfg.QueueBackend,
		"lock_backend", cfg.LockBackend,
		"llm_provider", cfg.LLMProvider,
		"ocr_provider", cfg.OCRProvider,
	)
	return app, nil
}

func (a *App) openRepository(ctx context.Context, cfg config.Config) (ports.DocumentRepository, error) {
	switch cfg.DocumentStore {
	case "postgres":
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		repo := postgres.NewDocumentRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return repo, nil
	case "badger":
		repo, err := badgerdb.Open(cfg.BadgerPath)
		if err != nil {
			return nil, fmt.Errorf("open badger: %w", err)
		}
		a.closers = append(a.closers, func() { _ = repo.Close() })
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown DOCUMENT_STORE %q", cfg.DocumentStore)
	}
}

func openStorage(ctx context.Context, cfg config.Config) (ports.ObjectStorage, error) {
	switch cfg.StorageBackend {
	case "local":
		storage, err := localfs.New(cfg.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("init object storage: %w", err)
		}
		return storage, nil
	case "minio":
		storage, err := minio.New(ctx, minio.Options{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			Region:    cfg.MinioRegion,
			Prefix:    cfg.MinioPrefix,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("init minio storage: %w", err)
		}
		return storage, nil
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}
}

func (a *App) openQueue(cfg config.Config, executor *resilience.Executor, hooks Hooks) (ports.MessageQueue, error) {
	switch cfg.QueueBackend {
	case "nats":
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			QueueGroup:         cfg.NATSQueue,
			ResilienceExecutor: executor,
			ObserveLag:         hooks.QueueLag,
		})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		a.closers = append(a.closers, queue.Close)
		return queue, nil
	case "inprocess":
		a.InProcess = true
		return inprocess.New(inprocess.Options{
			Buffer:     cfg.IngestBuffer,
			Workers:    cfg.IngestWorkers,
			ObserveLag: hooks.QueueLag,
		}), nil
	default:
		return nil, fmt.Errorf("unknown QUEUE_BACKEND %q", cfg.QueueBackend)
	}
}

func (a *App) openLock(ctx context.Context, cfg config.Config) (ports.DocumentLock, error) {
	switch cfg.LockBackend {
	case "redis":
		client, err := redislock.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("init redis lock: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		return redislock.NewLock(client), nil
	case "local":
		if cfg.QueueBackend != "inprocess" {
			slog.Warn("local_lock_with_shared_queue", "queue_backend", cfg.QueueBackend)
		}
		return local.New(), nil
	default:
		return nil, fmt.Errorf("unknown LOCK_BACKEND %q", cfg.LockBackend)
	}
}

func newLanguageModel(ctx context.Context, cfg config.Config, executor *resilience.Executor) (ports.LanguageModel, error) {
	switch cfg.LLMProvider {
	case "ollama":
		return ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, ollama.Options{
			VisionModel: cfg.OllamaVisionModel,
			Timeout:     cfg.LLMRequestTimeout,
			Executor:    executor,
		}), nil
	case "gemini":
		client, err := gemini.New(ctx, gemini.Options{
			APIKey:      cfg.GeminiAPIKey,
			Model:       cfg.GeminiModel,
			VisionModel: cfg.GeminiVisionModel,
			Executor:    executor,
		})
		if err != nil {
			return nil, fmt.Errorf("init gemini: %w", err)
		}
		return client, nil
	case "anthropic":
		client, err := anthropic.New(anthropic.Options{
			APIKey:   cfg.AnthropicAPIKey,
			Model:    cfg.AnthropicModel,
			Executor: executor,
		})
		if err != nil {
			return nil, fmt.Errorf("init anthropic: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}

// newRecognizer returns nil for "none"; extractors then skip OCR.
func newRecognizer(ctx context.Context, cfg config.Config, executor *resilience.Executor) (ports.ImageTextRecognizer, error) {
	switch cfg.OCRProvider {
	case "ollama":
		return ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, ollama.Options{
			VisionModel: cfg.OllamaVisionModel,
			Timeout:     cfg.LLMRequestTimeout,
			Executor:    executor,
		}), nil
	case "gemini":
		client, err := gemini.New(ctx, gemini.Options{
			APIKey:      cfg.GeminiAPIKey,
			Model:       cfg.GeminiModel,
			VisionModel: cfg.GeminiVisionModel,
			Executor:    executor,
		})
		if err != nil {
			return nil, fmt.Errorf("init gemini ocr: %w", err)
		}
		return client, nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown OCR_PROVIDER %q", cfg.OCRProvider)
	}
}

func allowedMimeTypes(extra []string) []string {
	out := slices.Clone(usecase.DefaultAllowedMimeTypes)
	for _, mt := range extra {
		if !slices.Contains(out, mt) {
			out = append(out, mt)
		}
	}
	return out
}

// Close releases backends in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
