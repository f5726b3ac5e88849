package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/doc-chat-service/internal/adapters/http"
	"github.com/kirillkom/doc-chat-service/internal/bootstrap"
	"github.com/kirillkom/doc-chat-service/internal/config"
	"github.com/kirillkom/doc-chat-service/internal/observability/logging"
	"github.com/kirillkom/doc-chat-service/internal/observability/metrics"
	"github.com/kirillkom/doc-chat-service/internal/scheduler"
	"github.com/kirillkom/doc-chat-service/internal/worker"
)

const serviceName = "api"

func main() {
	if err := run(); err != nil {
		slog.Error("api_exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	workerMetrics := metrics.NewWorkerMetrics(serviceName)

	app, err := bootstrap.New(ctx, cfg, bootstrap.Hooks{
		BreakerState: httpMetrics.SetBreakerState,
		QueueLag:     func(lag time.Duration) { workerMetrics.ObserveQueueLag(serviceName, lag) },
	})
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()

	var background sync.WaitGroup
	if app.InProcess {
		httpMetrics.Include(workerMetrics.Registry())
		runner := worker.NewRunner(serviceName, app.ProcessUC, cfg.IngestTimeout, workerMetrics)
		background.Add(1)
		go func() {
			defer background.Done()
			if err := app.Queue.SubscribeDocumentIngested(ctx, runner.Handle); err != nil {
				slog.Error("ingestion_subscriber_stopped", "error", err)
			}
		}()
		slog.Info("ingestion_workers_started", "workers", cfg.IngestWorkers)

		if cfg.SweeperEnabled {
			sweeper := scheduler.NewSweepScheduler(serviceName, app.SweepUC, workerMetrics)
			background.Add(1)
			go func() {
				defer background.Done()
				if err := sweeper.Run(ctx, cfg.SweeperSchedule); err != nil {
					slog.Error("sweeper_stopped", "error", err)
				}
			}()
		}
	}

	router, err := httpadapter.NewRouter(cfg, httpadapter.Services{
		Ingestor:   app.IngestUC,
		Documents:  app.QueryUC,
		Chat:       app.ChatUC,
		Analyzer:   app.AnalyzeUC,
		Reanalyzer: app.ReanalyzeUC,
	}, httpMetrics)
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      cfg.AnalyzeTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("api_listening", "addr", server.Addr, "queue_backend", cfg.QueueBackend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			stop()
			background.Wait()
			return fmt.Errorf("api server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("api_shutdown_failed", "error", err)
	}
	background.Wait()
	slog.Info("api_stopped")
	return nil
}
