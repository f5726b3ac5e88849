package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/doc-chat-service/internal/bootstrap"
	"github.com/kirillkom/doc-chat-service/internal/config"
	"github.com/kirillkom/doc-chat-service/internal/observability/logging"
	"github.com/kirillkom/doc-chat-service/internal/observability/metrics"
	"github.com/kirillkom/doc-chat-service/internal/scheduler"
	"github.com/kirillkom/doc-chat-service/internal/worker"
)

const serviceName = "worker"

func main() {
	if err := run(); err != nil {
		slog.Error("worker_exited", "error", err)
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

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Hooks{
		BreakerState: workerMetrics.SetBreakerState,
		QueueLag:     func(lag time.Duration) { workerMetrics.ObserveQueueLag(serviceName, lag) },
	})
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()

	if app.InProcess {
		return errors.New("QUEUE_BACKEND=inprocess runs ingestion inside the api process; the worker needs a shared queue")
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", workerMetrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	runner := worker.NewRunner(serviceName, app.ProcessUC, cfg.IngestTimeout, workerMetrics)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("worker_subscribed", "subject", cfg.NATSSubject, "queue_group", cfg.NATSQueue)
		return app.Queue.SubscribeDocumentIngested(gctx, runner.Handle)
	})
	if cfg.SweeperEnabled {
		sweeper := scheduler.NewSweepScheduler(serviceName, app.SweepUC, workerMetrics)
		g.Go(func() error {
			return sweeper.Run(gctx, cfg.SweeperSchedule)
		})
	}
	g.Go(func() error {
		slog.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("worker_stopped")
	return nil
}
