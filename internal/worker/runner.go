// Package worker adapts the ingestion use case to queue delivery.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/kirillkom/doc-chat-service/internal/core/domain"
	"github.com/kirillkom/doc-chat-service/internal/core/ports"
)

const DefaultTimeout = 5 * time.Minute

type Recorder interface {
	StartDocument()
	FinishDocument(service, outcome string, duration time.Duration)
}

// Runner bounds each ingestion run and reports it to metrics and logs.
type Runner struct {
	service   string
	processor ports.DocumentProcessor
	timeout   time.Duration
	recorder  Recorder
}

func NewRunner(service string, processor ports.DocumentProcessor, timeout time.Duration, recorder Recorder) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{service: service, processor: processor, timeout: timeout, recorder: recorder}
}

// Handle matches the queue subscription handler signature. A document already being
// processed elsewhere is not an error: the other run owns it.
func (r *Runner) Handle(ctx context.Context, documentID string) error {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if r.recorder != nil {
		r.recorder.StartDocument()
	}
	start := time.Now()
	err := r.processor.ProcessByID(runCtx, documentID)
	duration := time.Since(start)

	outcome := "ok"
	switch {
	case err == nil:
		slog.Info("document_processed", "document_id", documentID, "duration_ms", duration.Milliseconds())
	case domain.IsKind(err, domain.ErrIngestionInFlight):
		outcome = "skipped"
		slog.Info("document_in_flight", "document_id", documentID)
		err = nil
	default:
		outcome = "error"
		slog.Warn("document_process_failed",
			"document_id", documentID,
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
	}
	if r.recorder != nil {
		r.recorder.FinishDocument(r.service, outcome, duration)
	}
	return err
}
