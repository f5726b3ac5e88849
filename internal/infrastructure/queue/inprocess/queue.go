// Package inprocess runs ingestion inside the API process for single-node deployments.
package inprocess

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/doc-chat-service/internal/core/domain"
)

var ErrQueueFull = errors.New("ingestion queue is full")

type event struct {
	documentID  string
	publishedAt time.Time
}

type Options struct {
	Buffer     int
	Workers    int
	ObserveLag func(time.Duration)
}

// Queue is a bounded channel drained by a fixed number of worker goroutines.
// Publish never blocks; a full buffer is reported as a temporary failure and
// the sweeper republishes the document later.
type Queue struct {
	events     chan event
	workers    int
	observeLag func(time.Duration)
}

func New(opts Options) *Queue {
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Queue{
		events:     make(chan event, opts.Buffer),
		workers:    opts.Workers,
		observeLag: opts.ObserveLag,
	}
}

func (q *Queue) PublishDocumentIngested(ctx context.Context, documentID string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	select {
	case q.events <- event{documentID: documentID, publishedAt: time.Now()}:
		return nil
	default:
		return domain.WrapError(domain.ErrTemporary, "publish ingestion event", ErrQueueFull)
	}
}

// SubscribeDocumentIngested blocks until ctx is done and every started handler has returned.
func (q *Queue) SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error {
	var g errgroup.Group
	g.SetLimit(q.workers)

	for {
		select {
		case <-ctx.Done():
			return g.Wait()
		case ev := <-q.events:
			if q.observeLag != nil {
				q.observeLag(time.Since(ev.publishedAt))
			}
			g.Go(func() error {
				if err := handler(ctx, ev.documentID); err != nil {
					slog.Warn("ingestion_handler_failed", "document_id", ev.documentID, "error", err)
				}
				return nil
			})
		}
	}
}

// Len reports queued events not yet picked up by a worker.
func (q *Queue) Len() int {
	return len(q.events)
}
