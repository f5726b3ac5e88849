// Package scheduler runs periodic maintenance jobs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kirillkom/doc-chat-service/internal/core/usecase"
)

const DefaultSchedule = "@every 1m"

type Sweeper interface {
	Sweep(ctx context.Context) (usecase.SweepReport, error)
}

type SweepRecorder interface {
	RecordSweep(service string, republished, failed int)
}

// SweepScheduler triggers the stale ingestion sweep. Overlapping runs are skipped.
type SweepScheduler struct {
	service  string
	sweeper  Sweeper
	recorder SweepRecorder
	timeout  time.Duration
	cron     *cron.Cron
}

func NewSweepScheduler(service string, sweeper Sweeper, recorder SweepRecorder) *SweepScheduler {
	return &SweepScheduler{
		service:  service,
		sweeper:  sweeper,
		recorder: recorder,
		timeout:  time.Minute,
		cron:     cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// Run schedules the sweep and blocks until ctx is done, then waits for a running sweep to finish.
func (s *SweepScheduler) Run(ctx context.Context, schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("parse sweeper schedule %q: %w", schedule, err)
	}
	s.cron.Start()
	slog.Info("sweeper_started", "schedule", schedule)

	<-ctx.Done()
	<-s.cron.Stop().Done()
	slog.Info("sweeper_stopped")
	return nil
}

func (s *SweepScheduler) RunOnce(ctx context.Context) usecase.SweepReport {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	report, err := s.sweeper.Sweep(runCtx)
	if s.recorder != nil {
		s.recorder.RecordSweep(s.service, report.Republished, report.Failed)
	}
	if err != nil {
		slog.Error("sweep_failed", "error", err, "republished", report.Republished, "failed", report.Failed)
		return report
	}
	if report.Republished > 0 || report.Failed > 0 {
		slog.Info("sweep_completed",
			"republished", report.Republished,
			"failed", report.Failed,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return report
}
