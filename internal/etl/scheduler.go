package etl

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Scheduler runs the pipeline on a fixed interval until its context is
// canceled. Overlapping runs are prevented by the scheduler itself.
type Scheduler struct {
	pipeline   *Pipeline
	interval   time.Duration
	sourcePath string
	logger     *slog.Logger
}

// NewScheduler creates a recurring runner for one source file
func NewScheduler(pipeline *Pipeline, interval time.Duration, sourcePath string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		pipeline:   pipeline,
		interval:   interval,
		sourcePath: sourcePath,
		logger:     logger.With("component", "scheduler"),
	}
}

// Start blocks until ctx is canceled, running the pipeline every interval
func (s *Scheduler) Start(ctx context.Context) error {
	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.SingletonModeAll()

	s.logger.Info("scheduler starting", "interval", s.interval, "source_file", s.sourcePath)

	_, err := scheduler.Every(s.interval).Do(func() {
		summary, err := s.pipeline.Run(ctx, s.sourcePath)
		if err != nil {
			s.logger.Error("scheduled run failed", "error", err)
			return
		}
		s.logger.Info("scheduled run completed",
			"run_id", summary.Audit.RunID,
			"status", string(summary.Audit.Status),
		)
	})
	if err != nil {
		return err
	}

	scheduler.StartAsync()
	<-ctx.Done()
	scheduler.Stop()
	s.logger.Info("scheduler stopped")
	return nil
}
