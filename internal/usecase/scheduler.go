package usecase

import (
	"context"
	"log/slog"
	"time"

	"DigestRanker/internal/ports"
)

// Scheduler wires the daily driver with the collect and pipeline use cases.
type Scheduler struct {
	driver    ports.Scheduler
	collector *Collector
	pipeline  *Pipeline
	logger    *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring jobs. collector may be nil.
func NewScheduler(driver ports.Scheduler, collector *Collector, pipeline *Pipeline, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, collector: collector, pipeline: pipeline, logger: logger}
}

// Start registers the cycle with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}
	return s.driver.Start(ctx, func(trigger time.Time) {
		s.Cycle(ctx, trigger)
	})
}

// Cycle collects fresh candidates and then runs every topic once.
func (s *Scheduler) Cycle(ctx context.Context, trigger time.Time) {
	s.logger.Info("cycle started", "trigger", trigger)

	if s.collector != nil {
		if _, err := s.collector.CollectAll(ctx, s.pipeline.Topics()); err != nil {
			s.logger.Warn("collect finished with errors", "error", err)
		}
	}

	reports, err := s.pipeline.RunAll(ctx)
	if err != nil {
		s.logger.Error("cycle finished with errors", "error", err)
	}
	for _, r := range reports {
		s.logger.Info("topic done", "topic", r.Topic, "run_id", r.RunID, "entries", len(r.Digest.Entries), "empty", r.Empty)
	}
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Stop(ctx)
}
