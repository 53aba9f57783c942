package comparison

import (
	"context"
	"errors"
	"fmt"

	"data-reconciler/core/pipeline"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs every comparison on a cron schedule through the shared Service.
type Scheduler struct {
	cron     *cron.Cron
	service  *Service
	schedule string
	logger   *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewScheduler validates schedule and registers the recurring run.
// Standard five-field expressions and descriptors such as @hourly are accepted.
func NewScheduler(service *Service, schedule string, logger *zap.Logger) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:     cron.New(),
		service:  service,
		schedule: schedule,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	if _, err := s.cron.AddFunc(schedule, s.Trigger); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Reconciliation scheduler started", zap.String("schedule", s.schedule))
}

// Stop cancels an in-flight scheduled run and waits for it to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("Reconciliation scheduler stopped")
}

// Trigger performs one scheduled run. A tick that finds a run in progress is skipped.
func (s *Scheduler) Trigger() {
	res, err := s.service.Run(s.ctx, pipeline.Options{})
	switch {
	case errors.Is(err, ErrRunInProgress):
		s.logger.Warn("Scheduled run skipped, a run is already in progress")
	case err != nil:
		s.logger.Error("Scheduled run failed", zap.Error(err))
	default:
		s.logger.Info("Scheduled run completed",
			zap.String("run_id", res.RunID),
			zap.Bool("failed", res.Failed()))
	}
}
