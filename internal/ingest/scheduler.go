package ingest

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler drives periodic refreshes through the worker pool using a cron
// expression with a seconds field.
type Scheduler struct {
	cron     *cron.Cron
	pool     *Pool
	schedule string
	logger   *slog.Logger
	entryID  cron.EntryID
}

// NewScheduler creates a cron-backed refresh scheduler.
func NewScheduler(pool *Pool, schedule string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		pool:     pool,
		schedule: schedule,
		logger:   logger,
	}
}

// Start registers the refresh job and starts the cron loop.
func (s *Scheduler) Start() error {
	if s.schedule == "" {
		return fmt.Errorf("refresh schedule is empty")
	}

	id, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.pool.Enqueue("scheduled"); err != nil {
			s.logger.Warn("scheduled refresh dropped", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", s.schedule, err)
	}
	s.entryID = id

	s.cron.Start()
	s.logger.Info("refresh scheduler started", "schedule", s.schedule)
	return nil
}

// Stop halts the cron loop, waiting for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("refresh scheduler stopped")
}
