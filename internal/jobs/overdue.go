// Package jobs runs the portal's scheduled background work.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/openfoi/foiportal/internal/metrics"
	"github.com/openfoi/foiportal/internal/models"
)

// Store defines the database operations the scheduler needs.
type Store interface {
	ListOverdueRequests(ctx context.Context, now time.Time) ([]*models.Request, error)
}

// Scheduler runs the periodic overdue-deadline sweep. Requests whose
// legal deadline passed without a resolution are counted and exposed
// as a gauge.
type Scheduler struct {
	store   Store
	metrics *metrics.Metrics
	cron    *cron.Cron
	logger  zerolog.Logger
}

// NewScheduler creates a scheduler with the given cron expression,
// e.g. "0 * * * *" for hourly.
func NewScheduler(store Store, m *metrics.Metrics, schedule string, logger zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		store:   store,
		metrics: m,
		cron:    cron.New(),
		logger:  logger.With().Str("component", "scheduler").Logger(),
	}

	if _, err := s.cron.AddFunc(schedule, s.checkOverdue); err != nil {
		return nil, fmt.Errorf("invalid overdue check schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins the scheduling loop. The overdue sweep also runs once
// immediately so the gauge is populated after startup.
func (s *Scheduler) Start() {
	s.checkOverdue()
	s.cron.Start()
	s.logger.Info().Msg("scheduler started")
}

// Stop stops the scheduling loop and waits for a running sweep.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("scheduler stopped")
}

func (s *Scheduler) checkOverdue() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	overdue, err := s.store.ListOverdueRequests(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error().Err(err).Msg("overdue sweep failed")
		return
	}

	s.metrics.SetOverdueRequests(len(overdue))
	s.logger.Info().Int("overdue", len(overdue)).Msg("overdue sweep completed")
}
