package scheduler

import (
	"fmt"

	"LodgingPulse/internal/cache"
	"LodgingPulse/internal/scenario"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler manages the periodic maintenance tasks: cache purge and
// scenario registry refresh.
type Scheduler struct {
	Cron      *cron.Cron
	Cache     *cache.ForecastCache
	Scenarios *scenario.Registry
	log       zerolog.Logger
}

// NewScheduler creates a new Scheduler.
func NewScheduler(fc *cache.ForecastCache, reg *scenario.Registry, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		Cron:      cron.New(cron.WithSeconds()),
		Cache:     fc,
		Scenarios: reg,
		log:       log.With().Str("component", "scheduler").Logger(),
	}
}

// RegisterAll registers the cache purge and scenario refresh tasks.
func (s *Scheduler) RegisterAll(purgeCron, refreshCron string) error {
	if _, err := s.Cron.AddFunc(purgeCron, s.purgeTask); err != nil {
		return fmt.Errorf("register purge task: %w", err)
	}
	if _, err := s.Cron.AddFunc(refreshCron, s.refreshTask); err != nil {
		return fmt.Errorf("register refresh task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	s.Cron.Stop()
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) purgeTask() {
	removed := s.Cache.PurgeExpired()
	if removed > 0 {
		s.log.Info().Int("removed", removed).Int("remaining", s.Cache.Len()).Msg("purged expired forecast entries")
	}
}

func (s *Scheduler) refreshTask() {
	s.log.Info().Msg("refreshing scenario registry")
	if _, err := s.Scenarios.Refresh(); err != nil {
		s.log.Error().Err(err).Msg("scenario refresh failed")
	}
}
