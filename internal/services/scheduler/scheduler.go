package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/shibazach/rag-local-dev-sub000/internal/common"
	"github.com/shibazach/rag-local-dev-sub000/internal/services/pipeline"
)

// Service runs the periodic retention sweep that clears terminal jobs
// from the job registry once they exceed the configured age.
type Service struct {
	registry *pipeline.Registry
	config   *common.RetentionConfig
	cron     *cron.Cron
	logger   arbor.ILogger
	running  bool
}

// NewService creates the retention scheduler
func NewService(registry *pipeline.Registry, config *common.RetentionConfig, logger arbor.ILogger) *Service {
	return &Service{
		registry: registry,
		config:   config,
		cron:     cron.New(),
		logger:   logger,
	}
}

// Start registers the sweep on the configured cron schedule
func (s *Service) Start() error {
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	schedule := s.config.Schedule
	if schedule == "" {
		schedule = "*/10 * * * *"
	}
	maxAge := common.ParseDurationOr(s.config.MaxAge, time.Hour)

	if _, err := s.cron.AddFunc(schedule, func() {
		removed := s.registry.Sweep(maxAge)
		if removed > 0 {
			s.logger.Info().
				Int("removed", removed).
				Str("max_age", maxAge.String()).
				Msg("Retention sweep cleared terminal jobs")
		}
	}); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("schedule", schedule).
		Str("max_age", maxAge.String()).
		Msg("Retention scheduler started")

	return nil
}

// Stop halts the scheduler, waiting for an in-flight sweep to finish
func (s *Service) Stop() {
	if !s.running {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	s.logger.Info().Msg("Retention scheduler stopped")
}
