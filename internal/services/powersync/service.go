// Package powersync runs the conductor's periodic background work: the
// out of band power state sync and the stale deploy sweep.
package powersync

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ferrum/internal/common"
	"github.com/ternarybob/ferrum/internal/conductor"
)

// Service schedules the conductor's periodic jobs with cron
type Service struct {
	conductor *conductor.Conductor
	config    *common.Config
	cron      *cron.Cron
	logger    arbor.ILogger

	mu      sync.Mutex
	running bool
	// syncing guards against overlapping sync runs when a slow BMC
	// makes one sweep outlast the schedule interval.
	syncing bool
}

// NewService creates the background job service
func NewService(c *conductor.Conductor, config *common.Config) *Service {
	return &Service{
		conductor: c,
		config:    config,
		cron:      cron.New(),
		logger:    common.GetLogger(),
	}
}

// Start registers the cron entries and starts the scheduler
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("power sync already running")
	}

	schedule := s.config.PowerSync.Schedule
	if schedule == "" {
		schedule = "*/1 * * * *" // Default: every 1 minute
	}

	if s.config.PowerSync.Enabled {
		if _, err := s.cron.AddFunc(schedule, s.runSync); err != nil {
			return fmt.Errorf("failed to schedule power sync: %w", err)
		}
	}
	if _, err := s.cron.AddFunc(schedule, s.runSweep); err != nil {
		return fmt.Errorf("failed to schedule stale deploy sweep: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("schedule", schedule).
		Bool("power_sync", s.config.PowerSync.Enabled).
		Msg("Background jobs scheduled")
	return nil
}

// Stop halts the scheduler, waiting for a running job to finish
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	s.logger.Info().Msg("Background jobs stopped")
}

func (s *Service) runSync() {
	s.mu.Lock()
	if s.syncing {
		s.mu.Unlock()
		s.logger.Debug().Msg("Skipping power sync, previous run still active")
		return
	}
	s.syncing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.syncing = false
		s.mu.Unlock()
	}()

	s.conductor.SyncPowerStates(context.Background())
}

func (s *Service) runSweep() {
	s.conductor.SweepStaleDeploys(context.Background())
}
