// Package scheduler runs the periodic background jobs: latest-media cache
// refresh and watch-state pruning.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/driftworks/playdeck/internal/config"
	"github.com/driftworks/playdeck/internal/database"
	"github.com/driftworks/playdeck/internal/library"
)

// Scheduler owns the cron instance and its job wiring.
type Scheduler struct {
	db      *database.DB
	loader  *config.Loader
	library *library.Cache
	cron    *cron.Cron

	mu      sync.Mutex
	running bool
}

// New creates a scheduler; Start registers and runs the jobs.
func New(db *database.DB, loader *config.Loader, libraryCache *library.Cache) *Scheduler {
	return &Scheduler{
		db:      db,
		loader:  loader,
		library: libraryCache,
		cron:    cron.New(),
	}
}

// Start registers the periodic jobs and starts the cron loop. The library
// cache is refreshed once immediately so the UI has data before the first
// scheduled run.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	refreshInterval := s.loader.Duration("library.refresh_interval", 10*time.Minute)
	spec := fmt.Sprintf("@every %s", refreshInterval)

	if _, err := s.cron.AddFunc(spec, func() {
		refreshCtx, cancel := context.WithTimeout(ctx, config.GetTimeouts().HTTPClient)
		defer cancel()
		if err := s.library.Refresh(refreshCtx); err != nil {
			log.Warn().Err(err).Msg("Scheduled latest media refresh failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule library refresh: %w", err)
	}

	if _, err := s.cron.AddFunc("@daily", func() {
		retainDays := s.loader.Int("watch_state.retain_days", 180)
		pruned, err := s.db.PruneWatchStates(retainDays)
		if err != nil {
			log.Warn().Err(err).Msg("Watch state pruning failed")
			return
		}
		if pruned > 0 {
			log.Info().Int64("pruned", pruned).Msg("Pruned stale watch states")
			if err := s.db.Vacuum(); err != nil {
				log.Warn().Err(err).Msg("Database vacuum failed")
			}
		}
		if err := s.db.Optimize(); err != nil {
			log.Warn().Err(err).Msg("Database optimize failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule watch state pruning: %w", err)
	}

	go func() {
		refreshCtx, cancel := context.WithTimeout(ctx, config.GetTimeouts().HTTPClient)
		defer cancel()
		if err := s.library.Refresh(refreshCtx); err != nil {
			log.Warn().Err(err).Msg("Initial latest media refresh failed")
		}
	}()

	s.cron.Start()
	s.running = true

	log.Info().Dur("library_refresh", refreshInterval).Msg("Scheduler started")
	return nil
}

// Stop halts the cron loop, waiting for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	<-s.cron.Stop().Done()
	s.running = false
	log.Debug().Msg("Scheduler stopped")
}
