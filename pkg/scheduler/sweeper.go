// Package scheduler runs periodic maintenance jobs.
package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/formversation/voiceform/pkg/logging"
	"github.com/formversation/voiceform/pkg/storage"
)

// IdlePruner removes live session runners that went quiet. The API
// server's session manager implements it.
type IdlePruner interface {
	PruneIdle(maxAge time.Duration) int
}

// Sweeper periodically deletes session snapshots that have not advanced
// within the configured age, and prunes their in-memory runners.
type Sweeper struct {
	cron     *cron.Cron
	store    storage.SessionStore
	pruner   IdlePruner
	maxAge   time.Duration
	schedule string
	log      logging.Logger
}

// NewSweeper creates a sweeper. The pruner may be nil when no live
// runners exist in this process.
func NewSweeper(store storage.SessionStore, pruner IdlePruner, maxAge time.Duration, schedule string, log logging.Logger) *Sweeper {
	return &Sweeper{
		cron:     cron.New(),
		store:    store,
		pruner:   pruner,
		maxAge:   maxAge,
		schedule: schedule,
		log:      log,
	}
}

// Start registers the sweep job and starts the cron scheduler.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.log.Info("session sweeper started",
		logging.F("schedule", s.schedule),
		logging.F("max_age", s.maxAge.String()))
	return nil
}

// Stop halts the scheduler. A sweep already in flight finishes.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Sweeper) sweep() {
	removed, err := s.store.DeleteExpired(s.maxAge)
	if err != nil {
		s.log.Error("session sweep failed", logging.F("error", err.Error()))
		return
	}

	pruned := 0
	if s.pruner != nil {
		pruned = s.pruner.PruneIdle(s.maxAge)
	}

	if removed > 0 || pruned > 0 {
		s.log.Info("session sweep finished",
			logging.F("snapshots_removed", removed),
			logging.F("runners_pruned", pruned))
	}
}
