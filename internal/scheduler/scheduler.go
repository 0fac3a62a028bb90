// Package scheduler is the engine's periodic task runner (spec §4.K):
// registers the heat-score update, trending-keyword, and source-weight
// tasks on fixed intervals, each bounded by its own execution timeout.
// Grounded on spec §4.K/§5 directly, using github.com/robfig/cron/v3 for
// named registration/replacement.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"heatsight/internal/aggregator"
	"heatsight/internal/config"
	"heatsight/internal/sourceweight"
	"heatsight/internal/trending"
	"heatsight/pkg/logger"
)

// Scheduler owns the cron instance and the three registered tasks.
type Scheduler struct {
	cron *cron.Cron
	cfg  *config.Config
	log  *logger.Logger

	batch    *aggregator.BatchUpdater
	trending *trending.Aggregator
	learner  *sourceweight.Learner

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func New(batch *aggregator.BatchUpdater, trend *trending.Aggregator, learner *sourceweight.Learner, cfg *config.Config, log *logger.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		cfg:      cfg,
		log:      log,
		batch:    batch,
		trending: trend,
		learner:  learner,
		entries:  make(map[string]cron.EntryID),
	}
}

// Start registers the three periodic tasks and begins running them. Each
// run is wrapped in its own context.WithTimeout(BatchTaskTimeout), since
// cron/v3 does not itself bound a job's execution time (spec §5).
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.register("heat_score_update", s.cfg.HeatUpdateIntervalSec, func(runCtx context.Context) {
		results := s.batch.Run(runCtx)
		s.log.Info("scheduler: heat_score_update finished", "scored", len(results))
	}); err != nil {
		return err
	}

	if err := s.register("keyword_trending_update", s.cfg.KeywordUpdateIntervalSec, func(runCtx context.Context) {
		entries, err := s.trending.Run(runCtx)
		if err != nil {
			s.log.Error("scheduler: keyword_trending_update failed", "error", err)
			return
		}
		s.log.Info("scheduler: keyword_trending_update finished", "entries", len(entries))
	}); err != nil {
		return err
	}

	if err := s.register("source_weight_update", s.cfg.SourceWeightIntervalSec, func(runCtx context.Context) {
		weights, err := s.learner.Run(runCtx)
		if err != nil {
			s.log.Error("scheduler: source_weight_update failed", "error", err)
			return
		}
		s.log.Info("scheduler: source_weight_update finished", "sources", len(weights))
	}); err != nil {
		return err
	}

	s.cron.Start()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// register installs (or replaces) a named task at a fixed-interval schedule,
// running fn inside a context bounded by BatchTaskTimeout. Replacing a
// registration removes the previous entry first, per spec §4.K.
func (s *Scheduler) register(name string, intervalSeconds int, fn func(context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}

	spec := fmt.Sprintf("@every %ds", intervalSeconds)
	id, err := s.cron.AddFunc(spec, func() {
		runCtx, cancel := context.WithTimeout(context.Background(), s.cfg.BatchTaskTimeout)
		defer cancel()
		fn(runCtx)
	})
	if err != nil {
		return fmt.Errorf("scheduler: register %q: %w", name, err)
	}
	s.entries[name] = id
	s.log.Info("scheduler: task registered", "task", name, "interval_seconds", intervalSeconds)
	return nil
}

// Stop cancels all scheduled runs and waits for in-flight ones to return.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.log.Info("scheduler: stopped")
}
