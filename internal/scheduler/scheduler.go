// Package scheduler runs periodic background tasks: match history pruning
// and a daily status summary.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sanicball-project/sanicrelay/internal/util"
)

// Pruner deletes history older than a cutoff.
type Pruner interface {
	Prune(cutoff time.Time) (int64, error)
}

// Config controls the scheduled tasks. Zero intervals disable a task.
type Config struct {
	PruneInterval time.Duration
	Retention     time.Duration
	StatsInterval time.Duration
}

// Scheduler manages periodic background tasks.
type Scheduler struct {
	cfg    Config
	pruner Pruner
	status func() (clients, players int)
	now    func() time.Time
}

// NewScheduler creates a new task scheduler. pruner and status may be nil.
func NewScheduler(cfg Config, pruner Pruner, status func() (clients, players int)) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		pruner: pruner,
		status: status,
		now:    time.Now,
	}
}

// Start runs the scheduled tasks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	log.Info().Msg("scheduler started")

	if s.pruner != nil && s.cfg.PruneInterval > 0 && s.cfg.Retention > 0 {
		s.pruneHistory()
		go s.every(ctx, s.cfg.PruneInterval, s.pruneHistory)
	}
	if s.cfg.StatsInterval > 0 {
		go s.every(ctx, s.cfg.StatsInterval, s.collectStats)
	}

	<-ctx.Done()
	log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) every(ctx context.Context, interval time.Duration, task func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			task()
		}
	}
}

// pruneHistory removes history past the retention window.
func (s *Scheduler) pruneHistory() {
	cutoff := s.now().Add(-s.cfg.Retention)
	removed, err := s.pruner.Prune(cutoff)
	if err != nil {
		log.Warn().Err(err).Msg("history prune failed")
		return
	}
	log.Info().
		Int64("removed", removed).
		Time("cutoff", cutoff).
		Msg("history pruned")
}

// collectStats logs a summary of host load and roster size.
func (s *Scheduler) collectStats() {
	ev := log.Info()
	if usage, err := util.GetResourceUsage(); err == nil {
		ev = ev.Float64("cpu_percent", usage.CPUPercent).
			Float64("memory_percent", usage.MemoryPercent).
			Uint64("memory_used_mb", usage.MemoryUsedMB)
	}
	if s.status != nil {
		clients, players := s.status()
		ev = ev.Int("clients", clients).Int("players", players)
	}
	ev.Msg("daily stats collected")
}
