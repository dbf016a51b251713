// Package retention prunes aged telemetry from the statistics table.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jmylchreest/encodarr/internal/repository"
)

// DefaultSchedule runs the sweep at the top of every hour.
const DefaultSchedule = "0 * * * *"

// Sweeper deletes statistics samples older than the retention window
// on a cron schedule. When a log directory is configured it also
// removes per-job encoder logs that have not been written to within
// the window; a running job keeps appending, so its log stays fresh.
type Sweeper struct {
	mu sync.Mutex

	stats     repository.StatisticsRepository
	retention time.Duration
	schedule  string
	logDir    string
	logger    *slog.Logger

	cron *cron.Cron
}

// NewSweeper creates a sweeper. A retention of zero disables pruning.
func NewSweeper(stats repository.StatisticsRepository, retention time.Duration) *Sweeper {
	return &Sweeper{
		stats:     stats,
		retention: retention,
		schedule:  DefaultSchedule,
		logger:    slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (s *Sweeper) WithLogger(logger *slog.Logger) *Sweeper {
	s.logger = logger.With(slog.String("component", "retention"))
	return s
}

// WithSchedule overrides the cron schedule.
func (s *Sweeper) WithSchedule(schedule string) *Sweeper {
	s.schedule = schedule
	return s
}

// WithLogDir enables pruning of stale per-job log files in dir.
func (s *Sweeper) WithLogDir(dir string) *Sweeper {
	s.logDir = dir
	return s
}

// Start runs one immediate sweep and begins the cron loop.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.retention <= 0 {
		s.logger.Info("statistics retention disabled")
		return nil
	}
	if s.cron != nil {
		return fmt.Errorf("sweeper already started")
	}

	c := cron.New()
	if _, err := c.AddFunc(s.schedule, s.sweep); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}
	s.cron = c
	c.Start()

	s.logger.Info("statistics retention sweeper started",
		slog.String("schedule", s.schedule),
		slog.Duration("retention", s.retention))

	go s.sweep()
	return nil
}

// Stop halts the cron loop and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}

// sweep deletes everything older than the retention window.
func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-s.retention)
	deleted, err := s.stats.DeleteBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("pruning statistics",
			slog.Time("cutoff", cutoff),
			slog.String("error", err.Error()))
		return
	}
	if deleted > 0 {
		s.logger.Info("pruned statistics",
			slog.Int64("deleted", deleted),
			slog.Time("cutoff", cutoff))
	}

	s.sweepLogs(cutoff)
}

// sweepLogs removes job log files untouched since the cutoff.
func (s *Sweeper) sweepLogs(cutoff time.Time) {
	if s.logDir == "" {
		return
	}

	entries, err := os.ReadDir(s.logDir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("reading log directory",
				slog.String("dir", s.logDir),
				slog.String("error", err.Error()))
		}
		return
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".log" {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.logDir, entry.Name())); err != nil {
			s.logger.Warn("removing stale log",
				slog.String("file", entry.Name()),
				slog.String("error", err.Error()))
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("pruned job logs", slog.Int("removed", removed))
	}
}
