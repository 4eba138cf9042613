// Package scheduler runs nightly memory consolidation per timezone, so every
// user gets consolidated at the same local hour.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/oeduardop1/life-assistant/pkg/assistant/memory"
	"github.com/oeduardop1/life-assistant/pkg/assistant/store"
)

// Scheduler owns the cron instance for background consolidation.
type Scheduler struct {
	cron      *cron.Cron
	worker    *memory.Worker
	users     *store.UserStore
	localTime string
	logger    *slog.Logger
}

// New creates a consolidation scheduler. localTime is the local wall-clock
// hour in "HH:MM" form at which each timezone runs.
func New(worker *memory.Worker, users *store.UserStore, localTime string, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		worker:    worker,
		users:     users,
		localTime: localTime,
		logger:    logger.With("component", "scheduler"),
	}
}

// Start registers one cron entry per timezone with active users and begins
// ticking. Timezones that appear later need a restart to be picked up.
func (s *Scheduler) Start(ctx context.Context) error {
	timezones, err := s.users.Timezones(ctx)
	if err != nil {
		return fmt.Errorf("listing user timezones: %w", err)
	}

	spec, err := cronSpec(s.localTime)
	if err != nil {
		return err
	}

	for _, tz := range timezones {
		tz := tz
		entrySpec := fmt.Sprintf("CRON_TZ=%s %s", tz, spec)
		_, err := s.cron.AddFunc(entrySpec, func() {
			runCtx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()
			if _, err := s.worker.RunForTimezone(runCtx, tz); err != nil {
				s.logger.Error("scheduled consolidation failed", "timezone", tz, "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("scheduling consolidation for %s: %w", tz, err)
		}
		s.logger.Info("consolidation scheduled", "timezone", tz, "local_time", s.localTime)
	}

	s.cron.Start()
	return nil
}

// Stop halts the cron and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// cronSpec converts "HH:MM" into a daily cron expression.
func cronSpec(localTime string) (string, error) {
	t, err := time.Parse("15:04", localTime)
	if err != nil {
		return "", fmt.Errorf("invalid local time %q: %w", localTime, err)
	}
	return fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour()), nil
}
