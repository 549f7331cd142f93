// Package scheduler triggers the daily collection run on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs every morning at 08:00.
const DefaultSchedule = "0 8 * * *"

const runTimeout = 30 * time.Minute

// Scheduler owns a single cron entry. Rescheduling replaces the entry;
// an in-flight run finishes under its own timeout.
type Scheduler struct {
	mu       sync.Mutex
	cron     *cron.Cron
	entryID  cron.EntryID
	schedule string
	location *time.Location
	run      func(ctx context.Context)
}

func New(location *time.Location, run func(ctx context.Context)) *Scheduler {
	if location == nil {
		location = time.Local
	}
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(location)),
		location: location,
		run:      run,
	}
}

// Start registers the schedule and begins firing. An empty schedule falls
// back to the default.
func (s *Scheduler) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, err := s.cron.AddFunc(schedule, s.fire)
	if err != nil {
		return fmt.Errorf("failed to register schedule: %w", err)
	}
	s.entryID = entryID
	s.schedule = schedule
	s.cron.Start()

	slog.Info("Scheduler started", "schedule", schedule, "timezone", s.location.String())
	return nil
}

// Reschedule swaps the cron expression without restarting the process.
func (s *Scheduler) Reschedule(schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cron.Remove(s.entryID)
	entryID, err := s.cron.AddFunc(schedule, s.fire)
	if err != nil {
		return fmt.Errorf("failed to register schedule: %w", err)
	}
	s.entryID = entryID
	s.schedule = schedule

	slog.Info("Scheduler rescheduled", "schedule", schedule)
	return nil
}

// Schedule reports the active cron expression.
func (s *Scheduler) Schedule() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule
}

// Stop halts the cron loop and waits for an in-flight run to complete.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Info("Scheduler stopped")
}

func (s *Scheduler) fire() {
	slog.Info("Scheduled collection triggered")
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()
	s.run(ctx)
}
