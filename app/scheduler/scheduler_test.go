package scheduler

import (
	"context"
	"testing"
	"time"
)

func TestStartRejectsInvalidSchedule(t *testing.T) {
	s := New(time.UTC, func(context.Context) {})
	if err := s.Start("not a cron expression"); err == nil {
		t.Error("Expected an error for an invalid schedule")
	}
}

func TestStartDefaultsSchedule(t *testing.T) {
	s := New(time.UTC, func(context.Context) {})
	if err := s.Start(""); err != nil {
		t.Fatalf("Failed to start: %v", err)
	}
	defer s.Stop()

	if s.Schedule() != DefaultSchedule {
		t.Errorf("Expected default schedule %q, got %q", DefaultSchedule, s.Schedule())
	}
}

func TestRescheduleReplacesEntry(t *testing.T) {
	s := New(time.UTC, func(context.Context) {})
	if err := s.Start("0 8 * * *"); err != nil {
		t.Fatalf("Failed to start: %v", err)
	}
	defer s.Stop()

	if err := s.Reschedule("30 6 * * *"); err != nil {
		t.Fatalf("Failed to reschedule: %v", err)
	}
	if s.Schedule() != "30 6 * * *" {
		t.Errorf("Expected updated schedule, got %q", s.Schedule())
	}

	if err := s.Reschedule("bad"); err == nil {
		t.Error("Expected an error for an invalid reschedule")
	}
	if s.Schedule() != "30 6 * * *" {
		t.Errorf("Expected schedule unchanged after invalid input, got %q", s.Schedule())
	}
}

func TestFireInvokesRun(t *testing.T) {
	done := make(chan struct{})
	s := New(time.UTC, func(ctx context.Context) {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("Expected a deadline on the run context")
		}
		close(done)
	})

	s.fire()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Expected the run callback to be invoked")
	}
}
