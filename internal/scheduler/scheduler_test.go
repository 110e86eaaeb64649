package scheduler

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduleRunsJob(t *testing.T) {
	s := New()
	s.Start()
	defer s.Stop()

	var fired atomic.Int64
	if err := s.Schedule("tick", 50*time.Millisecond, func() { fired.Add(1) }); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for fired.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("job never fired")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestScheduleReplacesSameName(t *testing.T) {
	s := New()
	s.Start()
	defer s.Stop()

	var old, replacement atomic.Int64
	if err := s.Schedule("tick", 30*time.Millisecond, func() { old.Add(1) }); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := s.Schedule("tick", 30*time.Millisecond, func() { replacement.Add(1) }); err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for replacement.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("replacement job never fired")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if old.Load() != 0 {
		t.Errorf("old job fired %d times after replacement", old.Load())
	}

	if got := s.Names(); len(got) != 1 || got[0] != "tick" {
		t.Errorf("names: got %v, want [tick]", got)
	}
}

func TestCancelByName(t *testing.T) {
	s := New()
	s.Start()
	defer s.Stop()

	var fired atomic.Int64
	if err := s.Schedule("tick", time.Hour, func() { fired.Add(1) }); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	if !s.CancelByName("tick") {
		t.Error("expected cancel to report success")
	}
	if s.CancelByName("tick") {
		t.Error("expected second cancel to report failure")
	}
	if len(s.Names()) != 0 {
		t.Errorf("names after cancel: %v", s.Names())
	}
}

func TestScheduleRejectsNonPositivePeriod(t *testing.T) {
	s := New()
	if err := s.Schedule("tick", 0, func() {}); err == nil {
		t.Error("expected error for zero period")
	}
}
