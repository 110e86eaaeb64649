// Package scheduler runs named recurring jobs on top of robfig/cron.
// Each name holds at most one live entry; rescheduling a name cancels
// the previous entry first.
package scheduler

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler owns a cron runner and the name -> entry mapping.
type Scheduler struct {
	cron *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// New creates a stopped scheduler. Call Start before scheduling or jobs
// will only fire after Start.
func New() *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		entries: make(map[string]cron.EntryID),
	}
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Printf("[scheduler] started")
}

// Stop cancels the runner and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Printf("[scheduler] stopped")
}

// Schedule registers fn to run every period under the given name. A job
// already registered under the same name is cancelled and replaced.
func (s *Scheduler) Schedule(name string, period time.Duration, fn func()) error {
	if period <= 0 {
		return fmt.Errorf("scheduler: period must be positive, got %s", period)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[name]; ok {
		s.cron.Remove(old)
		log.Printf("[scheduler] job %q rescheduled", name)
	}

	id, err := s.cron.AddFunc(fmt.Sprintf("@every %s", period), fn)
	if err != nil {
		return fmt.Errorf("scheduler: add job %q: %w", name, err)
	}
	s.entries[name] = id
	log.Printf("[scheduler] job %q scheduled every %s", name, period)
	return nil
}

// CancelByName removes the named job. Returns false when no such job
// is registered.
func (s *Scheduler) CancelByName(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.entries[name]
	if !ok {
		return false
	}
	s.cron.Remove(id)
	delete(s.entries, name)
	log.Printf("[scheduler] job %q cancelled", name)
	return true
}

// Names returns the currently registered job names.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	return names
}
