// Package scheduler wraps gocron with recurring and one-shot job
// scheduling, panic isolation and an idempotent start guard.
package scheduler

import (
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

// Scheduler is the process-wide job registry. Exactly one instance is
// constructed by the composition root; Start is guarded by an explicit
// started flag so repeated initialization paths cannot spawn a second
// scheduler loop.
type Scheduler struct {
	s *gocron.Scheduler

	mu      sync.Mutex
	started bool
}

// New creates a stopped scheduler on UTC time.
func New() *Scheduler {
	return &Scheduler{s: gocron.NewScheduler(time.UTC)}
}

// ScheduleRecurring registers a cron-style recurring job under id.
func (s *Scheduler) ScheduleRecurring(id, cronExpr string, job func()) error {
	_, err := s.s.Cron(cronExpr).Tag(id).Do(guard(id, job))
	if err != nil {
		return err
	}
	log.Printf("scheduler: recurring job %s registered (%s)", id, cronExpr)
	return nil
}

// ScheduleOnce registers a job that fires once at fireAt and then
// terminates with no automatic retry. With replace=true any pending job
// carrying the same id is superseded before the new one is registered,
// so the id never fires twice.
func (s *Scheduler) ScheduleOnce(id string, fireAt time.Time, replace bool, job func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if replace {
		// RemoveByTag errors when no such job exists; that is the
		// common case and not a failure.
		_ = s.s.RemoveByTag(id)
	}

	_, err := s.s.Every(1).Day().StartAt(fireAt).LimitRunsTo(1).Tag(id).Do(guard(id, job))
	if err != nil {
		return err
	}
	log.Printf("scheduler: one-shot job %s registered for %s", id, fireAt.Format(time.RFC3339))
	return nil
}

// Start launches the scheduler loop. Calling it again is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		log.Println("scheduler: already running")
		return
	}
	s.s.StartAsync()
	s.started = true
	log.Println("scheduler: started")
}

// Stop halts the scheduler. Safe to call on process exit even when the
// scheduler never started; it does not wait for running jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.s.Stop()
	s.started = false
	log.Println("scheduler: stopped")
}

// Jobs reports the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return len(s.s.Jobs())
}

// guard keeps a panicking job from taking down the scheduler loop or
// blocking other jobs; the failure is logged and the next scheduled run
// proceeds normally.
func guard(id string, job func()) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("scheduler: job %s panicked: %v", id, r)
			}
		}()
		job()
	}
}
