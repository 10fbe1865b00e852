package engine

import (
	"sync"
	"time"
)

// Scheduler runs at most one delayed function per key. Arming a key
// replaces its pending timer; cancelling removes it. A replaced or
// cancelled function never runs, even when its timer already fired and
// is waiting on the lock.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[string]*scheduled
	gen     uint64
	stopped bool
}

type scheduled struct {
	timer *time.Timer
	gen   uint64
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{timers: make(map[string]*scheduled)}
}

// Arm schedules fn to run after delay, replacing any pending timer for key.
// It is a no-op after Stop.
func (s *Scheduler) Arm(key string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if prev, ok := s.timers[key]; ok {
		prev.timer.Stop()
	}
	s.gen++
	gen := s.gen
	entry := &scheduled{gen: gen}
	entry.timer = time.AfterFunc(delay, func() { s.fire(key, gen, fn) })
	s.timers[key] = entry
}

func (s *Scheduler) fire(key string, gen uint64, fn func()) {
	s.mu.Lock()
	entry, ok := s.timers[key]
	if !ok || entry.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.timers, key)
	s.mu.Unlock()

	fn()
}

// Cancel stops the pending timer for key, if any.
func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.timers[key]; ok {
		entry.timer.Stop()
		delete(s.timers, key)
	}
}

// Pending reports whether key has an armed timer.
func (s *Scheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[key]
	return ok
}

// Stop cancels every timer and rejects further Arm calls.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for key, entry := range s.timers {
		entry.timer.Stop()
		delete(s.timers, key)
	}
}
