// Package scheduler arms keyed single-shot timers on an injectable clock.
//
// At most one timer is armed per key: arming a key again stops the timer
// already armed for it, and a superseded timer that fires anyway (it lost the
// race with Stop) is discarded. Callbacks run without the scheduler lock held
// and a panic in one of them is logged instead of crashing the process.
package scheduler

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/x-xyz/goauction/base/goroutine"
	"github.com/x-xyz/goauction/base/log"
)

type entry struct {
	// nil when the deadline was already due at Arm
	timer *clock.Timer
	gen   uint64
}

func (e *entry) stop() {
	if e.timer != nil {
		e.timer.Stop()
	}
}

type Scheduler struct {
	clock clock.Clock

	mu      sync.Mutex
	timers  map[string]*entry
	gen     uint64
	stopped bool
}

func New(clk clock.Clock) *Scheduler {
	return &Scheduler{
		clock:  clk,
		timers: make(map[string]*entry),
	}
}

// Arm runs fn once after d, replacing whatever was armed under key.
// It returns false once the scheduler is stopped.
func (s *Scheduler) Arm(key string, d time.Duration, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}

	if old, ok := s.timers[key]; ok {
		old.stop()
	}

	s.gen++
	gen := s.gen
	e := &entry{gen: gen}
	s.timers[key] = e
	if d <= 0 {
		// due already, never hand the clock a deadline in the past
		go s.fire(key, gen, fn)
		return true
	}
	e.timer = s.clock.AfterFunc(d, func() {
		s.fire(key, gen, fn)
	})
	return true
}

// ArmAt is Arm with an absolute deadline. A deadline in the past fires as
// soon as the clock allows.
func (s *Scheduler) ArmAt(key string, at time.Time, fn func()) bool {
	return s.Arm(key, at.Sub(s.clock.Now()), fn)
}

// Cancel stops the timer armed under key and reports whether there was one.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.timers[key]
	if !ok {
		return false
	}
	e.stop()
	delete(s.timers, key)
	return true
}

func (s *Scheduler) Armed(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[key]
	return ok
}

// Pending is the number of armed timers
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every armed timer, later Arm calls are refused.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for key, e := range s.timers {
		e.stop()
		delete(s.timers, key)
	}
}

func (s *Scheduler) fire(key string, gen uint64, fn func()) {
	s.mu.Lock()
	e, ok := s.timers[key]
	if !ok || e.gen != gen {
		s.mu.Unlock()
		log.Log().WithFields(log.Fields{"key": key, "gen": gen}).Debug("superseded timer fired, skip")
		return
	}
	delete(s.timers, key)
	s.mu.Unlock()

	goroutine.Recover(fn)
}
