// Package coretest provides deterministic fakes for the core interfaces.
package coretest

import (
	"sync"
	"time"

	"github.com/dkeye/intercom/internal/core"
)

// Scheduler records timers instead of running them. Tests fire them by hand.
type Scheduler struct {
	mu     sync.Mutex
	timers []*Timer
}

type Timer struct {
	s         *Scheduler
	Delay     time.Duration
	Recurring bool
	fn        func()
	done      bool
}

func NewScheduler() *Scheduler { return &Scheduler{} }

func (s *Scheduler) AfterFunc(d time.Duration, f func()) core.Timer {
	return s.add(d, f, false)
}

func (s *Scheduler) Every(d time.Duration, f func()) core.Timer {
	return s.add(d, f, true)
}

func (s *Scheduler) add(d time.Duration, f func(), recurring bool) *Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &Timer{s: s, Delay: d, Recurring: recurring, fn: f}
	s.timers = append(s.timers, t)
	return t
}

func (t *Timer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

// Pending returns timers that are neither stopped nor fired.
func (s *Scheduler) Pending() []*Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Timer
	for _, t := range s.timers {
		if !t.done {
			out = append(out, t)
		}
	}
	return out
}

// PendingOneShot returns pending AfterFunc timers only.
func (s *Scheduler) PendingOneShot() []*Timer {
	var out []*Timer
	for _, t := range s.Pending() {
		if !t.Recurring {
			out = append(out, t)
		}
	}
	return out
}

// PendingRecurring returns pending Every timers only.
func (s *Scheduler) PendingRecurring() []*Timer {
	var out []*Timer
	for _, t := range s.Pending() {
		if t.Recurring {
			out = append(out, t)
		}
	}
	return out
}

// Fire runs the timer callback on the calling goroutine. One-shot timers are
// marked done first. Firing a stopped timer is a no-op and returns false.
func (s *Scheduler) Fire(t *Timer) bool {
	s.mu.Lock()
	if t.done {
		s.mu.Unlock()
		return false
	}
	if !t.Recurring {
		t.done = true
	}
	fn := t.fn
	s.mu.Unlock()
	fn()
	return true
}

// FireNext fires the oldest pending one-shot timer and returns its delay.
func (s *Scheduler) FireNext() (time.Duration, bool) {
	pending := s.PendingOneShot()
	if len(pending) == 0 {
		return 0, false
	}
	t := pending[0]
	return t.Delay, s.Fire(t)
}
