package core

import (
	"sync"
	"time"
)

// Timer is a handle to a pending one-shot or recurring callback.
type Timer interface {
	// Stop reports whether the call stopped the timer before it fired.
	Stop() bool
}

// Scheduler owns every timer the session core creates.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
	Every(d time.Duration, f func()) Timer
}

type systemScheduler struct{}

// SystemScheduler runs callbacks on the wall clock.
func SystemScheduler() Scheduler { return systemScheduler{} }

func (systemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (systemScheduler) Every(d time.Duration, f func()) Timer {
	t := &interval{ticker: time.NewTicker(d), done: make(chan struct{})}
	go t.loop(f)
	return t
}

type interval struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (t *interval) loop(f func()) {
	for {
		select {
		case <-t.done:
			return
		case <-t.ticker.C:
			f()
		}
	}
}

func (t *interval) Stop() bool {
	stopped := false
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
		stopped = true
	})
	return stopped
}
