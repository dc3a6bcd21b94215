// Package netwatch turns periodic reachability probes into online events.
package netwatch

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/dkeye/intercom/internal/core"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Probe reports whether the network is reachable right now.
type Probe func(ctx context.Context) bool

// TCPProbe dials addr and reports success.
func TCPProbe(addr string, timeout time.Duration) Probe {
	return func(ctx context.Context) bool {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}
}

type Option func(*Watcher)

func WithScheduler(sched core.Scheduler) Option {
	return func(w *Watcher) { w.sched = sched }
}

func WithInterval(d time.Duration) Option {
	return func(w *Watcher) { w.interval = d }
}

// Watcher implements core.OnlineSignal. Subscribers run on every
// offline -> online transition, never on repeated online probes.
type Watcher struct {
	probe    Probe
	sched    core.Scheduler
	interval time.Duration
	log      zerolog.Logger

	mu     sync.Mutex
	online bool
	next   int
	subs   map[int]func()
	ticker core.Timer

	// probes never overlap
	checkMu sync.Mutex
}

func New(probe Probe, opts ...Option) *Watcher {
	w := &Watcher{
		probe:    probe,
		sched:    core.SystemScheduler(),
		interval: 5 * time.Second,
		online:   true,
		subs:     make(map[int]func()),
		log:      log.With().Str("module", "adapters.netwatch").Logger(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

func (w *Watcher) Subscribe(fn func()) (unsubscribe func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.next
	w.next++
	w.subs[id] = fn
	return func() {
		w.mu.Lock()
		delete(w.subs, id)
		w.mu.Unlock()
	}
}

func (w *Watcher) Online() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.online
}

// Check runs one probe and notifies subscribers when connectivity came back.
func (w *Watcher) Check(ctx context.Context) bool {
	w.checkMu.Lock()
	defer w.checkMu.Unlock()

	up := w.probe(ctx)

	w.mu.Lock()
	was := w.online
	w.online = up
	var fns []func()
	if up && !was {
		fns = make([]func(), 0, len(w.subs))
		for _, fn := range w.subs {
			fns = append(fns, fn)
		}
	}
	w.mu.Unlock()

	switch {
	case up && !was:
		w.log.Info().Int("subscribers", len(fns)).Msg("network back online")
	case !up && was:
		w.log.Warn().Msg("network offline")
	}
	for _, fn := range fns {
		fn()
	}
	return up
}

// Start probes every interval until Stop or ctx is done.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ticker != nil {
		w.ticker.Stop()
	}
	w.ticker = w.sched.Every(w.interval, func() {
		if ctx.Err() != nil {
			return
		}
		w.Check(ctx)
	})
}

func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ticker != nil {
		w.ticker.Stop()
		w.ticker = nil
	}
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	w.Start(ctx)
	<-ctx.Done()
	w.Stop()
	return nil
}
