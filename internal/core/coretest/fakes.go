package coretest

import (
	"sync"

	"github.com/dkeye/intercom/internal/core"
)

// Transport is an in-memory core.Transport. It starts closed with no url.
type Transport struct {
	mu       sync.Mutex
	state    core.ReadyState
	url      string
	connects []string
	sent     []core.Frame
	closes   int
	SendErr  error
}

func NewTransport() *Transport {
	return &Transport{state: core.StateClosed}
}

func (t *Transport) ReadyState() core.ReadyState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transport) URL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.url
}

func (t *Transport) Connect(url string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.url = url
	t.state = core.StateConnecting
	t.connects = append(t.connects, url)
}

func (t *Transport) Send(f core.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != core.StateOpen {
		return core.ErrNotConnected
	}
	if t.SendErr != nil {
		return t.SendErr
	}
	t.sent = append(t.sent, append(core.Frame(nil), f...))
	return nil
}

func (t *Transport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = core.StateClosed
	t.closes++
}

// SetState forces the readiness the supervisor observes.
func (t *Transport) SetState(s core.ReadyState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

func (t *Transport) Sent() []core.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]core.Frame(nil), t.sent...)
}

func (t *Transport) Connects() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.connects...)
}

func (t *Transport) Closes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes
}

// Sink records every reported error, including nil clears.
type Sink struct {
	mu   sync.Mutex
	errs []error
}

func (s *Sink) Report(err error) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
}

func (s *Sink) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

// Online is a manually driven core.OnlineSignal.
type Online struct {
	mu   sync.Mutex
	next int
	subs map[int]func()
}

func (o *Online) Subscribe(fn func()) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.subs == nil {
		o.subs = make(map[int]func())
	}
	id := o.next
	o.next++
	o.subs[id] = fn
	return func() {
		o.mu.Lock()
		delete(o.subs, id)
		o.mu.Unlock()
	}
}

// GoOnline invokes every subscriber on the calling goroutine.
func (o *Online) GoOnline() {
	o.mu.Lock()
	fns := make([]func(), 0, len(o.subs))
	for _, fn := range o.subs {
		fns = append(fns, fn)
	}
	o.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (o *Online) Subscribers() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.subs)
}
