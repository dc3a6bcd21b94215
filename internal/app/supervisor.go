package app

import (
	"errors"
	"sync"

	"github.com/dkeye/intercom/internal/core"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrConnectionConflict = errors.New("connection conflict: session is active elsewhere")
	ErrReconnectGivenUp   = errors.New("control connection lost: max reconnection attempts reached")
	ErrNoURL              = errors.New("no connection url")
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseConnected
	PhaseReconnecting
	PhaseConnectionConflict
	PhaseGivenUp
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseReconnecting:
		return "reconnecting"
	case PhaseConnectionConflict:
		return "connection_conflict"
	case PhaseGivenUp:
		return "given_up"
	default:
		return "unknown"
	}
}

type SupervisorOption func(*Supervisor)

// WithKioskMode makes the supervisor retry forever at the capped delay.
func WithKioskMode(kiosk bool) SupervisorOption {
	return func(s *Supervisor) { s.kiosk = kiosk }
}

func WithScheduler(sched core.Scheduler) SupervisorOption {
	return func(s *Supervisor) { s.sched = sched }
}

func WithErrorSink(sink core.ErrorSink) SupervisorOption {
	return func(s *Supervisor) { s.sink = sink }
}

// WithOnConnected registers a hook run after every successful open,
// outside the supervisor lock.
func WithOnConnected(fn func()) SupervisorOption {
	return func(s *Supervisor) { s.onConnected = fn }
}

// Supervisor owns the control connection lifecycle. It is the only writer
// of the connection phase inputs and of the retry state.
// Transport callbacks must be routed to HandleOpen, HandleClose and HandleConflict.
type Supervisor struct {
	transport   core.Transport
	sched       core.Scheduler
	sink        core.ErrorSink
	onConnected func()
	log         zerolog.Logger

	// dialMu orders transport Connect and Close calls. Taken before mu.
	dialMu sync.Mutex

	mu           sync.Mutex
	kiosk        bool
	url          string
	lastURL      string
	attempt      int
	pending      core.Timer
	timerGen     uint64
	reconnecting bool
	conflict     bool
	givenUp      bool
}

func NewSupervisor(t core.Transport, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		transport: t,
		sched:     core.SystemScheduler(),
		log:       log.With().Str("module", "app.supervisor").Logger(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Connect is an explicit, user-initiated connect. It clears any terminal
// condition and resets the retry state.
func (s *Supervisor) Connect(url string) {
	s.dialMu.Lock()
	defer s.dialMu.Unlock()

	s.mu.Lock()
	s.cancelPendingLocked()
	s.url = url
	s.lastURL = url
	s.attempt = 0
	s.reconnecting = false
	s.conflict = false
	s.givenUp = false
	s.mu.Unlock()

	s.log.Info().Str("url", url).Msg("connecting")
	s.transport.Connect(url)
}

// Reconnect re-dials the last url after GivenUp, a cleared conflict or Close.
func (s *Supervisor) Reconnect() error {
	s.mu.Lock()
	url := s.url
	if url == "" {
		url = s.lastURL
	}
	s.mu.Unlock()
	if url == "" {
		return ErrNoURL
	}
	s.Connect(url)
	return nil
}

// Close tears the connection down. No reconnect is scheduled afterwards.
// The last url is kept for Reconnect.
func (s *Supervisor) Close() {
	s.dialMu.Lock()
	defer s.dialMu.Unlock()

	s.mu.Lock()
	s.cancelPendingLocked()
	s.url = ""
	s.attempt = 0
	s.reconnecting = false
	s.givenUp = false
	s.mu.Unlock()

	s.log.Info().Msg("closing control connection")
	s.transport.Close()
}

func (s *Supervisor) HandleOpen() {
	s.mu.Lock()
	if s.url == "" {
		s.mu.Unlock()
		return
	}
	s.cancelPendingLocked()
	wasReconnecting := s.reconnecting
	s.reconnecting = false
	s.attempt = 0
	s.givenUp = false
	conflict := s.conflict
	cb := s.onConnected
	s.mu.Unlock()

	if conflict {
		return
	}
	if wasReconnecting {
		s.log.Info().Msg("control connection reconnected successfully")
	} else {
		s.log.Info().Msg("control connection established")
	}
	if cb != nil {
		cb()
	}
}

// HandleClose decides whether and when to reconnect after the transport closed.
func (s *Supervisor) HandleClose(cause error) {
	s.mu.Lock()
	if s.url == "" || s.conflict {
		s.cancelPendingLocked()
		s.attempt = 0
		s.reconnecting = false
		s.mu.Unlock()
		return
	}

	if s.givenUp {
		s.mu.Unlock()
		return
	}

	if !(s.kiosk || s.attempt < MaxRetryAttempts) {
		s.cancelPendingLocked()
		s.givenUp = true
		s.reconnecting = false
		s.mu.Unlock()

		s.log.Error().Err(cause).Int("max_attempts", MaxRetryAttempts).Msg("max reconnection attempts reached, giving up")
		s.report(ErrReconnectGivenUp)
		return
	}

	s.cancelPendingLocked()
	s.reconnecting = true
	attempt := s.attempt
	kiosk := s.kiosk
	delay := DelayFor(attempt)
	gen := s.timerGen
	s.pending = s.sched.AfterFunc(delay, func() { s.fireReconnect(gen) })
	s.mu.Unlock()

	s.log.Warn().
		Err(cause).
		Int("attempt", attempt+1).
		Int("max_attempts", MaxRetryAttempts).
		Bool("kiosk", kiosk).
		Int64("delay_ms", delay.Milliseconds()).
		Msg("control connection closed, scheduling reconnect")
}

// HandleConflict records a server-reported duplicate session. Automatic
// reconnection stays disabled until ClearConflict or an explicit Connect.
func (s *Supervisor) HandleConflict() {
	s.mu.Lock()
	already := s.conflict
	s.conflict = true
	s.cancelPendingLocked()
	s.attempt = 0
	s.reconnecting = false
	s.mu.Unlock()

	if already {
		return
	}
	s.log.Warn().Msg("connection conflict signaled, automatic reconnection disabled")
	s.report(ErrConnectionConflict)
}

func (s *Supervisor) ClearConflict() {
	s.mu.Lock()
	s.conflict = false
	s.mu.Unlock()
}

func (s *Supervisor) SetKioskMode(kiosk bool) {
	s.mu.Lock()
	s.kiosk = kiosk
	s.mu.Unlock()
}

func (s *Supervisor) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflict {
		return PhaseConnectionConflict
	}
	rs := s.transport.ReadyState()
	switch {
	case rs == core.StateOpen:
		return PhaseConnected
	case s.givenUp:
		return PhaseGivenUp
	case s.reconnecting:
		return PhaseReconnecting
	case s.url == "":
		return PhaseIdle
	case rs == core.StateConnecting:
		return PhaseConnecting
	default:
		return PhaseIdle
	}
}

func (s *Supervisor) IsReconnecting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnecting
}

func (s *Supervisor) Attempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

func (s *Supervisor) fireReconnect(gen uint64) {
	s.dialMu.Lock()
	s.mu.Lock()
	if gen != s.timerGen || s.pending == nil {
		s.mu.Unlock()
		s.dialMu.Unlock()
		return
	}
	s.pending = nil
	if s.url == "" || s.conflict {
		s.reconnecting = false
		s.mu.Unlock()
		s.dialMu.Unlock()
		return
	}
	s.attempt++
	url := s.url
	attempt := s.attempt
	s.mu.Unlock()

	// a concurrent Close waits on dialMu and then closes this dial
	s.transport.Connect(url)
	s.dialMu.Unlock()

	s.log.Info().Int("attempt", attempt).Msg("reconnecting")
}

// cancelPendingLocked stops the pending reconnect timer and invalidates any
// callback already in flight. Must be called with mu held.
func (s *Supervisor) cancelPendingLocked() {
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	s.timerGen++
}

func (s *Supervisor) report(err error) {
	if s.sink != nil {
		s.sink.Report(err)
	}
}
