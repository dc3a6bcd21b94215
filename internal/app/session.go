package app

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dkeye/intercom/internal/core"
	"github.com/dkeye/intercom/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type SessionConfig struct {
	Kiosk          bool
	ReauthInterval time.Duration
	Scheduler      core.Scheduler
	Online         core.OnlineSignal
	RetryTimer     func() backoff.Timer
}

// Status is the observable connection state for the UI layer.
type Status struct {
	Phase          string `json:"phase"`
	IsReconnecting bool   `json:"is_reconnecting"`
	Attempt        int    `json:"attempt"`
	Calls          int    `json:"calls"`
	LastError      string `json:"last_error,omitempty"`
}

// Session wires the call registry, state synchronizer, connection
// supervisor and reauth controller around one control connection.
type Session struct {
	Registry   *Registry
	Sync       *Synchronizer
	Supervisor *Supervisor
	Reauth     *ReauthController

	sink core.ErrorSink
	log  zerolog.Logger

	mu sync.Mutex
	// refresh survives Close so a resumed session reinstalls it
	refresh bool
}

type lastErrorer interface {
	LastError() error
}

func NewSession(t core.Transport, refresher core.Refresher, sink core.ErrorSink, cfg SessionConfig) *Session {
	s := &Session{
		Registry: NewRegistry(),
		sink:     sink,
		log:      log.With().Str("module", "app.session").Logger(),
	}
	s.Sync = NewSynchronizer(s.Registry, t)

	supOpts := []SupervisorOption{
		WithKioskMode(cfg.Kiosk),
		WithErrorSink(sink),
		WithOnConnected(s.resync),
	}
	reauthOpts := []ReauthOption{}
	if cfg.Scheduler != nil {
		supOpts = append(supOpts, WithScheduler(cfg.Scheduler))
		reauthOpts = append(reauthOpts, WithReauthScheduler(cfg.Scheduler))
	}
	if cfg.ReauthInterval > 0 {
		reauthOpts = append(reauthOpts, WithReauthInterval(cfg.ReauthInterval))
	}
	if cfg.Online != nil {
		reauthOpts = append(reauthOpts, WithOnlineSignal(cfg.Online))
	}
	if cfg.RetryTimer != nil {
		reauthOpts = append(reauthOpts, WithRetryTimer(cfg.RetryTimer))
	}

	s.Supervisor = NewSupervisor(t, supOpts...)
	s.Reauth = NewReauthController(refresher, s.Registry, sink, reauthOpts...)
	return s
}

// resync forces the server's view after a fresh connection.
func (s *Session) resync() {
	s.Sync.ResetLastSentCallsState()
	s.Sync.SendCallsStateUpdate(true)
}

func (s *Session) RegisterCallList(id domain.CallID, entry domain.CallEntry) *domain.Call {
	call, _ := s.Registry.Register(id, entry)
	s.Sync.SendCallsStateUpdate(false)
	return call
}

func (s *Session) DeregisterCall(id domain.CallID) {
	if s.Registry.Deregister(id) {
		s.Sync.SendCallsStateUpdate(false)
	}
}

// JoinCall registers a new call for the given line. The media subsystem
// reports its connection state afterwards through UpdateCall.
func (s *Session) JoinCall(opts domain.JoinOptions) (*domain.Call, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	s.clearError()
	id := domain.CallID(uuid.NewString())
	s.log.Info().Str("call_id", string(id)).Str("production_id", opts.ProductionID).Str("line_id", opts.LineID).Msg("joining call")
	call := s.RegisterCallList(id, domain.CallEntry{
		ConnectionState: domain.CallConnecting,
		Volume:          1,
		JoinOptions:     opts,
	})
	s.resume()
	return call, nil
}

func (s *Session) clearError() {
	if s.sink == nil {
		return
	}
	if le, ok := s.sink.(lastErrorer); ok && le.LastError() == nil {
		return
	}
	s.sink.Report(nil)
}

// resume brings a session torn down by ExitAllCalls or Close back up:
// token refresh is reinstalled and an idle connection redials the last url.
func (s *Session) resume() {
	s.mu.Lock()
	refresh := s.refresh
	s.mu.Unlock()
	if refresh && !s.Reauth.Running() {
		s.Reauth.Start()
	}

	if s.Supervisor.Phase() != PhaseIdle {
		return
	}
	if err := s.Supervisor.Reconnect(); err != nil {
		s.log.Debug().Err(err).Msg("no control url, staying offline")
	}
}

// UpdateCall applies a collaborator change to one call, then synchronizes.
func (s *Session) UpdateCall(id domain.CallID, apply func(*domain.Call)) bool {
	call, ok := s.Registry.Get(id)
	if !ok {
		return false
	}
	apply(call)
	s.Sync.SendCallsStateUpdate(false)
	return true
}

// SetGlobalMute mutes or unmutes every call and forces the server's view
// to refresh even if nothing changed locally.
func (s *Session) SetGlobalMute(muted bool) {
	for _, c := range s.Registry.Calls() {
		c.SetMute(muted)
	}
	s.Sync.ResetLastSentCallsState()
	s.Sync.SendCallsStateUpdate(false)
}

// ExitAllCalls leaves every call and tears the session down.
func (s *Session) ExitAllCalls() {
	for _, id := range s.Registry.IDs() {
		s.Registry.Deregister(id)
	}
	s.Sync.SendCallsStateUpdate(false)
	if s.Registry.Count() == 0 {
		s.Close()
	}
}

func (s *Session) SendCallsStateUpdate(force bool) bool { return s.Sync.SendCallsStateUpdate(force) }

func (s *Session) ResetLastSentCallsState() { s.Sync.ResetLastSentCallsState() }

func (s *Session) SetupTokenRefresh() (teardown func()) {
	s.mu.Lock()
	s.refresh = true
	s.mu.Unlock()
	s.Reauth.Start()
	return func() {
		s.mu.Lock()
		s.refresh = false
		s.mu.Unlock()
		s.Reauth.Stop()
	}
}

func (s *Session) Connect(url string) { s.Supervisor.Connect(url) }

func (s *Session) Reconnect() error { return s.Supervisor.Reconnect() }

func (s *Session) ClearConflict() { s.Supervisor.ClearConflict() }

// Close cancels the reconnect timer, the reauth interval and the online
// listener, then closes the connection.
func (s *Session) Close() {
	s.Reauth.Stop()
	s.Supervisor.Close()
}

func (s *Session) HandleOpen()             { s.Supervisor.HandleOpen() }
func (s *Session) HandleClose(cause error) { s.Supervisor.HandleClose(cause) }
func (s *Session) HandleConflict()         { s.Supervisor.HandleConflict() }

func (s *Session) IsReconnecting() bool { return s.Supervisor.IsReconnecting() }

func (s *Session) Phase() Phase { return s.Supervisor.Phase() }

func (s *Session) Status() Status {
	st := Status{
		Phase:          s.Supervisor.Phase().String(),
		IsReconnecting: s.Supervisor.IsReconnecting(),
		Attempt:        s.Supervisor.Attempt(),
		Calls:          s.Registry.Count(),
	}
	if le, ok := s.sink.(lastErrorer); ok {
		if err := le.LastError(); err != nil {
			st.LastError = err.Error()
		}
	}
	return st
}

// Snapshot returns the ordered state the synchronizer would send now.
func (s *Session) Snapshot() Snapshot {
	return BuildSnapshot(s.Registry.Snapshot())
}
