package rtc

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/intercom/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownCall   = errors.New("no media session for call")
	ErrAlreadyActive = errors.New("media session already active")
)

// Manager keeps one MediaSession per call.
type Manager struct {
	cfg   webrtc.Configuration
	calls CallUpdater

	mu       sync.Mutex
	sessions map[domain.CallID]*MediaSession
}

func NewManager(cfg webrtc.Configuration, calls CallUpdater) *Manager {
	return &Manager{
		cfg:      cfg,
		calls:    calls,
		sessions: make(map[domain.CallID]*MediaSession),
	}
}

// Open starts media for a call and returns the local offer.
func (m *Manager) Open(ctx context.Context, id domain.CallID) (*webrtc.SessionDescription, error) {
	m.mu.Lock()
	if _, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return nil, ErrAlreadyActive
	}
	m.mu.Unlock()

	ms, err := NewMediaSession(m.cfg, id, m.calls)
	if err != nil {
		return nil, err
	}
	offer, err := ms.CreateOffer(ctx)
	if err != nil {
		ms.Close()
		return nil, err
	}

	m.mu.Lock()
	if _, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		ms.Close()
		return nil, ErrAlreadyActive
	}
	m.sessions[id] = ms
	m.mu.Unlock()

	log.Info().Str("module", "adapters.rtc").Str("call_id", string(id)).Msg("media session opened")
	return offer, nil
}

func (m *Manager) Answer(id domain.CallID, sdp string) error {
	ms, ok := m.Get(id)
	if !ok {
		return ErrUnknownCall
	}
	return ms.ApplyAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
}

func (m *Manager) Get(id domain.CallID) (*MediaSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.sessions[id]
	return ms, ok
}

func (m *Manager) Close(id domain.CallID) bool {
	m.mu.Lock()
	ms, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return false
	}
	ms.Close()
	return true
}

func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := make([]*MediaSession, 0, len(m.sessions))
	for id, ms := range m.sessions {
		all = append(all, ms)
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	for _, ms := range all {
		ms.Close()
	}
}
