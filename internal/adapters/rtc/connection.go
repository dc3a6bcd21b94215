package rtc

import (
	"context"
	"sync"

	"github.com/dkeye/intercom/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// CallUpdater applies a media state change to a registered call and
// synchronizes it with the server.
type CallUpdater interface {
	UpdateCall(id domain.CallID, apply func(*domain.Call)) bool
}

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// MapPeerState translates a peer connection state into the call's
// connection state label.
func MapPeerState(s webrtc.PeerConnectionState) domain.ConnectionState {
	switch s {
	case webrtc.PeerConnectionStateConnected:
		return domain.CallConnected
	case webrtc.PeerConnectionStateFailed:
		return domain.CallFailed
	case webrtc.PeerConnectionStateClosed:
		return domain.CallEnded
	default:
		// new, connecting, disconnected: ICE may still recover
		return domain.CallConnecting
	}
}

// MediaSession is the peer connection of one call.
type MediaSession struct {
	pc     *webrtc.PeerConnection
	callID domain.CallID
	calls  CallUpdater
	log    zerolog.Logger

	mu    sync.Mutex
	onICE func(webrtc.ICECandidateInit)
	last  domain.ConnectionState
	ended bool
}

func NewMediaSession(cfg webrtc.Configuration, id domain.CallID, calls CallUpdater) (*MediaSession, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendrecv,
	}); err != nil {
		_ = pc.Close()
		return nil, err
	}

	m := &MediaSession{
		pc:     pc,
		callID: id,
		calls:  calls,
		last:   domain.CallConnecting,
		log:    log.With().Str("module", "adapters.rtc").Str("call_id", string(id)).Logger(),
	}

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		m.log.Debug().Str("ice_state", s.String()).Msg("ICE state")
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		m.log.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		m.setState(MapPeerState(s))
	})
	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		m.mu.Lock()
		fn := m.onICE
		m.mu.Unlock()
		if cand != nil && fn != nil {
			fn(cand.ToJSON())
		}
	})
	return m, nil
}

func (m *MediaSession) CallID() domain.CallID { return m.callID }

// CreateOffer creates the local offer and waits for ICE gathering so the
// returned description carries every candidate.
func (m *MediaSession) CreateOffer(ctx context.Context) (*webrtc.SessionDescription, error) {
	offer, err := m.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}

	gatherComplete := webrtc.GatheringCompletePromise(m.pc)
	if err := m.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return m.pc.LocalDescription(), nil
}

func (m *MediaSession) ApplyAnswer(answer webrtc.SessionDescription) error {
	return m.pc.SetRemoteDescription(answer)
}

func (m *MediaSession) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return m.pc.AddICECandidate(ci)
}

func (m *MediaSession) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	m.mu.Lock()
	m.onICE = fn
	m.mu.Unlock()
}

// State returns the last state pushed to the call.
func (m *MediaSession) State() domain.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Close ends the call's media. The call is marked ended exactly once.
func (m *MediaSession) Close() {
	if err := m.pc.Close(); err != nil {
		m.log.Error().Err(err).Msg("close error")
	} else {
		m.log.Info().Msg("closed")
	}
	m.setState(domain.CallEnded)
}

func (m *MediaSession) setState(state domain.ConnectionState) {
	m.mu.Lock()
	if m.ended || state == m.last {
		m.mu.Unlock()
		return
	}
	m.last = state
	if state == domain.CallEnded {
		m.ended = true
	}
	m.mu.Unlock()

	if !m.calls.UpdateCall(m.callID, func(c *domain.Call) { c.SetConnectionState(state) }) {
		m.log.Debug().Str("state", string(state)).Msg("call no longer registered")
	}
}
