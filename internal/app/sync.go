package app

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/dkeye/intercom/internal/core"
	"github.com/dkeye/intercom/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// CallStatePayload is the per-call part of the outbound state message.
type CallStatePayload struct {
	Mute            bool                   `json:"mute"`
	Volume          float64                `json:"volume"`
	ConnectionState domain.ConnectionState `json:"connectionState"`
}

type SnapshotEntry struct {
	ID    domain.CallID
	State CallStatePayload
}

// Snapshot maps call id to its synchronizable attributes. It serializes as a
// JSON object whose keys keep registration order.
type Snapshot []SnapshotEntry

func BuildSnapshot(states []domain.CallState) Snapshot {
	out := make(Snapshot, 0, len(states))
	for _, st := range states {
		out = append(out, SnapshotEntry{
			ID: st.ID,
			State: CallStatePayload{
				Mute:            st.Mute,
				Volume:          st.Volume,
				ConnectionState: st.ConnectionState,
			},
		})
	}
	return out
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(string(e.ID))
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.State)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type CallSource interface {
	Snapshot() []domain.CallState
}

type Sender interface {
	ReadyState() core.ReadyState
	Send(core.Frame) error
}

// Synchronizer sends the calls state only when it differs from what was
// last transmitted, unless forced.
type Synchronizer struct {
	source CallSource
	conn   Sender
	log    zerolog.Logger

	mu       sync.Mutex
	lastSent []byte
	hasLast  bool
}

func NewSynchronizer(source CallSource, conn Sender) *Synchronizer {
	return &Synchronizer{
		source: source,
		conn:   conn,
		log:    log.With().Str("module", "app.sync").Logger(),
	}
}

// SendCallsStateUpdate reports whether a message was transmitted.
func (s *Synchronizer) SendCallsStateUpdate(force bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(BuildSnapshot(s.source.Snapshot()))
	if err != nil {
		s.log.Error().Err(err).Msg("marshal calls state")
		return false
	}
	if !force && s.hasLast && bytes.Equal(data, s.lastSent) {
		return false
	}
	if s.conn.ReadyState() != core.StateOpen {
		s.log.Debug().Msg("no open connection, calls state not sent")
		return false
	}
	if err := s.conn.Send(data); err != nil {
		s.log.Warn().Err(err).Msg("send calls state")
		return false
	}
	s.lastSent = data
	s.hasLast = true
	s.log.Debug().RawJSON("state", data).Bool("forced", force).Msg("calls state sent")
	return true
}

// ResetLastSentCallsState guarantees the next SendCallsStateUpdate transmits.
func (s *Synchronizer) ResetLastSentCallsState() {
	s.mu.Lock()
	s.lastSent = nil
	s.hasLast = false
	s.mu.Unlock()
}

// LastSent returns the last transmitted payload, if any.
func (s *Synchronizer) LastSent() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.lastSent...), s.hasLast
}
