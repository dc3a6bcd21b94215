package rtc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/intercom/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCalls struct {
	mu      sync.Mutex
	calls   map[domain.CallID]*domain.Call
	updates []domain.ConnectionState
}

func newFakeCalls(ids ...domain.CallID) *fakeCalls {
	f := &fakeCalls{calls: make(map[domain.CallID]*domain.Call)}
	for _, id := range ids {
		f.calls[id] = domain.NewCall(id, domain.CallEntry{})
	}
	return f
}

func (f *fakeCalls) UpdateCall(id domain.CallID, apply func(*domain.Call)) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.calls[id]
	if !ok {
		return false
	}
	apply(c)
	f.updates = append(f.updates, c.State().ConnectionState)
	return true
}

func (f *fakeCalls) Updates() []domain.ConnectionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ConnectionState(nil), f.updates...)
}

func TestMapPeerState(t *testing.T) {
	tests := []struct {
		in   webrtc.PeerConnectionState
		want domain.ConnectionState
	}{
		{webrtc.PeerConnectionStateNew, domain.CallConnecting},
		{webrtc.PeerConnectionStateConnecting, domain.CallConnecting},
		{webrtc.PeerConnectionStateConnected, domain.CallConnected},
		{webrtc.PeerConnectionStateDisconnected, domain.CallConnecting},
		{webrtc.PeerConnectionStateFailed, domain.CallFailed},
		{webrtc.PeerConnectionStateClosed, domain.CallEnded},
	}
	for _, tt := range tests {
		t.Run(tt.in.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, MapPeerState(tt.in))
		})
	}
}

func TestMediaSession_StateUpdatesReachTheCall(t *testing.T) {
	calls := newFakeCalls("a")
	ms, err := NewMediaSession(webrtc.Configuration{}, "a", calls)
	require.NoError(t, err)
	defer ms.Close()

	ms.setState(domain.CallConnecting)
	assert.Empty(t, calls.Updates(), "unchanged state is not pushed")

	ms.setState(domain.CallConnected)
	ms.setState(domain.CallConnected)
	ms.setState(domain.CallFailed)
	assert.Equal(t, []domain.ConnectionState{domain.CallConnected, domain.CallFailed}, calls.Updates())
	assert.Equal(t, domain.CallFailed, ms.State())
}

func TestMediaSession_CreateOffer(t *testing.T) {
	calls := newFakeCalls("a")
	ms, err := NewMediaSession(webrtc.Configuration{}, "a", calls)
	require.NoError(t, err)
	defer ms.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	offer, err := ms.CreateOffer(ctx)
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeOffer, offer.Type)
	assert.Contains(t, offer.SDP, "m=audio")
}

func TestMediaSession_CloseEndsCallOnce(t *testing.T) {
	calls := newFakeCalls("a")
	ms, err := NewMediaSession(webrtc.Configuration{}, "a", calls)
	require.NoError(t, err)

	ms.Close()
	ms.Close()

	// pion may report closed asynchronously as well
	assert.Never(t, func() bool {
		n := 0
		for _, s := range calls.Updates() {
			if s == domain.CallEnded {
				n++
			}
		}
		return n != 1
	}, 200*time.Millisecond, 20*time.Millisecond)
	assert.Equal(t, domain.CallEnded, calls.calls["a"].State().ConnectionState)
}

func TestManager_Lifecycle(t *testing.T) {
	calls := newFakeCalls("a")
	m := NewManager(webrtc.Configuration{}, calls)
	defer m.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	offer, err := m.Open(ctx, "a")
	require.NoError(t, err)
	assert.NotEmpty(t, offer.SDP)

	_, err = m.Open(ctx, "a")
	assert.ErrorIs(t, err, ErrAlreadyActive)

	assert.ErrorIs(t, m.Answer("missing", "v=0"), ErrUnknownCall)

	assert.True(t, m.Close("a"))
	assert.False(t, m.Close("a"))
	_, ok := m.Get("a")
	assert.False(t, ok)
}
