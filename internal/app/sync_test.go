package app

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/dkeye/intercom/internal/core"
	"github.com/dkeye/intercom/internal/core/coretest"
	"github.com/dkeye/intercom/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOpenSync(t *testing.T) (*Registry, *coretest.Transport, *Synchronizer) {
	t.Helper()
	reg := NewRegistry()
	tr := coretest.NewTransport()
	tr.SetState(core.StateOpen)
	return reg, tr, NewSynchronizer(reg, tr)
}

func TestSnapshot_MarshalKeepsOrder(t *testing.T) {
	snap := BuildSnapshot([]domain.CallState{
		{ID: "b", Mute: true, Volume: 0.5, ConnectionState: domain.CallConnected},
		{ID: "a", Mute: false, Volume: 1, ConnectionState: domain.CallConnecting},
	})
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.Equal(t,
		`{"b":{"mute":true,"volume":0.5,"connectionState":"connected"},"a":{"mute":false,"volume":1,"connectionState":"connecting"}}`,
		string(data))

	empty, err := json.Marshal(BuildSnapshot(nil))
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(empty))
}

func TestSync_DedupsIdenticalState(t *testing.T) {
	reg, tr, s := newOpenSync(t)
	reg.Register("a", domain.CallEntry{Volume: 1})

	assert.True(t, s.SendCallsStateUpdate(false))
	assert.False(t, s.SendCallsStateUpdate(false))
	assert.Len(t, tr.Sent(), 1)
}

func TestSync_SendsOnChange(t *testing.T) {
	reg, tr, s := newOpenSync(t)
	c, _ := reg.Register("a", domain.CallEntry{Volume: 1})

	s.SendCallsStateUpdate(false)
	c.SetMute(true)
	assert.True(t, s.SendCallsStateUpdate(false))
	c.SetVolume(0.3)
	assert.True(t, s.SendCallsStateUpdate(false))
	assert.False(t, s.SendCallsStateUpdate(false))

	sent := tr.Sent()
	require.Len(t, sent, 3)
	assert.JSONEq(t, `{"a":{"mute":true,"volume":0.3,"connectionState":"connecting"}}`, string(sent[2]))
}

func TestSync_ResetForcesNextSend(t *testing.T) {
	reg, tr, s := newOpenSync(t)
	reg.Register("a", domain.CallEntry{})

	s.SendCallsStateUpdate(false)
	s.ResetLastSentCallsState()
	assert.True(t, s.SendCallsStateUpdate(false))

	sent := tr.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, sent[0], sent[1])
}

func TestSync_ForceBypassesDedup(t *testing.T) {
	reg, tr, s := newOpenSync(t)
	reg.Register("a", domain.CallEntry{})

	s.SendCallsStateUpdate(false)
	assert.True(t, s.SendCallsStateUpdate(true))
	assert.Len(t, tr.Sent(), 2)
}

func TestSync_EmptyRegistryIsSentOnce(t *testing.T) {
	_, tr, s := newOpenSync(t)

	assert.True(t, s.SendCallsStateUpdate(false))
	assert.False(t, s.SendCallsStateUpdate(false))
	require.Len(t, tr.Sent(), 1)
	assert.Equal(t, `{}`, string(tr.Sent()[0]))
}

func TestSync_NoConnectionIsNoop(t *testing.T) {
	reg := NewRegistry()
	tr := coretest.NewTransport()
	s := NewSynchronizer(reg, tr)
	reg.Register("a", domain.CallEntry{})

	assert.False(t, s.SendCallsStateUpdate(false))
	_, has := s.LastSent()
	assert.False(t, has)

	tr.SetState(core.StateOpen)
	assert.True(t, s.SendCallsStateUpdate(false), "state is sent once a connection is open")
	assert.Len(t, tr.Sent(), 1)
}

func TestSync_SendErrorKeepsLastSent(t *testing.T) {
	reg, tr, s := newOpenSync(t)
	reg.Register("a", domain.CallEntry{})

	tr.SendErr = errors.New("boom")
	assert.False(t, s.SendCallsStateUpdate(false))

	tr.SendErr = nil
	assert.True(t, s.SendCallsStateUpdate(false))
	assert.Len(t, tr.Sent(), 1)
}
