package app

import (
	"testing"

	"github.com/dkeye/intercom/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterIsIdempotent(t *testing.T) {
	r := NewRegistry()

	first, created := r.Register("a", domain.CallEntry{Volume: 1})
	require.True(t, created)
	first.SetMute(true)
	first.SetConnectionState(domain.CallConnected)

	second, created := r.Register("a", domain.CallEntry{Volume: 0.2})
	assert.False(t, created)
	assert.Same(t, first, second)
	assert.Equal(t, 1, r.Count())

	st := second.State()
	assert.True(t, st.Mute, "live state must not be overwritten")
	assert.Equal(t, 1.0, st.Volume)
	assert.Equal(t, domain.CallConnected, st.ConnectionState)
}

func TestRegistry_DefaultsToConnecting(t *testing.T) {
	r := NewRegistry()
	c, _ := r.Register("a", domain.CallEntry{})
	assert.Equal(t, domain.CallConnecting, c.State().ConnectionState)
}

func TestRegistry_Deregister(t *testing.T) {
	r := NewRegistry()
	r.Register("a", domain.CallEntry{})
	r.Register("b", domain.CallEntry{})

	assert.True(t, r.Deregister("a"))
	assert.False(t, r.Deregister("a"))
	assert.False(t, r.Deregister("missing"))
	assert.Equal(t, 1, r.Count())
	assert.Equal(t, []domain.CallID{"b"}, r.IDs())

	_, ok := r.Get("a")
	assert.False(t, ok)
}

func TestRegistry_SnapshotKeepsInsertionOrder(t *testing.T) {
	r := NewRegistry()
	for _, id := range []domain.CallID{"z", "a", "m"} {
		r.Register(id, domain.CallEntry{})
	}
	r.Deregister("a")
	r.Register("a", domain.CallEntry{})

	var got []domain.CallID
	for _, st := range r.Snapshot() {
		got = append(got, st.ID)
	}
	assert.Equal(t, []domain.CallID{"z", "m", "a"}, got)
}

func TestRegistry_HasConnected(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.HasConnected())

	c, _ := r.Register("a", domain.CallEntry{})
	assert.False(t, r.HasConnected())

	c.SetConnectionState(domain.CallConnected)
	assert.True(t, r.HasConnected())

	r.Deregister("a")
	assert.False(t, r.HasConnected())
}
