package domain

import "sync"

type CallID string

// ConnectionState is the label the media subsystem reports for a call.
type ConnectionState string

const (
	CallConnecting ConnectionState = "connecting"
	CallConnected  ConnectionState = "connected"
	CallFailed     ConnectionState = "failed"
	CallEnded      ConnectionState = "ended"
)

// CallEntry is the initial value a call is registered with.
type CallEntry struct {
	ConnectionState ConnectionState
	Mute            bool
	Volume          float64
	JoinOptions     JoinOptions
}

// CallState is a point-in-time copy of a Call.
type CallState struct {
	ID              CallID
	ConnectionState ConnectionState
	Mute            bool
	Volume          float64
	JoinOptions     JoinOptions
}

// Call is a live call entry. Attributes are written by external collaborators
// (media subsystem, user actions) and read through State.
type Call struct {
	id CallID

	mu    sync.RWMutex
	entry CallEntry
}

func NewCall(id CallID, entry CallEntry) *Call {
	if entry.ConnectionState == "" {
		entry.ConnectionState = CallConnecting
	}
	return &Call{id: id, entry: entry}
}

func (c *Call) ID() CallID { return c.id }

func (c *Call) SetMute(mute bool) {
	c.mu.Lock()
	c.entry.Mute = mute
	c.mu.Unlock()
}

func (c *Call) SetVolume(volume float64) {
	c.mu.Lock()
	c.entry.Volume = volume
	c.mu.Unlock()
}

func (c *Call) SetConnectionState(s ConnectionState) {
	c.mu.Lock()
	c.entry.ConnectionState = s
	c.mu.Unlock()
}

func (c *Call) State() CallState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CallState{
		ID:              c.id,
		ConnectionState: c.entry.ConnectionState,
		Mute:            c.entry.Mute,
		Volume:          c.entry.Volume,
		JoinOptions:     c.entry.JoinOptions,
	}
}

func (c *Call) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entry.ConnectionState == CallConnected
}
