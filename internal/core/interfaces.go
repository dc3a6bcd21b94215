package core

import (
	"context"
	"errors"
)

// Frame is a raw text payload sent over the control connection.
type Frame []byte

var (
	ErrNotConnected = errors.New("connection not open")
	ErrBackpressure = errors.New("backpressure")
	// ErrExpectedTransient marks a refresh failure caused by a prior token that
	// has not expired yet. It is a benign race, not a failure.
	ErrExpectedTransient = errors.New("expected transient refresh failure")
)

// ReadyState mirrors the readiness of the underlying control connection.
type ReadyState int32

const (
	StateConnecting ReadyState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s ReadyState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Transport abstracts the control-plane connection.
// Connect never blocks; readiness changes are reported by the adapter
// through callbacks registered at wiring time.
type Transport interface {
	ReadyState() ReadyState
	URL() string
	Connect(url string)
	Send(Frame) error
	Close()
}

// Refresher renews the session credential.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// ErrorSink is the single global error channel. A nil error clears the
// currently surfaced error.
type ErrorSink interface {
	Report(err error)
}

// OnlineSignal delivers offline -> online connectivity transitions.
type OnlineSignal interface {
	Subscribe(fn func()) (unsubscribe func())
}
