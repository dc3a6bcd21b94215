package app

import (
	"sync"

	"github.com/rs/zerolog/log"
)

type EventKind string

const EventError EventKind = "error"

type ErrorPayload struct {
	Error error
}

// Event is what presentation layers consume from the global error channel.
type Event struct {
	Kind    EventKind
	Payload ErrorPayload
}

// EventBus implements core.ErrorSink. Publishing never blocks; when the
// buffer is full the event is dropped and logged.
type EventBus struct {
	ch chan Event

	mu   sync.RWMutex
	last error
}

func NewEventBus(buffer int) *EventBus {
	return &EventBus{ch: make(chan Event, buffer)}
}

func (b *EventBus) Report(err error) {
	b.mu.Lock()
	b.last = err
	b.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Str("module", "app.events").Msg("error reported")
	}
	ev := Event{Kind: EventError, Payload: ErrorPayload{Error: err}}
	select {
	case b.ch <- ev:
	default:
		log.Warn().Str("module", "app.events").Msg("event buffer full, dropping")
	}
}

func (b *EventBus) Events() <-chan Event { return b.ch }

// LastError returns the currently surfaced error, nil when cleared.
func (b *EventBus) LastError() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.last
}
