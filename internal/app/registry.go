package app

import (
	"sync"

	"github.com/dkeye/intercom/internal/domain"
	"github.com/rs/zerolog/log"
)

// Registry tracks locally active calls in insertion order.
// It is the only writer of the call map; call attributes are written by
// collaborators through the *domain.Call handles it hands out.
type Registry struct {
	mu    sync.RWMutex
	order []domain.CallID
	calls map[domain.CallID]*domain.Call
}

func NewRegistry() *Registry {
	return &Registry{
		calls: make(map[domain.CallID]*domain.Call),
	}
}

// Register inserts the call if absent and returns its handle. Registering an
// existing id returns the live entry untouched and created=false.
func (r *Registry) Register(id domain.CallID, entry domain.CallEntry) (call *domain.Call, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.calls[id]; ok {
		log.Debug().Str("module", "app.registry").Str("call_id", string(id)).Msg("call already registered")
		return c, false
	}
	c := domain.NewCall(id, entry)
	r.calls[id] = c
	r.order = append(r.order, id)
	log.Info().Str("module", "app.registry").Str("call_id", string(id)).Msg("registered call")
	return c, true
}

// Deregister removes the call. Unknown ids are a no-op.
func (r *Registry) Deregister(id domain.CallID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.calls[id]; !ok {
		return false
	}
	delete(r.calls, id)
	for i, cid := range r.order {
		if cid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	log.Info().Str("module", "app.registry").Str("call_id", string(id)).Msg("deregistered call")
	return true
}

func (r *Registry) Get(id domain.CallID) (*domain.Call, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.calls[id]
	return c, ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.calls)
}

// IDs returns call ids in registration order.
func (r *Registry) IDs() []domain.CallID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.CallID(nil), r.order...)
}

// Calls returns the live handles in registration order.
func (r *Registry) Calls() []*domain.Call {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Call, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.calls[id])
	}
	return out
}

// Snapshot copies every call's state in registration order.
func (r *Registry) Snapshot() []domain.CallState {
	calls := r.Calls()
	out := make([]domain.CallState, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.State())
	}
	return out
}

// HasConnected reports whether any call is currently connected.
func (r *Registry) HasConnected() bool {
	for _, c := range r.Calls() {
		if c.IsConnected() {
			return true
		}
	}
	return false
}
