// ABOUTME: Bindable stub backend with an event watch and a close flag
// ABOUTME: Lets gateway tests push backend lifecycle events by hand

package servicetest

import (
	"sync/atomic"

	"github.com/2389/recgate/internal/service"
)

// Backend is a Stub that can be bound by a registry.
type Backend struct {
	*Stub
	watchers *service.Observers
	closed   atomic.Bool
}

// NewBackend creates a bindable stub.
func NewBackend(name string) *Backend {
	return &Backend{Stub: New(name), watchers: service.NewObservers(nil)}
}

// Watch subscribes obs to events passed to Emit.
func (b *Backend) Watch(obs service.Observer) (func(), error) {
	if obs == nil {
		return func() {}, nil
	}
	return b.watchers.Add(obs), nil
}

// Emit delivers an event from this backend to its watchers.
func (b *Backend) Emit(kind service.EventKind) {
	b.watchers.Notify(service.NewEvent(kind, b.Name))
}

// Watchers returns the number of active watches.
func (b *Backend) Watchers() int { return b.watchers.Len() }

// Close marks the backend closed.
func (b *Backend) Close() error {
	b.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (b *Backend) Closed() bool { return b.closed.Load() }
