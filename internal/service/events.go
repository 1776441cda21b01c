// ABOUTME: Lifecycle events and the observer set used to publish them
// ABOUTME: Shared by backends (pushed to the gateway) and the gateway (pushed to consoles)

package service

import (
	"log/slog"
	"slices"
	"sync"
	"time"
)

// EventKind names a lifecycle transition.
type EventKind string

const (
	EventStarted EventKind = "started"
	EventPaused  EventKind = "paused"
	EventResumed EventKind = "resumed"
	EventStopped EventKind = "stopped"
	EventExit    EventKind = "exit"
	EventConfig  EventKind = "config"
)

// Event reports that Source went through a lifecycle transition.
type Event struct {
	Kind   EventKind `json:"kind"`
	Source string    `json:"source"`
	At     time.Time `json:"at"`
}

// NewEvent stamps an event with the current time.
func NewEvent(kind EventKind, source string) Event {
	return Event{Kind: kind, Source: source, At: time.Now().UTC()}
}

// Observer receives lifecycle events.
type Observer interface {
	OnEvent(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event)

// OnEvent calls f.
func (f ObserverFunc) OnEvent(ev Event) { f(ev) }

// Observers is a concurrency-safe set of observers.
type Observers struct {
	mu     sync.RWMutex
	next   uint64
	set    map[uint64]Observer
	logger *slog.Logger
}

// NewObservers creates an empty observer set.
func NewObservers(logger *slog.Logger) *Observers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observers{set: make(map[uint64]Observer), logger: logger}
}

// Add registers o and returns a function that removes it again.
func (o *Observers) Add(obs Observer) (remove func()) {
	o.mu.Lock()
	o.next++
	id := o.next
	o.set[id] = obs
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.set, id)
			o.mu.Unlock()
		})
	}
}

// Len returns the number of registered observers.
func (o *Observers) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.set)
}

// Notify delivers ev to every observer in registration order. A panicking
// observer is logged and skipped.
func (o *Observers) Notify(ev Event) {
	o.mu.RLock()
	ids := make([]uint64, 0, len(o.set))
	targets := make(map[uint64]Observer, len(o.set))
	for id, obs := range o.set {
		ids = append(ids, id)
		targets[id] = obs
	}
	o.mu.RUnlock()

	slices.Sort(ids)
	for _, id := range ids {
		o.deliver(targets[id], ev)
	}
}

func (o *Observers) deliver(obs Observer, ev Event) {
	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("observer panicked", "event", ev.Kind, "panic", p)
		}
	}()
	obs.OnEvent(ev)
}
