// Package events distributes binder domain events (stale remote copies,
// completed syncs, conflicts, page growth) to registered observers.
package events

import (
	"context"
	"encoding/json"
	"log"
	"sync"
)

// Event types dispatched by the editor and the reconciler.
const (
	BinderStale            = "binder:stale"
	BinderSynced           = "binder:synced"
	BinderConflict         = "binder:conflict"
	BinderChanged          = "binder:changed"
	BinderDeleted          = "binder:deleted"
	BinderPagesAdded       = "binder:pages-added"
	BinderAutoSortDisabled = "binder:autosort-disabled"
	SyncFailed             = "sync:failed"
	CatalogUnavailable     = "catalog:unavailable"
)

// Event represents a domain event that can be dispatched to observers.
type Event struct {
	// Type is one of the constants above.
	Type string

	// BinderID names the binder the event concerns, empty for global events.
	BinderID string

	// Data is the payload flattened to JSON-compatible values, for observers
	// that forward events over the wire.
	Data map[string]interface{}

	// TypedData is the payload struct. Observers in process should prefer it.
	TypedData any

	Context context.Context
}

// Observer defines the interface for objects that want to be notified of events.
type Observer interface {
	// OnEvent is called when an event is dispatched.
	OnEvent(event Event) error

	// GetName returns a human-readable name for this observer (for logging/debugging).
	GetName() string

	// ShouldHandle returns true if this observer should handle the given event type.
	ShouldHandle(eventType string) bool
}

// Dispatcher is the subset of EventDispatcher that producers depend on.
type Dispatcher interface {
	Dispatch(event Event)
}

// EventDispatcher fans events out to its observers.
// Thread-safe for concurrent use.
type EventDispatcher struct {
	observers []Observer
	mu        sync.RWMutex
}

// NewEventDispatcher creates a new EventDispatcher.
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{
		observers: make([]Observer, 0),
	}
}

// Register adds an observer to the dispatcher.
func (d *EventDispatcher) Register(observer Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.observers = append(d.observers, observer)
	log.Printf("[EventDispatcher] Registered observer: %s", observer.GetName())
}

// Unregister removes an observer from the dispatcher.
func (d *EventDispatcher) Unregister(observer Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, obs := range d.observers {
		if obs == observer {
			d.observers = append(d.observers[:i], d.observers[i+1:]...)
			log.Printf("[EventDispatcher] Unregistered observer: %s", observer.GetName())
			return
		}
	}
}

// Dispatch sends an event to all registered observers in registration order.
// An observer error is logged and does not stop delivery to the others.
func (d *EventDispatcher) Dispatch(event Event) {
	for _, observer := range d.snapshot() {
		if !observer.ShouldHandle(event.Type) {
			continue
		}
		if err := observer.OnEvent(event); err != nil {
			log.Printf("[EventDispatcher] Observer %s failed to handle event %s: %v",
				observer.GetName(), event.Type, err)
		}
	}
}

// DispatchAsync notifies each observer in its own goroutine.
func (d *EventDispatcher) DispatchAsync(event Event) {
	for _, observer := range d.snapshot() {
		if !observer.ShouldHandle(event.Type) {
			continue
		}
		go func(obs Observer) {
			if err := obs.OnEvent(event); err != nil {
				log.Printf("[EventDispatcher] Observer %s failed to handle event %s: %v",
					obs.GetName(), event.Type, err)
			}
		}(observer)
	}
}

func (d *EventDispatcher) snapshot() []Observer {
	d.mu.RLock()
	defer d.mu.RUnlock()
	observers := make([]Observer, len(d.observers))
	copy(observers, d.observers)
	return observers
}

// ObserverCount returns the number of registered observers.
func (d *EventDispatcher) ObserverCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.observers)
}

// Clear removes all registered observers.
func (d *EventDispatcher) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = make([]Observer, 0)
}

// NewTypedEvent creates an Event for binderID carrying data.
func NewTypedEvent[T any](ctx context.Context, eventType, binderID string, data T) Event {
	return Event{
		Type:      eventType,
		BinderID:  binderID,
		Data:      structToMap(data),
		TypedData: data,
		Context:   ctx,
	}
}

// structToMap flattens v through its JSON encoding. Values that do not
// encode to an object yield an empty map.
func structToMap(v any) map[string]interface{} {
	result := make(map[string]interface{})
	if v == nil {
		return result
	}
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return result
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return make(map[string]interface{})
	}
	return result
}

// GetTypedData extracts typed data from an Event.
// Returns the zero value and false if the data is not of the expected type.
func GetTypedData[T any](event Event) (T, bool) {
	var zero T
	if event.TypedData == nil {
		return zero, false
	}
	typed, ok := event.TypedData.(T)
	return typed, ok
}
