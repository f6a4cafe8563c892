package events

import (
	"log"
	"slices"
	"sync"
)

// LoggingObserver logs all events for debugging purposes.
type LoggingObserver struct {
	name    string
	verbose bool
}

// NewLoggingObserver creates a new observer that logs events.
func NewLoggingObserver(verbose bool) *LoggingObserver {
	return &LoggingObserver{
		name:    "LoggingObserver",
		verbose: verbose,
	}
}

// OnEvent logs the event details.
func (o *LoggingObserver) OnEvent(event Event) error {
	if o.verbose {
		log.Printf("[%s] Event: %s binder=%s data=%v", o.name, event.Type, event.BinderID, event.Data)
	} else {
		log.Printf("[%s] Event: %s binder=%s", o.name, event.Type, event.BinderID)
	}
	return nil
}

// GetName returns the observer's name.
func (o *LoggingObserver) GetName() string {
	return o.name
}

// ShouldHandle returns true for all events (logs everything).
func (o *LoggingObserver) ShouldHandle(eventType string) bool {
	return true
}

// FuncObserver adapts a function to the Observer interface. With no types
// it handles every event.
type FuncObserver struct {
	name  string
	types []string
	fn    func(Event) error
}

// NewFuncObserver creates an observer that calls fn for the listed event types.
func NewFuncObserver(name string, fn func(Event) error, types ...string) *FuncObserver {
	return &FuncObserver{name: name, types: types, fn: fn}
}

// OnEvent calls the wrapped function.
func (o *FuncObserver) OnEvent(event Event) error {
	return o.fn(event)
}

// GetName returns the observer's name.
func (o *FuncObserver) GetName() string {
	return o.name
}

// ShouldHandle filters by the configured types.
func (o *FuncObserver) ShouldHandle(eventType string) bool {
	return len(o.types) == 0 || slices.Contains(o.types, eventType)
}

// Recorder keeps every event it receives, for tests and the CLI's watch mode.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// OnEvent stores the event.
func (r *Recorder) OnEvent(event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// GetName returns "Recorder".
func (r *Recorder) GetName() string { return "Recorder" }

// ShouldHandle accepts everything.
func (r *Recorder) ShouldHandle(string) bool { return true }

// Events returns the received events of the given type, or all of them when
// eventType is empty.
func (r *Recorder) Events(eventType string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if eventType == "" || e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
