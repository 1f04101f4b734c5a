package events

import "sync"

// Sink receives notifications. Implementations give no delivery guarantee and
// must not block the caller for long.
type Sink interface {
	Emit(*Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(*Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e *Event) {
	f(e)
}

// Discard is a Sink that drops every event.
var Discard Sink = SinkFunc(func(*Event) {})

// Recorder is a synchronous Sink that keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []*Event
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit records e.
func (r *Recorder) Emit(e *Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events in emission order.
func (r *Recorder) Events() []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of the given type.
func (r *Recorder) OfType(t EventType) []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Types returns the recorded event types in emission order.
func (r *Recorder) Types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// Multi fans an event out to several sinks in order. Nil sinks are skipped.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(e *Event) {
		for _, s := range sinks {
			if s != nil {
				s.Emit(e)
			}
		}
	})
}
