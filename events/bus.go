package events

import (
	"sync"

	"github.com/AltairaLabs/EdenKit/logger"
)

// Listener is a function that handles events.
type Listener func(*Event)

// EventBus manages event distribution to listeners. Delivery is asynchronous;
// each Publish runs its listeners in order on one goroutine.
type EventBus struct {
	mu              sync.RWMutex
	listeners       map[EventType][]Listener
	globalListeners []Listener
	inflight        sync.WaitGroup
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		listeners: make(map[EventType][]Listener),
	}
}

// Subscribe registers a listener for a specific event type.
func (eb *EventBus) Subscribe(eventType EventType, listener Listener) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.listeners[eventType] = append(eb.listeners[eventType], listener)
}

// SubscribeAll registers a listener for all event types.
func (eb *EventBus) SubscribeAll(listener Listener) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.globalListeners = append(eb.globalListeners, listener)
}

// Publish sends an event to all registered listeners asynchronously.
func (eb *EventBus) Publish(event *Event) {
	if eb == nil || event == nil {
		return
	}
	eb.mu.RLock()
	specific := append([]Listener(nil), eb.listeners[event.Type]...)
	global := append([]Listener(nil), eb.globalListeners...)
	eb.mu.RUnlock()

	if len(specific) == 0 && len(global) == 0 {
		return
	}

	eb.inflight.Add(1)
	go func() {
		defer eb.inflight.Done()
		for _, listener := range specific {
			safeInvoke(listener, event)
		}
		for _, listener := range global {
			safeInvoke(listener, event)
		}
	}()
}

// Emit implements Sink.
func (eb *EventBus) Emit(event *Event) {
	eb.Publish(event)
}

// Wait blocks until every event published so far has been delivered.
func (eb *EventBus) Wait() {
	eb.inflight.Wait()
}

// Clear removes all listeners (primarily for tests).
func (eb *EventBus) Clear() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.listeners = make(map[EventType][]Listener)
	eb.globalListeners = nil
}

func safeInvoke(listener Listener, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event listener panicked", "type", event.Type, "panic", r)
		}
	}()
	listener(event)
}

var _ Sink = (*EventBus)(nil)
