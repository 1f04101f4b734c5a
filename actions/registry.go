// Package actions maps workflow action tags to handlers and runs a step's
// actions in order.
package actions

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Call is one action invocation with its params already resolved against the
// execution context.
type Call struct {
	Step   string
	Index  int
	Type   string
	Params map[string]any
}

// Handler executes one action and returns the context keys it sets.
type Handler interface {
	Handle(ctx context.Context, call Call, vars map[string]any) (map[string]any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, call Call, vars map[string]any) (map[string]any, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, call Call, vars map[string]any) (map[string]any, error) {
	return f(ctx, call, vars)
}

// Registry holds the handler for each action tag.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates a registry with the built-in set and log handlers.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[string]Handler)}
	r.MustRegister(TypeSet, HandlerFunc(handleSet))
	r.MustRegister(TypeLog, HandlerFunc(handleLog))
	return r
}

// Register adds a handler under tag.
func (r *Registry) Register(tag string, h Handler) error {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ErrActionTypeRequired
	}
	if h == nil {
		return fmt.Errorf("%w: %s", ErrNilHandler, tag)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[tag]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAction, tag)
	}
	r.handlers[tag] = h
	return nil
}

// MustRegister is Register that panics on error. Use during startup wiring.
func (r *Registry) MustRegister(tag string, h Handler) {
	if err := r.Register(tag, h); err != nil {
		panic(err)
	}
}

// Lookup returns the handler for tag.
func (r *Registry) Lookup(tag string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[tag]
	return h, ok
}

// Has reports whether tag has a handler.
func (r *Registry) Has(tag string) bool {
	_, ok := r.Lookup(tag)
	return ok
}

// Tags returns the registered tags, sorted.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.handlers))
	for tag := range r.handlers {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	return tags
}

// Validate fails if any of tags has no handler.
func (r *Registry) Validate(tags []string) error {
	var unknown []string
	for _, tag := range tags {
		if !r.Has(tag) {
			unknown = append(unknown, tag)
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return fmt.Errorf("%w: %s", ErrUnknownAction, strings.Join(slices.Compact(unknown), ", "))
	}
	return nil
}
