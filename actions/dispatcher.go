package actions

import (
	"context"
	"maps"

	"github.com/AltairaLabs/EdenKit/logger"
	"github.com/AltairaLabs/EdenKit/template"
	"github.com/AltairaLabs/EdenKit/workflow"
)

// Dispatcher runs a step's actions against a registry.
type Dispatcher struct {
	registry *Registry
	resolver *template.Resolver
}

// NewDispatcher creates a dispatcher over reg.
func NewDispatcher(reg *Registry) *Dispatcher {
	return &Dispatcher{registry: reg, resolver: template.NewResolver()}
}

// Registry returns the dispatcher's registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Has reports whether tag has a handler.
func (d *Dispatcher) Has(tag string) bool {
	return d.registry.Has(tag)
}

// Dispatch runs actions in order and returns the combined context update.
// Each action sees the updates of the actions before it; vars itself is not
// modified. An unknown tag is logged and skipped. The first handler error
// stops the step and is returned as an *ActionError; the partial update is
// discarded.
func (d *Dispatcher) Dispatch(
	ctx context.Context, step string, acts []workflow.Action, vars map[string]any,
) (map[string]any, error) {
	staged := make(map[string]any)
	view := maps.Clone(vars)
	if view == nil {
		view = make(map[string]any)
	}
	for i, act := range acts {
		h, ok := d.registry.Lookup(act.Type)
		if !ok {
			logger.WarnContext(ctx, "skipping action with unknown type", "step", step, "index", i, "type", act.Type)
			continue
		}
		call := Call{
			Step:   step,
			Index:  i,
			Type:   act.Type,
			Params: d.resolver.ResolveMap(ctx, act.Params, view),
		}
		update, err := h.Handle(ctx, call, view)
		if err != nil {
			return nil, &ActionError{Step: step, ActionType: act.Type, Index: i, Cause: err}
		}
		maps.Copy(staged, update)
		maps.Copy(view, update)
		logger.DebugContext(ctx, "action executed", "step", step, "index", i, "type", act.Type, "keys", len(update))
	}
	return staged, nil
}
