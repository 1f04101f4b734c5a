package workflow

import (
	"context"
	"maps"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/AltairaLabs/EdenKit/logger"
	"github.com/AltairaLabs/EdenKit/template"
)

// Context keys written when a decision resolves.
const (
	VarUserDecision    = "userDecision"
	VarUserSelection   = "userSelection"
	VarSelectedListing = "selectedListing"
	VarSelectedPrice   = "selectedPrice"
)

// DecisionTimeoutValue is recorded as the decision when a window expires and
// the step routes elsewhere.
const DecisionTimeoutValue = "timeout"

var lower = cases.Lower(language.Und)

// pendingDecision is a decision step waiting for SubmitDecision or its timer.
// It is resolved exactly once, with run.mu held.
type pendingDecision struct {
	step        string
	prompt      string
	options     []Option
	timeout     time.Duration
	timeoutStep string
	timer       *time.Timer

	done   chan struct{}
	result *Instruction
	err    error
}

func (p *pendingDecision) stop() {
	if p.timer != nil {
		p.timer.Stop()
	}
}

func (p *pendingDecision) resolve(inst *Instruction, err error) {
	p.result, p.err = inst, err
	close(p.done)
}

func (p *pendingDecision) instruction(exec *Execution) *Instruction {
	return &Instruction{
		Kind:        InstructionDecision,
		ExecutionID: exec.ID,
		Step:        p.step,
		Prompt:      p.prompt,
		Options:     p.options,
		Timeout:     p.timeout,
		Vars:        maps.Clone(exec.Vars),
	}
}

// NormalizeDecision case-folds a submitted decision value.
func NormalizeDecision(v string) string {
	return lower.String(strings.TrimSpace(v))
}

// optionValue derives a machine value from an option label:
// "Book it now!" becomes "book_it_now".
func optionValue(label string) string {
	var b strings.Builder
	underscore := false
	for _, r := range lower.String(strings.TrimSpace(label)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

func (e *Engine) buildOptions(ctx context.Context, d *Decision, vars map[string]any) []Option {
	if d == nil {
		return nil
	}
	if d.OptionsFrom != nil {
		return e.deriveOptions(ctx, d.OptionsFrom, vars)
	}
	out := make([]Option, 0, len(d.Options))
	for _, o := range d.Options {
		opt := Option{
			Label: e.resolver.ResolveText(ctx, o.Label, vars),
			Value: e.resolver.ResolveText(ctx, o.Value, vars),
			Data:  e.resolver.Resolve(ctx, o.Data, vars),
		}
		if opt.Value == "" {
			opt.Value = optionValue(opt.Label)
		}
		out = append(out, opt)
	}
	return out
}

// deriveOptions builds one option per element of a context array, binding
// "item" and "index" while the label and value templates resolve.
func (e *Engine) deriveOptions(ctx context.Context, from *OptionsFrom, vars map[string]any) []Option {
	name := from.Source
	if ref, ok := template.ExactReference(name); ok {
		name = ref
	}
	src, ok := template.Lookup(vars, name)
	if !ok {
		logger.WarnContext(ctx, "decision options source not found", "source", name)
		return nil
	}
	items, ok := template.Plain(src).([]any)
	if !ok {
		logger.WarnContext(ctx, "decision options source is not an array", "source", name)
		return nil
	}
	out := make([]Option, 0, len(items))
	for i, item := range items {
		scope := maps.Clone(vars)
		scope["item"] = item
		scope["index"] = i
		opt := Option{Label: e.resolver.ResolveText(ctx, from.Label, scope), Data: item}
		if from.Value != "" {
			opt.Value = e.resolver.ResolveText(ctx, from.Value, scope)
		}
		if opt.Value == "" {
			opt.Value = optionValue(opt.Label)
		}
		if opt.Value == "" {
			opt.Value = strconv.Itoa(i)
		}
		out = append(out, opt)
	}
	return out
}

// resolveSelection finds the data behind a decision: the chosen option's
// data first, then a structured selection payload.
func resolveSelection(options []Option, decision string, selection any) (any, bool) {
	for _, o := range options {
		if o.Data == nil {
			continue
		}
		if NormalizeDecision(o.Value) == decision || NormalizeDecision(o.Label) == decision {
			return o.Data, true
		}
	}
	if m, ok := template.Plain(selection).(map[string]any); ok && len(m) > 0 {
		return m, true
	}
	return nil, false
}

// recordDecision writes the decision keys into vars.
func recordDecision(vars map[string]any, options []Option, decision string, selection any) {
	vars[VarUserDecision] = decision
	if selection != nil {
		vars[VarUserSelection] = selection
	}
	listing, ok := resolveSelection(options, decision, selection)
	if !ok {
		return
	}
	vars[VarSelectedListing] = listing
	if price, ok := template.Lookup(map[string]any{"listing": listing}, "listing.price"); ok {
		vars[VarSelectedPrice] = price
	}
}
