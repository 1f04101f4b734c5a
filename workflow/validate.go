package workflow

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/AltairaLabs/EdenKit/condition"
	"github.com/AltairaLabs/EdenKit/logger"
)

// ValidationResult holds errors and warnings from definition validation.
type ValidationResult struct {
	Errors   []string // Blocking: broken references, missing fields
	Warnings []string // Non-blocking: cycles, unreachable steps, shadowed transitions
}

// HasErrors returns true if there are blocking validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Err returns the errors as a *ValidationError, or nil.
func (r *ValidationResult) Err(workflow string) error {
	if !r.HasErrors() {
		return nil
	}
	return &ValidationError{Workflow: workflow, Problems: slices.Clone(r.Errors)}
}

func (r *ValidationResult) log(workflow string) {
	for _, w := range r.Warnings {
		logger.Warn("workflow definition warning", "workflow", workflow, "warning", w)
	}
}

func (r *ValidationResult) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// ActionCatalog reports which action tags have handlers.
type ActionCatalog interface {
	Has(tag string) bool
}

type validateConfig struct {
	actions ActionCatalog
}

// ValidateOption configures Validate.
type ValidateOption func(*validateConfig)

// WithActionCatalog makes actions whose tag has no handler a validation error.
func WithActionCatalog(c ActionCatalog) ValidateOption {
	return func(cfg *validateConfig) {
		cfg.actions = c
	}
}

// Validate checks a definition's references and shape.
func Validate(def *Definition, opts ...ValidateOption) *ValidationResult {
	cfg := &validateConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	r := &ValidationResult{}
	if strings.TrimSpace(def.Name) == "" {
		r.errorf("workflow.name is required")
	}
	validateVersion(def, r)
	if len(def.Steps) == 0 {
		r.errorf("workflow.steps must be non-empty")
		return r
	}
	ids := validateSteps(def, cfg, r)
	validateEndpoints(def, ids, r)
	validateTransitions(def, ids, r)
	validateCycles(def, r)
	validateReachability(def, ids, r)
	return r
}

func validateVersion(def *Definition, r *ValidationResult) {
	if def.Version == "" {
		r.errorf("workflow.version is required")
		return
	}
	if _, err := semver.StrictNewVersion(strings.TrimPrefix(def.Version, "v")); err != nil {
		r.errorf("workflow.version %q is not a semantic version: %v", def.Version, err)
	}
}

func validateSteps(def *Definition, cfg *validateConfig, r *ValidationResult) map[string]bool {
	ids := make(map[string]bool, len(def.Steps))
	for i, s := range def.Steps {
		if s == nil || s.ID == "" {
			r.errorf("workflow.steps[%d].id is required", i)
			continue
		}
		if ids[s.ID] {
			r.errorf("workflow.steps[%d].id %q is a duplicate", i, s.ID)
		}
		ids[s.ID] = true
		if !s.Kind.Valid() {
			r.errorf("workflow.steps[%q].kind %q is not valid (must be one of %v)", s.ID, s.Kind, validKinds)
		}
		validateDecision(s, r)
		for j, a := range s.Actions {
			if cfg.actions != nil && !cfg.actions.Has(a.Type) {
				r.errorf("workflow.steps[%q].actions[%d].type %q has no handler", s.ID, j, a.Type)
			}
		}
		if s.IsDecision() && len(s.Actions) > 0 {
			r.warnf("workflow.steps[%q]: actions on a decision step are not executed", s.ID)
		}
	}
	for _, s := range def.Steps {
		if s == nil || s.Decision == nil || s.Decision.TimeoutStep == "" {
			continue
		}
		if !ids[s.Decision.TimeoutStep] {
			r.errorf("workflow.steps[%q].decision.timeoutStep %q does not exist in steps", s.ID, s.Decision.TimeoutStep)
		}
	}
	return ids
}

func validateDecision(s *Step, r *ValidationResult) {
	if !s.IsDecision() {
		if s.Decision != nil {
			r.warnf("workflow.steps[%q]: decision settings on a %s step are ignored", s.ID, s.Kind)
		}
		return
	}
	d := s.Decision
	if d == nil || strings.TrimSpace(d.Prompt) == "" {
		r.errorf("workflow.steps[%q]: decision step requires decision.prompt", s.ID)
	}
	if d == nil || (len(d.Options) == 0 && d.OptionsFrom == nil) {
		r.errorf("workflow.steps[%q]: decision step requires decision.options or decision.optionsFrom", s.ID)
	}
	if d != nil && d.TimeoutStep != "" && d.TimeoutMs <= 0 {
		r.warnf("workflow.steps[%q]: decision.timeoutStep is set without decision.timeoutMs", s.ID)
	}
}

func validateEndpoints(def *Definition, ids map[string]bool, r *ValidationResult) {
	if !ids[def.InitialStep] {
		r.errorf("workflow.initialStep %q does not exist in steps", def.InitialStep)
	}
	for _, f := range def.FinalSteps {
		if !ids[f] {
			r.errorf("workflow.finalSteps %q does not exist in steps", f)
		}
	}
}

func validateTransitions(def *Definition, ids map[string]bool, r *ValidationResult) {
	unconditional := make(map[string]int)
	for i, t := range def.Transitions {
		if !ids[t.From] {
			r.errorf("workflow.transitions[%d].from %q does not exist in steps", i, t.From)
		}
		if !ids[t.To] {
			r.errorf("workflow.transitions[%d].to %q does not exist in steps", i, t.To)
		}
		if first, ok := unconditional[t.From]; ok {
			r.warnf("workflow.transitions[%d] from %q is shadowed by unconditional transitions[%d]", i, t.From, first)
		}
		if t.Condition == "" || t.Condition == "true" || t.Condition == "always" {
			if _, seen := unconditional[t.From]; !seen {
				unconditional[t.From] = i
			}
			continue
		}
		if _, err := condition.Parse(t.Condition); err != nil {
			r.warnf("workflow.transitions[%d].condition %q will be read as a context key: %v", i, t.Condition, err)
		}
	}
}

// validateCycles warns about cycles made only of steps that chain
// automatically. Decision and authority steps hand control back to the
// caller, so a cycle through one of them cannot spin.
func validateCycles(def *Definition, r *ValidationResult) {
	for _, cycle := range detectCycles(def) {
		r.warnf("workflow contains a cycle without a decision break: %s", cycle)
	}
}

func detectCycles(def *Definition) []string {
	const (
		white = iota // unvisited
		gray         // in current DFS path
		black        // fully explored
	)

	color := make(map[string]int, len(def.Steps))
	var cycles []string

	var dfs func(id string)
	dfs = func(id string) {
		color[id] = gray
		s, ok := def.Step(id)
		if !ok || s.IsDecision() || s.IsAuthority() {
			color[id] = black
			return
		}
		for _, t := range def.TransitionsFrom(id) {
			switch color[t.To] {
			case gray:
				cycles = append(cycles, fmt.Sprintf("%s -> %s", id, t.To))
			case white:
				dfs(t.To)
			}
		}
		color[id] = black
	}

	for _, s := range def.Steps {
		if s != nil && color[s.ID] == white {
			dfs(s.ID)
		}
	}
	return cycles
}

func validateReachability(def *Definition, ids map[string]bool, r *ValidationResult) {
	if !ids[def.InitialStep] {
		return
	}
	seen := map[string]bool{def.InitialStep: true}
	queue := []string{def.InitialStep}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		var next []string
		for _, t := range def.TransitionsFrom(id) {
			next = append(next, t.To)
		}
		if s, ok := def.Step(id); ok && s.Decision != nil && s.Decision.TimeoutStep != "" {
			next = append(next, s.Decision.TimeoutStep)
		}
		for _, n := range next {
			if !seen[n] {
				seen[n] = true
				queue = append(queue, n)
			}
		}
	}
	for _, s := range def.Steps {
		if s != nil && s.ID != "" && !seen[s.ID] {
			r.warnf("workflow.steps[%q] is unreachable from %q", s.ID, def.InitialStep)
		}
	}
}
