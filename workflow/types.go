// Package workflow loads, validates and executes step/transition workflow
// definitions.
//
// A workflow is a list of steps joined by conditional transitions. Ordinary
// steps run their actions and chain automatically; decision steps pause for an
// external choice; authority steps run atomically and hand control back to the
// caller before the next step.
package workflow

import (
	"slices"
	"strings"
	"time"
)

// StepKind classifies a step.
type StepKind string

// Step kinds.
const (
	KindInput    StepKind = "input"
	KindProcess  StepKind = "process"
	KindOutput   StepKind = "output"
	KindError    StepKind = "error"
	KindDecision StepKind = "decision"
)

var validKinds = []StepKind{KindInput, KindProcess, KindOutput, KindError, KindDecision}

// Valid reports whether k is a known step kind.
func (k StepKind) Valid() bool {
	return slices.Contains(validKinds, k)
}

// AuthorityComponent marks a step owned by the issuing authority.
const AuthorityComponent = "root-ca"

// AuthorityPrefix is the step id prefix that also marks an authority step.
const AuthorityPrefix = "root_ca_"

// Definition is a loaded workflow. It is not modified after loading.
type Definition struct {
	Name        string       `json:"name"`
	Version     string       `json:"version"`
	Description string       `json:"description,omitempty"`
	InitialStep string       `json:"initialStep"`
	FinalSteps  []string     `json:"finalSteps,omitempty"`
	Steps       []*Step      `json:"steps"`
	Transitions []Transition `json:"transitions,omitempty"`
}

// Step is one node of the workflow graph.
type Step struct {
	ID        string          `json:"id"`
	Name      string          `json:"name,omitempty"`
	Kind      StepKind        `json:"kind"`
	Component string          `json:"component,omitempty"`
	Actions   []Action        `json:"actions,omitempty"`
	Decision  *Decision       `json:"decision,omitempty"`
	Events    []EventTemplate `json:"events,omitempty"`
}

// IsAuthority reports whether the step is an authority checkpoint.
func (s *Step) IsAuthority() bool {
	return s.Component == AuthorityComponent || strings.HasPrefix(s.ID, AuthorityPrefix)
}

// IsDecision reports whether the step pauses for a decision.
func (s *Step) IsDecision() bool {
	return s.Kind == KindDecision
}

// Action is one tagged operation inside a step. Params are templates resolved
// against the execution context before the handler runs.
type Action struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// Decision describes how a decision step asks for input.
type Decision struct {
	Prompt      string       `json:"prompt"`
	TimeoutMs   int64        `json:"timeoutMs,omitempty"`
	TimeoutStep string       `json:"timeoutStep,omitempty"`
	Options     []Option     `json:"options,omitempty"`
	OptionsFrom *OptionsFrom `json:"optionsFrom,omitempty"`
}

// Timeout returns the decision window, or zero for none.
func (d *Decision) Timeout() time.Duration {
	if d == nil || d.TimeoutMs <= 0 {
		return 0
	}
	return time.Duration(d.TimeoutMs) * time.Millisecond
}

// Option is one choice offered by a decision step.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// OptionsFrom derives options from a context array. Label and Value are
// templates evaluated with "item" and "index" bound for each element.
type OptionsFrom struct {
	Source string `json:"source"`
	Label  string `json:"label"`
	Value  string `json:"value,omitempty"`
}

// EventTemplate is an outbound broadcast fired after a step's actions.
type EventTemplate struct {
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Transition joins two steps. An empty Condition always matches.
type Transition struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Condition string `json:"condition,omitempty"`
}

// Step returns the step with the given id.
func (d *Definition) Step(id string) (*Step, bool) {
	for _, s := range d.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// IsFinal reports whether id is listed as a final step.
func (d *Definition) IsFinal(id string) bool {
	return slices.Contains(d.FinalSteps, id)
}

// TransitionsFrom returns the outbound transitions of a step in declaration order.
func (d *Definition) TransitionsFrom(id string) []Transition {
	var out []Transition
	for _, t := range d.Transitions {
		if t.From == id {
			out = append(out, t)
		}
	}
	return out
}

// ActionTypes returns every action tag the definition uses, sorted and unique.
func (d *Definition) ActionTypes() []string {
	var tags []string
	for _, s := range d.Steps {
		for _, a := range s.Actions {
			tags = append(tags, a.Type)
		}
	}
	slices.Sort(tags)
	return slices.Compact(tags)
}
