package workflow

import (
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/AltairaLabs/EdenKit/events"
)

// Status is the lifecycle state of an execution.
type Status string

// Execution statuses.
const (
	StatusRunning   Status = "running"
	StatusWaiting   Status = "waiting"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Finished reports whether the execution can no longer advance.
func (s Status) Finished() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Visit records one step entered by an execution.
type Visit struct {
	Step      string    `json:"step"`
	Kind      StepKind  `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// Execution is the state of one workflow run. CurrentStep is the step the
// execution is paused at or will run next.
type Execution struct {
	ID          string         `json:"id"`
	Workflow    string         `json:"workflow"`
	Version     string         `json:"version"`
	CurrentStep string         `json:"currentStep"`
	Status      Status         `json:"status"`
	Vars        map[string]any `json:"vars"`
	History     []Visit        `json:"history"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"startedAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Clone returns a copy that shares no slices or top-level maps with e.
func (e *Execution) Clone() *Execution {
	cp := *e
	cp.Vars = maps.Clone(e.Vars)
	cp.History = slices.Clone(e.History)
	return &cp
}

func (e *Execution) visit(step *Step, now time.Time) {
	e.History = append(e.History, Visit{Step: step.ID, Kind: step.Kind, Timestamp: now})
	e.CurrentStep = step.ID
	e.UpdatedAt = now
}

// run pairs an execution with its definition and the lock that serialises
// every call against it.
type run struct {
	mu      sync.Mutex
	def     *Definition
	exec    *Execution
	pending *pendingDecision
	em      *events.Emitter
}

// Registry holds every execution the engine has started, keyed by id.
type Registry struct {
	mu   sync.RWMutex
	runs map[string]*run
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]*run)}
}

func (r *Registry) add(rn *run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[rn.exec.ID] = rn
}

func (r *Registry) get(id string) (*run, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rn, ok := r.runs[id]
	return rn, ok
}

// Get returns a snapshot of the execution with the given id.
func (r *Registry) Get(id string) (*Execution, bool) {
	rn, ok := r.get(id)
	if !ok {
		return nil, false
	}
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return rn.exec.Clone(), true
}

// List returns snapshots of every execution, oldest first.
func (r *Registry) List() []*Execution {
	r.mu.RLock()
	runs := make([]*run, 0, len(r.runs))
	for _, rn := range r.runs {
		runs = append(runs, rn)
	}
	r.mu.RUnlock()

	out := make([]*Execution, 0, len(runs))
	for _, rn := range runs {
		rn.mu.Lock()
		out = append(out, rn.exec.Clone())
		rn.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Len returns the number of executions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs)
}
