package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/AltairaLabs/EdenKit/condition"
	"github.com/AltairaLabs/EdenKit/events"
	"github.com/AltairaLabs/EdenKit/logger"
	"github.com/AltairaLabs/EdenKit/statestore"
	"github.com/AltairaLabs/EdenKit/telemetry"
	"github.com/AltairaLabs/EdenKit/template"
)

// DefaultSubject is the certificate subject the engine validates when none is
// configured.
const DefaultSubject = "orchestrator"

// ErrNoGate is returned when an engine has no certificate gate.
var ErrNoGate = errors.New("no certificate gate configured")

// TimeFunc returns the current time. Override for deterministic tests.
type TimeFunc func() time.Time

// Dispatcher runs the actions of one step and returns the context update they
// produced. An error aborts the whole step.
type Dispatcher interface {
	Dispatch(ctx context.Context, step string, actions []Action, vars map[string]any) (map[string]any, error)
}

// Gate authorizes a subject before an execution starts and before every step.
type Gate interface {
	Validate(ctx context.Context, subject string) error
}

// InstructionKind tells the caller what to do next.
type InstructionKind string

// Instruction kinds.
const (
	// InstructionDecision asks the caller to submit a decision.
	InstructionDecision InstructionKind = "decision"
	// InstructionDisplay reports an authority checkpoint; call ExecuteNextStep to continue.
	InstructionDisplay InstructionKind = "display"
	// InstructionComplete reports that the execution has finished.
	InstructionComplete InstructionKind = "complete"
)

// Instruction is returned by every engine call that advances an execution.
type Instruction struct {
	Kind        InstructionKind `json:"kind"`
	ExecutionID string          `json:"executionId"`
	Step        string          `json:"step"`
	NextStep    string          `json:"nextStep,omitempty"`
	Prompt      string          `json:"prompt,omitempty"`
	Options     []Option        `json:"options,omitempty"`
	Timeout     time.Duration   `json:"timeout,omitempty"`
	Vars        map[string]any  `json:"vars,omitempty"`
}

// Engine drives workflow executions. Calls against one execution are
// serialised; different executions run independently.
type Engine struct {
	dispatcher Dispatcher
	gate       Gate
	subject    string
	registry   *Registry
	resolver   *template.Resolver
	evaluator  *condition.Evaluator
	catalog    ActionCatalog
	sink       events.Sink
	store      statestore.Store
	tracer     trace.Tracer
	now        TimeFunc
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithSink sets the sink that receives workflow events.
func WithSink(sink events.Sink) EngineOption {
	return func(e *Engine) {
		e.sink = sink
	}
}

// WithStore persists an execution snapshot under execution:<id> after every change.
func WithStore(store statestore.Store) EngineOption {
	return func(e *Engine) {
		e.store = store
	}
}

// WithTracerProvider sets the provider the engine opens step spans on.
func WithTracerProvider(tp trace.TracerProvider) EngineOption {
	return func(e *Engine) {
		e.tracer = telemetry.Tracer(tp)
	}
}

// WithClock sets the engine clock.
func WithClock(now TimeFunc) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithSubject sets the certificate subject validated by the gate.
func WithSubject(subject string) EngineOption {
	return func(e *Engine) {
		if subject != "" {
			e.subject = subject
		}
	}
}

// WithRegistry shares an execution registry between engines.
func WithRegistry(r *Registry) EngineOption {
	return func(e *Engine) {
		if r != nil {
			e.registry = r
		}
	}
}

// WithResolver sets the template resolver used for prompts, options and events.
func WithResolver(r *template.Resolver) EngineOption {
	return func(e *Engine) {
		if r != nil {
			e.resolver = r
		}
	}
}

// NewEngine creates an engine. When the dispatcher also knows its action tags
// (see ActionCatalog), Start rejects definitions that use unknown ones.
func NewEngine(dispatcher Dispatcher, gate Gate, opts ...EngineOption) *Engine {
	e := &Engine{
		dispatcher: dispatcher,
		gate:       gate,
		subject:    DefaultSubject,
		registry:   NewRegistry(),
		resolver:   template.NewResolver(),
		evaluator:  condition.NewEvaluator(),
		tracer:     telemetry.Tracer(nil),
		now:        time.Now,
	}
	if c, ok := dispatcher.(ActionCatalog); ok {
		e.catalog = c
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start validates def, authorizes the engine subject and runs the execution
// until it needs a decision, reaches an authority checkpoint or finishes.
func (e *Engine) Start(ctx context.Context, def *Definition, vars map[string]any) (*Instruction, error) {
	if def == nil {
		return nil, &ValidationError{Problems: []string{"definition is nil"}}
	}
	var opts []ValidateOption
	if e.catalog != nil {
		opts = append(opts, WithActionCatalog(e.catalog))
	}
	if err := Validate(def, opts...).Err(def.Name); err != nil {
		return nil, err
	}
	if err := e.authorize(ctx); err != nil {
		return nil, err
	}

	now := e.now()
	exec := &Execution{
		ID:          uuid.NewString(),
		Workflow:    def.Name,
		Version:     def.Version,
		CurrentStep: def.InitialStep,
		Status:      StatusRunning,
		Vars:        make(map[string]any, len(vars)),
		StartedAt:   now,
		UpdatedAt:   now,
	}
	maps.Copy(exec.Vars, vars)

	rn := &run{
		def:  def,
		exec: exec,
		em:   events.NewEmitter(e.sink, exec.ID, def.Name).WithClock(e.now),
	}
	e.registry.add(rn)

	rn.mu.Lock()
	defer rn.mu.Unlock()

	ctx = e.scope(ctx, rn)
	logger.InfoContext(ctx, "workflow started", "version", def.Version, "initial_step", def.InitialStep)
	rn.em.WorkflowStarted(def.Version, def.InitialStep)
	return e.advance(ctx, rn, def.InitialStep)
}

// ExecuteNextStep continues an execution from its current step. While a
// decision is pending it returns the same decision instruction again.
func (e *Engine) ExecuteNextStep(ctx context.Context, id string) (*Instruction, error) {
	rn, ok := e.registry.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	rn.mu.Lock()
	defer rn.mu.Unlock()

	if rn.exec.Status.Finished() {
		return nil, fmt.Errorf("%w: %s is %s", ErrExecutionFinished, id, rn.exec.Status)
	}
	if rn.pending != nil {
		return rn.pending.instruction(rn.exec), nil
	}
	return e.advance(e.scope(ctx, rn), rn, rn.exec.CurrentStep)
}

// SubmitDecision resolves the pending decision of an execution and continues
// from the step that paused. The value is case-normalised before it is stored.
func (e *Engine) SubmitDecision(ctx context.Context, id, value string, selection any) (*Instruction, error) {
	rn, ok := e.registry.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	rn.mu.Lock()
	defer rn.mu.Unlock()

	if rn.exec.Status.Finished() {
		return nil, fmt.Errorf("%w: %s is %s", ErrExecutionFinished, id, rn.exec.Status)
	}
	pd := rn.pending
	if pd == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoPendingDecision, id)
	}
	pd.stop()
	rn.pending = nil

	ctx = logger.WithStep(e.scope(ctx, rn), pd.step)
	decision := NormalizeDecision(value)
	recordDecision(rn.exec.Vars, pd.options, decision, selection)
	rn.exec.Status = StatusRunning
	rn.exec.UpdatedAt = e.now()
	rn.em.DecisionResolved(pd.step, decision)
	logger.InfoContext(ctx, "decision submitted", "decision", decision)

	inst, err := e.resume(ctx, rn, pd.step)
	pd.resolve(inst, err)
	return inst, err
}

// AwaitDecision blocks until the pending decision of an execution is resolved
// by SubmitDecision or by its timeout, and returns the instruction that
// resolution produced.
func (e *Engine) AwaitDecision(ctx context.Context, id string) (*Instruction, error) {
	rn, ok := e.registry.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	rn.mu.Lock()
	pd := rn.pending
	rn.mu.Unlock()
	if pd == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoPendingDecision, id)
	}

	select {
	case <-pd.done:
		return pd.result, pd.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Execution returns a snapshot of the execution with the given id.
func (e *Engine) Execution(id string) (*Execution, bool) {
	return e.registry.Get(id)
}

// Executions returns snapshots of every execution, oldest first.
func (e *Engine) Executions() []*Execution {
	return e.registry.List()
}

func (e *Engine) scope(ctx context.Context, rn *run) context.Context {
	ctx = logger.WithExecutionID(ctx, rn.exec.ID)
	return logger.WithWorkflow(ctx, rn.def.Name)
}

func (e *Engine) authorize(ctx context.Context) error {
	if e.gate == nil {
		return ErrNoGate
	}
	return e.gate.Validate(ctx, e.subject)
}

// advance runs steps starting at stepID until one of them hands control back
// to the caller. A step entered twice in one call is a cycle.
func (e *Engine) advance(ctx context.Context, rn *run, stepID string) (*Instruction, error) {
	visited := make(map[string]bool)
	for {
		step, ok := rn.def.Step(stepID)
		if !ok {
			return nil, e.fail(ctx, rn, &ExecutionInvariantError{
				ExecutionID: rn.exec.ID,
				Step:        stepID,
				Reason:      "step is not defined",
				Cause:       ErrStepNotFound,
			})
		}
		if visited[stepID] {
			return nil, e.fail(ctx, rn, &ExecutionInvariantError{
				ExecutionID: rn.exec.ID,
				Step:        stepID,
				Reason:      "step entered twice without a decision or checkpoint",
				Cause:       ErrCycle,
			})
		}
		visited[stepID] = true

		inst, next, err := e.traceStep(ctx, rn, step)
		if err != nil || inst != nil {
			return inst, err
		}
		stepID = next
	}
}

func (e *Engine) traceStep(ctx context.Context, rn *run, step *Step) (*Instruction, string, error) {
	ctx = logger.WithStep(ctx, step.ID)
	ctx, span := telemetry.StartStep(ctx, e.tracer, telemetry.SpanWorkflowStep, telemetry.StepSpan{
		ExecutionID: rn.exec.ID,
		Workflow:    rn.def.Name,
		Step:        step.ID,
		Kind:        string(step.Kind),
		Authority:   step.IsAuthority(),
	})
	inst, next, err := e.runStep(ctx, rn, step)
	outcome := "continue"
	if inst != nil {
		outcome = string(inst.Kind)
	} else if err != nil {
		outcome = "error"
	}
	telemetry.EndSpan(span, outcome, err)
	return inst, next, err
}

// runStep enters one step. It returns an instruction when control goes back
// to the caller, or the id of the step to run next.
func (e *Engine) runStep(ctx context.Context, rn *run, step *Step) (*Instruction, string, error) {
	if err := e.authorize(ctx); err != nil {
		return nil, "", e.fail(ctx, rn, err)
	}

	exec := rn.exec
	exec.visit(step, e.now())
	exec.Status = StatusRunning

	if step.IsDecision() {
		return e.pause(ctx, rn, step), "", nil
	}

	start := e.now()
	update, err := e.dispatcher.Dispatch(ctx, step.ID, step.Actions, exec.Vars)
	if err != nil {
		if _, ok := AsExecutionInvariantError(err); ok {
			return nil, "", e.fail(ctx, rn, err)
		}
		logger.ErrorContext(ctx, "step aborted", "error", err)
		e.persist(ctx, rn)
		return nil, "", err
	}
	maps.Copy(exec.Vars, update)
	e.broadcast(ctx, rn, step)
	rn.em.StepExecuted(step.ID, string(step.Kind), len(step.Actions), e.now().Sub(start))

	if rn.def.IsFinal(step.ID) {
		return e.complete(ctx, rn, step.ID), "", nil
	}
	t, ok := e.selectTransition(ctx, rn, step.ID)
	if !ok {
		return e.complete(ctx, rn, step.ID), "", nil
	}
	rn.em.Transitioned(step.ID, t.To, t.Condition)

	if step.IsAuthority() {
		exec.CurrentStep = t.To
		e.persist(ctx, rn)
		logger.InfoContext(ctx, "authority checkpoint", "next_step", t.To)
		return &Instruction{
			Kind:        InstructionDisplay,
			ExecutionID: exec.ID,
			Step:        step.ID,
			NextStep:    t.To,
			Vars:        maps.Clone(exec.Vars),
		}, "", nil
	}
	e.persist(ctx, rn)
	return nil, t.To, nil
}

// resume continues after a resolved decision, choosing the transition out of
// the step that paused.
func (e *Engine) resume(ctx context.Context, rn *run, stepID string) (*Instruction, error) {
	if rn.def.IsFinal(stepID) {
		return e.complete(ctx, rn, stepID), nil
	}
	t, ok := e.selectTransition(ctx, rn, stepID)
	if !ok {
		return e.complete(ctx, rn, stepID), nil
	}
	rn.em.Transitioned(stepID, t.To, t.Condition)
	return e.advance(ctx, rn, t.To)
}

// selectTransition returns the first transition out of from, in declaration
// order, whose condition holds.
func (e *Engine) selectTransition(ctx context.Context, rn *run, from string) (Transition, bool) {
	for _, t := range rn.def.TransitionsFrom(from) {
		if t.Condition == "" || e.evaluator.Evaluate(ctx, t.Condition, rn.exec.Vars) {
			return t, true
		}
	}
	return Transition{}, false
}

func (e *Engine) pause(ctx context.Context, rn *run, step *Step) *Instruction {
	d := step.Decision
	if d == nil {
		d = &Decision{}
	}
	exec := rn.exec
	pd := &pendingDecision{
		step:        step.ID,
		prompt:      e.resolver.ResolveText(ctx, d.Prompt, exec.Vars),
		options:     e.buildOptions(ctx, d, exec.Vars),
		timeout:     d.Timeout(),
		timeoutStep: d.TimeoutStep,
		done:        make(chan struct{}),
	}
	rn.pending = pd
	exec.Status = StatusWaiting

	if pd.timeout > 0 {
		detached := context.WithoutCancel(ctx)
		pd.timer = time.AfterFunc(pd.timeout, func() {
			e.expire(detached, rn, pd)
		})
	}
	rn.em.DecisionRequested(step.ID, pd.prompt, len(pd.options), pd.timeout)
	e.persist(ctx, rn)
	logger.InfoContext(ctx, "waiting for decision", "options", len(pd.options), "timeout", pd.timeout)
	return pd.instruction(exec)
}

// expire fires when a decision window closes without a submission.
func (e *Engine) expire(ctx context.Context, rn *run, pd *pendingDecision) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	if rn.pending != pd {
		return
	}
	rn.pending = nil
	rn.em.DecisionTimeout(pd.step, pd.timeout, pd.timeoutStep)
	logger.WarnContext(ctx, "decision timed out", "timeout", pd.timeout, "route", pd.timeoutStep)

	if pd.timeoutStep == "" {
		err := &DecisionTimeoutError{ExecutionID: rn.exec.ID, Step: pd.step, Timeout: pd.timeout}
		pd.resolve(nil, e.fail(ctx, rn, err))
		return
	}
	rn.exec.Vars[VarUserDecision] = DecisionTimeoutValue
	rn.exec.Status = StatusRunning
	pd.resolve(e.advance(ctx, rn, pd.timeoutStep))
}

func (e *Engine) complete(ctx context.Context, rn *run, stepID string) *Instruction {
	exec := rn.exec
	exec.Status = StatusCompleted
	exec.CurrentStep = stepID
	exec.UpdatedAt = e.now()
	rn.em.Completed(stepID, len(exec.History))
	e.persist(ctx, rn)
	logger.InfoContext(ctx, "workflow completed",
		"final_step", stepID, "declared_final", rn.def.IsFinal(stepID), "steps", len(exec.History))
	return &Instruction{
		Kind:        InstructionComplete,
		ExecutionID: exec.ID,
		Step:        stepID,
		Vars:        maps.Clone(exec.Vars),
	}
}

// fail marks the execution failed and returns err unchanged.
func (e *Engine) fail(ctx context.Context, rn *run, err error) error {
	exec := rn.exec
	exec.Status = StatusFailed
	exec.Error = err.Error()
	exec.UpdatedAt = e.now()
	if rn.pending != nil {
		rn.pending.stop()
		rn.pending = nil
	}
	rn.em.Failed(exec.CurrentStep, err)
	e.persist(ctx, rn)
	logger.ErrorContext(ctx, "workflow failed", "error", err)
	return err
}

// broadcast emits the step's outbound events with templates resolved against
// the execution context.
func (e *Engine) broadcast(ctx context.Context, rn *run, step *Step) {
	for _, ev := range step.Events {
		payload := e.resolver.ResolveMap(ctx, ev.Payload, rn.exec.Vars)
		rn.em.Broadcast(step.ID, ev.Name, payload)
	}
}

func (e *Engine) persist(ctx context.Context, rn *run) {
	if e.store == nil {
		return
	}
	data, err := json.Marshal(rn.exec)
	if err != nil {
		logger.WarnContext(ctx, "execution snapshot not encodable", "error", err)
		return
	}
	if err := e.store.Set(ctx, ExecutionKey(rn.exec.ID), data); err != nil {
		logger.WarnContext(ctx, "execution snapshot not saved", "error", err)
	}
}

// ExecutionKey is the store key an execution snapshot is saved under.
func ExecutionKey(id string) string {
	return "execution:" + id
}
