package workflow

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors.
var (
	// ErrExecutionNotFound is returned for an unknown execution id.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrExecutionFinished is returned when a completed or failed execution is driven again.
	ErrExecutionFinished = errors.New("execution already finished")

	// ErrNoPendingDecision is returned when a decision is submitted to an execution that is not waiting for one.
	ErrNoPendingDecision = errors.New("no decision pending")

	// ErrCycle is wrapped by ExecutionInvariantError when a single call revisits a step.
	ErrCycle = errors.New("step revisited without a decision break")

	// ErrStepNotFound is wrapped by ExecutionInvariantError when a step id does not resolve.
	ErrStepNotFound = errors.New("step not found")
)

// ValidationError is returned when a definition fails to load or validate.
type ValidationError struct {
	Workflow string
	Problems []string
}

func (e *ValidationError) Error() string {
	name := e.Workflow
	if name == "" {
		name = "workflow"
	}
	return fmt.Sprintf("invalid %s: %s", name, strings.Join(e.Problems, "; "))
}

// ExecutionInvariantError reports a data or programming defect that makes
// the execution impossible to continue: a missing step or transition target,
// a cycle, or a settlement target that does not exist.
type ExecutionInvariantError struct {
	ExecutionID string
	Step        string
	Reason      string
	Cause       error
}

func (e *ExecutionInvariantError) Error() string {
	var b strings.Builder
	b.WriteString("execution invariant violated")
	if e.ExecutionID != "" {
		fmt.Fprintf(&b, " in %s", e.ExecutionID)
	}
	if e.Step != "" {
		fmt.Fprintf(&b, " at step %q", e.Step)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *ExecutionInvariantError) Unwrap() error {
	return e.Cause
}

// DecisionTimeoutError is returned when a decision window closes without a
// submission and the step declares no timeout route.
type DecisionTimeoutError struct {
	ExecutionID string
	Step        string
	Timeout     time.Duration
}

func (e *DecisionTimeoutError) Error() string {
	return fmt.Sprintf("decision at step %q of %s timed out after %s", e.Step, e.ExecutionID, e.Timeout)
}

// AsValidationError extracts a *ValidationError from err.
func AsValidationError(err error) (*ValidationError, bool) {
	var target *ValidationError
	ok := errors.As(err, &target)
	return target, ok
}

// AsExecutionInvariantError extracts an *ExecutionInvariantError from err.
func AsExecutionInvariantError(err error) (*ExecutionInvariantError, bool) {
	var target *ExecutionInvariantError
	ok := errors.As(err, &target)
	return target, ok
}

// AsDecisionTimeoutError extracts a *DecisionTimeoutError from err.
func AsDecisionTimeoutError(err error) (*DecisionTimeoutError, bool) {
	var target *DecisionTimeoutError
	ok := errors.As(err, &target)
	return target, ok
}
