package actions

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrUnknownAction is returned by Validate for tags with no handler.
	ErrUnknownAction = errors.New("unknown action type")

	// ErrDuplicateAction is returned when a tag is registered twice.
	ErrDuplicateAction = errors.New("action type already registered")

	// ErrActionTypeRequired is returned when registering an empty tag.
	ErrActionTypeRequired = errors.New("action type is required")

	// ErrNilHandler is returned when registering a nil handler.
	ErrNilHandler = errors.New("action handler is nil")

	// ErrInvalidParams is returned when action params cannot be decoded.
	ErrInvalidParams = errors.New("invalid action params")
)

// ActionError reports a handler failure. It aborts the whole step.
type ActionError struct {
	Step       string
	ActionType string
	Index      int
	Cause      error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %d (%s) in step %q failed: %v", e.Index, e.ActionType, e.Step, e.Cause)
}

func (e *ActionError) Unwrap() error {
	return e.Cause
}

// AsActionError extracts an *ActionError from err.
func AsActionError(err error) (*ActionError, bool) {
	var target *ActionError
	ok := errors.As(err, &target)
	return target, ok
}
