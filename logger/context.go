package logger

import (
	"context"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// Context keys for execution-scoped logging fields. Values stored under these
// keys are added to every record logged with the context.
const (
	// ContextKeyExecutionID identifies the workflow execution.
	ContextKeyExecutionID contextKey = "execution_id"

	// ContextKeyWorkflow identifies the workflow definition by name.
	ContextKeyWorkflow contextKey = "workflow"

	// ContextKeyStep identifies the step being executed.
	ContextKeyStep contextKey = "step"

	// ContextKeyEntryID identifies the ledger entry being processed.
	ContextKeyEntryID contextKey = "entry_id"

	// ContextKeyPayer identifies the paying identity.
	ContextKeyPayer contextKey = "payer"

	// ContextKeyRequestID identifies the inbound request.
	ContextKeyRequestID contextKey = "request_id"
)

var allContextKeys = []contextKey{
	ContextKeyExecutionID,
	ContextKeyWorkflow,
	ContextKeyStep,
	ContextKeyEntryID,
	ContextKeyPayer,
	ContextKeyRequestID,
}

// WithExecutionID returns a new context with the execution ID set.
func WithExecutionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyExecutionID, id)
}

// WithWorkflow returns a new context with the workflow name set.
func WithWorkflow(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ContextKeyWorkflow, name)
}

// WithStep returns a new context with the step ID set.
func WithStep(ctx context.Context, step string) context.Context {
	return context.WithValue(ctx, ContextKeyStep, step)
}

// WithEntryID returns a new context with the ledger entry ID set.
func WithEntryID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyEntryID, id)
}

// WithPayer returns a new context with the payer identity set.
func WithPayer(ctx context.Context, payer string) context.Context {
	return context.WithValue(ctx, ContextKeyPayer, payer)
}

// WithRequestID returns a new context with the request ID set.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, id)
}

// LoggingFields holds all standard logging context fields.
type LoggingFields struct {
	ExecutionID string
	Workflow    string
	Step        string
	EntryID     string
	Payer       string
	RequestID   string
}

// WithLoggingContext sets every non-empty field of fields on ctx.
func WithLoggingContext(ctx context.Context, fields *LoggingFields) context.Context {
	if fields == nil {
		return ctx
	}
	set := func(key contextKey, v string) {
		if v != "" {
			ctx = context.WithValue(ctx, key, v)
		}
	}
	set(ContextKeyExecutionID, fields.ExecutionID)
	set(ContextKeyWorkflow, fields.Workflow)
	set(ContextKeyStep, fields.Step)
	set(ContextKeyEntryID, fields.EntryID)
	set(ContextKeyPayer, fields.Payer)
	set(ContextKeyRequestID, fields.RequestID)
	return ctx
}

// ExtractLoggingFields reads all logging fields from a context.
func ExtractLoggingFields(ctx context.Context) LoggingFields {
	get := func(key contextKey) string {
		s, _ := ctx.Value(key).(string)
		return s
	}
	return LoggingFields{
		ExecutionID: get(ContextKeyExecutionID),
		Workflow:    get(ContextKeyWorkflow),
		Step:        get(ContextKeyStep),
		EntryID:     get(ContextKeyEntryID),
		Payer:       get(ContextKeyPayer),
		RequestID:   get(ContextKeyRequestID),
	}
}
