package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span names.
const (
	SpanWorkflowStep     = "edenkit.workflow.step"
	SpanWorkflowDecision = "edenkit.workflow.decision"
)

// Attribute keys.
const (
	AttrExecutionID = "edenkit.execution.id"
	AttrWorkflow    = "edenkit.workflow.name"
	AttrStep        = "edenkit.step.id"
	AttrStepKind    = "edenkit.step.kind"
	AttrAuthority   = "edenkit.step.authority"
	AttrOutcome     = "edenkit.step.outcome"
)

// StepSpan describes the step a span covers.
type StepSpan struct {
	ExecutionID string
	Workflow    string
	Step        string
	Kind        string
	Authority   bool
}

// StartStep opens a span for one workflow step.
func StartStep(ctx context.Context, tracer trace.Tracer, name string, s StepSpan) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(AttrExecutionID, s.ExecutionID),
			attribute.String(AttrWorkflow, s.Workflow),
			attribute.String(AttrStep, s.Step),
			attribute.String(AttrStepKind, s.Kind),
			attribute.Bool(AttrAuthority, s.Authority),
		),
	)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, outcome string, err error) {
	if outcome != "" {
		span.SetAttributes(attribute.String(AttrOutcome, outcome))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
