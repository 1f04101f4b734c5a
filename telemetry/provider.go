// Package telemetry provides OpenTelemetry integration for EdenKit: tracer
// provider setup, propagation and the span helpers the workflow engine uses.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/contrib/propagators/aws/xray"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// InstrumentationName is the OTel instrumentation scope name.
	InstrumentationName = "github.com/AltairaLabs/EdenKit"

	// InstrumentationVersion is the OTel instrumentation scope version.
	InstrumentationVersion = "1.0.0"

	// DefaultServiceName names the service when the config leaves it empty.
	DefaultServiceName = "edenkit"
)

// Resource attribute keys describing the EdenKit deployment.
const (
	AttrResourceSubject = "edenkit.authority.subject"
	AttrResourceIssuer  = "edenkit.authority.issuer"
	AttrResourceStore   = "edenkit.store.driver"
)

// ErrNoEndpoint is returned when export is requested without an endpoint.
var ErrNoEndpoint = errors.New("telemetry: no OTLP endpoint configured")

// Export describes where spans go and which deployment emitted them.
type Export struct {
	// Endpoint is the OTLP/HTTP traces URL, e.g. http://collector:4318/v1/traces.
	Endpoint string
	Headers  map[string]string

	ServiceName    string
	ServiceVersion string
	Environment    string

	// Subject and Issuer identify the orchestrator certificate this process runs under.
	Subject     string
	Issuer      string
	StoreDriver string

	// SampleRatio is the fraction of new traces recorded. 1 records all, 0
	// records none; child spans follow their parent's decision.
	SampleRatio float64
}

// Tracer returns a named tracer from the given TracerProvider.
// If tp is nil the global provider is used.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(InstrumentationName, trace.WithInstrumentationVersion(InstrumentationVersion))
}

// Resource builds the OTel resource for the deployment. Empty fields are left out.
func (e Export) Resource(ctx context.Context) (*resource.Resource, error) {
	name := e.ServiceName
	if name == "" {
		name = DefaultServiceName
	}
	attrs := []attribute.KeyValue{semconv.ServiceName(name)}
	if e.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(e.ServiceVersion))
	}
	if e.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(e.Environment))
	}
	for key, val := range map[string]string{
		AttrResourceSubject: e.Subject,
		AttrResourceIssuer:  e.Issuer,
		AttrResourceStore:   e.StoreDriver,
	} {
		if val != "" {
			attrs = append(attrs, attribute.String(key, val))
		}
	}
	return resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithAttributes(attrs...),
	)
}

// Sampler returns the head sampler for SampleRatio.
func (e Export) Sampler() sdktrace.Sampler {
	switch {
	case e.SampleRatio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case e.SampleRatio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(e.SampleRatio))
	}
}

// NewTracerProvider creates a TracerProvider that batches spans to the OTLP/HTTP
// endpoint. The caller is responsible for calling Shutdown on the result.
func NewTracerProvider(ctx context.Context, e Export) (*sdktrace.TracerProvider, error) {
	if e.Endpoint == "" {
		return nil, ErrNoEndpoint
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpointURL(e.Endpoint)}
	if len(e.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(e.Headers))
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := e.Resource(ctx)
	if err != nil {
		return nil, fmt.Errorf("build telemetry resource: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(e.Sampler()),
	), nil
}

// SetupPropagation configures the global OTel text-map propagator to handle
// W3C TraceContext, W3C Baggage, and AWS X-Ray trace headers.
func SetupPropagation() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
		xray.Propagator{},
	))
}
