package observability

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/mcp-tool-shop/nexus-router/internal/router"
)

// Tracer implements router.Tracer against an OpenTelemetry trace provider.
// One span is opened per run and one child span per step.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer builds a Tracer backed by an OTel SDK provider. When the
// NEXUS_OTLP_ENDPOINT environment variable is set it exports over OTLP/HTTP
// to that endpoint; otherwise it exports to stdout, matching the stdout
// default used by this codebase's previous tracing setup.
func NewTracer(ctx context.Context, serviceName string) (*Tracer, func(context.Context) error, error) {
	var exporter sdktrace.SpanExporter
	var err error

	if endpoint := os.Getenv("NEXUS_OTLP_ENDPOINT"); endpoint != "" {
		exporter, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	} else {
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	if err != nil {
		return nil, nil, fmt.Errorf("observability: failed to build span exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(provider)

	return &Tracer{tracer: provider.Tracer(serviceName)}, provider.Shutdown, nil
}

// Span adapts an OTel span to router.Span.
type Span struct {
	span trace.Span
}

// SetAttribute records a single key/value pair on the span, stringifying
// non-string values via fmt.Sprint.
func (s Span) SetAttribute(key string, value any) {
	if str, ok := value.(string); ok {
		s.span.SetAttributes(attribute.String(key, str))
		return
	}
	s.span.SetAttributes(attribute.String(key, fmt.Sprint(value)))
}

// End closes the span.
func (s Span) End() { s.span.End() }

// StartRunSpan opens the top-level span for one run.
func (t *Tracer) StartRunSpan(ctx context.Context, runID string) (context.Context, router.Span) {
	ctx, span := t.tracer.Start(ctx, "nexus_router.run")
	span.SetAttributes(attribute.String("run_id", runID))
	return ctx, Span{span: span}
}

// StartStepSpan opens a child span for one plan step.
func (t *Tracer) StartStepSpan(ctx context.Context, stepID string) (context.Context, router.Span) {
	ctx, span := t.tracer.Start(ctx, "nexus_router.step")
	span.SetAttributes(attribute.String("step_id", stepID))
	return ctx, Span{span: span}
}
